package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/trandh/pulse/internal/registry"
	"github.com/trandh/pulse/internal/stream"
)

// clearScreen wipes the terminal including scrollback and homes the
// cursor, so each cycle redraws in place.
const clearScreen = "\033[2J\033[3J\033[H"

// Renderer subscribes to the snapshot stream and redraws a status table
// on every published cycle. It is a read-only consumer; decoding the
// published JSON keeps it on the same wire contract as the dashboard.
type Renderer struct {
	hub     *stream.Hub
	out     io.Writer
	address string
	logger  *slog.Logger
}

func NewRenderer(hub *stream.Hub, out io.Writer, address string, logger *slog.Logger) *Renderer {
	return &Renderer{
		hub:     hub,
		out:     out,
		address: address,
		logger:  logger,
	}
}

// Run consumes snapshots until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) {
	sub := r.hub.Subscribe()
	defer r.hub.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, open := <-sub.C:
			if !open {
				return
			}

			var snapshot []registry.BackendStatus
			if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
				r.logger.Error("failed to decode snapshot", slog.Any("err", err))
				continue
			}
			r.Render(snapshot)
		}
	}
}

// Render draws one snapshot.
func (r *Renderer) Render(snapshot []registry.BackendStatus) {
	fmt.Fprint(r.out, clearScreen)
	fmt.Fprintln(r.out, "=== SERVER STATUS ===")
	fmt.Fprintf(r.out, "=== http://localhost%s ===\n", r.address)
	fmt.Fprintf(r.out, "=== http://localhost%s/load-balancer/dashboard ===\n\n", r.address)

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"(index)", "URL", "Region", "Health", "Uptime (%)", "Resp (ms)", "Graph", "Last Check"})
	table.SetAutoFormatHeaders(false)

	for i, s := range snapshot {
		health := "DOWN"
		if s.Healthy {
			health = "UP"
		}

		resp := "-"
		if s.ResponseTime != nil {
			resp = strconv.FormatInt(*s.ResponseTime, 10)
		}

		lastCheck := "-"
		if s.LastCheck != nil {
			lastCheck = *s.LastCheck
		}

		table.Append([]string{
			strconv.Itoa(i),
			s.URL,
			s.Region,
			health,
			fmt.Sprintf("%.1f", uptimePercent(s.Uptime, s.Downtime)),
			resp,
			Sparkline(s.History),
			lastCheck,
		})
	}

	table.Render()
}

func uptimePercent(uptime, downtime uint64) float64 {
	total := uptime + downtime
	if total == 0 {
		return 0
	}
	return float64(uptime) / float64(total) * 100
}

var sparkBlocks = []rune{' ', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders a latency history as block characters: '·' for no
// data, 'x' for a failed probe, and a height-scaled block otherwise.
func Sparkline(history []*int64) string {
	var max int64 = 1
	for _, v := range history {
		if v != nil && *v > max {
			max = *v
		}
	}

	line := make([]rune, 0, len(history))
	for _, v := range history {
		switch {
		case v == nil:
			line = append(line, '·')
		case *v == 0:
			line = append(line, 'x')
		default:
			ratio := float64(*v) / float64(max)
			idx := int(ratio*float64(len(sparkBlocks)-1) + 0.5)
			line = append(line, sparkBlocks[idx])
		}
	}

	return string(line)
}
