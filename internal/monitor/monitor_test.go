package monitor_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trandh/pulse/internal/metrics"
	"github.com/trandh/pulse/internal/monitor"
	"github.com/trandh/pulse/internal/registry"
	"github.com/trandh/pulse/internal/stream"
)

func TestMonitor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Monitor Suite")
}

var _ = Describe("Monitor", func() {
	var (
		log *slog.Logger
		hub *stream.Hub
		ctx context.Context
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		hub = stream.NewHub(10)
		ctx = context.Background()
	})

	healthzServer := func(status int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				w.WriteHeader(status)
				return
			}
			http.NotFound(w, r)
		}))
	}

	Describe("RunCycle", func() {
		It("should record one up and one down backend after a single cycle", func() {
			up := healthzServer(http.StatusOK)
			defer up.Close()

			down := healthzServer(http.StatusOK)
			downURL := down.URL
			down.Close()

			reg := registry.New([]registry.Seed{
				{URL: up.URL},
				{URL: downURL},
			}, hub, log)

			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)

			snap := reg.Snapshot()

			Expect(snap[0].Healthy).To(BeTrue())
			Expect(snap[0].Uptime).To(Equal(uint64(1)))
			Expect(snap[0].Downtime).To(BeZero())
			Expect(snap[0].History).To(HaveLen(1))
			Expect(*snap[0].History[0]).To(BeNumerically(">=", 0))
			Expect(snap[0].ResponseTime).NotTo(BeNil())
			Expect(snap[0].LastCheck).NotTo(BeNil())

			Expect(snap[1].Healthy).To(BeFalse())
			Expect(snap[1].Uptime).To(BeZero())
			Expect(snap[1].Downtime).To(Equal(uint64(1)))
			Expect(snap[1].History).To(HaveLen(1))
			Expect(*snap[1].History[0]).To(BeZero())
		})

		It("should treat a non-2xx status like a transport failure", func() {
			failing := healthzServer(http.StatusInternalServerError)
			defer failing.Close()

			reg := registry.New([]registry.Seed{{URL: failing.URL}}, hub, log)

			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)

			snap := reg.Snapshot()
			Expect(snap[0].Healthy).To(BeFalse())
			Expect(snap[0].Downtime).To(Equal(uint64(1)))
		})

		It("should accept any 2xx status", func() {
			noContent := healthzServer(http.StatusNoContent)
			defer noContent.Close()

			reg := registry.New([]registry.Seed{{URL: noContent.URL}}, hub, log)

			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)

			Expect(reg.Snapshot()[0].Healthy).To(BeTrue())
		})

		It("should not let one failing backend affect another in the same cycle", func() {
			up := healthzServer(http.StatusOK)
			defer up.Close()

			reg := registry.New([]registry.Seed{
				{URL: "http://127.0.0.1:1"},
				{URL: up.URL},
			}, hub, log)

			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)

			snap := reg.Snapshot()
			Expect(snap[0].Healthy).To(BeFalse())
			Expect(snap[1].Healthy).To(BeTrue())
			Expect(snap[1].Uptime).To(Equal(uint64(1)))
		})

		It("should probe healthz without doubling the slash on a trailing-slash base", func() {
			var sawPath string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawPath = r.URL.Path
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			reg := registry.New([]registry.Seed{{URL: srv.URL + "/"}}, hub, log)

			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)

			Expect(sawPath).To(Equal("/healthz"))
			Expect(reg.Snapshot()[0].Healthy).To(BeTrue())
		})

		It("should publish one snapshot per cycle", func() {
			up := healthzServer(http.StatusOK)
			defer up.Close()

			reg := registry.New([]registry.Seed{{URL: up.URL}}, hub, log)
			sub := hub.Subscribe()

			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)
			m.RunCycle(ctx)

			Expect(sub.C).To(HaveLen(2))
		})

		It("should do nothing with an empty pool", func() {
			reg := registry.New(nil, hub, log)
			sub := hub.Subscribe()

			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)

			Expect(sub.C).To(BeEmpty())
		})
	})

	Describe("metric events", func() {
		It("should expose gauge and counter series for a backend that fails every cycle", func() {
			never := healthzServer(http.StatusOK)
			neverURL := never.URL
			never.Close()

			reg := registry.New([]registry.Seed{{URL: neverURL}}, hub, log)

			collector := metrics.NewCollector(100, log)
			collectCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			collector.Start(collectCtx)

			m := monitor.New(reg, collector, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)
			m.RunCycle(ctx)

			scrape := func() string {
				rec := httptest.NewRecorder()
				collector.PromHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
				return rec.Body.String()
			}

			Eventually(scrape).Should(SatisfyAll(
				ContainSubstring(`pulse_backend_up{backend="`+neverURL+`"} 0`),
				ContainSubstring(`pulse_probes_total{backend="`+neverURL+`",result="failure"} 2`),
			))
		})

		It("should count successful probes", func() {
			up := healthzServer(http.StatusOK)
			defer up.Close()

			reg := registry.New([]registry.Seed{{URL: up.URL}}, hub, log)

			collector := metrics.NewCollector(100, log)
			collectCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			collector.Start(collectCtx)

			m := monitor.New(reg, collector, time.Second, 500*time.Millisecond, log)
			m.RunCycle(ctx)

			scrape := func() string {
				rec := httptest.NewRecorder()
				collector.PromHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
				return rec.Body.String()
			}

			Eventually(scrape).Should(SatisfyAll(
				ContainSubstring(`pulse_backend_up{backend="`+up.URL+`"} 1`),
				ContainSubstring(`pulse_probes_total{backend="`+up.URL+`",result="success"} 1`),
			))
		})
	})

	Describe("Run", func() {
		It("should keep cycling until the context is cancelled", func() {
			flaky := healthzServer(http.StatusOK)
			defer flaky.Close()

			reg := registry.New([]registry.Seed{{URL: flaky.URL}}, hub, log)

			runCtx, cancel := context.WithCancel(ctx)
			m := monitor.New(reg, nil, 50*time.Millisecond, 500*time.Millisecond, log)

			done := make(chan struct{})
			go func() {
				m.Run(runCtx)
				close(done)
			}()

			Eventually(func() uint64 {
				return reg.Snapshot()[0].Uptime
			}).Should(BeNumerically(">=", 2))

			cancel()
			Eventually(done).Should(BeClosed())
		})

		It("should recover a backend that comes back up", func() {
			down := healthzServer(http.StatusOK)
			downURL := down.URL
			down.Close()

			reg := registry.New([]registry.Seed{{URL: downURL}}, hub, log)
			m := monitor.New(reg, nil, time.Second, 500*time.Millisecond, log)

			m.RunCycle(ctx)
			Expect(reg.Snapshot()[0].Healthy).To(BeFalse())

			revived := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer revived.Close()

			reg2 := registry.New([]registry.Seed{{URL: revived.URL}}, hub, log)
			m2 := monitor.New(reg2, nil, time.Second, 500*time.Millisecond, log)
			m2.RunCycle(ctx)
			Expect(reg2.Snapshot()[0].Healthy).To(BeTrue())
		})
	})
})
