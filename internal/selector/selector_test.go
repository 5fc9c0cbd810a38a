package selector_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trandh/pulse/internal/selector"
)

func TestSelector(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Selector Suite")
}

var _ = Describe("Identity", func() {
	It("should be stable for the same ip and user agent", func() {
		a := selector.Identity("10.0.0.1", "curl/8.0")
		b := selector.Identity("10.0.0.1", "curl/8.0")

		Expect(a).To(Equal(b))
		Expect(a).To(HaveLen(32))
	})

	It("should differ for different clients", func() {
		a := selector.Identity("10.0.0.1", "curl/8.0")
		b := selector.Identity("10.0.0.2", "curl/8.0")
		c := selector.Identity("10.0.0.1", "Mozilla/5.0")

		Expect(a).NotTo(Equal(b))
		Expect(a).NotTo(Equal(c))
	})
})

var _ = Describe("Decide", func() {
	var (
		backends []selector.Candidate
		affinity map[string]string
	)

	BeforeEach(func() {
		backends = []selector.Candidate{
			{URL: "http://a:8081", Healthy: true},
			{URL: "http://b:8082", Healthy: true},
			{URL: "http://c:8083", Healthy: true},
		}
		affinity = make(map[string]string)
	})

	Context("with a healthy affinity entry", func() {
		It("should return the pinned backend without advancing the cursor", func() {
			affinity["client-1"] = "http://b:8082"

			d, ok := selector.Decide(backends, affinity, 2, "client-1")

			Expect(ok).To(BeTrue())
			Expect(d.URL).To(Equal("http://b:8082"))
			Expect(d.Sticky).To(BeTrue())
			Expect(d.Cursor).To(Equal(2))
			Expect(d.Pin).To(BeFalse())
		})
	})

	Context("with a stale affinity entry", func() {
		It("should fall through to round-robin when the pinned backend is down", func() {
			backends[1].Healthy = false
			affinity["client-1"] = "http://b:8082"

			d, ok := selector.Decide(backends, affinity, 0, "client-1")

			Expect(ok).To(BeTrue())
			Expect(d.URL).NotTo(Equal("http://b:8082"))
			Expect(d.Sticky).To(BeFalse())
			Expect(d.Pin).To(BeTrue())
		})

		It("should fall through when the pinned URL is unknown", func() {
			affinity["client-1"] = "http://gone:9999"

			d, ok := selector.Decide(backends, affinity, 0, "client-1")

			Expect(ok).To(BeTrue())
			Expect(d.Pin).To(BeTrue())
		})
	})

	Context("round-robin", func() {
		It("should visit each healthy backend exactly once before repeating", func() {
			cursor := 0
			seen := make(map[string]int)

			for i := 0; i < 3; i++ {
				d, ok := selector.Decide(backends, affinity, cursor, "fresh-client")
				Expect(ok).To(BeTrue())
				cursor = d.Cursor
				seen[d.URL]++
			}

			Expect(seen).To(HaveLen(3))
			for _, n := range seen {
				Expect(n).To(Equal(1))
			}
		})

		It("should rotate over the healthy subsequence only", func() {
			backends[0].Healthy = false
			cursor := 0

			d1, _ := selector.Decide(backends, affinity, cursor, "x")
			d2, _ := selector.Decide(backends, affinity, d1.Cursor, "y")
			d3, _ := selector.Decide(backends, affinity, d2.Cursor, "z")

			Expect(d1.URL).NotTo(Equal("http://a:8081"))
			Expect(d2.URL).NotTo(Equal("http://a:8081"))
			Expect([]string{d1.URL, d2.URL}).To(ConsistOf("http://b:8082", "http://c:8083"))
			Expect(d3.URL).To(Equal(d1.URL))
		})
	})

	Context("with no healthy backend", func() {
		It("should return no decision", func() {
			for i := range backends {
				backends[i].Healthy = false
			}

			_, ok := selector.Decide(backends, affinity, 0, "client-1")
			Expect(ok).To(BeFalse())
		})

		It("should return no decision for an empty pool", func() {
			_, ok := selector.Decide(nil, affinity, 0, "client-1")
			Expect(ok).To(BeFalse())
		})
	})
})
