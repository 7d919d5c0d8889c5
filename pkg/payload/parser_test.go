package payload

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPayload(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payload Parser Suite")
}

var _ = Describe("Parser", func() {
	var p *Parser

	BeforeEach(func() {
		p = NewParser(nil)
	})

	Describe("Parse", func() {
		It("strips and returns a plain scalar with no path", func() {
			v, ok := p.Parse("  42  ", "")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("42"))
		})

		It("re-serializes a bare JSON object with no path", func() {
			v, ok := p.Parse(`{"a":1}`, "")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(`{"a":1}`))
		})

		It("walks a dotted path to a scalar", func() {
			v, ok := p.Parse(`{"a":{"b":{"c":3.5}}}`, "a.b.c")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("3.5"))
		})

		It("returns nothing for a missing key", func() {
			_, ok := p.Parse(`{"a":{"b":1}}`, "a.x")
			Expect(ok).To(BeFalse())
		})

		It("returns nothing when mid-chain is not an object", func() {
			_, ok := p.Parse(`{"a":1}`, "a.b")
			Expect(ok).To(BeFalse())
		})

		It("returns compact JSON for an object/array leaf", func() {
			v, ok := p.Parse(`{"a":{"b":[1,2,3]}}`, "a.b")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(`[1,2,3]`))
		})

		It("returns nothing when the path is set but the payload is not JSON", func() {
			_, ok := p.Parse(`not json`, "a.b")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ParseEventTimestamp", func() {
		fallback := time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)

		It("falls back when path is empty", func() {
			got := p.ParseEventTimestamp(`{}`, "", fallback)
			Expect(got).To(Equal(fallback))
		})

		It("parses an ISO-8601 timestamp with trailing Z", func() {
			got := p.ParseEventTimestamp(`{"ts":"2026-02-21T14:05:00Z"}`, "ts", fallback)
			Expect(got).To(Equal(time.Date(2026, 2, 21, 14, 5, 0, 0, time.UTC)))
		})

		It("auto-detects epoch seconds", func() {
			got := p.ParseEventTimestamp(`{"ts":1771682700}`, "ts", fallback)
			Expect(got.Unix()).To(Equal(int64(1771682700)))
		})

		It("auto-detects epoch milliseconds above the 1e12 magnitude", func() {
			got := p.ParseEventTimestamp(`{"ts":1771682700000}`, "ts", fallback)
			Expect(got.Unix()).To(Equal(int64(1771682700)))
		})

		It("falls back on an unparseable value", func() {
			got := p.ParseEventTimestamp(`{"ts":"not-a-date"}`, "ts", fallback)
			Expect(got).To(Equal(fallback))
		})

		It("falls back when the path is missing", func() {
			got := p.ParseEventTimestamp(`{"other":1}`, "ts", fallback)
			Expect(got).To(Equal(fallback))
		})
	})
})
