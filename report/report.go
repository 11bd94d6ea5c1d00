// Package report collects source-to-sink findings and renders them for
// humans (colored terminal output) and machines (msgpack export).
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vlsergey/secan4go/colored"
)

// Finding is one detected flow: the provenance chains of the source value
// and the sink it reached, unwound into human-readable steps.
type Finding struct {
	SourceTrace []string `msgpack:"source_trace"`
	SinkTrace   []string `msgpack:"sink_trace"`
}

// Collector gathers intersection events from a painting session and
// deduplicates them by trace identity. Safe for concurrent use; the
// session invokes the callback from multiple workers.
type Collector struct {
	mu       sync.Mutex
	seen     map[[2]uuid.UUID]bool
	findings []Finding
}

func NewCollector() *Collector {
	return &Collector{seen: make(map[[2]uuid.UUID]bool)}
}

// OnIntersection is the callback handed to the painting session.
func (c *Collector) OnIntersection(source, sink colored.TraceItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sourceID, ok := traceID(source); ok {
		if sinkID, ok := traceID(sink); ok {
			key := [2]uuid.UUID{sourceID, sinkID}
			if c.seen[key] {
				return
			}
			c.seen[key] = true
		}
	}
	c.findings = append(c.findings, Finding{
		SourceTrace: unwind(source),
		SinkTrace:   unwind(sink),
	})
}

func traceID(t colored.TraceItem) (uuid.UUID, bool) {
	if identified, ok := t.(colored.Identified); ok {
		return identified.ID(), true
	}
	return uuid.UUID{}, false
}

func unwind(t colored.TraceItem) []string {
	var out []string
	for ; t != nil; t = t.Previous() {
		out = append(out, t.Describe())
	}
	return out
}

// Findings returns the collected findings in a stable order.
func (c *Collector) Findings() []Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]Finding(nil), c.findings...)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].SourceTrace) > 0 && len(out[j].SourceTrace) > 0 &&
			out[i].SourceTrace[0] != out[j].SourceTrace[0] {
			return out[i].SourceTrace[0] < out[j].SourceTrace[0]
		}
		if len(out[i].SinkTrace) > 0 && len(out[j].SinkTrace) > 0 {
			return out[i].SinkTrace[0] < out[j].SinkTrace[0]
		}
		return false
	})
	return out
}

// Render writes a human-readable report. Styling can be disabled for
// non-terminal output.
func Render(w io.Writer, findings []Finding, styled bool) {
	red := func(s string) string { return s }
	yellow := func(s string) string { return s }
	green := func(s string) string { return s }
	if styled {
		red = func(s string) string { return color.Red.Render(s) }
		yellow = func(s string) string { return color.Yellow.Render(s) }
		green = func(s string) string { return color.Green.Render(s) }
	}

	if len(findings) == 0 {
		fmt.Fprintln(w, green("no source-to-sink flows found"))
		return
	}
	for i, f := range findings {
		fmt.Fprintf(w, "%s\n", red(fmt.Sprintf("finding #%d: untrusted data reaches a sink", i+1)))
		fmt.Fprintf(w, "  %s\n", yellow("source:"))
		for _, step := range f.SourceTrace {
			fmt.Fprintf(w, "    - %s\n", step)
		}
		fmt.Fprintf(w, "  %s\n", yellow("sink:"))
		for _, step := range f.SinkTrace {
			fmt.Fprintf(w, "    - %s\n", step)
		}
	}
}

// Export writes the findings as msgpack for machine consumption.
func Export(w io.Writer, findings []Finding) error {
	return msgpack.NewEncoder(w).Encode(findings)
}

// Import reads findings previously written by Export.
func Import(r io.Reader) ([]Finding, error) {
	var findings []Finding
	if err := msgpack.NewDecoder(r).Decode(&findings); err != nil {
		return nil, err
	}
	return findings, nil
}
