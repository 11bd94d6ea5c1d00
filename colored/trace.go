package colored

import "github.com/google/uuid"

// TraceItem is one link in a provenance chain: it can describe itself and
// point at the item it was derived from, so a source-to-sink report can be
// unwound into human-readable steps.
type TraceItem interface {
	Describe() string
	Previous() TraceItem
}

// Identified is implemented by trace items carrying a stable identity,
// which reporting uses to deduplicate intersections.
type Identified interface {
	ID() uuid.UUID
}

type traceItem struct {
	id   uuid.UUID
	what string
	prev TraceItem
}

// NewTrace starts a provenance chain.
func NewTrace(what string) TraceItem {
	return &traceItem{id: uuid.New(), what: what}
}

// NewChainedTrace extends a provenance chain by one derivation step.
func NewChainedTrace(what string, prev TraceItem) TraceItem {
	return &traceItem{id: uuid.New(), what: what, prev: prev}
}

func (t *traceItem) Describe() string    { return t.what }
func (t *traceItem) Previous() TraceItem { return t.prev }
func (t *traceItem) ID() uuid.UUID      { return t.id }

// TraceRoot unwinds a chain to its origin.
func TraceRoot(t TraceItem) TraceItem {
	for t != nil && t.Previous() != nil {
		t = t.Previous()
	}
	return t
}
