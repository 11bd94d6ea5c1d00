package colored

import "github.com/vlsergey/secan4go/colorless"

// Coloring is the mutable node→ColoredObject mapping one colorer run works
// on. It tracks whether anything changed since the dirty flag was last
// cleared, which is how the brush fixpoint terminates, and routes
// source-meets-sink events to the session's callback.
type Coloring struct {
	colors         map[*colorless.DataNode]*ColoredObject
	dirty          bool
	onIntersection func(source, sink TraceItem)
}

func NewColoring(onIntersection func(source, sink TraceItem)) *Coloring {
	return &Coloring{
		colors:         make(map[*colorless.DataNode]*ColoredObject),
		onIntersection: onIntersection,
	}
}

// Get returns the current coloring of a node, or nil.
func (c *Coloring) Get(n *colorless.DataNode) *ColoredObject {
	return c.colors[n]
}

// Update folds a coloring into a node with most-dangerous semantics,
// setting the dirty flag when the node's coloring actually moved.
func (c *Coloring) Update(n *colorless.DataNode, co *ColoredObject) {
	if n == nil || co == nil {
		return
	}
	prev := c.colors[n]
	merged := MergeMostDangerous(prev, co, c.onIntersection)
	if !Equal(prev, merged) {
		c.colors[n] = merged
		c.dirty = true
	}
}

// Dirty reports whether any node changed since ClearDirty.
func (c *Coloring) Dirty() bool { return c.dirty }

// ClearDirty resets change tracking for the next brush pass.
func (c *Coloring) ClearDirty() { c.dirty = false }
