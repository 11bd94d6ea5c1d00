package colorless

import "github.com/vlsergey/secan4go/classpool"

// BlockDataGraph is the data-flow graph of one basic block: every node the
// block produced, the incoming and outgoing locals/stack, and the side
// effects (invocations and field writes) discovered along the way.
type BlockDataGraph struct {
	AllNodes []*DataNode

	IncLocals []*DataNode
	IncStack  []*DataNode

	OutLocals []*DataNode
	OutStack  []*DataNode

	// OutReturns holds the returned node when the block ends with a
	// value-returning instruction; empty otherwise.
	OutReturns []*DataNode

	Invocations []*Invocation
	PutFields   []*PutFieldNode
	PutStatics  []*PutStaticNode
}

// MethodDataGraph is the union of a method's block graphs plus the merge
// nodes stitching them together, with the method's formal boundary: one
// node per parameter and the return-site nodes.
type MethodDataGraph struct {
	Method *classpool.CtBehavior
	Flow   *classpool.ControlFlow

	Blocks map[*classpool.Block]*BlockDataGraph

	MethodParamNodes  []*DataNode
	MethodReturnNodes []*DataNode

	mergeNodes []*DataNode
}

// AllNodes returns every node of the graph exactly once: parameters, merge
// nodes and block-produced nodes, in a stable traversal order.
func (g *MethodDataGraph) AllNodes() []*DataNode {
	var out []*DataNode
	seen := make(map[*DataNode]bool)
	add := func(n *DataNode) {
		if n != nil && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range g.MethodParamNodes {
		add(n)
	}
	for _, n := range g.mergeNodes {
		add(n)
	}
	for _, b := range g.Flow.Blocks() {
		if bg := g.Blocks[b]; bg != nil {
			for _, n := range bg.AllNodes {
				add(n)
			}
		}
	}
	return out
}

// Invocations returns every call site of the method in block order.
func (g *MethodDataGraph) Invocations() []*Invocation {
	var out []*Invocation
	for _, b := range g.Flow.Blocks() {
		if bg := g.Blocks[b]; bg != nil {
			out = append(out, bg.Invocations...)
		}
	}
	return out
}

// PutFields returns every instance field write in block order.
func (g *MethodDataGraph) PutFields() []*PutFieldNode {
	var out []*PutFieldNode
	for _, b := range g.Flow.Blocks() {
		if bg := g.Blocks[b]; bg != nil {
			out = append(out, bg.PutFields...)
		}
	}
	return out
}

// PutStatics returns every static field write in block order.
func (g *MethodDataGraph) PutStatics() []*PutStaticNode {
	var out []*PutStaticNode
	for _, b := range g.Flow.Blocks() {
		if bg := g.Blocks[b]; bg != nil {
			out = append(out, bg.PutStatics...)
		}
	}
	return out
}
