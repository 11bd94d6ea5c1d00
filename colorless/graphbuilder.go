package colorless

import (
	"fmt"

	"github.com/vlsergey/secan4go/classpool"
)

// GraphBuilder assembles a whole-method data graph: per-block symbolic
// execution stitched together at control-flow joins with merge nodes.
type GraphBuilder struct{}

func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

type blockState struct {
	locals []*DataNode
	stack  []*DataNode
}

func sameNodes(a, b []*DataNode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *blockState) equal(other *blockState) bool {
	return other != nil && sameNodes(s.locals, other.locals) && sameNodes(s.stack, other.stack)
}

type mergeKey struct {
	block   *classpool.Block
	onStack bool
	index   int
}

// mergeSet keeps merge nodes stable across stitching iterations: one node
// per (slot, block) key, created once and refreshed in place.
type mergeSet struct {
	byKey   map[mergeKey]*DataNode
	ordered []*DataNode
}

func newMergeSet() *mergeSet {
	return &mergeSet{byKey: make(map[mergeKey]*DataNode)}
}

// BuildGraph produces the MethodDataGraph for a method, or (nil, nil) for a
// behavior with no body.
func (gb *GraphBuilder) BuildGraph(pool *classpool.ClassPool, method *classpool.CtBehavior) (*MethodDataGraph, error) {
	if method.IsEmpty() {
		return nil, nil
	}

	flow, err := classpool.AnalyzeControlFlow(method)
	if err != nil {
		return nil, err
	}
	blocks := flow.Blocks()
	entryBlock := blocks[0]

	params, entryLocals, err := parameterNodes(method, flow)
	if err != nil {
		return nil, err
	}

	g := &MethodDataGraph{
		Method:           method,
		Flow:             flow,
		Blocks:           make(map[*classpool.Block]*BlockDataGraph),
		MethodParamNodes: params,
	}

	merges := newMergeSet()
	usedEntry := make(map[*classpool.Block]*blockState)

	work := []*classpool.Block{entryBlock}
	queued := map[*classpool.Block]bool{entryBlock: true}

	// Entry states stabilize because merge nodes, once created, keep their
	// identity, and the verification lattice has finite height. The cap is
	// a safety valve against a non-monotone bug.
	maxIterations := 64 + 32*len(blocks)
	for iterations := 0; len(work) > 0; iterations++ {
		if iterations > maxIterations {
			return nil, &classpool.BadBytecodeError{Msg: "inter-block stitching did not converge for " + method.LongName()}
		}

		b := work[0]
		work = work[1:]
		queued[b] = false

		state := gb.entryState(g, b, entryBlock, entryLocals, merges, pool)
		if state == nil {
			continue // no predecessor has produced an out state yet
		}
		prevBuilt := g.Blocks[b]
		if prevBuilt != nil && state.equal(usedEntry[b]) {
			continue
		}

		built, err := BuildBlockGraph(pool, method, flow, b, state.locals, state.stack)
		if err != nil {
			return nil, err
		}
		changed := prevBuilt == nil ||
			!sameNodes(prevBuilt.OutLocals, built.OutLocals) ||
			!sameNodes(prevBuilt.OutStack, built.OutStack)
		g.Blocks[b] = built
		usedEntry[b] = state

		if changed {
			for _, succ := range b.Successors() {
				if !queued[succ] {
					queued[succ] = true
					work = append(work, succ)
				}
			}
		}
	}

	for _, b := range blocks {
		if built := g.Blocks[b]; built != nil {
			g.MethodReturnNodes = append(g.MethodReturnNodes, built.OutReturns...)
		}
	}

	g.mergeNodes = merges.ordered
	return g, nil
}

// entryState computes the (locals, stack) a block starts with: the formal
// parameters for the method entry block, otherwise the per-slot merge of
// every processed predecessor's out state.
func (gb *GraphBuilder) entryState(g *MethodDataGraph, b, entryBlock *classpool.Block,
	entryLocals []*DataNode, merges *mergeSet, pool *classpool.ClassPool,
) *blockState {
	if b == entryBlock {
		return &blockState{locals: entryLocals}
	}

	var processed []*BlockDataGraph
	for _, p := range b.Predecessors() {
		if built := g.Blocks[p]; built != nil {
			processed = append(processed, built)
		}
	}
	if len(processed) == 0 {
		return nil
	}

	frame, err := g.Flow.FrameAt(b.Position())
	if err != nil {
		return nil
	}
	allPreds := len(processed) == len(b.Predecessors())

	locals := make([]*DataNode, frame.Locals())
	for i := range locals {
		if frame.Local(i).Kind == classpool.KindTop {
			continue // dead or unassigned on some path
		}
		nodes := make([]*DataNode, 0, len(processed))
		for _, p := range processed {
			if i < len(p.OutLocals) && p.OutLocals[i] != nil {
				nodes = append(nodes, p.OutLocals[i])
			}
		}
		locals[i] = mergeSlot(merges, mergeKey{block: b, onStack: false, index: i},
			nodes, allPreds, frame.Local(i))
	}

	depth := len(processed[0].OutStack)
	stackTypes := logicalStack(frame)
	stack := make([]*DataNode, depth)
	for i := 0; i < depth; i++ {
		nodes := make([]*DataNode, 0, len(processed))
		for _, p := range processed {
			if i < len(p.OutStack) {
				nodes = append(nodes, p.OutStack[i])
			}
		}
		t := classpool.Top
		if i < len(stackTypes) {
			t = stackTypes[i]
		}
		stack[i] = mergeSlot(merges, mergeKey{block: b, onStack: true, index: i},
			nodes, allPreds, t)
	}

	return &blockState{locals: locals, stack: stack}
}

// mergeSlot resolves the node for one slot at a join point. When every
// predecessor agrees the node is reused; otherwise a merge node with one
// input per predecessor is created (or refreshed), typed by the verifier's
// LUB for the slot.
func mergeSlot(merges *mergeSet, key mergeKey,
	nodes []*DataNode, allPreds bool, slotType classpool.Type,
) *DataNode {
	if len(nodes) == 0 {
		return nil
	}

	distinct := []*DataNode{nodes[0]}
	for _, n := range nodes[1:] {
		found := false
		for _, d := range distinct {
			if d == n {
				found = true
				break
			}
		}
		if !found {
			distinct = append(distinct, n)
		}
	}

	if m := merges.byKey[key]; m != nil {
		m.Inputs = append([]*DataNode(nil), nodes...)
		return m
	}
	if len(distinct) == 1 {
		return distinct[0]
	}

	kind := "local"
	if key.onStack {
		kind = "stack"
	}
	m := &DataNode{
		Label:  fmt.Sprintf("merge of %s %d at %s", kind, key.index, key.block),
		Type:   slotType,
		Op:     OpMerge,
		Kind:   KindMerge,
		Inputs: append([]*DataNode(nil), nodes...),
	}
	merges.byKey[key] = m
	merges.ordered = append(merges.ordered, m)
	return m
}

// parameterNodes builds one node per formal parameter (receiver first for
// instance behaviors) and lays them into the entry local slots; category-2
// formals occupy one node but two slots.
func parameterNodes(method *classpool.CtBehavior, flow *classpool.ControlFlow) ([]*DataNode, []*DataNode, error) {
	paramTypes, _, err := classpool.ParseMethodDescriptor(method.Descriptor)
	if err != nil {
		return nil, nil, err
	}

	entryFrame, err := flow.FrameAt(flow.Blocks()[0].Position())
	if err != nil {
		return nil, nil, err
	}
	locals := make([]*DataNode, entryFrame.Locals())

	var params []*DataNode
	slot := 0
	if !method.Static {
		this := &DataNode{
			Label:      "this",
			Type:       classpool.Ref(method.Class.Name),
			Op:         OpParameter,
			Kind:       KindParameter,
			ParamIndex: 0,
		}
		params = append(params, this)
		locals[0] = this
		slot = 1
	}
	for _, t := range paramTypes {
		n := &DataNode{
			Label:      fmt.Sprintf("parameter #%d", len(params)),
			Type:       t,
			Op:         OpParameter,
			Kind:       KindParameter,
			ParamIndex: len(params),
		}
		params = append(params, n)
		locals[slot] = n
		slot += t.Size()
	}
	return params, locals, nil
}

// logicalStack flattens a frame's slot-wise stack into one type per value,
// skipping the placeholder slots of category-2 values.
func logicalStack(frame *classpool.Frame) []classpool.Type {
	var out []classpool.Type
	for i := 0; i <= frame.TopIndex(); i++ {
		t := frame.Stack(i)
		out = append(out, t)
		if t.Size() == 2 {
			i++
		}
	}
	return out
}
