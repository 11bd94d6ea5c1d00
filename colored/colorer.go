package colored

import (
	"log"

	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/colorless"
	"github.com/vlsergey/secan4go/internal/graphcache"
)

// maxBrushIterations caps the repeatable-brush fixpoint. Brushes are
// monotone over a finite lattice, so hitting the cap means a bug; the last
// state is still returned so the analysis can continue.
const maxBrushIterations = 64

// GraphColorer colors one method's data graph: it seeds rule-declared and
// caller-provided colors, then runs the brushes to a fixpoint.
type GraphColorer struct {
	pool     *classpool.ClassPool
	builder  *colorless.GraphBuilder
	cache    *graphcache.Cache
	provider RuleProvider
	logger   *log.Logger

	initial    []Brush
	repeatable []Brush
}

func NewGraphColorer(pool *classpool.ClassPool, provider RuleProvider, logger *log.Logger) *GraphColorer {
	return &GraphColorer{
		pool:     pool,
		builder:  colorless.NewGraphBuilder(),
		cache:    graphcache.New(),
		provider: provider,
		logger:   logger,
		initial: []Brush{
			MethodParameterImplicitColorer{},
			InvocationsImplicitColorer{},
		},
		repeatable: []Brush{
			CompositionNodeBrush{},
			CopierBrush{},
			ParentAttributesDefinerBrush{},
			InvocationsBrush{},
			InvokeDynamicBrush{},
		},
	}
}

// Color paints one method. ins seeds the parameter nodes (index 0 is the
// receiver for instance methods), outs seeds the return nodes; either may
// be nil. resolve is the session's callee resolution hook and may be nil
// for intraprocedural coloring. The final parameter and result colorings
// are returned; a method without a body yields (nil, nil, nil).
func (gc *GraphColorer) Color(method *classpool.CtBehavior,
	ins, outs []*ColoredObject,
	resolve ResolveFunc,
	onIntersection func(source, sink TraceItem),
) ([]*ColoredObject, []*ColoredObject, error) {
	graph, err := gc.cache.Get(method, func() (*colorless.MethodDataGraph, error) {
		return gc.builder.BuildGraph(gc.pool, method)
	})
	if err != nil {
		return nil, nil, err
	}
	if graph == nil {
		return nil, nil, nil
	}

	coloring := NewColoring(onIntersection)
	for i, param := range graph.MethodParamNodes {
		if i < len(ins) && ins[i] != nil {
			coloring.Update(param, ins[i])
		}
	}
	if len(outs) > 0 && outs[0] != nil {
		for _, ret := range graph.MethodReturnNodes {
			coloring.Update(ret, outs[0])
		}
	}

	ctx := &BrushContext{Provider: gc.provider, Resolve: resolve}
	for _, brush := range gc.initial {
		brush.Paint(graph, coloring, ctx)
	}

	converged := false
	for i := 0; i < maxBrushIterations; i++ {
		coloring.ClearDirty()
		for _, brush := range gc.repeatable {
			brush.Paint(graph, coloring, ctx)
		}
		if !coloring.Dirty() {
			converged = true
			break
		}
	}
	if !converged {
		gc.logger.Printf("WARN coloring of %s did not converge within %d iterations, returning last state",
			method.LongName(), maxBrushIterations)
	}

	resultIns := make([]*ColoredObject, len(graph.MethodParamNodes))
	for i, param := range graph.MethodParamNodes {
		resultIns[i] = coloring.Get(param)
	}

	ret, err := method.ReturnType()
	if err != nil {
		return nil, nil, err
	}
	var resultOuts []*ColoredObject
	if !classpool.IsVoid(ret) {
		var merged *ColoredObject
		for _, retNode := range graph.MethodReturnNodes {
			merged = MergeLUB(merged, coloring.Get(retNode))
		}
		resultOuts = []*ColoredObject{merged}
	} else {
		resultOuts = []*ColoredObject{}
	}

	return resultIns, resultOuts, nil
}
