package colored

import (
	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/colorless"
)

// ResolveFunc asks the painting session for a callee's colorings at a call
// site, given the current colorings of the invocation's parameters and
// results. The session both records the dependency and returns whatever
// cached result it has; an empty map means nothing is known yet.
type ResolveFunc func(inv *colorless.Invocation, ins, outs []*ColoredObject) map[*colorless.DataNode]*ColoredObject

// BrushContext carries the collaborators a brush may need.
type BrushContext struct {
	Provider RuleProvider
	Resolve  ResolveFunc
}

// Brush transforms a graph coloring. Brushes must be monotone: a node's
// coloring only ever moves up the lattice, which is what makes both the
// colorer fixpoint and the session worklist terminate.
type Brush interface {
	Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext)
}

// className renders a verification type as a seen-class key.
func className(t classpool.Type) string {
	if t.Kind == classpool.KindRef {
		return t.ClassName
	}
	return t.String()
}

// MethodParameterImplicitColorer stamps rule-declared colors onto the
// parameter nodes of the method being colored. Initial brush.
type MethodParameterImplicitColorer struct{}

func (MethodParameterImplicitColorer) Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext) {
	m := g.Method
	rule := ctx.Provider.MethodColors(m.Class.Name, m.Name, m.Descriptor)
	if rule == nil {
		return
	}
	for i, param := range g.MethodParamNodes {
		if i >= len(rule.ParamColors) || rule.ParamColors[i] == 0 {
			continue
		}
		trace := NewTrace("declared " + rule.ParamColors[i].String() + " parameter of " + m.LongName())
		c.Update(param, ForRootOnly(className(param.Type), &PaintedColor{
			Type:       rule.ParamColors[i],
			Confidence: ConfidenceExplicitly,
			Src:        trace,
		}))
	}
}

// InvocationsImplicitColorer stamps rule-declared colors onto call-site
// argument and result nodes, and onto field access nodes with declared
// field rules. Initial brush.
type InvocationsImplicitColorer struct{}

func (InvocationsImplicitColorer) Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext) {
	for _, inv := range g.Invocations() {
		if inv.Dynamic {
			continue
		}
		rule := ctx.Provider.MethodColors(inv.ClassName, inv.MethodName, inv.Descriptor)
		if rule == nil {
			continue
		}
		target := inv.ClassName + "." + inv.MethodName
		for i, param := range inv.Parameters {
			if i >= len(rule.ParamColors) || rule.ParamColors[i] == 0 {
				continue
			}
			trace := NewTrace("declared " + rule.ParamColors[i].String() + " argument of " + target)
			c.Update(param, ForRootOnly(className(param.Type), &PaintedColor{
				Type:       rule.ParamColors[i],
				Confidence: ConfidenceExplicitly,
				Src:        trace,
			}))
		}
		if rule.ResultColor != 0 && len(inv.Results) == 1 {
			trace := NewTrace("declared " + rule.ResultColor.String() + " result of " + target)
			c.Update(inv.Results[0], ForRootOnly(className(inv.Results[0].Type), &PaintedColor{
				Type:       rule.ResultColor,
				Confidence: ConfidenceExplicitly,
				Src:        trace,
			}))
		}
	}

	for _, n := range g.AllNodes() {
		if n.Kind != colorless.KindGetField && n.Kind != colorless.KindGetStatic {
			continue
		}
		color := ctx.Provider.FieldColors(n.FieldClass.Name, n.Field.Name)
		if color == 0 {
			continue
		}
		trace := NewTrace("declared " + color.String() + " field " + n.FieldClass.Name + "." + n.Field.Name)
		c.Update(n, ForRootOnly(className(n.Type), &PaintedColor{
			Type:       color,
			Confidence: ConfidenceExplicitly,
			Src:        trace,
		}))
	}
}

func isInvokeOp(op int) bool {
	switch op {
	case classpool.INVOKEVIRTUAL, classpool.INVOKESPECIAL, classpool.INVOKESTATIC,
		classpool.INVOKEINTERFACE, classpool.INVOKEDYNAMIC:
		return true
	}
	return false
}

func isCopierOp(op int) bool {
	switch op {
	case classpool.CHECKCAST, classpool.I2L, classpool.I2F, classpool.I2D,
		classpool.L2D, classpool.F2D:
		return true
	}
	return false
}

// CompositionNodeBrush assigns to every composing node (arithmetic, array
// loads, merges, comparisons) the LUB of its input colorings, downgraded to
// inferred confidence. Repeatable.
type CompositionNodeBrush struct{}

func (CompositionNodeBrush) Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext) {
	for _, n := range g.AllNodes() {
		if len(n.Inputs) == 0 {
			continue
		}
		if n.Kind == colorless.KindGetField || n.Kind == colorless.KindGetStatic {
			continue
		}
		if isInvokeOp(n.Op) || isCopierOp(n.Op) {
			continue
		}
		var merged *ColoredObject
		for _, in := range n.Inputs {
			merged = MergeLUB(merged, c.Get(in))
		}
		if merged == nil {
			continue
		}
		c.Update(n, asInferred(merged, "composed through "+n.Label))
	}
}

// CopierBrush sets identity pass-through nodes (checkcast, widening
// conversions) equal to their single input's coloring. Repeatable.
type CopierBrush struct{}

func (CopierBrush) Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext) {
	for _, n := range g.AllNodes() {
		if !isCopierOp(n.Op) || len(n.Inputs) != 1 {
			continue
		}
		if co := c.Get(n.Inputs[0]); co != nil {
			c.Update(n, co)
		}
	}
}

// ParentAttributesDefinerBrush routes colors between field access nodes and
// the field maps of the objects they touch: a colored getfield result marks
// the parent's field, a parent's known field colors the getfield result,
// and a putfield records the stored value's color on the object. Repeatable.
type ParentAttributesDefinerBrush struct{}

func (ParentAttributesDefinerBrush) Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext) {
	for _, n := range g.AllNodes() {
		if n.Kind != colorless.KindGetField || len(n.Inputs) != 1 {
			continue
		}
		parent := n.Inputs[0]
		if co := c.Get(n); co != nil {
			c.Update(parent, ForField(n.Field.Name, co))
		}
		if parentCo := c.Get(parent); parentCo != nil {
			if sub := parentCo.Field(n.Field.Name); sub != nil {
				c.Update(n, sub)
			}
		}
	}
	for _, pf := range g.PutFields() {
		if co := c.Get(pf.Value); co != nil {
			c.Update(pf.Object, ForField(pf.Field.Name, co))
		}
	}
}

// InvocationsBrush carries colors across call sites: for every resolvable
// invocation it hands the current argument/result colorings to the painting
// session and merges whatever the callee's cached analysis says back into
// the call site's nodes. Repeatable.
type InvocationsBrush struct{}

func (InvocationsBrush) Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext) {
	if ctx.Resolve == nil {
		return
	}
	for _, inv := range g.Invocations() {
		if inv.Dynamic {
			continue
		}
		ins := make([]*ColoredObject, len(inv.Parameters))
		for i, p := range inv.Parameters {
			ins[i] = c.Get(p)
		}
		outs := make([]*ColoredObject, len(inv.Results))
		for i, r := range inv.Results {
			outs[i] = c.Get(r)
		}
		for node, co := range ctx.Resolve(inv, ins, outs) {
			c.Update(node, co)
		}
	}
}

// InvokeDynamicBrush handles invocations with no resolvable callee: the
// result is conservatively colored with the LUB over the arguments.
// Repeatable.
type InvokeDynamicBrush struct{}

func (InvokeDynamicBrush) Paint(g *colorless.MethodDataGraph, c *Coloring, ctx *BrushContext) {
	for _, inv := range g.Invocations() {
		if !inv.Dynamic || len(inv.Results) != 1 {
			continue
		}
		var merged *ColoredObject
		for _, p := range inv.Parameters {
			merged = MergeLUB(merged, c.Get(p))
		}
		if merged == nil {
			continue
		}
		c.Update(inv.Results[0], asInferred(merged, "passed through dynamic call "+inv.MethodName))
	}
}
