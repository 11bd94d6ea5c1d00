package colored

import "sort"

// ColoredObject attaches colors to one graph node: a color per runtime
// class observed at the node, plus optional nested colorings for fields,
// keyed by field name. Values are immutable once published; merges build
// fresh objects.
type ColoredObject struct {
	colors map[string]*PaintedColor
	fields map[string]*ColoredObject
}

// ForRootOnly colors a single observed class with one painted color.
func ForRootOnly(className string, color *PaintedColor) *ColoredObject {
	return &ColoredObject{colors: map[string]*PaintedColor{className: color}}
}

// ForField builds a coloring that says nothing about the object itself but
// colors one of its fields.
func ForField(fieldName string, sub *ColoredObject) *ColoredObject {
	return &ColoredObject{fields: map[string]*ColoredObject{fieldName: sub}}
}

// Color returns a representative painted color: the single color when one
// class was observed, otherwise the lattice merge over all of them.
func (co *ColoredObject) Color() *PaintedColor {
	if co == nil {
		return nil
	}
	var result *PaintedColor
	for _, class := range co.SeenClasses() {
		result = mergeColors(result, co.colors[class], nil)
	}
	return result
}

// ColorOf returns the color recorded for one observed class.
func (co *ColoredObject) ColorOf(className string) *PaintedColor {
	if co == nil {
		return nil
	}
	return co.colors[className]
}

// SeenClasses lists the observed classes in sorted order.
func (co *ColoredObject) SeenClasses() []string {
	if co == nil {
		return nil
	}
	out := make([]string, 0, len(co.colors))
	for class := range co.colors {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Field returns the nested coloring for a field, or nil.
func (co *ColoredObject) Field(name string) *ColoredObject {
	if co == nil {
		return nil
	}
	return co.fields[name]
}

// FieldNames lists fields with nested colorings in sorted order.
func (co *ColoredObject) FieldNames() []string {
	if co == nil {
		return nil
	}
	out := make([]string, 0, len(co.fields))
	for name := range co.fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Summary renders a canonical, order-stable rendering of the coloring,
// used to build task keys. Trace identity is excluded on purpose.
func (co *ColoredObject) Summary() string {
	if co == nil {
		return "-"
	}
	out := ""
	for _, class := range co.SeenClasses() {
		color := co.colors[class]
		out += class + "="
		if color == nil {
			out += "?"
		} else {
			out += color.Type.String() + "/" + color.Confidence.String()
		}
		out += ";"
	}
	for _, name := range co.FieldNames() {
		out += "." + name + "{" + co.fields[name].Summary() + "}"
	}
	return out
}

// restrictTo narrows the coloring to one observed class, keeping field
// colorings. Used by Demultiplex.
func (co *ColoredObject) restrictTo(className string) *ColoredObject {
	return &ColoredObject{
		colors: map[string]*PaintedColor{className: co.colors[className]},
		fields: co.fields,
	}
}

// MergeLUB folds two colorings per (class, field-path) key, keeping the
// more confident color on each. No intersection events fire; use
// MergeMostDangerous when joining untrusted results.
func MergeLUB(a, b *ColoredObject) *ColoredObject {
	return mergeObjects(a, b, nil)
}

// MergeMostDangerous folds two colorings like MergeLUB but reports every
// key where a source-like color meets a sink-like one.
func MergeMostDangerous(a, b *ColoredObject, onIntersection func(source, sink TraceItem)) *ColoredObject {
	return mergeObjects(a, b, onIntersection)
}

func mergeObjects(a, b *ColoredObject, onIntersection func(source, sink TraceItem)) *ColoredObject {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	merged := &ColoredObject{}
	for _, src := range []*ColoredObject{a, b} {
		for class, color := range src.colors {
			if merged.colors == nil {
				merged.colors = make(map[string]*PaintedColor)
			}
			merged.colors[class] = mergeColors(merged.colors[class], color, onIntersection)
		}
	}
	for _, src := range []*ColoredObject{a, b} {
		for name, sub := range src.fields {
			if merged.fields == nil {
				merged.fields = make(map[string]*ColoredObject)
			}
			merged.fields[name] = mergeObjects(merged.fields[name], sub, onIntersection)
		}
	}
	return merged
}

// Equal compares colorings structurally, ignoring trace identity; this is
// what fixpoint and result-change detection use.
func Equal(a, b *ColoredObject) bool {
	if a == nil || b == nil {
		return (a == nil) == (b == nil)
	}
	if len(a.colors) != len(b.colors) || len(a.fields) != len(b.fields) {
		return false
	}
	for class, color := range a.colors {
		other, ok := b.colors[class]
		if !ok || !colorsEqual(color, other) {
			return false
		}
	}
	for name, sub := range a.fields {
		other, ok := b.fields[name]
		if !ok || !Equal(sub, other) {
			return false
		}
	}
	return true
}

// EqualSlices compares two coloring arrays element-wise with Equal.
func EqualSlices(a, b []*ColoredObject) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// HasAnyColor reports whether any entry of the slice carries a coloring.
func HasAnyColor(colorings []*ColoredObject) bool {
	for _, co := range colorings {
		if co != nil {
			return true
		}
	}
	return false
}

// Demultiplex iterates every combination of "one observed class per input"
// drawn from each input's seen-class set, so interprocedural queries can
// consider one concrete receiver class at a time. Inputs without a coloring
// contribute a single nil variant.
func Demultiplex(ins []*ColoredObject, callback func(singleClassIns []*ColoredObject)) {
	current := make([]*ColoredObject, len(ins))
	demultiplexFrom(ins, current, 0, callback)
}

func demultiplexFrom(ins, current []*ColoredObject, index int, callback func([]*ColoredObject)) {
	if index == len(ins) {
		callback(append([]*ColoredObject(nil), current...))
		return
	}
	in := ins[index]
	classes := in.SeenClasses()
	if len(classes) <= 1 {
		current[index] = in
		demultiplexFrom(ins, current, index+1, callback)
		return
	}
	for _, class := range classes {
		current[index] = in.restrictTo(class)
		demultiplexFrom(ins, current, index+1, callback)
	}
}

// asInferred deep-copies a coloring, downgrading every color to inferred
// confidence and extending its trace by one derivation step.
func asInferred(co *ColoredObject, step string) *ColoredObject {
	if co == nil {
		return nil
	}
	out := &ColoredObject{}
	if co.colors != nil {
		out.colors = make(map[string]*PaintedColor, len(co.colors))
		for class, color := range co.colors {
			if color == nil {
				out.colors[class] = nil
				continue
			}
			out.colors[class] = &PaintedColor{
				Type:       color.Type,
				Confidence: ConfidenceInferred,
				Src:        NewChainedTrace(step, color.Src),
			}
		}
	}
	if co.fields != nil {
		out.fields = make(map[string]*ColoredObject, len(co.fields))
		for name, sub := range co.fields {
			out.fields[name] = asInferred(sub, step)
		}
	}
	return out
}
