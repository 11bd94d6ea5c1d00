package colorless

import "github.com/vlsergey/secan4go/classpool"

// Invocation records one call site: the target, the ordered argument nodes
// (receiver first for non-static calls) and the result node, if the callee
// returns a value. Dynamic invocations have no target class; only their
// name-and-type is known.
type Invocation struct {
	ClassName  string
	MethodName string
	Descriptor string
	Parameters []*DataNode
	Results    []*DataNode
	StaticCall bool
	Dynamic    bool
}

// PutFieldNode records an instance field write. Not yet wired into a heap
// model; kept so a future heap-aware brush can route values through it.
type PutFieldNode struct {
	FieldClass *classpool.CtClass
	Field      *classpool.CtField
	Value      *DataNode
	Object     *DataNode
}

// PutStaticNode records a static field write.
type PutStaticNode struct {
	FieldClass *classpool.CtClass
	Field      *classpool.CtField
	Value      *DataNode
}
