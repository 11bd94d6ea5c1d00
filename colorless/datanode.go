// Package colorless builds the untainted data-flow graph of a method: a
// per-block symbolic interpretation of the bytecode followed by inter-block
// stitching with merge nodes. No taint colors live here; coloring is layered
// on top by the colored package.
package colorless

import (
	"fmt"

	"github.com/vlsergey/secan4go/classpool"
)

// NodeKind discriminates the few node shapes that carry extra fields.
// Everything else is a plain value node distinguished by its operation tag.
type NodeKind uint8

const (
	KindPlain NodeKind = iota
	KindParameter
	KindMerge
	KindGetField
	KindGetStatic
)

// Synthetic operation tags for nodes no single bytecode produced. Negative
// so they can never collide with an opcode.
const (
	OpConstant  = -1
	OpParameter = -2
	OpMerge     = -3
)

// DataNode is a vertex in the method data-flow graph: an abstract value,
// the operation that produced it, and the producer nodes it consumed.
// The type is fixed after construction.
type DataNode struct {
	Label  string
	Type   classpool.Type
	Op     int
	Kind   NodeKind
	Inputs []*DataNode

	// ParamIndex is set on KindParameter nodes: 0 is the receiver for
	// instance methods.
	ParamIndex int

	// FieldClass and Field are set on KindGetField/KindGetStatic nodes.
	FieldClass *classpool.CtClass
	Field      *classpool.CtField
}

func (n *DataNode) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s : %s", n.Label, n.Type)
}

// Flyweight constant nodes, shared by every graph in the process and never
// mutated.
var (
	constInts = [...]*DataNode{
		{Label: "int 0", Type: classpool.Int, Op: OpConstant},
		{Label: "int 1", Type: classpool.Int, Op: OpConstant},
		{Label: "int 2", Type: classpool.Int, Op: OpConstant},
		{Label: "int 3", Type: classpool.Int, Op: OpConstant},
		{Label: "int 4", Type: classpool.Int, Op: OpConstant},
		{Label: "int 5", Type: classpool.Int, Op: OpConstant},
	}

	ConstLong0 = &DataNode{Label: "long 0", Type: classpool.Long, Op: OpConstant}
	ConstLong1 = &DataNode{Label: "long 1", Type: classpool.Long, Op: OpConstant}
	ConstNull  = &DataNode{Label: "null", Type: classpool.Null, Op: OpConstant}
)

// ConstInt returns the shared node for int constants 0..5.
func ConstInt(v int) *DataNode {
	return constInts[v]
}

// IsFlyweight reports whether n is one of the shared constant nodes.
func IsFlyweight(n *DataNode) bool {
	if n == ConstLong0 || n == ConstLong1 || n == ConstNull {
		return true
	}
	for _, c := range constInts {
		if n == c {
			return true
		}
	}
	return false
}
