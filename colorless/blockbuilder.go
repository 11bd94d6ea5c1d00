package colorless

import (
	"fmt"

	"github.com/vlsergey/secan4go/classpool"
)

// blockBuilder symbolically executes one basic block, abstracting the
// operand stack and local slots into DataNodes. The verifier's frames are
// consulted as ground truth for result types and checked against the
// symbolic state before every instruction.
type blockBuilder struct {
	pool   *classpool.ClassPool
	method *classpool.CtBehavior
	it     *classpool.CodeIterator
	cp     *classpool.ConstPool
	flow   *classpool.ControlFlow
	block  *classpool.Block
	pos    int

	locals []*DataNode
	stack  []*DataNode // top at the end

	toReturn    *DataNode
	invocations []*Invocation
	putFields   []*PutFieldNode
	putStatics  []*PutStaticNode

	allNodes []*DataNode
	seen     map[*DataNode]bool
}

// BuildBlockGraph runs the symbolic interpreter over one block, starting
// from the given incoming locals and stack, and returns the block's data
// graph.
func BuildBlockGraph(pool *classpool.ClassPool, method *classpool.CtBehavior,
	flow *classpool.ControlFlow, block *classpool.Block,
	incLocals, incStack []*DataNode,
) (*BlockDataGraph, error) {
	b := &blockBuilder{
		pool:   pool,
		method: method,
		it:     classpool.NewCodeIterator(method.Code),
		cp:     method.Pool,
		flow:   flow,
		block:  block,
		locals: append([]*DataNode(nil), incLocals...),
		stack:  append([]*DataNode(nil), incStack...),
		seen:   make(map[*DataNode]bool),
	}
	for _, n := range incStack {
		b.remember(n)
	}
	for _, n := range incLocals {
		b.remember(n)
	}

	firstPos := block.Position()
	end := firstPos + block.Length()
	b.it.Move(firstPos)

	if err := b.checkFrame(firstPos); err != nil {
		return nil, err
	}

	for b.it.HasNext() {
		pos, err := b.it.Next()
		if err != nil {
			return nil, err
		}
		if pos >= end {
			break
		}
		b.pos = pos

		if err := b.checkFrame(pos); err != nil {
			return nil, err
		}
		if err := b.processInstruction(); err != nil {
			return nil, err
		}
		for _, n := range b.stack {
			b.remember(n)
		}
		for _, n := range b.locals {
			b.remember(n)
		}
		if next := b.it.LookAhead(); next < end {
			if err := b.checkFrame(next); err != nil {
				return nil, err
			}
		}
	}

	var outReturns []*DataNode
	if b.toReturn != nil {
		outReturns = []*DataNode{b.toReturn}
	}
	return &BlockDataGraph{
		AllNodes:    b.allNodes,
		IncLocals:   incLocals,
		IncStack:    incStack,
		OutLocals:   b.locals,
		OutStack:    b.stack,
		OutReturns:  outReturns,
		Invocations: b.invocations,
		PutFields:   b.putFields,
		PutStatics:  b.putStatics,
	}, nil
}

func (b *blockBuilder) remember(n *DataNode) {
	if n != nil && !b.seen[n] {
		b.seen[n] = true
		b.allNodes = append(b.allNodes, n)
	}
}

func (b *blockBuilder) push(n *DataNode) {
	b.stack = append(b.stack, n)
}

func (b *blockBuilder) pop() (*DataNode, error) {
	if len(b.stack) == 0 {
		return nil, &classpool.BadBytecodeError{Pos: b.pos, Msg: "pop from empty symbolic stack"}
	}
	n := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return n, nil
}

func (b *blockBuilder) peek() (*DataNode, error) {
	if len(b.stack) == 0 {
		return nil, &classpool.BadBytecodeError{Pos: b.pos, Msg: "peek at empty symbolic stack"}
	}
	return b.stack[len(b.stack)-1], nil
}

// checkFrame verifies the symbolic state against the verifier's frame at
// pos: summed category sizes on the stack must equal topIndex+1, and every
// assigned local must be compatible with the frame's type for that slot.
func (b *blockBuilder) checkFrame(pos int) error {
	frame, err := b.flow.FrameAt(pos)
	if err != nil {
		return err
	}

	size := 0
	for _, n := range b.stack {
		size += n.Type.Size()
	}
	if size != frame.TopIndex()+1 {
		return &classpool.BadBytecodeError{Pos: pos, Msg: fmt.Sprintf(
			"size of symbolic stack is %d, but frame expects %d", size, frame.TopIndex()+1)}
	}

	for i, n := range b.locals {
		if n == nil {
			// not yet assigned, or the upper half of a wide neighbor
			continue
		}
		expected := frame.Local(i)
		if expected.Kind == classpool.KindTop {
			continue
		}
		if n.Type == expected || expected.AssignableFrom(n.Type, b.pool) {
			continue
		}
		if n.Type.Kind != classpool.KindRef && expected.Kind != classpool.KindRef &&
			n.Type.Kind == expected.Kind {
			continue
		}
		return &classpool.BadBytecodeError{Pos: pos, Msg: fmt.Sprintf(
			"local %d holds %s, but frame expects %s", i, n.Type, expected)}
	}
	return nil
}

// typeOfNextStackTop reads the result type of the current instruction from
// the verifier frame at the next offset. A Top slot on top means the value
// is category 2 and lives one slot below.
func (b *blockBuilder) typeOfNextStackTop() (classpool.Type, error) {
	frame, err := b.flow.FrameAt(b.it.LookAhead())
	if err != nil {
		return classpool.Top, err
	}
	topIndex := frame.TopIndex()
	onTop := frame.Stack(topIndex)
	if onTop.Kind == classpool.KindTop {
		below := frame.Stack(topIndex - 1)
		if below.Size() != 2 {
			return classpool.Top, &classpool.BadBytecodeError{Pos: b.pos, Msg: "top placeholder without wide value below"}
		}
		return below, nil
	}
	return onTop, nil
}

// stackOnly models an instruction that only consumes and produces stack
// values: pop toPoll operands, push one result typed from the next frame.
// Inputs are kept in operand order.
func (b *blockBuilder) stackOnly(toPoll int) error {
	return b.stackOnlyNode(toPoll, func() *DataNode {
		return &DataNode{Label: b.instructionString()}
	})
}

func (b *blockBuilder) stackOnlyNode(toPoll int, mk func() *DataNode) error {
	t, err := b.typeOfNextStackTop()
	if err != nil {
		return err
	}
	result := mk()
	result.Op = b.currentOp()
	result.Type = t
	inputs := make([]*DataNode, toPoll)
	for i := toPoll - 1; i >= 0; i-- {
		n, err := b.pop()
		if err != nil {
			return err
		}
		inputs[i] = n
	}
	result.Inputs = inputs
	b.push(result)
	return nil
}

func (b *blockBuilder) currentOp() int {
	return b.it.ByteAt(b.pos)
}

// instructionString renders a short human-readable label for the current
// instruction, for node diagnostics.
func (b *blockBuilder) instructionString() string {
	op := b.currentOp()
	switch op {
	case classpool.BIPUSH:
		return fmt.Sprintf("bipush %d", int8(b.it.ByteAt(b.pos+1)))
	case classpool.ILOAD, classpool.LLOAD, classpool.FLOAD, classpool.DLOAD, classpool.ALOAD,
		classpool.ISTORE, classpool.LSTORE, classpool.FSTORE, classpool.DSTORE, classpool.ASTORE:
		return fmt.Sprintf("%s %d", classpool.Mnemonic(op), b.it.ByteAt(b.pos+1))
	case classpool.IINC:
		return fmt.Sprintf("iinc %d, %d", b.it.ByteAt(b.pos+1), int8(b.it.ByteAt(b.pos+2)))
	case classpool.INVOKEVIRTUAL, classpool.INVOKESPECIAL, classpool.INVOKESTATIC, classpool.INVOKEINTERFACE:
		if class, name, _, err := b.cp.MethodrefInfo(b.it.U16At(b.pos + 1)); err == nil {
			return fmt.Sprintf("%s %s.%s", classpool.Mnemonic(op), class, name)
		}
	case classpool.GETFIELD, classpool.GETSTATIC, classpool.PUTFIELD, classpool.PUTSTATIC:
		if class, name, _, err := b.cp.FieldrefInfo(b.it.U16At(b.pos + 1)); err == nil {
			return fmt.Sprintf("%s %s.%s", classpool.Mnemonic(op), class, name)
		}
	}
	return classpool.Mnemonic(op)
}

// constantInfo maps a loadable constant pool entry to its verification type
// and display label.
func (b *blockBuilder) constantInfo(idx int) (classpool.Type, string, error) {
	switch b.cp.Tag(idx) {
	case classpool.TagInteger:
		v, err := b.cp.IntegerInfo(idx)
		return classpool.Int, fmt.Sprintf("int %d", v), err
	case classpool.TagFloat:
		v, err := b.cp.FloatInfo(idx)
		return classpool.Float, fmt.Sprintf("float %v", v), err
	case classpool.TagLong:
		v, err := b.cp.LongInfo(idx)
		return classpool.Long, fmt.Sprintf("long %d", v), err
	case classpool.TagDouble:
		v, err := b.cp.DoubleInfo(idx)
		return classpool.Double, fmt.Sprintf("double %v", v), err
	case classpool.TagString:
		s, err := b.cp.StringInfo(idx)
		return classpool.Ref(classpool.StringClassName), fmt.Sprintf("%q", s), err
	case classpool.TagClass:
		return classpool.Ref(classpool.ClassClassName), fmt.Sprintf("constant #%d", idx), nil
	default:
		return classpool.Top, "", &classpool.BadBytecodeError{Pos: b.pos,
			Msg: fmt.Sprintf("bad LDC [constant pool index %d]: tag %d", idx, b.cp.Tag(idx))}
	}
}
