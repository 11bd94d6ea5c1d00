package classpool

import "fmt"

// Frame is a verification frame: the abstract type of every local slot and
// operand stack slot at one instruction offset. Category-2 values occupy
// two slots, the upper one holding Top as a placeholder.
type Frame struct {
	locals []Type
	stack  []Type
}

func newFrame(maxLocals int) *Frame {
	f := &Frame{locals: make([]Type, maxLocals)}
	for i := range f.locals {
		f.locals[i] = Top
	}
	return f
}

// Local returns the type of local slot i, or Top for an out-of-range slot.
func (f *Frame) Local(i int) Type {
	if i < 0 || i >= len(f.locals) {
		return Top
	}
	return f.locals[i]
}

// Locals returns the number of local slots.
func (f *Frame) Locals() int { return len(f.locals) }

// Stack returns the type of stack slot i, counted from the bottom.
func (f *Frame) Stack(i int) Type {
	if i < 0 || i >= len(f.stack) {
		return Top
	}
	return f.stack[i]
}

// TopIndex returns the slot index of the stack top, or -1 for an empty
// stack. Category-2 values count as two slots.
func (f *Frame) TopIndex() int { return len(f.stack) - 1 }

func (f *Frame) setLocal(i int, t Type) {
	f.locals[i] = t
	if t.Size() == 2 && i+1 < len(f.locals) {
		f.locals[i+1] = Top
	}
}

func (f *Frame) push(t Type) {
	f.stack = append(f.stack, t)
	if t.Size() == 2 {
		f.stack = append(f.stack, Top)
	}
}

// pop removes the value on top of the stack and returns its type, collapsing
// the two slots of a category-2 value into one result.
func (f *Frame) pop() (Type, error) {
	n := len(f.stack)
	if n == 0 {
		return Top, &BadBytecodeError{Msg: "pop from empty operand stack"}
	}
	top := f.stack[n-1]
	if top == Top && n >= 2 && f.stack[n-2].Size() == 2 {
		wide := f.stack[n-2]
		f.stack = f.stack[:n-2]
		return wide, nil
	}
	f.stack = f.stack[:n-1]
	return top, nil
}

// popSlot removes exactly one stack slot regardless of value category.
func (f *Frame) popSlot() (Type, error) {
	n := len(f.stack)
	if n == 0 {
		return Top, &BadBytecodeError{Msg: "pop from empty operand stack"}
	}
	top := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return top, nil
}

func (f *Frame) copy() *Frame {
	c := &Frame{locals: make([]Type, len(f.locals)), stack: make([]Type, len(f.stack))}
	copy(c.locals, f.locals)
	copy(c.stack, f.stack)
	return c
}

func (f *Frame) equal(other *Frame) bool {
	if len(f.locals) != len(other.locals) || len(f.stack) != len(other.stack) {
		return false
	}
	for i := range f.locals {
		if f.locals[i] != other.locals[i] {
			return false
		}
	}
	for i := range f.stack {
		if f.stack[i] != other.stack[i] {
			return false
		}
	}
	return true
}

// mergeFrom folds another frame into this one slot by slot, returning
// whether anything changed. Stack depths must agree.
func (f *Frame) mergeFrom(other *Frame, pool *ClassPool) (bool, error) {
	if len(f.stack) != len(other.stack) {
		return false, &BadBytecodeError{Msg: fmt.Sprintf("operand stack depth disagreement at join: %d vs %d", len(f.stack), len(other.stack))}
	}
	changed := false
	for i := range f.locals {
		merged := f.locals[i].Merge(other.locals[i], pool)
		if merged != f.locals[i] {
			f.locals[i] = merged
			changed = true
		}
	}
	for i := range f.stack {
		merged := f.stack[i].Merge(other.stack[i], pool)
		if merged != f.stack[i] {
			f.stack[i] = merged
			changed = true
		}
	}
	return changed, nil
}

// Block is a basic block: a maximal straight-line instruction run with one
// entry and one exit.
type Block struct {
	Index  int
	pos    int
	length int
	preds  []*Block
	succs  []*Block
}

// Position returns the bytecode offset of the first instruction.
func (b *Block) Position() int { return b.pos }

// Length returns the byte length of the block.
func (b *Block) Length() int { return b.length }

// Predecessors returns the blocks that can branch or fall through into b.
func (b *Block) Predecessors() []*Block { return b.preds }

// Successors returns the blocks control can continue to from b.
func (b *Block) Successors() []*Block { return b.succs }

func (b *Block) String() string {
	return fmt.Sprintf("block %d [%d..%d)", b.Index, b.pos, b.pos+b.length)
}

// ControlFlow is the result of control-flow and type analysis for one
// method: its basic blocks and the verification frame before every
// instruction. Blocks()[0] is the entry block.
type ControlFlow struct {
	Method *CtBehavior
	blocks []*Block
	frames map[int]*Frame
}

// Blocks returns the basic blocks in offset order; index 0 is the entry.
func (cf *ControlFlow) Blocks() []*Block { return cf.blocks }

// FrameAt returns the verification frame in effect before the instruction
// at pos.
func (cf *ControlFlow) FrameAt(pos int) (*Frame, error) {
	f := cf.frames[pos]
	if f == nil {
		return nil, &BadBytecodeError{Pos: pos, Msg: "no frame computed at offset"}
	}
	return f, nil
}

// AnalyzeControlFlow splits a method body into basic blocks and runs a
// monotone worklist over the opcode type effects to compute a verification
// frame at every reachable instruction offset.
func AnalyzeControlFlow(method *CtBehavior) (*ControlFlow, error) {
	if method.IsEmpty() {
		return nil, &BadBytecodeError{Msg: "no code in " + method.LongName()}
	}

	offsets, err := decodeOffsets(method.Code)
	if err != nil {
		return nil, err
	}

	blocks, err := splitBlocks(method, offsets)
	if err != nil {
		return nil, err
	}

	cf := &ControlFlow{Method: method, blocks: blocks, frames: make(map[int]*Frame)}

	entry, err := entryFrame(method)
	if err != nil {
		return nil, err
	}

	entries := map[*Block]*Frame{blocks[0]: entry}
	work := []*Block{blocks[0]}
	queued := map[*Block]bool{blocks[0]: true}

	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		queued[b] = false

		out, err := cf.simulateBlock(method, b, entries[b])
		if err != nil {
			return nil, err
		}
		for _, succ := range b.succs {
			existing := entries[succ]
			if existing == nil {
				entries[succ] = out.copy()
			} else {
				changed, err := existing.mergeFrom(out, method.Class.Pool())
				if err != nil {
					return nil, err
				}
				if !changed {
					continue
				}
			}
			if !queued[succ] {
				queued[succ] = true
				work = append(work, succ)
			}
		}
	}

	return cf, nil
}

// simulateBlock records the frame before every instruction of b and returns
// the frame after its last instruction.
func (cf *ControlFlow) simulateBlock(method *CtBehavior, b *Block, in *Frame) (*Frame, error) {
	frame := in.copy()
	it := NewCodeIterator(method.Code)
	it.Move(b.pos)
	for it.HasNext() {
		pos, err := it.Next()
		if err != nil {
			return nil, err
		}
		if pos >= b.pos+b.length {
			break
		}
		cf.frames[pos] = frame.copy()
		if err := typeEffect(frame, method, it, pos); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// entryFrame builds the method entry frame: receiver (for instance
// behaviors) and declared parameters in the leading local slots, empty
// stack.
func entryFrame(method *CtBehavior) (*Frame, error) {
	params, _, err := ParseMethodDescriptor(method.Descriptor)
	if err != nil {
		return nil, err
	}
	maxLocals := method.MaxLocals
	slots := SlotCount(params)
	if !method.Static {
		slots++
	}
	if maxLocals < slots {
		maxLocals = slots
	}
	f := newFrame(maxLocals)
	slot := 0
	if !method.Static {
		f.setLocal(0, Ref(method.Class.Name))
		slot = 1
	}
	for _, p := range params {
		f.setLocal(slot, p)
		slot += p.Size()
	}
	return f, nil
}

// decodeOffsets walks the bytecode once and returns the set of valid
// instruction offsets in order.
func decodeOffsets(code []byte) ([]int, error) {
	var offsets []int
	it := NewCodeIterator(code)
	for it.HasNext() {
		pos, err := it.Next()
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, pos)
	}
	return offsets, nil
}

func isConditionalBranch(op int) bool {
	switch op {
	case IFEQ, IFNE, IFLT, IFGE, IFGT, IFLE,
		IF_ICMPEQ, IF_ICMPNE, IF_ICMPLT, IF_ICMPGE, IF_ICMPGT, IF_ICMPLE,
		IF_ACMPEQ, IF_ACMPNE, IFNULL, IFNONNULL:
		return true
	}
	return false
}

func isBlockEnd(op int) bool {
	switch op {
	case GOTO, ATHROW, RETURN, IRETURN, LRETURN, FRETURN, DRETURN, ARETURN:
		return true
	}
	return isConditionalBranch(op)
}

// splitBlocks computes basic-block leaders (entry, branch targets,
// fall-throughs after block-ending instructions) and wires up the
// predecessor/successor lists.
func splitBlocks(method *CtBehavior, offsets []int) ([]*Block, error) {
	code := method.Code
	it := NewCodeIterator(code)

	valid := make(map[int]bool, len(offsets))
	nextOf := make(map[int]int, len(offsets))
	for i, pos := range offsets {
		valid[pos] = true
		if i+1 < len(offsets) {
			nextOf[pos] = offsets[i+1]
		} else {
			nextOf[pos] = len(code)
		}
	}

	leaders := map[int]bool{0: true}
	for _, pos := range offsets {
		op := int(code[pos])
		if op == GOTO || isConditionalBranch(op) {
			target := pos + it.S16At(pos+1)
			if !valid[target] {
				return nil, &BadBytecodeError{Pos: pos, Msg: fmt.Sprintf("branch target %d is not an instruction", target)}
			}
			leaders[target] = true
		}
		if isBlockEnd(op) && nextOf[pos] < len(code) {
			leaders[nextOf[pos]] = true
		}
	}

	var blocks []*Block
	blockAt := make(map[int]*Block)
	var current *Block
	for _, pos := range offsets {
		if leaders[pos] {
			if current != nil {
				current.length = pos - current.pos
			}
			current = &Block{Index: len(blocks), pos: pos}
			blocks = append(blocks, current)
		}
		blockAt[pos] = current
	}
	if current != nil {
		current.length = len(code) - current.pos
	}

	link := func(from, to *Block) {
		from.succs = append(from.succs, to)
		to.preds = append(to.preds, from)
	}
	for _, b := range blocks {
		last := lastInstruction(b, offsets)
		op := int(code[last])
		switch {
		case op == GOTO:
			link(b, blockAt[last+it.S16At(last+1)])
		case isConditionalBranch(op):
			if fall := nextOf[last]; fall < len(code) {
				link(b, blockAt[fall])
			}
			link(b, blockAt[last+it.S16At(last+1)])
		case op == ATHROW || op == RETURN || op == IRETURN || op == LRETURN ||
			op == FRETURN || op == DRETURN || op == ARETURN:
			// no successors
		default:
			if fall := nextOf[last]; fall < len(code) {
				link(b, blockAt[fall])
			}
		}
	}

	return blocks, nil
}

func lastInstruction(b *Block, offsets []int) int {
	last := b.pos
	for _, pos := range offsets {
		if pos >= b.pos && pos < b.pos+b.length {
			last = pos
		}
	}
	return last
}
