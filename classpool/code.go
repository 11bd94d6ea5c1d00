package classpool

// CodeIterator walks a method's bytecode instruction by instruction.
// Move positions the iterator; each Next returns the offset of the current
// instruction and advances past it. LookAhead peeks at the offset the next
// call to Next would return.
type CodeIterator struct {
	code []byte
	next int
}

func NewCodeIterator(code []byte) *CodeIterator {
	return &CodeIterator{code: code}
}

// Move positions the iterator so the next call to Next returns pos.
func (it *CodeIterator) Move(pos int) {
	it.next = pos
}

// HasNext reports whether there are more instructions.
func (it *CodeIterator) HasNext() bool {
	return it.next < len(it.code)
}

// Next returns the offset of the current instruction and steps over it.
func (it *CodeIterator) Next() (int, error) {
	pos := it.next
	if pos >= len(it.code) {
		return 0, &BadBytecodeError{Pos: pos, Msg: "iterated past end of code"}
	}
	length, err := instructionLength(int(it.code[pos]))
	if err != nil {
		return 0, err
	}
	it.next = pos + length
	return pos, nil
}

// LookAhead returns the offset of the next instruction without consuming it.
func (it *CodeIterator) LookAhead() int {
	return it.next
}

// ByteAt reads the unsigned byte at pos.
func (it *CodeIterator) ByteAt(pos int) int {
	return int(it.code[pos])
}

// U16At reads the unsigned big-endian 16-bit value at pos.
func (it *CodeIterator) U16At(pos int) int {
	return int(it.code[pos])<<8 | int(it.code[pos+1])
}

// S16At reads the signed big-endian 16-bit value at pos.
func (it *CodeIterator) S16At(pos int) int {
	return int(int16(uint16(it.code[pos])<<8 | uint16(it.code[pos+1])))
}
