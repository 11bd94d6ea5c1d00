package classpool

import "fmt"

// ClassBuilder constructs synthetic classes with real encoded bytecode.
// It exists for the sample corpus and the CLI pool loader; the engine
// itself only ever reads the resulting CtClass values.
type ClassBuilder struct {
	class *CtClass
}

// NewClassBuilder registers a fresh class on the pool and returns a builder
// for it. An empty superName defaults to java/lang/Object.
func NewClassBuilder(pool *ClassPool, name, superName string) *ClassBuilder {
	if superName == "" && name != ObjectClassName {
		superName = ObjectClassName
	}
	c := &CtClass{Name: name, SuperName: superName}
	pool.Add(c)
	return &ClassBuilder{class: c}
}

// Class returns the class under construction.
func (b *ClassBuilder) Class() *CtClass { return b.class }

// Field declares a field.
func (b *ClassBuilder) Field(name, descriptor string, static bool) *ClassBuilder {
	b.class.AddField(name, descriptor, static)
	return b
}

// AbstractMethod declares a bodyless method (abstract or native).
func (b *ClassBuilder) AbstractMethod(name, descriptor string, static bool) *ClassBuilder {
	b.class.AddBehavior(&CtBehavior{
		Name:       name,
		Descriptor: descriptor,
		Static:     static,
		Pool:       NewConstPool(),
	})
	return b
}

// Method opens a code builder for a new method body. The method is attached
// to the class when Done is called.
func (b *ClassBuilder) Method(name, descriptor string, static bool) *CodeBuilder {
	return &CodeBuilder{
		class: b.class,
		m: &CtBehavior{
			Name:       name,
			Descriptor: descriptor,
			Static:     static,
			Pool:       NewConstPool(),
		},
		labels: make(map[string]int),
	}
}

type branchFixup struct {
	insnPos int
	operand int
	label   string
}

// CodeBuilder assembles one method body. Branch targets are symbolic labels
// resolved on Done.
type CodeBuilder struct {
	class     *CtClass
	m         *CtBehavior
	code      []byte
	labels    map[string]int
	fixups    []branchFixup
	maxSlot   int
	buildErrs []error
}

func (cb *CodeBuilder) op(bytes ...byte) *CodeBuilder {
	cb.code = append(cb.code, bytes...)
	return cb
}

func (cb *CodeBuilder) u16(v int) (byte, byte) {
	return byte(v >> 8), byte(v)
}

func (cb *CodeBuilder) slot(n int) {
	if n > cb.maxSlot {
		cb.maxSlot = n
	}
}

// Label marks the current position as a branch target.
func (cb *CodeBuilder) Label(name string) *CodeBuilder {
	cb.labels[name] = len(cb.code)
	return cb
}

func (cb *CodeBuilder) branch(op int, label string) *CodeBuilder {
	cb.fixups = append(cb.fixups, branchFixup{insnPos: len(cb.code), operand: len(cb.code) + 1, label: label})
	return cb.op(byte(op), 0, 0)
}

// Raw appends an arbitrary opcode with pre-encoded operand bytes.
func (cb *CodeBuilder) Raw(op int, operands ...byte) *CodeBuilder {
	return cb.op(append([]byte{byte(op)}, operands...)...)
}

func (cb *CodeBuilder) AconstNull() *CodeBuilder { return cb.op(ACONST_NULL) }

// Iconst emits the shortest encoding for an int constant.
func (cb *CodeBuilder) Iconst(v int) *CodeBuilder {
	switch {
	case v >= -1 && v <= 5:
		return cb.op(byte(ICONST_0 + v))
	case v >= -128 && v <= 127:
		return cb.op(BIPUSH, byte(v))
	default:
		hi, lo := cb.u16(v)
		return cb.op(SIPUSH, hi, lo)
	}
}

func (cb *CodeBuilder) Lconst(v int) *CodeBuilder {
	if v == 0 {
		return cb.op(LCONST_0)
	}
	if v == 1 {
		return cb.op(LCONST_1)
	}
	hi, lo := cb.u16(cb.m.Pool.AddLong(int64(v)))
	return cb.op(LDC2_W, hi, lo)
}

// LdcString loads a string constant.
func (cb *CodeBuilder) LdcString(s string) *CodeBuilder {
	idx := cb.m.Pool.AddString(s)
	if idx <= 0xff {
		return cb.op(LDC, byte(idx))
	}
	hi, lo := cb.u16(idx)
	return cb.op(LDC_W, hi, lo)
}

// LdcInt loads an int constant through the pool.
func (cb *CodeBuilder) LdcInt(v int32) *CodeBuilder {
	idx := cb.m.Pool.AddInteger(v)
	if idx <= 0xff {
		return cb.op(LDC, byte(idx))
	}
	hi, lo := cb.u16(idx)
	return cb.op(LDC_W, hi, lo)
}

func (cb *CodeBuilder) load(base, baseN int, n int) *CodeBuilder {
	cb.slot(n)
	if n <= 3 {
		return cb.op(byte(baseN + n))
	}
	return cb.op(byte(base), byte(n))
}

func (cb *CodeBuilder) Aload(n int) *CodeBuilder { return cb.load(ALOAD, ALOAD_0, n) }
func (cb *CodeBuilder) Iload(n int) *CodeBuilder { return cb.load(ILOAD, ILOAD_0, n) }
func (cb *CodeBuilder) Lload(n int) *CodeBuilder { cb.slot(n + 1); return cb.load(LLOAD, LLOAD_0, n) }
func (cb *CodeBuilder) Fload(n int) *CodeBuilder { return cb.load(FLOAD, FLOAD_0, n) }
func (cb *CodeBuilder) Dload(n int) *CodeBuilder { cb.slot(n + 1); return cb.load(DLOAD, DLOAD_0, n) }

func (cb *CodeBuilder) Astore(n int) *CodeBuilder { return cb.load(ASTORE, ASTORE_0, n) }
func (cb *CodeBuilder) Istore(n int) *CodeBuilder { return cb.load(ISTORE, ISTORE_0, n) }
func (cb *CodeBuilder) Lstore(n int) *CodeBuilder { cb.slot(n + 1); return cb.load(LSTORE, LSTORE_0, n) }
func (cb *CodeBuilder) Fstore(n int) *CodeBuilder { return cb.load(FSTORE, FSTORE_0, n) }
func (cb *CodeBuilder) Dstore(n int) *CodeBuilder { cb.slot(n + 1); return cb.load(DSTORE, DSTORE_0, n) }

func (cb *CodeBuilder) Iinc(slot, delta int) *CodeBuilder {
	cb.slot(slot)
	return cb.op(IINC, byte(slot), byte(delta))
}

// Op emits a bare one-byte instruction (arithmetic, dup, pop, returns...).
func (cb *CodeBuilder) Op(op int) *CodeBuilder { return cb.op(byte(op)) }

func (cb *CodeBuilder) Goto(label string) *CodeBuilder   { return cb.branch(GOTO, label) }
func (cb *CodeBuilder) If(op int, label string) *CodeBuilder {
	if !isConditionalBranch(op) {
		cb.buildErrs = append(cb.buildErrs, fmt.Errorf("If: %s is not a conditional branch", Mnemonic(op)))
	}
	return cb.branch(op, label)
}

func (cb *CodeBuilder) memberOp(op int, idx int) *CodeBuilder {
	hi, lo := cb.u16(idx)
	return cb.op(byte(op), hi, lo)
}

func (cb *CodeBuilder) GetField(class, name, descriptor string) *CodeBuilder {
	return cb.memberOp(GETFIELD, cb.m.Pool.AddFieldref(class, name, descriptor))
}

func (cb *CodeBuilder) GetStatic(class, name, descriptor string) *CodeBuilder {
	return cb.memberOp(GETSTATIC, cb.m.Pool.AddFieldref(class, name, descriptor))
}

func (cb *CodeBuilder) PutField(class, name, descriptor string) *CodeBuilder {
	return cb.memberOp(PUTFIELD, cb.m.Pool.AddFieldref(class, name, descriptor))
}

func (cb *CodeBuilder) PutStatic(class, name, descriptor string) *CodeBuilder {
	return cb.memberOp(PUTSTATIC, cb.m.Pool.AddFieldref(class, name, descriptor))
}

func (cb *CodeBuilder) InvokeVirtual(class, name, descriptor string) *CodeBuilder {
	return cb.memberOp(INVOKEVIRTUAL, cb.m.Pool.AddMethodref(class, name, descriptor))
}

func (cb *CodeBuilder) InvokeSpecial(class, name, descriptor string) *CodeBuilder {
	return cb.memberOp(INVOKESPECIAL, cb.m.Pool.AddMethodref(class, name, descriptor))
}

func (cb *CodeBuilder) InvokeStatic(class, name, descriptor string) *CodeBuilder {
	return cb.memberOp(INVOKESTATIC, cb.m.Pool.AddMethodref(class, name, descriptor))
}

func (cb *CodeBuilder) InvokeInterface(class, name, descriptor string) *CodeBuilder {
	idx := cb.m.Pool.AddInterfaceMethodref(class, name, descriptor)
	hi, lo := cb.u16(idx)
	// count and zero operands, as encoded in class files
	params, _, _ := ParseMethodDescriptor(descriptor)
	return cb.op(INVOKEINTERFACE, hi, lo, byte(SlotCount(params)+1), 0)
}

func (cb *CodeBuilder) InvokeDynamic(name, descriptor string) *CodeBuilder {
	idx := cb.m.Pool.AddInvokeDynamic(name, descriptor)
	hi, lo := cb.u16(idx)
	return cb.op(INVOKEDYNAMIC, hi, lo, 0, 0)
}

func (cb *CodeBuilder) New(class string) *CodeBuilder {
	return cb.memberOp(NEW, cb.m.Pool.AddClass(class))
}

func (cb *CodeBuilder) Checkcast(class string) *CodeBuilder {
	return cb.memberOp(CHECKCAST, cb.m.Pool.AddClass(class))
}

func (cb *CodeBuilder) Instanceof(class string) *CodeBuilder {
	return cb.memberOp(INSTANCEOF, cb.m.Pool.AddClass(class))
}

func (cb *CodeBuilder) Anewarray(class string) *CodeBuilder {
	return cb.memberOp(ANEWARRAY, cb.m.Pool.AddClass(class))
}

// Done resolves branch labels, computes MaxLocals and attaches the method
// to its class.
func (cb *CodeBuilder) Done() (*CtBehavior, error) {
	if len(cb.buildErrs) > 0 {
		return nil, cb.buildErrs[0]
	}
	for _, f := range cb.fixups {
		target, ok := cb.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q in %s.%s", f.label, cb.class.Name, cb.m.Name)
		}
		offset := target - f.insnPos
		cb.code[f.operand] = byte(offset >> 8)
		cb.code[f.operand+1] = byte(offset)
	}

	params, _, err := ParseMethodDescriptor(cb.m.Descriptor)
	if err != nil {
		return nil, err
	}
	maxLocals := SlotCount(params)
	if !cb.m.Static {
		maxLocals++
	}
	if cb.maxSlot+1 > maxLocals {
		maxLocals = cb.maxSlot + 1
	}

	cb.m.Code = cb.code
	cb.m.MaxLocals = maxLocals
	cb.class.AddBehavior(cb.m)
	return cb.m, nil
}

// MustDone is Done for construction sites where a failure is a programming
// error in the sample itself.
func (cb *CodeBuilder) MustDone() *CtBehavior {
	m, err := cb.Done()
	if err != nil {
		panic(err)
	}
	return m
}
