package colorless

import (
	"fmt"

	"github.com/vlsergey/secan4go/classpool"
)

// processInstruction dispatches on the opcode at the current position and
// applies its effect to the symbolic stack and locals. Groups mirror the
// instruction families; identical cases are folded with opcode arithmetic.
func (b *blockBuilder) processInstruction() error {
	op := b.currentOp()
	it := b.it
	pos := b.pos

	switch op {
	case classpool.ACONST_NULL:
		b.push(ConstNull)

	case classpool.ICONST_M1:
		b.push(&DataNode{Label: "int -1", Type: classpool.Int, Op: op})
	case classpool.ICONST_0, classpool.ICONST_1, classpool.ICONST_2,
		classpool.ICONST_3, classpool.ICONST_4, classpool.ICONST_5:
		b.push(ConstInt(op - classpool.ICONST_0))
	case classpool.LCONST_0:
		b.push(ConstLong0)
	case classpool.LCONST_1:
		b.push(ConstLong1)
	case classpool.FCONST_0, classpool.FCONST_1, classpool.FCONST_2,
		classpool.DCONST_0, classpool.DCONST_1:
		return b.stackOnly(0)

	case classpool.BIPUSH:
		return b.stackOnly(0)
	case classpool.SIPUSH:
		v := it.S16At(pos + 1)
		b.push(&DataNode{Label: fmt.Sprintf("short as int %d", v), Type: classpool.Int, Op: op})

	case classpool.LDC, classpool.LDC_W, classpool.LDC2_W:
		var idx int
		if op == classpool.LDC {
			idx = it.ByteAt(pos + 1)
		} else {
			idx = it.U16At(pos + 1)
		}
		t, label, err := b.constantInfo(idx)
		if err != nil {
			return err
		}
		b.push(&DataNode{Label: label, Type: t, Op: op})

	case classpool.ILOAD, classpool.LLOAD, classpool.FLOAD, classpool.DLOAD, classpool.ALOAD:
		b.push(b.locals[it.ByteAt(pos+1)])
	case classpool.ILOAD_0, classpool.ILOAD_1, classpool.ILOAD_2, classpool.ILOAD_3:
		b.push(b.locals[op-classpool.ILOAD_0])
	case classpool.LLOAD_0, classpool.LLOAD_1, classpool.LLOAD_2, classpool.LLOAD_3:
		b.push(b.locals[op-classpool.LLOAD_0])
	case classpool.FLOAD_0, classpool.FLOAD_1, classpool.FLOAD_2, classpool.FLOAD_3:
		b.push(b.locals[op-classpool.FLOAD_0])
	case classpool.DLOAD_0, classpool.DLOAD_1, classpool.DLOAD_2, classpool.DLOAD_3:
		b.push(b.locals[op-classpool.DLOAD_0])
	case classpool.ALOAD_0, classpool.ALOAD_1, classpool.ALOAD_2, classpool.ALOAD_3:
		b.push(b.locals[op-classpool.ALOAD_0])

	case classpool.ISTORE, classpool.LSTORE, classpool.FSTORE, classpool.DSTORE, classpool.ASTORE:
		return b.storeTo(it.ByteAt(pos + 1))
	case classpool.ISTORE_0, classpool.ISTORE_1, classpool.ISTORE_2, classpool.ISTORE_3:
		return b.storeTo(op - classpool.ISTORE_0)
	case classpool.LSTORE_0, classpool.LSTORE_1, classpool.LSTORE_2, classpool.LSTORE_3:
		return b.storeTo(op - classpool.LSTORE_0)
	case classpool.FSTORE_0, classpool.FSTORE_1, classpool.FSTORE_2, classpool.FSTORE_3:
		return b.storeTo(op - classpool.FSTORE_0)
	case classpool.DSTORE_0, classpool.DSTORE_1, classpool.DSTORE_2, classpool.DSTORE_3:
		return b.storeTo(op - classpool.DSTORE_0)
	case classpool.ASTORE_0, classpool.ASTORE_1, classpool.ASTORE_2, classpool.ASTORE_3:
		return b.storeTo(op - classpool.ASTORE_0)

	case classpool.IALOAD, classpool.LALOAD, classpool.FALOAD, classpool.DALOAD,
		classpool.AALOAD, classpool.BALOAD, classpool.CALOAD, classpool.SALOAD:
		return b.stackOnly(2)

	case classpool.IASTORE, classpool.LASTORE, classpool.FASTORE, classpool.DASTORE,
		classpool.AASTORE, classpool.BASTORE, classpool.CASTORE, classpool.SASTORE:
		for i := 0; i < 3; i++ {
			if _, err := b.pop(); err != nil {
				return err
			}
		}

	case classpool.POP:
		removed, err := b.pop()
		if err != nil {
			return err
		}
		if removed.Type.Size() != 1 {
			return &classpool.BadBytecodeError{Pos: pos, Msg: "pop of a category-2 value"}
		}
	case classpool.POP2:
		removed, err := b.pop()
		if err != nil {
			return err
		}
		// one category-2 value, or two category-1 values
		if removed.Type.Size() != 2 {
			second, err := b.pop()
			if err != nil {
				return err
			}
			if second.Type.Size() != 1 {
				return &classpool.BadBytecodeError{Pos: pos, Msg: "pop2 across a category-2 boundary"}
			}
		}

	case classpool.DUP:
		top, err := b.peek()
		if err != nil {
			return err
		}
		b.push(top)

	case classpool.IADD, classpool.ISUB, classpool.IMUL, classpool.IDIV, classpool.IREM,
		classpool.ISHL, classpool.ISHR, classpool.IUSHR, classpool.IAND, classpool.IOR, classpool.IXOR,
		classpool.LADD, classpool.LSUB, classpool.LMUL, classpool.LDIV, classpool.LREM,
		classpool.LSHL, classpool.LSHR, classpool.LUSHR, classpool.LAND, classpool.LOR, classpool.LXOR,
		classpool.FADD, classpool.FSUB, classpool.FMUL, classpool.FDIV, classpool.FREM,
		classpool.DADD, classpool.DSUB, classpool.DMUL, classpool.DDIV, classpool.DREM,
		classpool.LCMP, classpool.FCMPL, classpool.FCMPG, classpool.DCMPL, classpool.DCMPG:
		return b.stackOnly(2)

	case classpool.INEG, classpool.LNEG, classpool.FNEG, classpool.DNEG,
		classpool.I2B, classpool.I2C, classpool.I2S,
		classpool.I2L, classpool.I2F, classpool.I2D,
		classpool.L2I, classpool.L2F, classpool.L2D,
		classpool.F2I, classpool.F2L, classpool.F2D,
		classpool.D2I, classpool.D2L, classpool.D2F,
		classpool.INSTANCEOF, classpool.CHECKCAST, classpool.ARRAYLENGTH:
		return b.stackOnly(1)

	case classpool.IINC:
		slot := it.ByteAt(pos + 1)
		prev := b.locals[slot]
		b.locals[slot] = &DataNode{
			Label:  b.instructionString(),
			Type:   prev.Type,
			Op:     op,
			Inputs: []*DataNode{prev},
		}

	case classpool.IFEQ, classpool.IFNE, classpool.IFLT, classpool.IFGE,
		classpool.IFGT, classpool.IFLE, classpool.IFNULL, classpool.IFNONNULL:
		_, err := b.pop()
		return err
	case classpool.IF_ICMPEQ, classpool.IF_ICMPNE, classpool.IF_ICMPLT,
		classpool.IF_ICMPGE, classpool.IF_ICMPGT, classpool.IF_ICMPLE,
		classpool.IF_ACMPEQ, classpool.IF_ACMPNE:
		if _, err := b.pop(); err != nil {
			return err
		}
		_, err := b.pop()
		return err
	case classpool.GOTO:
		// nothing changes in data

	case classpool.IRETURN, classpool.LRETURN, classpool.FRETURN,
		classpool.DRETURN, classpool.ARETURN:
		n, err := b.pop()
		if err != nil {
			return err
		}
		b.toReturn = n
	case classpool.RETURN:
		b.toReturn = nil

	case classpool.ATHROW:
		thrown, err := b.peek()
		if err != nil {
			return err
		}
		b.stack = b.stack[:0]
		b.push(thrown)

	case classpool.GETFIELD, classpool.GETSTATIC:
		class, name, desc, err := b.cp.FieldrefInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		fieldClass, err := b.pool.Get(class)
		if err != nil {
			return err
		}
		field, err := fieldClass.Field(name, desc)
		if err != nil {
			return err
		}
		kind := KindGetField
		toPoll := 1
		if op == classpool.GETSTATIC {
			kind = KindGetStatic
			toPoll = 0
		}
		return b.stackOnlyNode(toPoll, func() *DataNode {
			return &DataNode{
				Label:      b.instructionString(),
				Kind:       kind,
				FieldClass: fieldClass,
				Field:      field,
			}
		})

	case classpool.PUTFIELD, classpool.PUTSTATIC:
		class, name, desc, err := b.cp.FieldrefInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		fieldClass, err := b.pool.Get(class)
		if err != nil {
			return err
		}
		field, err := fieldClass.Field(name, desc)
		if err != nil {
			return err
		}
		value, err := b.pop()
		if err != nil {
			return err
		}
		if op == classpool.PUTFIELD {
			object, err := b.pop()
			if err != nil {
				return err
			}
			b.putFields = append(b.putFields, &PutFieldNode{
				FieldClass: fieldClass, Field: field, Value: value, Object: object,
			})
		} else {
			b.putStatics = append(b.putStatics, &PutStaticNode{
				FieldClass: fieldClass, Field: field, Value: value,
			})
		}

	case classpool.INVOKEVIRTUAL, classpool.INVOKESPECIAL,
		classpool.INVOKESTATIC, classpool.INVOKEINTERFACE:
		class, name, desc, err := b.cp.MethodrefInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		return b.invoke(class, name, desc, op == classpool.INVOKESTATIC, false)

	case classpool.INVOKEDYNAMIC:
		nat, err := b.cp.InvokeDynamicNameAndType(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		nameIdx, err := b.cp.NameAndTypeName(nat)
		if err != nil {
			return err
		}
		name, err := b.cp.Utf8Info(nameIdx)
		if err != nil {
			return err
		}
		descIdx, err := b.cp.NameAndTypeDescriptor(nat)
		if err != nil {
			return err
		}
		desc, err := b.cp.Utf8Info(descIdx)
		if err != nil {
			return err
		}
		return b.invoke("", name, desc, true, true)

	case classpool.NEW:
		return b.stackOnly(0)
	case classpool.NEWARRAY, classpool.ANEWARRAY:
		return b.stackOnly(1)

	default:
		return &classpool.UnsupportedOpcodeError{Op: op}
	}
	return nil
}

func (b *blockBuilder) storeTo(slot int) error {
	n, err := b.pop()
	if err != nil {
		return err
	}
	b.locals[slot] = n
	return nil
}

// invoke pops the call operands (receiver first unless static), pushes a
// result node for non-void callees, and records the Invocation.
func (b *blockBuilder) invoke(class, name, desc string, static, dynamic bool) error {
	params, ret, err := classpool.ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}

	argc := len(params)
	if !static {
		argc++ // receiver
	}
	inputs := make([]*DataNode, argc)
	for i := argc - 1; i >= 0; i-- {
		n, err := b.pop()
		if err != nil {
			return err
		}
		inputs[i] = n
	}

	var results []*DataNode
	if !classpool.IsVoid(ret) {
		result := &DataNode{
			Label:  "result of invoke " + name,
			Type:   ret,
			Op:     b.currentOp(),
			Inputs: inputs,
		}
		b.push(result)
		results = []*DataNode{result}
	}

	b.invocations = append(b.invocations, &Invocation{
		ClassName:  class,
		MethodName: name,
		Descriptor: desc,
		Parameters: inputs,
		Results:    results,
		StaticCall: static,
		Dynamic:    dynamic,
	})
	return nil
}
