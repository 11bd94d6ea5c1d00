package classpool

// typeEffect applies the verification-type effect of the instruction at pos
// to the frame. The supported set matches the symbolic interpreter; any
// other opcode is an UnsupportedOpcodeError.
func typeEffect(frame *Frame, method *CtBehavior, it *CodeIterator, pos int) error {
	op := it.ByteAt(pos)
	cp := method.Pool

	popN := func(n int) error {
		for i := 0; i < n; i++ {
			if _, err := frame.pop(); err != nil {
				return err
			}
		}
		return nil
	}
	binary := func(result Type) error {
		if err := popN(2); err != nil {
			return err
		}
		frame.push(result)
		return nil
	}
	unary := func(result Type) error {
		if err := popN(1); err != nil {
			return err
		}
		frame.push(result)
		return nil
	}

	switch op {
	case ACONST_NULL:
		frame.push(Null)
	case ICONST_M1, ICONST_0, ICONST_1, ICONST_2, ICONST_3, ICONST_4, ICONST_5,
		BIPUSH:
		frame.push(Int)
	case SIPUSH:
		frame.push(Int)
	case LCONST_0, LCONST_1:
		frame.push(Long)
	case FCONST_0, FCONST_1, FCONST_2:
		frame.push(Float)
	case DCONST_0, DCONST_1:
		frame.push(Double)

	case LDC, LDC_W, LDC2_W:
		var idx int
		if op == LDC {
			idx = it.ByteAt(pos + 1)
		} else {
			idx = it.U16At(pos + 1)
		}
		t, err := constantType(cp, idx)
		if err != nil {
			return err
		}
		frame.push(t)

	case ILOAD, LLOAD, FLOAD, DLOAD, ALOAD:
		frame.push(frame.Local(it.ByteAt(pos + 1)))
	case ILOAD_0, ILOAD_1, ILOAD_2, ILOAD_3:
		frame.push(frame.Local(op - ILOAD_0))
	case LLOAD_0, LLOAD_1, LLOAD_2, LLOAD_3:
		frame.push(frame.Local(op - LLOAD_0))
	case FLOAD_0, FLOAD_1, FLOAD_2, FLOAD_3:
		frame.push(frame.Local(op - FLOAD_0))
	case DLOAD_0, DLOAD_1, DLOAD_2, DLOAD_3:
		frame.push(frame.Local(op - DLOAD_0))
	case ALOAD_0, ALOAD_1, ALOAD_2, ALOAD_3:
		frame.push(frame.Local(op - ALOAD_0))

	case ISTORE, LSTORE, FSTORE, DSTORE, ASTORE:
		t, err := frame.pop()
		if err != nil {
			return err
		}
		frame.setLocal(it.ByteAt(pos+1), t)
	case ISTORE_0, ISTORE_1, ISTORE_2, ISTORE_3:
		return storeTo(frame, op-ISTORE_0)
	case LSTORE_0, LSTORE_1, LSTORE_2, LSTORE_3:
		return storeTo(frame, op-LSTORE_0)
	case FSTORE_0, FSTORE_1, FSTORE_2, FSTORE_3:
		return storeTo(frame, op-FSTORE_0)
	case DSTORE_0, DSTORE_1, DSTORE_2, DSTORE_3:
		return storeTo(frame, op-DSTORE_0)
	case ASTORE_0, ASTORE_1, ASTORE_2, ASTORE_3:
		return storeTo(frame, op-ASTORE_0)

	case IALOAD, BALOAD, CALOAD, SALOAD:
		return binary(Int)
	case LALOAD:
		return binary(Long)
	case FALOAD:
		return binary(Float)
	case DALOAD:
		return binary(Double)
	case AALOAD:
		if _, err := frame.pop(); err != nil { // index
			return err
		}
		arr, err := frame.pop()
		if err != nil {
			return err
		}
		frame.push(arrayElemType(arr))

	case IASTORE, LASTORE, FASTORE, DASTORE, AASTORE, BASTORE, CASTORE, SASTORE:
		return popN(3)

	case POP:
		_, err := frame.popSlot()
		return err
	case POP2:
		if err := mustPopSlot(frame); err != nil {
			return err
		}
		return mustPopSlot(frame)
	case DUP:
		top := frame.Stack(frame.TopIndex())
		frame.stack = append(frame.stack, top)

	case IADD, ISUB, IMUL, IDIV, IREM, ISHL, ISHR, IUSHR, IAND, IOR, IXOR:
		return binary(Int)
	case LADD, LSUB, LMUL, LDIV, LREM, LAND, LOR, LXOR:
		return binary(Long)
	case LSHL, LSHR, LUSHR:
		// shift distance is an int, value a long
		if err := popN(2); err != nil {
			return err
		}
		frame.push(Long)
	case FADD, FSUB, FMUL, FDIV, FREM:
		return binary(Float)
	case DADD, DSUB, DMUL, DDIV, DREM:
		return binary(Double)
	case INEG:
		return unary(Int)
	case LNEG:
		return unary(Long)
	case FNEG:
		return unary(Float)
	case DNEG:
		return unary(Double)
	case LCMP, FCMPL, FCMPG, DCMPL, DCMPG:
		return binary(Int)

	case I2B, I2C, I2S:
		return unary(Int)
	case I2L, F2L, D2L:
		return unary(Long)
	case I2F, L2F, D2F:
		return unary(Float)
	case I2D, L2D, F2D:
		return unary(Double)
	case L2I, F2I, D2I:
		return unary(Int)

	case IINC:
		// locals[slot] stays int; no stack effect

	case IFEQ, IFNE, IFLT, IFGE, IFGT, IFLE, IFNULL, IFNONNULL:
		return popN(1)
	case IF_ICMPEQ, IF_ICMPNE, IF_ICMPLT, IF_ICMPGE, IF_ICMPGT, IF_ICMPLE,
		IF_ACMPEQ, IF_ACMPNE:
		return popN(2)
	case GOTO:
		// no data effect

	case IRETURN, LRETURN, FRETURN, DRETURN, ARETURN:
		return popN(1)
	case RETURN:
		// void return

	case GETFIELD, GETSTATIC:
		_, _, desc, err := cp.FieldrefInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		t, err := ParseFieldDescriptor(desc)
		if err != nil {
			return err
		}
		if op == GETFIELD {
			if _, err := frame.pop(); err != nil {
				return err
			}
		}
		frame.push(t)
	case PUTFIELD:
		return popN(2)
	case PUTSTATIC:
		return popN(1)

	case INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC, INVOKEINTERFACE:
		_, _, desc, err := cp.MethodrefInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		return invokeEffect(frame, desc, op == INVOKESTATIC)
	case INVOKEDYNAMIC:
		nat, err := cp.InvokeDynamicNameAndType(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		descIdx, err := cp.NameAndTypeDescriptor(nat)
		if err != nil {
			return err
		}
		desc, err := cp.Utf8Info(descIdx)
		if err != nil {
			return err
		}
		return invokeEffect(frame, desc, true)

	case NEW:
		name, err := cp.ClassInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		frame.push(Ref(name))
	case NEWARRAY:
		if _, err := frame.pop(); err != nil {
			return err
		}
		frame.push(Ref(primitiveArrayDescriptor(it.ByteAt(pos + 1))))
	case ANEWARRAY:
		name, err := cp.ClassInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		if _, err := frame.pop(); err != nil {
			return err
		}
		frame.push(Ref("[L" + name + ";"))

	case ARRAYLENGTH, INSTANCEOF:
		return unary(Int)
	case CHECKCAST:
		name, err := cp.ClassInfo(it.U16At(pos + 1))
		if err != nil {
			return err
		}
		if _, err := frame.pop(); err != nil {
			return err
		}
		frame.push(Ref(name))

	case ATHROW:
		thrown, err := frame.pop()
		if err != nil {
			return err
		}
		frame.stack = frame.stack[:0]
		frame.push(thrown)

	default:
		return &UnsupportedOpcodeError{Op: op}
	}
	return nil
}

func storeTo(frame *Frame, slot int) error {
	t, err := frame.pop()
	if err != nil {
		return err
	}
	frame.setLocal(slot, t)
	return nil
}

func mustPopSlot(frame *Frame) error {
	_, err := frame.popSlot()
	return err
}

// constantType maps a loadable constant pool entry to its verification
// type, per the tag rules the interpreter shares.
func constantType(cp *ConstPool, idx int) (Type, error) {
	switch cp.Tag(idx) {
	case TagInteger:
		return Int, nil
	case TagFloat:
		return Float, nil
	case TagLong:
		return Long, nil
	case TagDouble:
		return Double, nil
	case TagString:
		return Ref(StringClassName), nil
	case TagClass:
		return Ref(ClassClassName), nil
	default:
		return Top, &BadBytecodeError{Msg: "bad LDC tag at constant pool index"}
	}
}

// invokeEffect pops the call operands (receiver first unless static) and
// pushes the return value for non-void descriptors.
func invokeEffect(frame *Frame, descriptor string, static bool) error {
	params, ret, err := ParseMethodDescriptor(descriptor)
	if err != nil {
		return err
	}
	for range params {
		if _, err := frame.pop(); err != nil {
			return err
		}
	}
	if !static {
		if _, err := frame.pop(); err != nil {
			return err
		}
	}
	if !IsVoid(ret) {
		frame.push(ret)
	}
	return nil
}

// arrayElemType derives the element type of an array reference kept as its
// raw descriptor; unknown arrays decay to java/lang/Object references.
func arrayElemType(arr Type) Type {
	if arr.Kind == KindRef && len(arr.ClassName) > 1 && arr.ClassName[0] == '[' {
		if t, err := ParseFieldDescriptor(arr.ClassName[1:]); err == nil {
			return t
		}
	}
	return Ref(ObjectClassName)
}

func primitiveArrayDescriptor(atype int) string {
	switch atype {
	case 4:
		return "[Z"
	case 5:
		return "[C"
	case 6:
		return "[F"
	case 7:
		return "[D"
	case 8:
		return "[B"
	case 9:
		return "[S"
	case 10:
		return "[I"
	case 11:
		return "[J"
	}
	return "[" + ObjectClassName
}
