package main

import (
	"fmt"
	"os"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/vlsergey/secan4go/classpool"
)

// poolFile is the YAML description of a synthetic class pool: classes with
// methods whose bodies are written as mnemonic instruction lists and
// assembled into real bytecode.
type poolFile struct {
	Classes []poolClass `yaml:"classes"`
}

type poolClass struct {
	Name      string       `yaml:"name"`
	Super     string       `yaml:"super"`
	Interface bool         `yaml:"interface"`
	Fields    []poolField  `yaml:"fields"`
	Methods   []poolMethod `yaml:"methods"`
}

type poolField struct {
	Name       string `yaml:"name"`
	Descriptor string `yaml:"descriptor"`
	Static     bool   `yaml:"static"`
}

type poolMethod struct {
	Name       string     `yaml:"name"`
	Descriptor string     `yaml:"descriptor"`
	Static     bool       `yaml:"static"`
	Abstract   bool       `yaml:"abstract"`
	Code       [][]string `yaml:"code"`
}

// loadPoolFile reads a pool description and assembles every class into the
// returned pool.
func loadPoolFile(path string) (*classpool.ClassPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file poolFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("pool file %s: %w", path, err)
	}

	pool := classpool.NewClassPool()
	for _, pc := range file.Classes {
		b := classpool.NewClassBuilder(pool, pc.Name, pc.Super)
		b.Class().Interface = pc.Interface
		for _, f := range pc.Fields {
			b.Field(f.Name, f.Descriptor, f.Static)
		}
		for _, m := range pc.Methods {
			if m.Abstract {
				b.AbstractMethod(m.Name, m.Descriptor, m.Static)
				continue
			}
			cb := b.Method(m.Name, m.Descriptor, m.Static)
			for i, insn := range m.Code {
				if err := assemble(cb, insn); err != nil {
					return nil, fmt.Errorf("%s.%s instruction %d: %w", pc.Name, m.Name, i, err)
				}
			}
			if _, err := cb.Done(); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", pc.Name, m.Name, err)
			}
		}
	}
	return pool, nil
}

// assemble maps one mnemonic instruction line onto the code builder.
func assemble(cb *classpool.CodeBuilder, insn []string) error {
	if len(insn) == 0 {
		return fmt.Errorf("empty instruction")
	}
	name := insn[0]
	args := insn[1:]

	argInt := func(i int) (int, error) {
		if i >= len(args) {
			return 0, fmt.Errorf("%s: missing operand %d", name, i)
		}
		return strconv.Atoi(args[i])
	}
	argStr := func(i int) (string, error) {
		if i >= len(args) {
			return "", fmt.Errorf("%s: missing operand %d", name, i)
		}
		return args[i], nil
	}
	member := func(apply func(class, mname, desc string) *classpool.CodeBuilder) error {
		class, err := argStr(0)
		if err != nil {
			return err
		}
		mname, err := argStr(1)
		if err != nil {
			return err
		}
		desc, err := argStr(2)
		if err != nil {
			return err
		}
		apply(class, mname, desc)
		return nil
	}
	slotOp := func(apply func(int) *classpool.CodeBuilder) error {
		n, err := argInt(0)
		if err != nil {
			return err
		}
		apply(n)
		return nil
	}

	switch name {
	case "label":
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.Label(s)
		return nil
	case "goto":
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.Goto(s)
		return nil
	case "ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
		"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple",
		"if_acmpeq", "if_acmpne", "ifnull", "ifnonnull":
		op, _ := classpool.OpcodeOf(name)
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.If(op, s)
		return nil

	case "aconst_null":
		cb.AconstNull()
		return nil
	case "iconst":
		return slotOp(cb.Iconst)
	case "lconst":
		return slotOp(cb.Lconst)
	case "ldc_string":
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.LdcString(s)
		return nil
	case "ldc_int":
		n, err := argInt(0)
		if err != nil {
			return err
		}
		cb.LdcInt(int32(n))
		return nil

	case "aload":
		return slotOp(cb.Aload)
	case "iload":
		return slotOp(cb.Iload)
	case "lload":
		return slotOp(cb.Lload)
	case "fload":
		return slotOp(cb.Fload)
	case "dload":
		return slotOp(cb.Dload)
	case "astore":
		return slotOp(cb.Astore)
	case "istore":
		return slotOp(cb.Istore)
	case "lstore":
		return slotOp(cb.Lstore)
	case "fstore":
		return slotOp(cb.Fstore)
	case "dstore":
		return slotOp(cb.Dstore)

	case "iinc":
		slot, err := argInt(0)
		if err != nil {
			return err
		}
		delta, err := argInt(1)
		if err != nil {
			return err
		}
		cb.Iinc(slot, delta)
		return nil

	case "invokevirtual":
		return member(cb.InvokeVirtual)
	case "invokespecial":
		return member(cb.InvokeSpecial)
	case "invokestatic":
		return member(cb.InvokeStatic)
	case "invokeinterface":
		return member(cb.InvokeInterface)
	case "invokedynamic":
		mname, err := argStr(0)
		if err != nil {
			return err
		}
		desc, err := argStr(1)
		if err != nil {
			return err
		}
		cb.InvokeDynamic(mname, desc)
		return nil

	case "getfield":
		return member(cb.GetField)
	case "getstatic":
		return member(cb.GetStatic)
	case "putfield":
		return member(cb.PutField)
	case "putstatic":
		return member(cb.PutStatic)

	case "new":
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.New(s)
		return nil
	case "checkcast":
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.Checkcast(s)
		return nil
	case "instanceof":
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.Instanceof(s)
		return nil
	case "anewarray":
		s, err := argStr(0)
		if err != nil {
			return err
		}
		cb.Anewarray(s)
		return nil

	default:
		op, ok := classpool.OpcodeOf(name)
		if !ok {
			return fmt.Errorf("unknown mnemonic %q", name)
		}
		if len(args) != 0 {
			return fmt.Errorf("%s takes no operands here", name)
		}
		cb.Op(op)
		return nil
	}
}
