package classpool

import "fmt"

// Constant pool tags, per the class file format.
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagInvokeDynamic      = 18
)

type cpEntry struct {
	tag int
	i32 int32
	i64 int64
	f32 float32
	f64 float64
	str string
	// a, b hold cross-references: class/name-and-type indices for member
	// refs, utf8 indices for NameAndType, string/class utf8 index.
	a, b int
}

// ConstPool is a method's constant pool. Index 0 is reserved, as in real
// class files. Pools are built programmatically through the Add* methods
// and read through the *Info accessors the interpreter consumes.
type ConstPool struct {
	entries []cpEntry
}

func NewConstPool() *ConstPool {
	return &ConstPool{entries: make([]cpEntry, 1)}
}

func (p *ConstPool) add(e cpEntry) int {
	for i := 1; i < len(p.entries); i++ {
		if p.entries[i] == e {
			return i
		}
	}
	p.entries = append(p.entries, e)
	return len(p.entries) - 1
}

func (p *ConstPool) entry(i int) (cpEntry, error) {
	if i <= 0 || i >= len(p.entries) {
		return cpEntry{}, &BadBytecodeError{Msg: fmt.Sprintf("constant pool index %d out of range", i)}
	}
	return p.entries[i], nil
}

func (p *ConstPool) typed(i, tag int) (cpEntry, error) {
	e, err := p.entry(i)
	if err != nil {
		return e, err
	}
	if e.tag != tag {
		return e, &BadBytecodeError{Msg: fmt.Sprintf("constant pool entry %d has tag %d, expected %d", i, e.tag, tag)}
	}
	return e, nil
}

// Tag returns the tag of entry i, or 0 for an invalid index.
func (p *ConstPool) Tag(i int) int {
	e, err := p.entry(i)
	if err != nil {
		return 0
	}
	return e.tag
}

func (p *ConstPool) AddUtf8(s string) int {
	return p.add(cpEntry{tag: TagUtf8, str: s})
}

func (p *ConstPool) AddInteger(v int32) int {
	return p.add(cpEntry{tag: TagInteger, i32: v})
}

func (p *ConstPool) AddFloat(v float32) int {
	return p.add(cpEntry{tag: TagFloat, f32: v})
}

func (p *ConstPool) AddLong(v int64) int {
	return p.add(cpEntry{tag: TagLong, i64: v})
}

func (p *ConstPool) AddDouble(v float64) int {
	return p.add(cpEntry{tag: TagDouble, f64: v})
}

func (p *ConstPool) AddString(s string) int {
	return p.add(cpEntry{tag: TagString, a: p.AddUtf8(s)})
}

func (p *ConstPool) AddClass(name string) int {
	return p.add(cpEntry{tag: TagClass, a: p.AddUtf8(name)})
}

func (p *ConstPool) AddNameAndType(name, descriptor string) int {
	return p.add(cpEntry{tag: TagNameAndType, a: p.AddUtf8(name), b: p.AddUtf8(descriptor)})
}

func (p *ConstPool) AddFieldref(class, name, descriptor string) int {
	return p.add(cpEntry{tag: TagFieldref, a: p.AddClass(class), b: p.AddNameAndType(name, descriptor)})
}

func (p *ConstPool) AddMethodref(class, name, descriptor string) int {
	return p.add(cpEntry{tag: TagMethodref, a: p.AddClass(class), b: p.AddNameAndType(name, descriptor)})
}

func (p *ConstPool) AddInterfaceMethodref(class, name, descriptor string) int {
	return p.add(cpEntry{tag: TagInterfaceMethodref, a: p.AddClass(class), b: p.AddNameAndType(name, descriptor)})
}

func (p *ConstPool) AddInvokeDynamic(name, descriptor string) int {
	return p.add(cpEntry{tag: TagInvokeDynamic, b: p.AddNameAndType(name, descriptor)})
}

func (p *ConstPool) Utf8Info(i int) (string, error) {
	e, err := p.typed(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

func (p *ConstPool) IntegerInfo(i int) (int32, error) {
	e, err := p.typed(i, TagInteger)
	if err != nil {
		return 0, err
	}
	return e.i32, nil
}

func (p *ConstPool) FloatInfo(i int) (float32, error) {
	e, err := p.typed(i, TagFloat)
	if err != nil {
		return 0, err
	}
	return e.f32, nil
}

func (p *ConstPool) LongInfo(i int) (int64, error) {
	e, err := p.typed(i, TagLong)
	if err != nil {
		return 0, err
	}
	return e.i64, nil
}

func (p *ConstPool) DoubleInfo(i int) (float64, error) {
	e, err := p.typed(i, TagDouble)
	if err != nil {
		return 0, err
	}
	return e.f64, nil
}

func (p *ConstPool) StringInfo(i int) (string, error) {
	e, err := p.typed(i, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8Info(e.a)
}

func (p *ConstPool) ClassInfo(i int) (string, error) {
	e, err := p.typed(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8Info(e.a)
}

func (p *ConstPool) NameAndTypeName(i int) (int, error) {
	e, err := p.typed(i, TagNameAndType)
	if err != nil {
		return 0, err
	}
	return e.a, nil
}

func (p *ConstPool) NameAndTypeDescriptor(i int) (int, error) {
	e, err := p.typed(i, TagNameAndType)
	if err != nil {
		return 0, err
	}
	return e.b, nil
}

func (p *ConstPool) memberRef(i int, tags ...int) (class, name, descriptor string, err error) {
	e, err := p.entry(i)
	if err != nil {
		return "", "", "", err
	}
	ok := false
	for _, tag := range tags {
		if e.tag == tag {
			ok = true
			break
		}
	}
	if !ok {
		return "", "", "", &BadBytecodeError{Msg: fmt.Sprintf("constant pool entry %d has tag %d, expected member reference", i, e.tag)}
	}
	if class, err = p.ClassInfo(e.a); err != nil {
		return "", "", "", err
	}
	nameIdx, err := p.NameAndTypeName(e.b)
	if err != nil {
		return "", "", "", err
	}
	descIdx, err := p.NameAndTypeDescriptor(e.b)
	if err != nil {
		return "", "", "", err
	}
	if name, err = p.Utf8Info(nameIdx); err != nil {
		return "", "", "", err
	}
	if descriptor, err = p.Utf8Info(descIdx); err != nil {
		return "", "", "", err
	}
	return class, name, descriptor, nil
}

// FieldrefInfo resolves a Fieldref entry into its (class, name, descriptor)
// triple.
func (p *ConstPool) FieldrefInfo(i int) (class, name, descriptor string, err error) {
	return p.memberRef(i, TagFieldref)
}

// MethodrefInfo resolves a Methodref or InterfaceMethodref entry into its
// (class, name, descriptor) triple.
func (p *ConstPool) MethodrefInfo(i int) (class, name, descriptor string, err error) {
	return p.memberRef(i, TagMethodref, TagInterfaceMethodref)
}

// InvokeDynamicNameAndType returns the NameAndType index of an
// InvokeDynamic entry.
func (p *ConstPool) InvokeDynamicNameAndType(i int) (int, error) {
	e, err := p.typed(i, TagInvokeDynamic)
	if err != nil {
		return 0, err
	}
	return e.b, nil
}
