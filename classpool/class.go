package classpool

import "sync"

// ClassPool is a thread-safe registry of classes, keyed by internal name.
type ClassPool struct {
	mu      sync.RWMutex
	classes map[string]*CtClass
}

func NewClassPool() *ClassPool {
	p := &ClassPool{classes: make(map[string]*CtClass)}
	// java/lang/Object always exists so reference LUBs terminate.
	p.classes[ObjectClassName] = &CtClass{pool: p, Name: ObjectClassName}
	return p
}

// Get resolves a class by internal name.
func (p *ClassPool) Get(name string) (*CtClass, error) {
	p.mu.RLock()
	c := p.classes[name]
	p.mu.RUnlock()
	if c == nil {
		return nil, &ClassNotFoundError{Name: name}
	}
	return c, nil
}

// Add registers a class, replacing any previous definition of the same name.
func (p *ClassPool) Add(c *CtClass) {
	c.pool = p
	p.mu.Lock()
	p.classes[c.Name] = c
	p.mu.Unlock()
}

// isSubclassOf reports whether sub equals super or inherits from it.
// Unresolvable names terminate the walk.
func (p *ClassPool) isSubclassOf(sub, super string) bool {
	for name := sub; name != ""; {
		if name == super {
			return true
		}
		c, err := p.Get(name)
		if err != nil {
			return super == ObjectClassName
		}
		name = c.SuperName
	}
	return super == ObjectClassName
}

// commonSuperclass returns the first class on both superclass chains, or
// java/lang/Object when the chains share no resolvable class.
func (p *ClassPool) commonSuperclass(a, b string) string {
	seen := map[string]bool{}
	for name := a; name != ""; {
		seen[name] = true
		c, err := p.Get(name)
		if err != nil {
			break
		}
		name = c.SuperName
	}
	for name := b; name != ""; {
		if seen[name] {
			return name
		}
		c, err := p.Get(name)
		if err != nil {
			break
		}
		name = c.SuperName
	}
	return ObjectClassName
}

// CtClass is a class known to the pool: its name, superclass, declared
// fields and behaviors. Names are in internal form.
type CtClass struct {
	pool      *ClassPool
	Name      string
	SuperName string
	Interface bool

	fields  []*CtField
	methods []*CtBehavior
}

// Pool returns the owning class pool.
func (c *CtClass) Pool() *ClassPool { return c.pool }

// Type returns the reference verification type for this class.
func (c *CtClass) Type() Type { return Ref(c.Name) }

// SubtypeOf reports whether c is other or inherits from it.
func (c *CtClass) SubtypeOf(other *CtClass) bool {
	if c.pool == nil || other == nil {
		return c == other
	}
	return c.pool.isSubclassOf(c.Name, other.Name)
}

// Field finds a declared field by name and descriptor, searching the
// superclass chain.
func (c *CtClass) Field(name, descriptor string) (*CtField, error) {
	for cur := c; cur != nil; {
		for _, f := range cur.fields {
			if f.Name == name && (descriptor == "" || f.Descriptor == descriptor) {
				return f, nil
			}
		}
		if cur.SuperName == "" || cur.pool == nil {
			break
		}
		next, err := cur.pool.Get(cur.SuperName)
		if err != nil {
			break
		}
		cur = next
	}
	return nil, &MemberNotFoundError{Kind: "field", Class: c.Name, Name: name, Descriptor: descriptor}
}

// Method finds a method by name and descriptor, searching the superclass
// chain. Constructors are not returned here; use Constructor.
func (c *CtClass) Method(name, descriptor string) (*CtBehavior, error) {
	for cur := c; cur != nil; {
		for _, m := range cur.methods {
			if m.Name == name && m.Descriptor == descriptor && !m.IsConstructor() {
				return m, nil
			}
		}
		if cur.SuperName == "" || cur.pool == nil {
			break
		}
		next, err := cur.pool.Get(cur.SuperName)
		if err != nil {
			break
		}
		cur = next
	}
	return nil, &MemberNotFoundError{Kind: "method", Class: c.Name, Name: name, Descriptor: descriptor}
}

// Constructor finds a declared constructor by descriptor.
func (c *CtClass) Constructor(descriptor string) (*CtBehavior, error) {
	for _, m := range c.methods {
		if m.IsConstructor() && m.Descriptor == descriptor {
			return m, nil
		}
	}
	return nil, &MemberNotFoundError{Kind: "constructor", Class: c.Name, Name: ConstructorName, Descriptor: descriptor}
}

// AddField declares a field on the class and returns it.
func (c *CtClass) AddField(name, descriptor string, static bool) *CtField {
	f := &CtField{Class: c, Name: name, Descriptor: descriptor, Static: static}
	c.fields = append(c.fields, f)
	return f
}

// AddBehavior attaches a method or constructor to the class.
func (c *CtClass) AddBehavior(m *CtBehavior) {
	m.Class = c
	c.methods = append(c.methods, m)
}

// ConstructorName is the special behavior name for constructors.
const ConstructorName = "<init>"

// CtField is a declared field.
type CtField struct {
	Class      *CtClass
	Name       string
	Descriptor string
	Static     bool
}

// CtBehavior is a method or constructor: its descriptor, access flags,
// bytecode and constant pool. An empty Code means the behavior is abstract,
// native, or otherwise has no body to analyze.
type CtBehavior struct {
	Class      *CtClass
	Name       string
	Descriptor string
	Static     bool
	MaxLocals  int
	Code       []byte
	Pool       *ConstPool
}

// IsConstructor reports whether the behavior is a constructor.
func (m *CtBehavior) IsConstructor() bool {
	return m.Name == ConstructorName
}

// IsEmpty reports whether the behavior has no instructions to analyze.
func (m *CtBehavior) IsEmpty() bool {
	return len(m.Code) == 0
}

// LongName renders "class.method(descriptor)" for diagnostics.
func (m *CtBehavior) LongName() string {
	cls := "?"
	if m.Class != nil {
		cls = m.Class.Name
	}
	return cls + "." + m.Name + m.Descriptor
}

// ParameterTypes parses the declared (non-receiver) parameter types.
func (m *CtBehavior) ParameterTypes() ([]Type, error) {
	params, _, err := ParseMethodDescriptor(m.Descriptor)
	return params, err
}

// ReturnType parses the declared return type; IsVoid identifies void.
func (m *CtBehavior) ReturnType() (Type, error) {
	_, ret, err := ParseMethodDescriptor(m.Descriptor)
	return ret, err
}
