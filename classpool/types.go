package classpool

// TypeKind enumerates the verification-type lattice. Byte, char, short and
// boolean values all verify as Int.
type TypeKind uint8

const (
	KindTop TypeKind = iota
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindNull
	KindUninit
	KindRef
)

// Type is a verification type: a primitive kind, null, uninitialized, top,
// or a reference to a named class. The zero value is Top.
type Type struct {
	Kind      TypeKind
	ClassName string
}

var (
	Top    = Type{Kind: KindTop}
	Int    = Type{Kind: KindInt}
	Float  = Type{Kind: KindFloat}
	Long   = Type{Kind: KindLong}
	Double = Type{Kind: KindDouble}
	Null   = Type{Kind: KindNull}
	Uninit = Type{Kind: KindUninit}
)

// Ref returns the reference type for a class name in internal form
// ("java/lang/String").
func Ref(className string) Type {
	return Type{Kind: KindRef, ClassName: className}
}

// Size returns the number of frame slots the type occupies: two for long
// and double, one otherwise.
func (t Type) Size() int {
	if t.Kind == KindLong || t.Kind == KindDouble {
		return 2
	}
	return 1
}

// IsReference reports whether the type is a class reference or null.
func (t Type) IsReference() bool {
	return t.Kind == KindRef || t.Kind == KindNull
}

func (t Type) String() string {
	switch t.Kind {
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindNull:
		return "null"
	case KindUninit:
		return "uninit"
	case KindRef:
		return t.ClassName
	}
	return "?"
}

// Merge computes the least upper bound of two verification types. Reference
// types meet at their first common superclass, falling back to
// java/lang/Object when the hierarchy cannot be resolved. Incompatible
// kinds meet at Top.
func (t Type) Merge(other Type, pool *ClassPool) Type {
	if t == other {
		return t
	}
	if t.Kind == KindTop || other.Kind == KindTop {
		return Top
	}
	if t.Kind == KindNull && other.IsReference() {
		return other
	}
	if other.Kind == KindNull && t.IsReference() {
		return t
	}
	if t.Kind == KindRef && other.Kind == KindRef {
		if pool != nil {
			if common := pool.commonSuperclass(t.ClassName, other.ClassName); common != "" {
				return Ref(common)
			}
		}
		return Ref(ObjectClassName)
	}
	return Top
}

// AssignableFrom reports whether a value of type other can appear where the
// receiver type is expected. Null is assignable to every reference type;
// a reference is assignable from any subtype.
func (t Type) AssignableFrom(other Type, pool *ClassPool) bool {
	if t == other {
		return true
	}
	if t.Kind == KindTop {
		return true
	}
	if t.Kind == KindRef {
		if other.Kind == KindNull || other.Kind == KindUninit {
			return true
		}
		if other.Kind != KindRef {
			return false
		}
		if t.ClassName == ObjectClassName {
			return true
		}
		if pool == nil {
			return t.ClassName == other.ClassName
		}
		return pool.isSubclassOf(other.ClassName, t.ClassName)
	}
	// The int-alike primitives collapse into a single kind, so primitive
	// compatibility is plain kind equality.
	return t.Kind == other.Kind
}
