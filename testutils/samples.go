// Package testutils builds the synthetic class corpus the engine's tests
// analyze: small methods with real encoded bytecode covering parameter
// pass-through, concatenation, sink calls, branches, loops and recursion.
package testutils

import "github.com/vlsergey/secan4go/classpool"

// Descriptor fragments used across the corpus.
const (
	DescString     = "Ljava/lang/String;"
	DescObject     = "Ljava/lang/Object;"
	DescBuilder    = "Ljava/lang/StringBuilder;"
	DescConnection = "Ljava/sql/Connection;"
	DescStatement  = "Ljava/sql/PreparedStatement;"
)

// Demo class names.
const (
	SimpleColoredMethodsClass = "demo/SimpleColoredMethods"
	IdentityClass             = "demo/Identity"
	BranchMergeClass          = "demo/BranchMerge"
	RecursiveClass            = "demo/Recursive"
	LoopClass                 = "demo/Loop"
)

// NewSamplePool builds a class pool holding the JDK stubs and every demo
// class.
func NewSamplePool() *classpool.ClassPool {
	pool := classpool.NewClassPool()
	RegisterJDKStubs(pool)
	RegisterSimpleColoredMethods(pool)
	RegisterIdentity(pool)
	RegisterBranchMerge(pool)
	RegisterRecursive(pool)
	RegisterLoop(pool)
	return pool
}

// RegisterJDKStubs registers the handful of platform classes the demo
// corpus references. StringBuilder.append returns its receiver;
// Connection.prepareStatement is abstract, so analysis elides the call and
// relies on declared rules alone.
func RegisterJDKStubs(pool *classpool.ClassPool) {
	classpool.NewClassBuilder(pool, "java/lang/String", "")
	classpool.NewClassBuilder(pool, "java/sql/PreparedStatement", "")

	sb := classpool.NewClassBuilder(pool, "java/lang/StringBuilder", "")
	sb.Method("append", "("+DescString+")"+DescBuilder, false).
		Aload(0).
		Op(classpool.ARETURN).
		MustDone()

	conn := classpool.NewClassBuilder(pool, "java/sql/Connection", "")
	conn.Class().Interface = true
	conn.AbstractMethod("prepareStatement", "("+DescString+")"+DescStatement, false)
}

// RegisterSimpleColoredMethods registers the class behind the append,
// concatenation and prepareStatement scenarios.
func RegisterSimpleColoredMethods(pool *classpool.ClassPool) *classpool.CtClass {
	b := classpool.NewClassBuilder(pool, SimpleColoredMethodsClass, "")

	// void append(StringBuilder sb, String a, String b) { sb.append(a); sb.append(b); }
	b.Method("append", "("+DescBuilder+DescString+DescString+")V", false).
		Aload(1).
		Aload(2).
		InvokeVirtual("java/lang/StringBuilder", "append", "("+DescString+")"+DescBuilder).
		Op(classpool.POP).
		Aload(1).
		Aload(3).
		InvokeVirtual("java/lang/StringBuilder", "append", "("+DescString+")"+DescBuilder).
		Op(classpool.POP).
		Op(classpool.RETURN).
		MustDone()

	// String concatenation(Object unused, String a, String b) { return a + b; }
	b.Method("concatenation", "("+DescObject+DescString+DescString+")"+DescString, false).
		Aload(2).
		Aload(3).
		InvokeDynamic("makeConcatWithConstants", "("+DescString+DescString+")"+DescString).
		Op(classpool.ARETURN).
		MustDone()

	// PreparedStatement prepareStatement(Connection con, String unused, String query) {
	//     return con.prepareStatement(query);
	// }
	b.Method("prepareStatement", "("+DescConnection+DescString+DescString+")"+DescStatement, false).
		Aload(1).
		Aload(3).
		InvokeInterface("java/sql/Connection", "prepareStatement", "("+DescString+")"+DescStatement).
		Op(classpool.ARETURN).
		MustDone()

	return b.Class()
}

// RegisterIdentity registers static Object identity(Object x) { return x; }.
func RegisterIdentity(pool *classpool.ClassPool) *classpool.CtClass {
	b := classpool.NewClassBuilder(pool, IdentityClass, "")
	b.Method("identity", "("+DescObject+")"+DescObject, true).
		Aload(0).
		Op(classpool.ARETURN).
		MustDone()
	return b.Class()
}

// RegisterBranchMerge registers
// static Object choose(int c, Object a, Object b) { if (c != 0) return a; return b; }.
func RegisterBranchMerge(pool *classpool.ClassPool) *classpool.CtClass {
	b := classpool.NewClassBuilder(pool, BranchMergeClass, "")
	b.Method("choose", "(I"+DescObject+DescObject+")"+DescObject, true).
		Iload(0).
		If(classpool.IFEQ, "else").
		Aload(1).
		Op(classpool.ARETURN).
		Label("else").
		Aload(2).
		Op(classpool.ARETURN).
		MustDone()
	return b.Class()
}

// RegisterRecursive registers two mutually recursive static methods, so the
// worklist has a genuine dependency cycle to terminate over.
func RegisterRecursive(pool *classpool.ClassPool) *classpool.CtClass {
	b := classpool.NewClassBuilder(pool, RecursiveClass, "")
	b.Method("f", "("+DescObject+")"+DescObject, true).
		Aload(0).
		InvokeStatic(RecursiveClass, "g", "("+DescObject+")"+DescObject).
		Op(classpool.ARETURN).
		MustDone()
	b.Method("g", "("+DescObject+")"+DescObject, true).
		Aload(0).
		InvokeStatic(RecursiveClass, "f", "("+DescObject+")"+DescObject).
		Op(classpool.ARETURN).
		MustDone()
	return b.Class()
}

// RegisterLoop registers
// static int count(int n) { int i = 0; while (i < n) { i++; } return i; },
// whose back edge forces merge nodes during stitching.
func RegisterLoop(pool *classpool.ClassPool) *classpool.CtClass {
	b := classpool.NewClassBuilder(pool, LoopClass, "")
	b.Method("count", "(I)I", true).
		Iconst(0).
		Istore(1).
		Label("head").
		Iload(1).
		Iload(0).
		If(classpool.IF_ICMPGE, "end").
		Iinc(1, 1).
		Goto("head").
		Label("end").
		Iload(1).
		Op(classpool.IRETURN).
		MustDone()
	return b.Class()
}
