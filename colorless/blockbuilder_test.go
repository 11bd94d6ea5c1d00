package colorless

import (
	"errors"
	"testing"

	"github.com/vlsergey/secan4go/classpool"
)

func buildGraphFor(t *testing.T, pool *classpool.ClassPool, m *classpool.CtBehavior) *MethodDataGraph {
	t.Helper()
	g, err := NewGraphBuilder().BuildGraph(pool, m)
	if err != nil {
		t.Fatalf("BuildGraph(%s): %v", m.LongName(), err)
	}
	if g == nil {
		t.Fatalf("BuildGraph(%s) returned no graph", m.LongName())
	}
	return g
}

func singleBlock(t *testing.T, g *MethodDataGraph) *BlockDataGraph {
	t.Helper()
	if len(g.Flow.Blocks()) != 1 {
		t.Fatalf("expected a single block, got %d", len(g.Flow.Blocks()))
	}
	return g.Blocks[g.Flow.Blocks()[0]]
}

func TestFlyweightConstantsAreShared(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	b := classpool.NewClassBuilder(pool, "demo/Consts", "")
	m, err := b.Method("make", "()I", true).
		Iconst(3).
		Iconst(3).
		Op(classpool.IADD).
		Op(classpool.IRETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	bg := singleBlock(t, g)

	var adds []*DataNode
	for _, n := range bg.AllNodes {
		if n.Op == classpool.IADD {
			adds = append(adds, n)
		}
	}
	if len(adds) != 1 {
		t.Fatalf("expected one iadd node, got %d", len(adds))
	}
	add := adds[0]
	if len(add.Inputs) != 2 || add.Inputs[0] != ConstInt(3) || add.Inputs[1] != ConstInt(3) {
		t.Fatalf("iadd inputs must be the shared int 3 flyweight")
	}
	if !IsFlyweight(add.Inputs[0]) {
		t.Fatalf("constant node is not a flyweight")
	}
	if add.Type != classpool.Int {
		t.Fatalf("iadd result type = %v, want int", add.Type)
	}
}

func TestLoadStoreRoundtripKeepsNodeIdentity(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	b := classpool.NewClassBuilder(pool, "demo/Copy", "")
	// static Object copy(Object x) { Object y = x; return y; }
	m, err := b.Method("copy", "(Ljava/lang/Object;)Ljava/lang/Object;", true).
		Aload(0).
		Astore(1).
		Aload(1).
		Op(classpool.ARETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	if len(g.MethodReturnNodes) != 1 {
		t.Fatalf("expected one return node")
	}
	if g.MethodReturnNodes[0] != g.MethodParamNodes[0] {
		t.Fatalf("load/store must pass the same node through, not copy it")
	}
}

func TestCategory2ValuesUseOneStackSlot(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	b := classpool.NewClassBuilder(pool, "demo/Longs", "")
	// static long sum(long a, long b) { return a + b; }
	m, err := b.Method("sum", "(JJ)J", true).
		Lload(0).
		Lload(2).
		Op(classpool.LADD).
		Op(classpool.LRETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	if len(g.MethodParamNodes) != 2 {
		t.Fatalf("two long formals must yield two parameter nodes, got %d", len(g.MethodParamNodes))
	}
	ret := g.MethodReturnNodes[0]
	if ret.Op != classpool.LADD || len(ret.Inputs) != 2 {
		t.Fatalf("unexpected return node %v", ret)
	}
	if ret.Inputs[0] != g.MethodParamNodes[0] || ret.Inputs[1] != g.MethodParamNodes[1] {
		t.Fatalf("ladd inputs must be the two parameter nodes in operand order")
	}
	if ret.Type != classpool.Long {
		t.Fatalf("ladd type = %v, want long", ret.Type)
	}
}

func TestPop2HandlesBothShapes(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	b := classpool.NewClassBuilder(pool, "demo/Pops", "")
	// pop2 over one category-2 value
	m1, err := b.Method("wide", "(J)V", true).
		Lload(0).
		Op(classpool.POP2).
		Op(classpool.RETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}
	// pop2 over two category-1 values
	m2, err := b.Method("narrow", "(II)V", true).
		Iload(0).
		Iload(1).
		Op(classpool.POP2).
		Op(classpool.RETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	for _, m := range []*classpool.CtBehavior{m1, m2} {
		g := buildGraphFor(t, pool, m)
		bg := singleBlock(t, g)
		if len(bg.OutStack) != 0 {
			t.Fatalf("%s: stack not empty after pop2", m.Name)
		}
	}
}

func TestInvocationRecordsOperandsAndResult(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	target := classpool.NewClassBuilder(pool, "demo/Target", "")
	target.AbstractMethod("combine", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", false)

	b := classpool.NewClassBuilder(pool, "demo/Caller", "")
	m, err := b.Method("call", "(Ldemo/Target;Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", true).
		Aload(0).
		Aload(1).
		Aload(2).
		InvokeVirtual("demo/Target", "combine", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;").
		Op(classpool.ARETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	invs := g.Invocations()
	if len(invs) != 1 {
		t.Fatalf("expected one invocation, got %d", len(invs))
	}
	inv := invs[0]
	if inv.ClassName != "demo/Target" || inv.MethodName != "combine" || inv.StaticCall || inv.Dynamic {
		t.Fatalf("unexpected invocation %+v", inv)
	}
	if len(inv.Parameters) != 3 {
		t.Fatalf("expected receiver plus two arguments, got %d", len(inv.Parameters))
	}
	for i := 0; i < 3; i++ {
		if inv.Parameters[i] != g.MethodParamNodes[i] {
			t.Fatalf("invocation parameter %d is not the caller's parameter node", i)
		}
	}
	if len(inv.Results) != 1 || inv.Results[0] != g.MethodReturnNodes[0] {
		t.Fatalf("invocation result must be the returned node")
	}
}

func TestVoidInvocationHasNoResult(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	target := classpool.NewClassBuilder(pool, "demo/Sink", "")
	target.AbstractMethod("consume", "(Ljava/lang/Object;)V", false)

	b := classpool.NewClassBuilder(pool, "demo/Caller2", "")
	m, err := b.Method("call", "(Ldemo/Sink;Ljava/lang/Object;)V", true).
		Aload(0).
		Aload(1).
		InvokeVirtual("demo/Sink", "consume", "(Ljava/lang/Object;)V").
		Op(classpool.RETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	invs := g.Invocations()
	if len(invs) != 1 || len(invs[0].Results) != 0 {
		t.Fatalf("void invocation must record no result node")
	}
	if len(g.MethodReturnNodes) != 0 {
		t.Fatalf("void method must have no return nodes")
	}
}

func TestFieldAccessNodes(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	holder := classpool.NewClassBuilder(pool, "demo/Holder", "")
	holder.Field("value", "Ljava/lang/Object;", false)
	holder.Field("shared", "Ljava/lang/Object;", true)

	b := classpool.NewClassBuilder(pool, "demo/Fields", "")
	m, err := b.Method("swap", "(Ldemo/Holder;Ljava/lang/Object;)Ljava/lang/Object;", true).
		Aload(0).
		Aload(1).
		PutField("demo/Holder", "value", "Ljava/lang/Object;").
		GetStatic("demo/Holder", "shared", "Ljava/lang/Object;").
		Op(classpool.ARETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	puts := g.PutFields()
	if len(puts) != 1 {
		t.Fatalf("expected one putfield record, got %d", len(puts))
	}
	if puts[0].Object != g.MethodParamNodes[0] || puts[0].Value != g.MethodParamNodes[1] {
		t.Fatalf("putfield operands wired incorrectly")
	}
	if puts[0].Field.Name != "value" {
		t.Fatalf("unexpected field %q", puts[0].Field.Name)
	}

	ret := g.MethodReturnNodes[0]
	if ret.Kind != KindGetStatic || ret.Field.Name != "shared" {
		t.Fatalf("expected getstatic node as return, got %v", ret)
	}
}

func TestUnknownOpcodeFailsWithMnemonic(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	b := classpool.NewClassBuilder(pool, "demo/Bad", "")
	m, err := b.Method("bad", "()V", true).
		Raw(classpool.MONITORENTER).
		Op(classpool.RETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	_, err = NewGraphBuilder().BuildGraph(pool, m)
	var unsupported *classpool.UnsupportedOpcodeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedOpcodeError, got %v", err)
	}
	if unsupported.Error() != "unsupported opcode: monitorenter" {
		t.Fatalf("expected the monitorenter mnemonic in the error, got %q", unsupported.Error())
	}
}

func TestEmptyMethodYieldsNoGraph(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	b := classpool.NewClassBuilder(pool, "demo/Abstract", "")
	b.AbstractMethod("nothing", "()V", false)
	cls, _ := pool.Get("demo/Abstract")
	m, err := cls.Method("nothing", "()V")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	g, err := NewGraphBuilder().BuildGraph(pool, m)
	if err != nil || g != nil {
		t.Fatalf("empty method must yield (nil, nil), got %v, %v", g, err)
	}
}
