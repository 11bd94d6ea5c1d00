package colorless

import (
	"testing"

	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/testutils"
)

func loopMethod(t *testing.T, pool *classpool.ClassPool) *classpool.CtBehavior {
	t.Helper()
	cls, err := pool.Get(testutils.LoopClass)
	if err != nil {
		t.Fatalf("loop class missing: %v", err)
	}
	m, err := cls.Method("count", "(I)I")
	if err != nil {
		t.Fatalf("loop method missing: %v", err)
	}
	return m
}

func TestLoopCreatesMergeNodeAtHead(t *testing.T) {
	t.Parallel()

	pool := testutils.NewSamplePool()
	g := buildGraphFor(t, pool, loopMethod(t, pool))

	var merges []*DataNode
	for _, n := range g.AllNodes() {
		if n.Kind == KindMerge {
			merges = append(merges, n)
		}
	}
	if len(merges) != 1 {
		t.Fatalf("expected exactly one merge node, got %d", len(merges))
	}
	m := merges[0]
	if m.Type != classpool.Int {
		t.Fatalf("merge type = %v, want int", m.Type)
	}

	// one input per predecessor of the loop head
	if len(m.Inputs) != 2 {
		t.Fatalf("merge must have one input per predecessor, got %d", len(m.Inputs))
	}
	hasConst, hasIinc := false, false
	for _, in := range m.Inputs {
		if in == ConstInt(0) {
			hasConst = true
		}
		if in.Op == classpool.IINC {
			hasIinc = true
		}
	}
	if !hasConst || !hasIinc {
		t.Fatalf("merge inputs must come from the init and the back edge")
	}

	// the returned value flows out of the merge
	if len(g.MethodReturnNodes) != 1 || g.MethodReturnNodes[0] != m {
		t.Fatalf("loop result must be the merged counter")
	}
}

func TestBranchJoinWithoutDisagreementReusesNode(t *testing.T) {
	t.Parallel()

	pool := classpool.NewClassPool()
	b := classpool.NewClassBuilder(pool, "demo/Agree", "")
	// static Object same(int c, Object x) { if (c != 0) {} return x; }
	m, err := b.Method("same", "(ILjava/lang/Object;)Ljava/lang/Object;", true).
		Iload(0).
		If(classpool.IFEQ, "join").
		Label("join").
		Aload(1).
		Op(classpool.ARETURN).
		Done()
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	for _, n := range g.AllNodes() {
		if n.Kind == KindMerge {
			t.Fatalf("agreeing predecessors must not produce merge nodes")
		}
	}
	if g.MethodReturnNodes[0] != g.MethodParamNodes[1] {
		t.Fatalf("parameter must flow through the join untouched")
	}
}

func TestAllNodeInputsStayInsideGraph(t *testing.T) {
	t.Parallel()

	pool := testutils.NewSamplePool()
	for _, ref := range []struct{ class, method, desc string }{
		{testutils.LoopClass, "count", "(I)I"},
		{testutils.SimpleColoredMethodsClass, "append", "(" + testutils.DescBuilder + testutils.DescString + testutils.DescString + ")V"},
		{testutils.BranchMergeClass, "choose", "(I" + testutils.DescObject + testutils.DescObject + ")" + testutils.DescObject},
	} {
		cls, err := pool.Get(ref.class)
		if err != nil {
			t.Fatalf("class %s: %v", ref.class, err)
		}
		m, err := cls.Method(ref.method, ref.desc)
		if err != nil {
			t.Fatalf("method %s.%s: %v", ref.class, ref.method, err)
		}
		g := buildGraphFor(t, pool, m)

		inGraph := make(map[*DataNode]bool)
		for _, n := range g.AllNodes() {
			inGraph[n] = true
		}
		for _, n := range g.AllNodes() {
			for _, in := range n.Inputs {
				if !inGraph[in] && !IsFlyweight(in) {
					t.Fatalf("%s.%s: node %v has an input outside the graph: %v",
						ref.class, ref.method, n, in)
				}
			}
		}
	}
}

func TestBuildGraphIsDeterministic(t *testing.T) {
	t.Parallel()

	pool := testutils.NewSamplePool()
	m := loopMethod(t, pool)

	g1 := buildGraphFor(t, pool, m)
	g2 := buildGraphFor(t, pool, m)

	n1, n2 := g1.AllNodes(), g2.AllNodes()
	if len(n1) != len(n2) {
		t.Fatalf("node counts differ between builds: %d vs %d", len(n1), len(n2))
	}
	for i := range n1 {
		if n1[i].Label != n2[i].Label || n1[i].Op != n2[i].Op ||
			n1[i].Type != n2[i].Type || len(n1[i].Inputs) != len(n2[i].Inputs) {
			t.Fatalf("node %d differs between builds: %v vs %v", i, n1[i], n2[i])
		}
	}
	if len(g1.MethodParamNodes) != len(g2.MethodParamNodes) ||
		len(g1.MethodReturnNodes) != len(g2.MethodReturnNodes) {
		t.Fatalf("graph boundary differs between builds")
	}
}

func TestInstanceMethodReceiverIsParameterZero(t *testing.T) {
	t.Parallel()

	pool := testutils.NewSamplePool()
	cls, err := pool.Get("java/lang/StringBuilder")
	if err != nil {
		t.Fatalf("class: %v", err)
	}
	m, err := cls.Method("append", "("+testutils.DescString+")"+testutils.DescBuilder)
	if err != nil {
		t.Fatalf("method: %v", err)
	}

	g := buildGraphFor(t, pool, m)
	if len(g.MethodParamNodes) != 2 {
		t.Fatalf("instance method must have receiver plus declared params, got %d", len(g.MethodParamNodes))
	}
	recv := g.MethodParamNodes[0]
	if recv.ParamIndex != 0 || recv.Type != classpool.Ref("java/lang/StringBuilder") {
		t.Fatalf("unexpected receiver node %v", recv)
	}
}
