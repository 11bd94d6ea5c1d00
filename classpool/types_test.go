package classpool

import "testing"

func TestTypeSize(t *testing.T) {
	t.Parallel()

	if Long.Size() != 2 || Double.Size() != 2 {
		t.Fatalf("long and double must occupy two slots")
	}
	if Int.Size() != 1 || Float.Size() != 1 || Ref("java/lang/String").Size() != 1 {
		t.Fatalf("category-1 types must occupy one slot")
	}
}

func TestTypeMergePrimitives(t *testing.T) {
	t.Parallel()

	if got := Int.Merge(Int, nil); got != Int {
		t.Fatalf("int LUB int = %v", got)
	}
	if got := Int.Merge(Long, nil); got != Top {
		t.Fatalf("int LUB long = %v, want top", got)
	}
	if got := Top.Merge(Int, nil); got != Top {
		t.Fatalf("top LUB int = %v, want top", got)
	}
}

func TestTypeMergeReferences(t *testing.T) {
	t.Parallel()

	pool := NewClassPool()
	NewClassBuilder(pool, "demo/Base", "")
	NewClassBuilder(pool, "demo/A", "demo/Base")
	NewClassBuilder(pool, "demo/B", "demo/Base")
	NewClassBuilder(pool, "demo/C", "")

	if got := Ref("demo/A").Merge(Ref("demo/B"), pool); got != Ref("demo/Base") {
		t.Fatalf("A LUB B = %v, want demo/Base", got)
	}
	if got := Ref("demo/A").Merge(Ref("demo/C"), pool); got != Ref(ObjectClassName) {
		t.Fatalf("A LUB C = %v, want java/lang/Object", got)
	}
	if got := Null.Merge(Ref("demo/A"), pool); got != Ref("demo/A") {
		t.Fatalf("null LUB A = %v, want demo/A", got)
	}
}

func TestTypeAssignableFrom(t *testing.T) {
	t.Parallel()

	pool := NewClassPool()
	NewClassBuilder(pool, "demo/Base", "")
	NewClassBuilder(pool, "demo/Sub", "demo/Base")

	if !Ref("demo/Base").AssignableFrom(Ref("demo/Sub"), pool) {
		t.Fatalf("subclass must be assignable to its base")
	}
	if Ref("demo/Sub").AssignableFrom(Ref("demo/Base"), pool) {
		t.Fatalf("base must not be assignable to its subclass")
	}
	if !Ref("demo/Base").AssignableFrom(Null, pool) {
		t.Fatalf("null must be assignable to any reference")
	}
	if !Ref(ObjectClassName).AssignableFrom(Ref("demo/Sub"), pool) {
		t.Fatalf("everything is assignable to java/lang/Object")
	}
}

func TestClassPoolResolution(t *testing.T) {
	t.Parallel()

	pool := NewClassPool()
	if _, err := pool.Get("no/Such"); err == nil {
		t.Fatalf("expected ClassNotFoundError")
	}

	b := NewClassBuilder(pool, "demo/WithMembers", "")
	b.Field("name", "Ljava/lang/String;", false)
	b.AbstractMethod("run", "()V", false)

	cls, err := pool.Get("demo/WithMembers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cls.Field("name", "Ljava/lang/String;"); err != nil {
		t.Fatalf("field lookup failed: %v", err)
	}
	if _, err := cls.Method("run", "()V"); err != nil {
		t.Fatalf("method lookup failed: %v", err)
	}
	if _, err := cls.Method("run", "(I)V"); err == nil {
		t.Fatalf("expected MemberNotFoundError for wrong descriptor")
	}
}
