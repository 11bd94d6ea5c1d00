package session

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/colored"
	"github.com/vlsergey/secan4go/data"
	"github.com/vlsergey/secan4go/rules"
	"github.com/vlsergey/secan4go/testutils"
)

var testTrace = colored.NewTrace("test seed")

func noIntersectionExpected(t *testing.T) func(source, sink colored.TraceItem) {
	return func(source, sink colored.TraceItem) {
		t.Errorf("did not expect an intersection here: %v / %v", source.Describe(), sink.Describe())
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func getMethod(t *testing.T, pool *classpool.ClassPool, class, name, desc string) *classpool.CtBehavior {
	t.Helper()
	cls, err := pool.Get(class)
	if err != nil {
		t.Fatalf("class %s: %v", class, err)
	}
	m, err := cls.Method(name, desc)
	if err != nil {
		t.Fatalf("method %s.%s%s: %v", class, name, desc, err)
	}
	return m
}

// toColoredObjects seeds explicit colors onto the full parameter list
// (receiver included for instance methods), mirroring how the analysis
// harness pre-colors entry points.
func toColoredObjects(method *classpool.CtBehavior, colors []colored.ColorType) []*colored.ColoredObject {
	if colors == nil {
		return nil
	}
	params, _, _ := classpool.ParseMethodDescriptor(method.Descriptor)
	types := params
	if !method.Static {
		types = append([]classpool.Type{classpool.Ref(method.Class.Name)}, params...)
	}
	out := make([]*colored.ColoredObject, len(colors))
	for i, c := range colors {
		if c == 0 {
			continue
		}
		class := "java/lang/Object"
		if i < len(types) {
			if types[i].Kind == classpool.KindRef {
				class = types[i].ClassName
			} else {
				class = types[i].String()
			}
		}
		out[i] = colored.ForRootOnly(class, &colored.PaintedColor{
			Type: c, Confidence: colored.ConfidenceExplicitly, Src: testTrace,
		})
	}
	return out
}

func toColorTypes(colorings []*colored.ColoredObject) []colored.ColorType {
	out := make([]colored.ColorType, len(colorings))
	for i, co := range colorings {
		if co != nil && co.Color() != nil {
			out[i] = co.Color().Type
		}
	}
	return out
}

// analyzeColors runs a full painting session and returns the entry
// method's final colorings with the receiver entry stripped, matching the
// published expectations.
func analyzeColors(t *testing.T, provider *data.Provider, class, name, desc string,
	ins []colored.ColorType, onIntersection func(source, sink colored.TraceItem),
) ([]colored.ColorType, []colored.ColorType) {
	t.Helper()

	pool := testutils.NewSamplePool()
	method := getMethod(t, pool, class, name, desc)

	s := NewPaintingSession(pool, provider, onIntersection, Options{Workers: 2, Logger: discardLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resultIns, resultOuts, err := s.Analyze(ctx, method, toColoredObjects(method, ins), nil)
	if err != nil {
		t.Fatalf("Analyze(%s.%s): %v", class, name, err)
	}

	insTypes := toColorTypes(resultIns)
	if !method.Static && len(insTypes) > 0 {
		insTypes = insTypes[1:]
	}
	return insTypes, toColorTypes(resultOuts)
}

func assertColors(t *testing.T, got, want []colored.ColorType, what string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %v, want %v", what, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s: got %v, want %v", what, got, want)
		}
	}
}

func sourceParamsProvider(t *testing.T, method string, params map[int]string) *data.Provider {
	t.Helper()
	provider := data.NewProvider()
	if err := provider.AddMethodRule(data.MethodRule{
		Class:  testutils.SimpleColoredMethodsClass,
		Method: method,
		Params: params,
	}); err != nil {
		t.Fatalf("registering rules: %v", err)
	}
	return provider
}

func TestAppend(t *testing.T) {
	t.Parallel()

	provider := sourceParamsProvider(t, "append", map[int]string{2: "source", 3: "source"})
	ins, outs := analyzeColors(t, provider,
		testutils.SimpleColoredMethodsClass, "append",
		"("+testutils.DescBuilder+testutils.DescString+testutils.DescString+")V",
		[]colored.ColorType{0, 0, 0, 0}, noIntersectionExpected(t))

	assertColors(t, ins, []colored.ColorType{0, colored.SourceData, colored.SourceData}, "append ins")
	assertColors(t, outs, []colored.ColorType{}, "append outs")
}

func TestConcatenation(t *testing.T) {
	t.Parallel()

	provider := sourceParamsProvider(t, "concatenation", map[int]string{2: "source", 3: "source"})
	ins, outs := analyzeColors(t, provider,
		testutils.SimpleColoredMethodsClass, "concatenation",
		"("+testutils.DescObject+testutils.DescString+testutils.DescString+")"+testutils.DescString,
		nil, noIntersectionExpected(t))

	assertColors(t, ins, []colored.ColorType{0, colored.SourceData, colored.SourceData}, "concatenation ins")
	assertColors(t, outs, []colored.ColorType{colored.SourceData}, "concatenation outs")
}

func TestPrepareStatement(t *testing.T) {
	t.Parallel()

	provider := sourceParamsProvider(t, "prepareStatement", map[int]string{3: "source"})
	if err := provider.AddAll(rules.SQLInjection()); err != nil {
		t.Fatalf("registering sink rules: %v", err)
	}

	var intersections atomic.Int32
	ins, outs := analyzeColors(t, provider,
		testutils.SimpleColoredMethodsClass, "prepareStatement",
		"("+testutils.DescConnection+testutils.DescString+testutils.DescString+")"+testutils.DescStatement,
		nil, func(source, sink colored.TraceItem) {
			intersections.Add(1)
			if source == nil || sink == nil {
				t.Errorf("intersection with missing trace")
			}
		})

	assertColors(t, ins, []colored.ColorType{0, 0, colored.SourceData}, "prepareStatement ins")
	assertColors(t, outs, []colored.ColorType{0}, "prepareStatement outs")
	if got := intersections.Load(); got != 1 {
		t.Fatalf("expected exactly one intersection event, got %d", got)
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	ins, outs := analyzeColors(t, data.NewProvider(),
		testutils.IdentityClass, "identity", "("+testutils.DescObject+")"+testutils.DescObject,
		[]colored.ColorType{colored.SourceData}, noIntersectionExpected(t))
	assertColors(t, ins, []colored.ColorType{colored.SourceData}, "identity ins")
	assertColors(t, outs, []colored.ColorType{colored.SourceData}, "identity outs")

	ins, outs = analyzeColors(t, data.NewProvider(),
		testutils.IdentityClass, "identity", "("+testutils.DescObject+")"+testutils.DescObject,
		[]colored.ColorType{0}, noIntersectionExpected(t))
	assertColors(t, ins, []colored.ColorType{0}, "uncolored identity ins")
	assertColors(t, outs, []colored.ColorType{0}, "uncolored identity outs")
}

func TestBranchMergeTakesLUB(t *testing.T) {
	t.Parallel()

	ins, outs := analyzeColors(t, data.NewProvider(),
		testutils.BranchMergeClass, "choose",
		"(I"+testutils.DescObject+testutils.DescObject+")"+testutils.DescObject,
		[]colored.ColorType{0, colored.SourceData, 0}, noIntersectionExpected(t))

	assertColors(t, ins, []colored.ColorType{0, colored.SourceData, 0}, "choose ins")
	assertColors(t, outs, []colored.ColorType{colored.SourceData}, "choose outs")
}

func TestMutualRecursionTerminates(t *testing.T) {
	t.Parallel()

	ins, outs := analyzeColors(t, data.NewProvider(),
		testutils.RecursiveClass, "f", "("+testutils.DescObject+")"+testutils.DescObject,
		[]colored.ColorType{colored.SourceData}, noIntersectionExpected(t))

	assertColors(t, ins, []colored.ColorType{colored.SourceData}, "recursive ins")
	if len(outs) != 1 {
		t.Fatalf("recursive f must report one result slot")
	}
}

func TestNoRulesMeansAllNull(t *testing.T) {
	t.Parallel()

	ins, outs := analyzeColors(t, data.NewProvider(),
		testutils.SimpleColoredMethodsClass, "concatenation",
		"("+testutils.DescObject+testutils.DescString+testutils.DescString+")"+testutils.DescString,
		nil, noIntersectionExpected(t))

	assertColors(t, ins, []colored.ColorType{0, 0, 0}, "colorless ins")
	assertColors(t, outs, []colored.ColorType{0}, "colorless outs")
}

func TestAnalyzeIsIdempotentAcrossSessions(t *testing.T) {
	t.Parallel()

	run := func() ([]colored.ColorType, []colored.ColorType) {
		provider := sourceParamsProvider(t, "concatenation", map[int]string{2: "source", 3: "source"})
		return analyzeColors(t, provider,
			testutils.SimpleColoredMethodsClass, "concatenation",
			"("+testutils.DescObject+testutils.DescString+testutils.DescString+")"+testutils.DescString,
			nil, noIntersectionExpected(t))
	}

	ins1, outs1 := run()
	ins2, outs2 := run()
	assertColors(t, ins2, ins1, "repeated ins")
	assertColors(t, outs2, outs1, "repeated outs")
}

func TestEmptyMethodAnalyzesToNil(t *testing.T) {
	t.Parallel()

	pool := testutils.NewSamplePool()
	method := getMethod(t, pool, "java/sql/Connection", "prepareStatement",
		"("+testutils.DescString+")"+testutils.DescStatement)

	s := NewPaintingSession(pool, data.NewProvider(), noIntersectionExpected(t),
		Options{Workers: 1, Logger: discardLogger()})
	ins, outs, err := s.Analyze(context.Background(), method, nil, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ins != nil || outs != nil {
		t.Fatalf("empty method must analyze to (nil, nil), got %v %v", ins, outs)
	}
}

func TestAnalyzeHonorsCancellation(t *testing.T) {
	t.Parallel()

	pool := testutils.NewSamplePool()
	method := getMethod(t, pool, testutils.RecursiveClass, "f",
		"("+testutils.DescObject+")"+testutils.DescObject)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewPaintingSession(pool, data.NewProvider(), noIntersectionExpected(t),
		Options{Workers: 1, Logger: discardLogger()})
	if _, _, err := s.Analyze(ctx, method, nil, nil); err == nil {
		t.Fatalf("cancelled analysis must report the context error")
	}
}

func TestTaskKeySeparatesPreColorings(t *testing.T) {
	t.Parallel()

	pool := testutils.NewSamplePool()
	method := getMethod(t, pool, testutils.IdentityClass, "identity",
		"("+testutils.DescObject+")"+testutils.DescObject)

	seeded := toColoredObjects(method, []colored.ColorType{colored.SourceData})
	k1 := newTaskKey(method, seeded, nil)
	k2 := newTaskKey(method, nil, nil)
	if k1 == k2 {
		t.Fatalf("pre-colored and plain tasks must not share a key")
	}
	if k2 != newTaskKey(method, nil, nil) {
		t.Fatalf("identical tasks must share a key")
	}
}
