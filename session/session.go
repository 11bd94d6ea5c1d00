package session

import (
	"context"
	"io"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/colored"
	"github.com/vlsergey/secan4go/colorless"
)

// maxTaskExecutions caps how often one task may re-run. Colorings are
// monotone over a finite lattice, so the cap is a safety valve against a
// non-monotone brush, not part of normal operation.
const maxTaskExecutions = 256

// Options tunes a painting session.
type Options struct {
	// Workers is the number of concurrent painting workers; defaults to
	// the number of CPUs.
	Workers int
	// Logger receives diagnostics; defaults to a discarding logger.
	Logger *log.Logger
}

// PaintingSession drives the interprocedural analysis: a worklist of
// painting tasks, executed in parallel, with dependency tracking between
// callers and callees and re-coloring when a callee's result changes.
type PaintingSession struct {
	pool           *classpool.ClassPool
	colorer        *colored.GraphColorer
	onIntersection func(source, sink colored.TraceItem)
	logger         *log.Logger
	workers        int

	mu    sync.Mutex
	tasks map[TaskKey]*PaintingTask

	heapVersion atomic.Uint64
	work        *worklist
}

// NewPaintingSession wires a session over a class pool and rule provider.
// onSourceSinkIntersection fires once per detected source-to-sink flow;
// callers are expected to deduplicate.
func NewPaintingSession(pool *classpool.ClassPool, provider colored.RuleProvider,
	onSourceSinkIntersection func(source, sink colored.TraceItem), opts Options,
) *PaintingSession {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &PaintingSession{
		pool:           pool,
		colorer:        colored.NewGraphColorer(pool, provider, logger),
		onIntersection: onSourceSinkIntersection,
		logger:         logger,
		workers:        workers,
		tasks:          make(map[TaskKey]*PaintingTask),
	}
}

// Analyze paints the entry method with optional parameter/result
// pre-colorings and runs the worklist until it drains. It returns the
// final colorings of the entry method's parameters and results, or
// (nil, nil) for a method without a body. Analyze is not reentrant;
// run one analysis per session at a time.
func (s *PaintingSession) Analyze(ctx context.Context, method *classpool.CtBehavior,
	ins, outs []*colored.ColoredObject,
) ([]*colored.ColoredObject, []*colored.ColoredObject, error) {
	entry := s.taskFor(method, ins, outs)

	s.work = newWorklist()
	s.queue(entry, reasonInitial)

	stopWatch := context.AfterFunc(ctx, s.work.close)
	defer stopWatch()

	var g errgroup.Group
	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				task := s.work.take()
				if task == nil {
					return nil
				}
				s.executeTask(task)
				s.work.done()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.logger.Printf("all painting tasks completed")

	result := entry.Result()
	if result == nil {
		return nil, nil, nil
	}
	return result.ResultIns, result.ResultOuts, nil
}

// taskFor is the atomic compute-if-absent over the task map.
func (s *PaintingSession) taskFor(method *classpool.CtBehavior, ins, outs []*colored.ColoredObject) *PaintingTask {
	key := newTaskKey(method, ins, outs)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[key]; ok {
		return t
	}
	t := newPaintingTask(method, ins, outs)
	s.tasks[key] = t
	return t
}

// queue appends a task unless it already has a result fresh for the
// current heap version; dependency updates always queue.
func (s *PaintingSession) queue(t *PaintingTask, reason queueReason) {
	if reason != reasonDependencyUpdate {
		if r := t.Result(); r != nil && r.HeapVersion == s.heapVersion.Load() {
			return
		}
	}
	if t.markQueued() {
		s.work.enqueue(t)
	}
}

// executeTask (re)colors one method. The dependency set collected during
// this execution is passed down explicitly through the resolve closure
// instead of thread-local state.
func (s *PaintingSession) executeTask(task *PaintingTask) {
	defer task.finishExecution()
	if task.beginExecution() > maxTaskExecutions {
		s.logger.Printf("WARN task %s exceeded execution cap, leaving last result in place", task.method.LongName())
		return
	}

	usedHeapVersion := s.heapVersion.Load()
	newDeps := make(map[*PaintingTask]struct{})
	resolve := func(inv *colorless.Invocation, ins, outs []*colored.ColoredObject) map[*colorless.DataNode]*colored.ColoredObject {
		return s.resolveCallee(inv, ins, outs, task, newDeps)
	}

	resultIns, resultOuts, err := s.colorer.Color(task.method, task.paramIns, task.paramOuts, resolve, s.onIntersection)
	if err != nil {
		// failed tasks are abandoned, never requeued
		s.logger.Printf("ERROR unable to execute coloring task for %s: %v", task.method.LongName(), err)
		return
	}

	oldDeps := task.swapDependencies(newDeps)
	for dep := range newDeps {
		if _, had := oldDeps[dep]; !had {
			dep.addDependant(task)
		}
	}
	for dep := range oldDeps {
		if _, has := newDeps[dep]; !has {
			dep.removeDependant(task)
		}
	}
	for dep := range newDeps {
		s.queue(dep, reasonNewDependency)
	}

	if resultIns == nil && resultOuts == nil {
		s.logger.Printf("no results for deeper travel to %s", task.method.LongName())
		return
	}

	prev := task.Result()
	if prev != nil && colored.EqualSlices(prev.ResultIns, resultIns) &&
		colored.EqualSlices(prev.ResultOuts, resultOuts) &&
		prev.HeapVersion >= usedHeapVersion {
		return
	}

	task.setResult(&Result{ResultIns: resultIns, ResultOuts: resultOuts, HeapVersion: usedHeapVersion})
	if colored.HasAnyColor(resultIns) || colored.HasAnyColor(resultOuts) {
		for _, dependant := range task.dependantsSnapshot() {
			s.queue(dependant, reasonDependencyUpdate)
		}
	}
}

// resolveCallee is the session half of InvocationsBrush: look up (or
// create) the callee task per demultiplexed receiver class, record it as a
// dependency of the current task, and fold any cached callee result into a
// node-to-coloring map for the call site. Resolution failures are analysis
// gaps, not errors: the call is elided with an empty map.
func (s *PaintingSession) resolveCallee(inv *colorless.Invocation,
	ins, outs []*colored.ColoredObject,
	current *PaintingTask, newDeps map[*PaintingTask]struct{},
) map[*colorless.DataNode]*colored.ColoredObject {
	base, err := s.resolveMethod(inv.ClassName, inv.MethodName, inv.Descriptor)
	if err != nil {
		s.logger.Printf("WARN unable to go deeper from %s: %v", current.method.LongName(), err)
		return nil
	}
	if base.IsEmpty() {
		return nil
	}

	updatedIns := make([]*colored.ColoredObject, len(ins))
	updatedOuts := make([]*colored.ColoredObject, len(outs))

	colored.Demultiplex(ins, func(singleClassIns []*colored.ColoredObject) {
		callee := s.refineReceiver(inv, singleClassIns, base)
		if callee.IsEmpty() {
			return
		}
		sub := s.taskFor(callee, nil, nil)
		newDeps[sub] = struct{}{}

		cached := sub.Result()
		if cached == nil {
			return
		}
		for i := range updatedIns {
			if i < len(cached.ResultIns) {
				updatedIns[i] = colored.MergeMostDangerous(updatedIns[i], cached.ResultIns[i], s.onIntersection)
			}
		}
		for i := range updatedOuts {
			if i < len(cached.ResultOuts) {
				updatedOuts[i] = colored.MergeMostDangerous(updatedOuts[i], cached.ResultOuts[i], s.onIntersection)
			}
		}
	})

	result := make(map[*colorless.DataNode]*colored.ColoredObject, len(ins)+len(outs))
	zip := func(nodes []*colorless.DataNode, colorings []*colored.ColoredObject) {
		for i, node := range nodes {
			if i < len(colorings) && colorings[i] != nil {
				result[node] = colorings[i]
			}
		}
	}
	zip(inv.Parameters, updatedIns)
	zip(inv.Results, updatedOuts)
	return result
}

// refineReceiver narrows a virtual call to the method of the single
// observed receiver class when that class is a proper subtype of the
// declared one.
func (s *PaintingSession) refineReceiver(inv *colorless.Invocation,
	singleClassIns []*colored.ColoredObject, base *classpool.CtBehavior,
) *classpool.CtBehavior {
	if inv.StaticCall || inv.MethodName == classpool.ConstructorName || len(singleClassIns) == 0 {
		return base
	}
	classes := singleClassIns[0].SeenClasses()
	if len(classes) != 1 || classes[0] == inv.ClassName {
		return base
	}
	refined, err := s.pool.Get(classes[0])
	if err != nil {
		return base
	}
	declared, err := s.pool.Get(inv.ClassName)
	if err != nil || !refined.SubtypeOf(declared) {
		return base
	}
	if m, err := refined.Method(inv.MethodName, inv.Descriptor); err == nil {
		return m
	}
	return base
}

func (s *PaintingSession) resolveMethod(className, methodName, descriptor string) (*classpool.CtBehavior, error) {
	invClass, err := s.pool.Get(className)
	if err != nil {
		return nil, err
	}
	if methodName == classpool.ConstructorName {
		return invClass.Constructor(descriptor)
	}
	return invClass.Method(methodName, descriptor)
}

// HeapVersion exposes the monotone heap counter. The core never increments
// it yet; it is reserved for a future heap model.
func (s *PaintingSession) HeapVersion() uint64 {
	return s.heapVersion.Load()
}

// BumpHeapVersion advances the heap counter, invalidating result freshness.
func (s *PaintingSession) BumpHeapVersion() uint64 {
	return s.heapVersion.Add(1)
}
