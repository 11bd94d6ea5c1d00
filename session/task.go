// Package session runs the interprocedural painting worklist: one task per
// analyzed method, discovering callees as dependencies while coloring and
// re-queueing dependants when a result changes.
package session

import (
	"sync"

	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/colored"
)

// TaskKey identifies a painting task: the method reference plus canonical
// summaries of any pre-colorings. Sub-call tasks always carry empty
// pre-colorings, so they share state per method.
type TaskKey struct {
	Class       string
	Method      string
	Descriptor  string
	InsSummary  string
	OutsSummary string
}

func summarize(colorings []*colored.ColoredObject) string {
	out := ""
	for _, co := range colorings {
		out += co.Summary() + "|"
	}
	return out
}

func newTaskKey(method *classpool.CtBehavior, ins, outs []*colored.ColoredObject) TaskKey {
	return TaskKey{
		Class:       method.Class.Name,
		Method:      method.Name,
		Descriptor:  method.Descriptor,
		InsSummary:  summarize(ins),
		OutsSummary: summarize(outs),
	}
}

// Result is one computed coloring of a task's method, stamped with the heap
// version it was computed at. Results are immutable once stored.
type Result struct {
	ResultIns   []*colored.ColoredObject
	ResultOuts  []*colored.ColoredObject
	HeapVersion uint64
}

type taskState uint8

const (
	taskNew taskState = iota
	taskQueued
	taskRunning
	taskIdle
)

// PaintingTask is one unit of interprocedural work. Created on first
// demand, updated on each execution, never destroyed within a session.
// All mutable fields are guarded by the task's own lock. The worker
// executing the task writes its result and dependencies; callers' workers
// also update its dependant set and queue state.
type PaintingTask struct {
	key       TaskKey
	method    *classpool.CtBehavior
	paramIns  []*colored.ColoredObject
	paramOuts []*colored.ColoredObject

	mu           sync.Mutex
	state        taskState
	result       *Result
	dependencies map[*PaintingTask]struct{}
	dependants   map[*PaintingTask]struct{}
	executions   int
}

func newPaintingTask(method *classpool.CtBehavior, ins, outs []*colored.ColoredObject) *PaintingTask {
	return &PaintingTask{
		key:          newTaskKey(method, ins, outs),
		method:       method,
		paramIns:     ins,
		paramOuts:    outs,
		dependencies: make(map[*PaintingTask]struct{}),
		dependants:   make(map[*PaintingTask]struct{}),
	}
}

// Key returns the task's identity.
func (t *PaintingTask) Key() TaskKey { return t.key }

// Method returns the analyzed method.
func (t *PaintingTask) Method() *classpool.CtBehavior { return t.method }

// Result returns the latest stored result, or nil before the first
// execution completes.
func (t *PaintingTask) Result() *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *PaintingTask) setResult(r *Result) {
	t.mu.Lock()
	t.result = r
	t.mu.Unlock()
}

// swapDependencies installs the dependency set collected by the latest
// execution and returns the previous one, so the caller can diff them.
func (t *PaintingTask) swapDependencies(deps map[*PaintingTask]struct{}) map[*PaintingTask]struct{} {
	t.mu.Lock()
	old := t.dependencies
	t.dependencies = deps
	t.mu.Unlock()
	return old
}

func (t *PaintingTask) addDependant(d *PaintingTask) {
	t.mu.Lock()
	t.dependants[d] = struct{}{}
	t.mu.Unlock()
}

func (t *PaintingTask) removeDependant(d *PaintingTask) {
	t.mu.Lock()
	delete(t.dependants, d)
	t.mu.Unlock()
}

// dependantsSnapshot returns the current dependants for re-queueing.
func (t *PaintingTask) dependantsSnapshot() []*PaintingTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*PaintingTask, 0, len(t.dependants))
	for d := range t.dependants {
		out = append(out, d)
	}
	return out
}

// markQueued transitions NEW, RUNNING or IDLE to QUEUED; a task already
// queued is not enqueued twice, which keeps the worklist short without
// changing semantics (execution is idempotent-to-fixpoint anyway). A running
// task can be queued again, so an update that arrives mid-execution re-runs it.
func (t *PaintingTask) markQueued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == taskQueued {
		return false
	}
	t.state = taskQueued
	return true
}

// beginExecution transitions to RUNNING and counts the execution against
// the per-task cap.
func (t *PaintingTask) beginExecution() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = taskRunning
	t.executions++
	return t.executions
}

// finishExecution transitions RUNNING to IDLE.
func (t *PaintingTask) finishExecution() {
	t.mu.Lock()
	t.state = taskIdle
	t.mu.Unlock()
}
