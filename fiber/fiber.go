// Package fiber implements cooperative fiber scheduling: N user fibers
// multiplexed onto K scheduler operations running on the kernel's
// dispatcher, plus a message center routing messages to fibers by id.
//
// A fiber's "stack-switch" context is rendered as one goroutine per fiber
// plus a pair of unbuffered handoff channels (resume, yield) — the
// closest Go-idiomatic equivalent of a privately owned, lazily allocated
// stack that only ever progresses in response to an explicit
// yield/sleep/exit call from its owner.
package fiber

import (
	"runtime"
	"sync/atomic"
)

// FiberState is a fiber's position in its lifecycle.
type FiberState int

const (
	FiberNew FiberState = iota
	FiberRunning
	FiberSleeping
	FiberExited
	FiberDead
)

func (s FiberState) String() string {
	switch s {
	case FiberNew:
		return "new"
	case FiberRunning:
		return "running"
	case FiberSleeping:
		return "sleeping"
	case FiberExited:
		return "exited"
	case FiberDead:
		return "dead"
	default:
		return "unknown"
	}
}

// FiberId uniquely identifies a fiber within a Scheduler's lifetime. Ids
// of reaped fibers return to a free list but are never aliased to a live
// fiber while it's alive.
type FiberId uint64

// FiberFunc is the body a fiber runs. It receives the Fiber handle so it
// can call Yield, Sleep, and Exit on itself.
type FiberFunc func(f *Fiber)

// Fiber is a cooperative task: a unique id, an advisory priority (ignored
// by scheduling order — the ready queue is strict FIFO per spec), a
// lifecycle state, and a goroutine/channel pair standing in for a private
// stack and saved machine context.
type Fiber struct {
	id       FiberId
	priority int
	fn       FiberFunc

	state  atomic.Int32 // FiberState
	exited atomic.Bool

	resume chan struct{} // scheduler -> fiber: "run until your next suspension"
	yield  chan yieldKind
	center *MessageCenter
}

type yieldKind int

const (
	yieldRunning yieldKind = iota
	yieldSleeping
	yieldExited
)

func newFiber(id FiberId, priority int, fn FiberFunc) *Fiber {
	f := &Fiber{
		id:       id,
		priority: priority,
		fn:       fn,
		resume:   make(chan struct{}),
		yield:    make(chan yieldKind),
	}
	f.state.Store(int32(FiberNew))
	return f
}

// Id returns the fiber's identifier.
func (f *Fiber) Id() FiberId { return f.id }

// State returns the fiber's current lifecycle state.
func (f *Fiber) State() FiberState { return FiberState(f.state.Load()) }

// Priority returns the fiber's advisory priority.
func (f *Fiber) Priority() int { return f.priority }

// Yield cooperatively suspends the calling fiber, returning control to the
// scheduler operation that is running it; the fiber is re-queued at the
// ready queue's tail.
func (f *Fiber) Yield() {
	f.state.Store(int32(FiberRunning))
	f.yield <- yieldRunning
	<-f.resume
}

// Sleep cooperatively suspends the calling fiber until a future Wakeup.
// Unlike Yield, a sleeping fiber is not re-queued; it must be woken
// explicitly.
func (f *Fiber) Sleep() {
	f.state.Store(int32(FiberSleeping))
	f.yield <- yieldSleeping
	<-f.resume
}

// Exit ends the fiber permanently. It must be called from the fiber's own
// body: it hands the fiber back to the scheduler as Exited and then ends
// the fiber's goroutine, so no code after it in the body runs. A fiber
// body may call it directly to exit early; the scheduler also calls it
// once fn returns. Exit is idempotent — only the first call has effect,
// any later call is a no-op.
func (f *Fiber) Exit() {
	if !f.exited.CompareAndSwap(false, true) {
		return
	}
	f.state.Store(int32(FiberExited))
	f.yield <- yieldExited
	runtime.Goexit()
}

// start launches the fiber's goroutine. It blocks on the initial resume
// signal before running fn, so the scheduler controls exactly when the
// fiber's first instruction executes.
func (f *Fiber) start() {
	go func() {
		<-f.resume
		f.state.Store(int32(FiberRunning))
		f.fn(f)
		f.Exit()
	}()
}
