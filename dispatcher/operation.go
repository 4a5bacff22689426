package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/monarchkernel/monarch/state"
)

// GuardResult is the admission verdict a Guard returns for an Operation.
type GuardResult int

const (
	// Execute admits the operation onto the pool immediately.
	Execute GuardResult = iota
	// Wait leaves the operation queued for re-evaluation on the next pass.
	Wait
	// Cancel permanently rejects the operation.
	Cancel
)

// Guard decides whether an Operation may run, given a point-in-time view
// of State. Guard evaluation must be cheap: it runs under the dispatcher's
// coordination lock.
type Guard interface {
	CanExecute(op *Operation, s *state.State) GuardResult
}

// GuardFunc adapts a function to a Guard.
type GuardFunc func(op *Operation, s *state.State) GuardResult

// CanExecute calls f.
func (f GuardFunc) CanExecute(op *Operation, s *state.State) GuardResult {
	return f(op, s)
}

// Mutator applies State changes around an Operation's execution. Pre runs
// after admission, before the op is handed to the pool; Post runs after
// the op finishes or is canceled.
type Mutator interface {
	Pre(s *state.State, op *Operation)
	Post(s *state.State, op *Operation)
}

// Runnable is the unit of work an Operation carries.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunnableFunc adapts a function to a Runnable.
type RunnableFunc func(ctx context.Context) error

// Run calls f.
func (f RunnableFunc) Run(ctx context.Context) error { return f(ctx) }

// UserData is a reference-counted bag of caller-supplied values attached
// to an Operation. Reference counting lets callers share ownership of an
// Operation across goroutines without a separate lifetime protocol.
type UserData struct {
	mu    sync.Mutex
	refs  int32
	items map[string]any
}

func newUserData() *UserData {
	return &UserData{refs: 1, items: make(map[string]any)}
}

// Get returns the value stored under key.
func (u *UserData) Get(key string) (any, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, ok := u.items[key]
	return v, ok
}

// Set stores value under key.
func (u *UserData) Set(key string, value any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items[key] = value
}

// Retain increments the reference count and returns u for chaining.
func (u *UserData) Retain() *UserData {
	atomic.AddInt32(&u.refs, 1)
	return u
}

// Release decrements the reference count. It reports whether this was the
// final reference.
func (u *UserData) Release() bool {
	return atomic.AddInt32(&u.refs, -1) == 0
}

// operation flag bits, stored atomically as a bitset so flag reads never
// race with the dispatch pass that sets them.
const (
	flagStarted = 1 << iota
	flagFinished
	flagCanceled
	flagInterrupted
	flagStopped
)

// Operation is an immutable record of work plus a mutable, atomically
// updated flag set observing its progress. Construct with NewOperation;
// operations transition New -> Waiting -> Running -> (Finished | Canceled)
// and flags are monotonic: once Finished or Canceled, no further
// transitions occur.
type Operation struct {
	id       string
	runnable Runnable
	guard    Guard
	mutator  Mutator
	priority int
	userData *UserData

	flags   atomic.Uint32
	err     atomic.Value // error
	done    chan struct{}
	doneSet atomic.Bool
}

// OperationOption configures an Operation at construction.
type OperationOption func(*Operation)

// WithGuard attaches a precondition guard.
func WithGuard(g Guard) OperationOption {
	return func(op *Operation) { op.guard = g }
}

// WithMutator attaches pre/post state mutation callbacks.
func WithMutator(m Mutator) OperationOption {
	return func(op *Operation) { op.mutator = m }
}

// WithPriority sets the operation's scheduling priority. Within a single
// dispatch pass, executable operations admit in descending priority
// order; operations sharing a priority value admit in FIFO queue arrival
// order (see Dispatcher.dispatchPassLocked). Priority never reorders
// operations across separate passes — it only governs which of the
// operations that become executable in the same pass are admitted first
// when pool capacity is scarce.
func WithPriority(p int) OperationOption {
	return func(op *Operation) { op.priority = p }
}

// NewOperation constructs a new, unqueued Operation.
func NewOperation(run Runnable, opts ...OperationOption) *Operation {
	op := &Operation{
		id:       newOperationID(),
		runnable: run,
		userData: newUserData(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(op)
	}
	return op
}

func newOperationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ID returns the operation's UUID, assigned at construction and stable
// for its lifetime. Useful for log correlation across guard evaluation,
// execution, and completion.
func (op *Operation) ID() string { return op.id }

// Priority returns the operation's scheduling priority, as set by
// WithPriority (zero if unset).
func (op *Operation) Priority() int { return op.priority }

// UserData returns the operation's reference-counted data bag.
func (op *Operation) UserData() *UserData { return op.userData }

// Interrupt cooperatively requests cancellation. The runnable must poll
// Interrupted (or block on a primitive that does) to observe it; Interrupt
// never unwinds a running goroutine's stack.
func (op *Operation) Interrupt() {
	op.setFlag(flagInterrupted)
}

// Started reports whether the operation has been handed to the pool.
func (op *Operation) Started() bool { return op.hasFlag(flagStarted) }

// Finished reports whether the operation ran to completion (successfully
// or with an error).
func (op *Operation) Finished() bool { return op.hasFlag(flagFinished) }

// Canceled reports whether a guard rejected the operation before it ran.
func (op *Operation) Canceled() bool { return op.hasFlag(flagCanceled) }

// Interrupted reports whether Interrupt was called.
func (op *Operation) Interrupted() bool { return op.hasFlag(flagInterrupted) }

// Stopped reports whether the operation was discarded by Terminate.
func (op *Operation) Stopped() bool { return op.hasFlag(flagStopped) }

// Err returns the error the runnable returned, if any, or the error
// recorded when the operation's guard canceled it.
func (op *Operation) Err() error {
	if e, ok := op.err.Load().(error); ok {
		return e
	}
	return nil
}

func (op *Operation) setFlag(bit uint32) {
	for {
		old := op.flags.Load()
		if old&bit != 0 {
			return
		}
		if op.flags.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

func (op *Operation) hasFlag(bit uint32) bool {
	return op.flags.Load()&bit != 0
}

// markDone closes the done channel exactly once, waking any Waiter.
func (op *Operation) markDone() {
	if op.doneSet.CompareAndSwap(false, true) {
		close(op.done)
	}
}
