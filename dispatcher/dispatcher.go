package dispatcher

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/monarchkernel/monarch/state"
)

// Logger is the minimal logging surface the dispatcher depends on, so this
// package never imports the root monarch package directly.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// ErrTerminated is an error a runnable may return when it stops because
// Terminate interrupted it. The dispatcher never returns it itself: Queue
// has no error result, and an operation queued once Terminate has begun is
// marked Stopped and completed without running.
var ErrTerminated = errors.New("dispatcher: terminated")

// Dispatcher is a guarded operation dispatcher: a thread pool that admits
// queued operations once their guard allows, runs them, and applies their
// state mutations. Construct with New.
//
// jobsPerThread bounds how many operations each pool goroutine may run
// concurrently; admission into the pool backpressures against this bound
// rather than growing goroutines unboundedly, following the
// workerCount+buffered-jobQueue shape the example scheduler in this
// repository's lineage uses.
type Dispatcher struct {
	state *state.State
	log   Logger

	poolSize      int
	jobsPerThread int

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*Operation
	running  map[*Operation]context.CancelFunc
	inFlight int
	stopping bool
	stopped  bool

	wg sync.WaitGroup
}

// New returns a Dispatcher with the given pool size and per-thread job
// bound. poolSize and jobsPerThread are both clamped to at least 1. The
// Dispatcher owns the State its guards evaluate against; Kernel.New wires
// this same State into the Kernel it constructs via State().
func New(poolSize, jobsPerThread int, logger Logger) *Dispatcher {
	if poolSize < 1 {
		poolSize = 1
	}
	if jobsPerThread < 1 {
		jobsPerThread = 1
	}
	d := &Dispatcher{
		state:         state.New(),
		log:           logger,
		poolSize:      poolSize,
		jobsPerThread: jobsPerThread,
		running:       make(map[*Operation]context.CancelFunc),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// State returns the State this Dispatcher's guards evaluate against.
func (d *Dispatcher) State() *state.State { return d.state }

// Queue inserts op into the dispatcher and returns immediately. Dispatch
// runs asynchronously as pool capacity and the operation's guard allow.
func (d *Dispatcher) Queue(op *Operation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopping || d.stopped {
		op.setFlag(flagStopped)
		op.markDone()
		return
	}
	d.queue = append(d.queue, op)
	d.cond.Broadcast()
	go d.dispatchLoop()
}

// Dequeue best-effort removes op if it has not yet started. It reports
// whether op was found and canceled.
func (d *Dispatcher) Dequeue(op *Operation) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, queued := range d.queue {
		if queued == op {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			op.setFlag(flagCanceled)
			if op.mutator != nil {
				op.mutator.Post(d.state, op)
			}
			op.markDone()
			d.cond.Broadcast()
			return true
		}
	}
	return false
}

// Wait blocks until op reaches a terminal state (Finished, Canceled, or
// Stopped), or ctx is done.
func Wait(ctx context.Context, op *Operation) error {
	select {
	case <-op.done:
		return op.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate interrupts all running operations and empties the queue,
// blocking until every operation has reached a terminal state. Every
// operation still in flight has Interrupt called on it and its per-op
// context canceled, so a runnable that polls Interrupted or that honors
// ctx cancellation unblocks rather than running until Terminate's own ctx
// expires.
func (d *Dispatcher) Terminate(ctx context.Context) error {
	d.mu.Lock()
	d.stopping = true
	for _, op := range d.queue {
		op.setFlag(flagStopped)
		op.markDone()
	}
	d.queue = nil
	for op, cancel := range d.running {
		op.Interrupt()
		cancel()
	}
	d.cond.Broadcast()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return nil
}

// dispatchLoop runs dispatch passes until the queue is drained of
// executable work or the dispatcher stops. Multiple goroutines may invoke
// this concurrently (one per Queue call); the coordination lock serializes
// their passes so at most one pass mutates the queue at a time.
func (d *Dispatcher) dispatchLoop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if d.stopping {
			return
		}
		progressed := d.dispatchPassLocked()
		if !progressed {
			return
		}
	}
}

// dispatchPassLocked runs one dispatch pass under d.mu: it evaluates every
// queued operation's guard in descending priority order (FIFO arrival
// order within equal priority), admits the first Execute-eligible ones in
// that order up to remaining pool capacity, and cancels any
// whose guard returns Cancel. It reports whether it admitted or canceled
// at least one operation.
func (d *Dispatcher) dispatchPassLocked() bool {
	if len(d.queue) == 0 {
		return false
	}

	remaining := d.queue[:0:0]
	progressed := false
	capacity := d.poolSize*d.jobsPerThread - d.inFlight

	// Descending priority order, stable on arrival order: operations
	// sharing a priority value keep FIFO arrival order among themselves,
	// per spec §4.2's "admission order within a priority class is FIFO
	// over queue arrival".
	candidates := make([]int, len(d.queue))
	for i := range d.queue {
		candidates[i] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return d.queue[candidates[i]].priority > d.queue[candidates[j]].priority
	})

	admitted := make(map[int]bool)
	canceled := make(map[int]bool)

	for _, idx := range candidates {
		op := d.queue[idx]
		if op.guard == nil {
			if capacity <= 0 {
				continue
			}
			admitted[idx] = true
			capacity--
			continue
		}
		switch op.guard.CanExecute(op, d.state) {
		case Execute:
			if capacity <= 0 {
				continue
			}
			admitted[idx] = true
			capacity--
		case Cancel:
			canceled[idx] = true
		case Wait:
			// stays in queue
		}
	}

	for i, op := range d.queue {
		switch {
		case admitted[i]:
			progressed = true
			if op.mutator != nil {
				op.mutator.Pre(d.state, op)
			}
			op.setFlag(flagStarted)
			d.inFlight++
			d.wg.Add(1)
			runCtx, cancel := context.WithCancel(context.Background())
			d.running[op] = cancel
			if d.log != nil {
				d.log.Debug("operation admitted", "op", op.ID(), "priority", op.Priority())
			}
			go d.runOnPool(op, runCtx, cancel)
		case canceled[i]:
			progressed = true
			op.err.Store(errCanceledByGuard)
			op.setFlag(flagCanceled)
			if op.mutator != nil {
				op.mutator.Post(d.state, op)
			}
			op.markDone()
			if d.log != nil {
				d.log.Debug("operation canceled by guard", "op", op.ID())
			}
		default:
			remaining = append(remaining, op)
		}
	}
	d.queue = remaining
	return progressed
}

// runOnPool executes op's runnable on a pool goroutine under runCtx (which
// Terminate cancels to unblock a ctx-aware runnable), then reacquires the
// coordination lock to finalize state and wake any blocked dispatch pass
// so guards depending on the freshly mutated state can re-evaluate.
func (d *Dispatcher) runOnPool(op *Operation, runCtx context.Context, cancel context.CancelFunc) {
	defer d.wg.Done()
	defer cancel()

	err := func() (runErr error) {
		defer func() {
			if r := recover(); r != nil {
				if d.log != nil {
					d.log.Error("operation panicked", "recover", r)
				}
				runErr = errTaskPanicked
			}
		}()
		return op.runnable.Run(runCtx)
	}()

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, op)
	d.inFlight--
	if err != nil {
		op.err.Store(err)
	}
	op.setFlag(flagFinished)
	if op.mutator != nil {
		op.mutator.Post(d.state, op)
	}
	op.markDone()
	d.cond.Broadcast()
	go d.dispatchLoop()
}

var errTaskPanicked = errors.New("dispatcher: runnable panicked")

// errCanceledByGuard is recorded on an operation whose guard returned
// Cancel, so Wait reports the rejection as an error.
var errCanceledByGuard = errors.New("dispatcher: operation canceled by its guard")
