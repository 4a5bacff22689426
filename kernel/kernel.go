// Package kernel ties State and the OperationDispatcher into the single
// public entry point the rest of the execution kernel (fiber scheduler,
// event controller, module library) schedules work through.
package kernel

import (
	"context"

	"github.com/monarchkernel/monarch/dispatcher"
	"github.com/monarchkernel/monarch/state"
)

// Logger is the logging surface Kernel and its collaborators depend on.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Config configures a Kernel's thread pool.
type Config struct {
	// MaxThreadCount is the dispatcher's pool size. Defaults to 4 if <= 0.
	MaxThreadCount int
	// JobsPerThread bounds in-flight operations per pool goroutine.
	// Defaults to 8 if <= 0.
	JobsPerThread int
}

// Kernel is a thin facade composing a State and an OperationDispatcher: the
// single public entry other kernel components (fiber, event, module) use
// to schedule work and read/write shared state.
type Kernel struct {
	state      *state.State
	dispatcher *dispatcher.Dispatcher
	log        Logger
}

// New constructs a Kernel with its own dispatcher and pool, sized per cfg.
func New(cfg Config, logger Logger) *Kernel {
	poolSize := cfg.MaxThreadCount
	if poolSize <= 0 {
		poolSize = 4
	}
	jobsPerThread := cfg.JobsPerThread
	if jobsPerThread <= 0 {
		jobsPerThread = 8
	}

	d := dispatcher.New(poolSize, jobsPerThread, logger)
	return &Kernel{
		state:      d.State(),
		dispatcher: d,
		log:        logger,
	}
}

// State returns the Kernel's State.
func (k *Kernel) State() *state.State { return k.state }

// Dispatcher returns the Kernel's OperationDispatcher, for collaborators
// (fiber scheduler, event controller, module library) that need to queue
// their own operations directly.
func (k *Kernel) Dispatcher() *dispatcher.Dispatcher { return k.dispatcher }

// Logger returns the Kernel's logger.
func (k *Kernel) Logger() Logger { return k.log }

// RunOperation queues op on the dispatcher and returns immediately.
func (k *Kernel) RunOperation(op *dispatcher.Operation) {
	k.dispatcher.Queue(op)
}

// RunOperationAndWait queues op and blocks until it reaches a terminal
// state or ctx is done.
func (k *Kernel) RunOperationAndWait(ctx context.Context, op *dispatcher.Operation) error {
	k.dispatcher.Queue(op)
	return dispatcher.Wait(ctx, op)
}

// Terminate interrupts all running operations and empties the dispatcher
// queue, blocking until every operation reaches a terminal state.
func (k *Kernel) Terminate(ctx context.Context) error {
	return k.dispatcher.Terminate(ctx)
}
