package fiber

import (
	"context"
	"sync"

	"github.com/monarchkernel/monarch/dispatcher"
	"github.com/monarchkernel/monarch/kernel"
)

// Scheduler cooperatively schedules fibers onto numOps scheduler
// operations running on the kernel's dispatcher. Construct with
// NewScheduler and call Start before AddFiber.
type Scheduler struct {
	k      *kernel.Kernel
	numOps int

	mu       sync.Mutex
	cond     *sync.Cond
	noFibers *sync.Cond

	fibers      map[FiberId]*Fiber
	queue       []*Fiber
	sleeping    map[FiberId]*Fiber
	freeIds     []FiberId
	nextID      FiberId
	suppressNew bool
	stopped     bool
	stopCh      chan struct{}

	center *MessageCenter
}

// NewScheduler constructs a Scheduler that will run numOps concurrent
// scheduler operations once started. numOps is clamped to at least 1.
func NewScheduler(k *kernel.Kernel, numOps int) *Scheduler {
	if numOps < 1 {
		numOps = 1
	}
	s := &Scheduler{
		k:        k,
		numOps:   numOps,
		fibers:   make(map[FiberId]*Fiber),
		sleeping: make(map[FiberId]*Fiber),
		stopCh:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.noFibers = sync.NewCond(&s.mu)
	s.center = NewMessageCenter(s)
	return s
}

// MessageCenter returns the scheduler's FiberMessageCenter.
func (s *Scheduler) MessageCenter() *MessageCenter { return s.center }

// Start launches numOps scheduler operations on the kernel's dispatcher.
// Each runs the worker loop in §4.4: dequeue a ready fiber, resume it,
// inspect its suspension kind, and requeue/sleep/reap accordingly.
func (s *Scheduler) Start() {
	for i := 0; i < s.numOps; i++ {
		op := dispatcher.NewOperation(dispatcher.RunnableFunc(s.workerLoop))
		s.k.RunOperation(op)
	}
}

// Stop terminates all scheduler operations: each returns as soon as the
// fiber it is running next suspends, or at once if it is idle. Fibers
// still queued, sleeping, or running when Stop is called are abandoned;
// a started fiber's goroutine stays blocked at its next Yield/Sleep,
// mirroring the cooperative-only cancellation model in §5 (Stop does not
// unwind native stacks).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) workerLoop(ctx context.Context) error {
	for {
		f := s.dequeueReady()
		if f == nil {
			return nil // scheduler stopped
		}

		if f.State() == FiberNew {
			if s.newInitSuppressed() {
				s.requeueFront(f)
				continue
			}
			f.start()
		}

		f.resume <- struct{}{}
		kind := <-f.yield

		switch kind {
		case yieldRunning:
			s.requeueTail(f)
		case yieldSleeping:
			s.moveToSleeping(f)
		case yieldExited:
			s.reap(f)
		}
	}
}

func (s *Scheduler) newInitSuppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressNew
}

// AddFiber registers a new fiber running fn at priority and appends it to
// the ready queue. It returns the fiber's assigned id.
func (s *Scheduler) AddFiber(fn FiberFunc, priority int) FiberId {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id FiberId
	if n := len(s.freeIds); n > 0 {
		id = s.freeIds[n-1]
		s.freeIds = s.freeIds[:n-1]
	} else {
		s.nextID++
		id = s.nextID
	}

	f := newFiber(id, priority, fn)
	s.fibers[id] = f
	s.queue = append(s.queue, f)
	s.cond.Broadcast()
	return id
}

// Wakeup moves a sleeping fiber back onto the ready queue. It reports
// whether id was found sleeping.
func (s *Scheduler) Wakeup(id FiberId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.sleeping[id]
	if !ok {
		return false
	}
	delete(s.sleeping, id)
	f.state.Store(int32(FiberRunning))
	s.queue = append(s.queue, f)
	s.cond.Broadcast()
	return true
}

// WaitForLastFiberExit blocks until every fiber has been reaped, or ctx is
// done.
func (s *Scheduler) WaitForLastFiberExit(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for len(s.fibers) > 0 {
			s.noFibers.Wait()
		}
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) dequeueReady() *Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return nil
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f
}

func (s *Scheduler) requeueFront(f *Fiber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append([]*Fiber{f}, s.queue...)
	s.cond.Broadcast()
}

func (s *Scheduler) requeueTail(f *Fiber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, f)
	s.cond.Broadcast()
}

func (s *Scheduler) moveToSleeping(f *Fiber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeping[f.id] = f
}

func (s *Scheduler) reap(f *Fiber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.state.Store(int32(FiberDead))
	delete(s.fibers, f.id)
	s.freeIds = append(s.freeIds, f.id)
	s.suppressNew = false
	s.cond.Broadcast()
	if len(s.fibers) == 0 {
		s.noFibers.Broadcast()
	}
}
