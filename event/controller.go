package event

import (
	"context"
	"errors"
	"sync"

	"github.com/monarchkernel/monarch/dispatcher"
	"github.com/monarchkernel/monarch/kernel"
)

// EventId is a small integer canonicalizing an event type string.
type EventId uint64

// RootEventId is the wildcard root "*", an ancestor of every event type.
const RootEventId EventId = 1

// ErrEventCycle is returned by AddParent when the requested tap would
// create a cycle in the parent/child forest.
var ErrEventCycle = errors.New("event: cycle in parent/child forest")

// Filter is a structural leaf-equality subset test over an Event's fields
// (type, source, id, and top-level JSON payload keys): every key in the
// filter must be present in the event with an equal value.
type Filter map[string]any

func (f Filter) matches(fields map[string]any) bool {
	for k, v := range f {
		if fields[k] != v {
			return false
		}
	}
	return true
}

// Observer receives events the Controller fans out to it.
type Observer interface {
	OnEvent(ctx context.Context, e Event) error
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ctx context.Context, e Event) error

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ctx context.Context, e Event) error { return f(ctx, e) }

type registration struct {
	token    uint64
	observer Observer
	filter   Filter
}

// Controller is a hierarchical event topic bus: it canonicalizes event
// type strings to EventIds, maintains a parent/child tap forest rooted at
// the wildcard "*", and fans posted events out to matching observers as
// operations queued on the kernel's dispatcher — so no observer ever runs
// on the posting goroutine.
type Controller struct {
	k *kernel.Kernel

	mu      sync.RWMutex // guards ids/names/parents (the type registry + forest)
	ids     map[string]EventId
	names   map[EventId]string
	parents map[EventId][]EventId
	nextID  EventId

	obsMu     sync.RWMutex // guards observers + nextToken
	observers map[EventId][]registration
	nextToken uint64
}

// NewController returns a Controller scheduling observer invocations
// through k.
func NewController(k *kernel.Kernel) *Controller {
	c := &Controller{
		k:         k,
		ids:       map[string]EventId{"*": RootEventId},
		names:     map[EventId]string{RootEventId: "*"},
		parents:   map[EventId][]EventId{},
		nextID:    RootEventId,
		observers: map[EventId][]registration{},
	}
	return c
}

// EventId canonicalizes eventType to its EventId, installing a new one
// (auto-tapped to the root) on first sight. The common path takes the
// registry's shared read lock; a miss upgrades to an exclusive lock to
// install the id.
func (c *Controller) EventId(eventType string) EventId {
	c.mu.RLock()
	if id, ok := c.ids[eventType]; ok {
		c.mu.RUnlock()
		return id
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.ids[eventType]; ok {
		return id
	}
	c.nextID++
	id := c.nextID
	c.ids[eventType] = id
	c.names[id] = eventType
	c.parents[id] = []EventId{RootEventId}
	return id
}

// AddParent creates a tap: events of type child also flow to observers of
// type parent. It fails with ErrEventCycle if parent is already a
// descendant of child.
func (c *Controller) AddParent(child, parent string) error {
	childID := c.EventId(child)
	parentID := c.EventId(parent)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isAncestorLocked(childID, parentID) {
		return ErrEventCycle
	}
	c.parents[childID] = append(c.parents[childID], parentID)
	return nil
}

// isAncestorLocked reports whether candidate is already an ancestor of id,
// i.e. whether adding id as a tap under candidate would close a cycle.
// Callers must hold c.mu.
func (c *Controller) isAncestorLocked(candidate, id EventId) bool {
	if candidate == id {
		return true
	}
	for _, p := range c.parents[id] {
		if c.isAncestorLocked(candidate, p) {
			return true
		}
	}
	return false
}

// ancestorChain returns id's ancestors plus id itself, root-first, via a
// post-order traversal of the parent forest (parents are always visited,
// and thus appended, before their children).
func (c *Controller) ancestorChain(id EventId) []EventId {
	c.mu.RLock()
	defer c.mu.RUnlock()

	visited := map[EventId]bool{}
	var order []EventId
	var visit func(EventId)
	visit = func(x EventId) {
		if visited[x] {
			return
		}
		visited[x] = true
		for _, p := range c.parents[x] {
			visit(p)
		}
		order = append(order, x)
	}
	visit(id)
	return order
}

// RegisterObserver registers o against eventType, optionally restricted by
// filter (nil or empty matches every event of that type). It returns a
// function that unregisters o; calling it more than once is a no-op.
func (c *Controller) RegisterObserver(o Observer, eventType string, filter Filter) (unregister func()) {
	id := c.EventId(eventType)

	c.obsMu.Lock()
	c.nextToken++
	token := c.nextToken
	c.observers[id] = append(c.observers[id], registration{token: token, observer: o, filter: filter})
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			defer c.obsMu.Unlock()
			regs := c.observers[id]
			for i, r := range regs {
				if r.token == token {
					c.observers[id] = append(regs[:i], regs[i+1:]...)
					return
				}
			}
		})
	}
}

// Schedule posts e: it derives e's EventId, traverses the root-first
// ancestor chain, and queues a dispatcher operation per matching observer.
// In async mode Schedule returns once every observer operation is queued;
// in sync mode it blocks until every one of them completes.
func (c *Controller) Schedule(ctx context.Context, e Event, async bool) error {
	id := c.EventId(e.Type())
	chain := c.ancestorChain(id)
	fields := e.Fields()

	var ops []*dispatcher.Operation
	for _, aid := range chain {
		c.obsMu.RLock()
		regs := append([]registration(nil), c.observers[aid]...)
		c.obsMu.RUnlock()

		for _, r := range regs {
			if len(r.filter) > 0 && !r.filter.matches(fields) {
				continue
			}
			observer := r.observer
			op := dispatcher.NewOperation(dispatcher.RunnableFunc(func(ctx context.Context) error {
				return observer.OnEvent(ctx, e)
			}))
			c.k.RunOperation(op)
			ops = append(ops, op)
		}
	}

	if async {
		return nil
	}
	for _, op := range ops {
		if err := dispatcher.Wait(ctx, op); err != nil {
			return err
		}
	}
	return nil
}
