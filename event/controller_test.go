package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/monarchkernel/monarch/kernel"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	k := kernel.New(kernel.Config{MaxThreadCount: 4, JobsPerThread: 4}, nil)
	return NewController(k)
}

func TestEventIdStableAndAutoTapsToRoot(t *testing.T) {
	c := newTestController(t)
	a := c.EventId("order.created")
	b := c.EventId("order.created")
	if a != b {
		t.Fatalf("EventId not stable: %v != %v", a, b)
	}
	chain := c.ancestorChain(a)
	if chain[0] != RootEventId {
		t.Fatalf("chain does not start at root: %v", chain)
	}
	if chain[len(chain)-1] != a {
		t.Fatalf("chain does not end at the event's own id: %v", chain)
	}
}

func TestAddParentExpandsAncestorChain(t *testing.T) {
	c := newTestController(t)
	if err := c.AddParent("order.shipped", "order.created"); err != nil {
		t.Fatalf("AddParent: %v", err)
	}

	childID := c.EventId("order.shipped")
	parentID := c.EventId("order.created")
	chain := c.ancestorChain(childID)

	found := false
	for _, id := range chain {
		if id == parentID {
			found = true
		}
	}
	if !found {
		t.Fatalf("ancestor chain %v does not include tapped parent %v", chain, parentID)
	}
}

func TestAddParentRejectsCycle(t *testing.T) {
	c := newTestController(t)
	if err := c.AddParent("a", "b"); err != nil {
		t.Fatalf("AddParent a<-b: %v", err)
	}
	if err := c.AddParent("b", "a"); err == nil {
		t.Fatal("expected ErrEventCycle for reverse tap")
	}
}

func TestObserverOfAncestorSeesDescendantEvent(t *testing.T) {
	c := newTestController(t)
	if err := c.AddParent("order.shipped", "order.created"); err != nil {
		t.Fatalf("AddParent: %v", err)
	}

	var mu sync.Mutex
	var seen []string
	unregister := c.RegisterObserver(ObserverFunc(func(ctx context.Context, e Event) error {
		mu.Lock()
		seen = append(seen, e.Type())
		mu.Unlock()
		return nil
	}), "order.created", nil)
	defer unregister()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Schedule(ctx, NewEvent("order.shipped", nil), false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "order.shipped" {
		t.Fatalf("observer did not see descendant event, saw %v", seen)
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	c := newTestController(t)
	calls := make(chan struct{}, 1)
	unregister := c.RegisterObserver(ObserverFunc(func(ctx context.Context, e Event) error {
		calls <- struct{}{}
		return nil
	}), "ping", nil)
	unregister()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Schedule(ctx, NewEvent("ping", nil), false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-calls:
		t.Fatal("unregistered observer was still invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterRestrictsDelivery(t *testing.T) {
	c := newTestController(t)
	matched := make(chan string, 2)

	c.RegisterObserver(ObserverFunc(func(ctx context.Context, e Event) error {
		matched <- e.ID()
		return nil
	}), "order.created", Filter{"region": "us"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = c.Schedule(ctx, NewEvent("order.created", map[string]any{"region": "eu"}), false)
	_ = c.Schedule(ctx, NewEvent("order.created", map[string]any{"region": "us"}), false)

	select {
	case <-matched:
	case <-time.After(time.Second):
		t.Fatal("matching event was not delivered")
	}
	select {
	case id := <-matched:
		t.Fatalf("non-matching event was delivered unexpectedly: %v", id)
	case <-time.After(50 * time.Millisecond):
	}
}
