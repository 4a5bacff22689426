// Package event implements the EventController: a hierarchical topic bus
// that fans posted events out to observers through the kernel's
// dispatcher, so no observer ever runs on the posting goroutine.
package event

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event wraps a CloudEvents envelope. Only Type is inspected by the
// controller's hierarchy logic; id/source/time are ambient CloudEvents
// envelope fields carried for interoperability with external observers.
type Event struct {
	raw cloudevents.Event
}

// NewEvent constructs an Event of eventType carrying data as its JSON
// payload.
func NewEvent(eventType string, data any) Event {
	e := cloudevents.NewEvent()
	e.SetID(newEventUUID())
	e.SetSource("monarch")
	e.SetType(eventType)
	e.SetTime(time.Now())
	e.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = e.SetData(cloudevents.ApplicationJSON, data)
	}
	return Event{raw: e}
}

// Type returns the event's type string — the only field the controller's
// hierarchy/tap logic inspects.
func (e Event) Type() string { return e.raw.Type() }

// ID returns the event's CloudEvents id.
func (e Event) ID() string { return e.raw.ID() }

// Source returns the event's CloudEvents source.
func (e Event) Source() string { return e.raw.Source() }

// Time returns the event's CloudEvents timestamp.
func (e Event) Time() time.Time { return e.raw.Time() }

// DataAs unmarshals the event's payload into out.
func (e Event) DataAs(out any) error { return e.raw.DataAs(out) }

// Raw returns the underlying CloudEvents envelope, for observers that want
// the full wire representation.
func (e Event) Raw() cloudevents.Event { return e.raw }

// Fields returns a shallow structural view of the event for Filter
// matching: its type, source, id, and (if the payload decodes as a JSON
// object) its top-level payload fields.
func (e Event) Fields() map[string]any {
	fields := map[string]any{
		"type":   e.raw.Type(),
		"source": e.raw.Source(),
		"id":     e.raw.ID(),
	}
	var payload map[string]any
	if err := e.raw.DataAs(&payload); err == nil {
		for k, v := range payload {
			fields[k] = v
		}
	}
	return fields
}

func newEventUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
