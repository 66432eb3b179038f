// Package events carries dispatch workflow notifications to live subscribers
// and downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	VehicleAssigned   = "vehicle.assigned"
	VehicleUnassigned = "vehicle.unassigned"
	VehicleAdded      = "vehicle.added"
	VehicleRemoved    = "vehicle.removed"

	DispatchEstimating   = "dispatch.estimating"
	DispatchConfirming   = "dispatch.confirming"
	DispatchCancelled    = "dispatch.cancelled"
	DispatchCommitted    = "dispatch.committed"
	DispatchCommitFailed = "dispatch.commit_failed"
)

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	RequestID string         `json:"requestId"`
	At        time.Time      `json:"ts"`
	Data      map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ, requestID string, data map[string]any) Event {
	return Event{ID: "evt_" + uuid.NewString(), Type: typ, RequestID: requestID, At: time.Now().UTC(), Data: data}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Broker fans events out to per-request subscribers.
type Broker interface {
	Publisher
	Subscribe(requestID string) chan Event
	Unsubscribe(requestID string, ch chan Event)
}

// Fanout publishes to every member in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, evt)
		}
	}
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}
