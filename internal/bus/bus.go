package bus

import (
	"context"
	"encoding/json"
)

// Event is a single fan-out message on a topic. Payload is already
// serialized so subscribers on different transports see identical bytes.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent serializes payload into an Event. Marshal failures return a
// zero event and false; callers log and drop.
func NewEvent(topic, eventType string, payload interface{}) (Event, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, false
	}
	return Event{Topic: topic, Type: eventType, Payload: data}, true
}

// Subscription is a live feed of events for one topic. Close is idempotent
// and causes C to be closed shortly after.
type Subscription interface {
	C() <-chan Event
	Close() error
}

// Bus is the publish/subscribe primitive the fanout layer runs on. Delivery
// is best-effort: slow subscribers lose events rather than block publishers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(topic string) (Subscription, error)
	Close() error
}
