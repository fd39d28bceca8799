package publisher

import (
	"context"
	"encoding/json"

	"sjsage522/inventorywatch/internal/inventory"
)

// Event types published for a run
const (
	EventAdded       = "added"
	EventRemoved     = "removed"
	EventPriceChange = "price_change"
)

// MessageKey is the stream field holding the encoded event
const MessageKey = "b64_inventory_event"

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to a stream chosen by partition key
	Publish(ctx context.Context, partition string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// Event is one inventory change of a run
type Event struct {
	Type        string                 `json:"type"`
	Date        string                 `json:"date"`
	Record      *inventory.Record      `json:"record,omitempty"`
	PriceChange *inventory.PriceChange `json:"price_change,omitempty"`
}

// Events flattens a delta into publishable events: additions, then
// removals, then price changes
func Events(date string, delta inventory.Delta) []Event {
	events := make([]Event, 0, len(delta.Added)+len(delta.Removed)+len(delta.PriceChanges))
	for i := range delta.Added {
		events = append(events, Event{Type: EventAdded, Date: date, Record: &delta.Added[i]})
	}
	for i := range delta.Removed {
		events = append(events, Event{Type: EventRemoved, Date: date, Record: &delta.Removed[i]})
	}
	for i := range delta.PriceChanges {
		events = append(events, Event{Type: EventPriceChange, Date: date, PriceChange: &delta.PriceChanges[i]})
	}
	return events
}

// VIN returns the vehicle the event is about
func (e Event) VIN() string {
	if e.Record != nil {
		return e.Record.VIN
	}
	if e.PriceChange != nil {
		return e.PriceChange.VIN
	}
	return ""
}

// PublishDelta publishes every event of a delta. It stops at the first
// failure and returns the number of events published.
func PublishDelta(ctx context.Context, p Publisher, date string, delta inventory.Delta) (int, error) {
	published := 0
	for _, ev := range Events(date, delta) {
		data, err := json.Marshal(ev)
		if err != nil {
			return published, err
		}
		if err := p.Publish(ctx, ev.VIN(), data); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
