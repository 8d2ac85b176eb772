package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published by the booking workflow.
const (
	BookingCreated   = "booking.created"
	BookingRenamed   = "booking.renamed"
	BookingDeleted   = "booking.deleted"
	ChecklistToggled = "booking.checklist_toggled"
)

// AllTypes lists every event type, for subscribers that want everything.
var AllTypes = []string{BookingCreated, BookingRenamed, BookingDeleted, ChecklistToggled}

// Event represents a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// BookingPayload is carried by every booking event.
type BookingPayload struct {
	BookingID  int64  `json:"booking_id"`
	ActorEmail string `json:"actor_email"`
	GuestName  string `json:"guest_name,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	Item       string `json:"item,omitempty"`
	Done       bool   `json:"done,omitempty"`
}

// NewBookingEvent marshals payload into an event of the given type.
func NewBookingEvent(eventType string, payload BookingPayload) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
}

// Decode unmarshals the payload of a booking event.
func (e Event) Decode() (BookingPayload, error) {
	var p BookingPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every booking event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}
