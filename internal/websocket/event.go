package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event (created, updated, deleted)
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// EntityType represents the type of entity the event is about
type EntityType string

const (
	EntityTypeTransaction   EntityType = "transaction"
	EntityTypeMonthlyBudget EntityType = "monthly_budget"
	EntityTypeSetting       EntityType = "setting"
	EntityTypeDevice        EntityType = "device"
)

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string          `json:"type"`      // Combined type e.g. "transaction.created"
	Entity    EntityType      `json:"entity"`    // Entity type e.g. "transaction"
	Payload   json.RawMessage `json:"payload"`   // Full entity data
	Timestamp time.Time       `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type, entity, and payload.
// A payload that cannot be encoded is sent as null.
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Event{
		Type:      fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:    entityType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEvent decodes an event received from the server
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// TransactionCreated creates a transaction.created event
func TransactionCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeTransaction, payload)
}

// TransactionUpdated creates a transaction.updated event
func TransactionUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeTransaction, payload)
}

// TransactionDeleted creates a transaction.deleted event
func TransactionDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeTransaction, payload)
}

// MonthlyBudgetCreated creates a monthly_budget.created event
func MonthlyBudgetCreated(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeMonthlyBudget, payload)
}

// MonthlyBudgetUpdated creates a monthly_budget.updated event
func MonthlyBudgetUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeMonthlyBudget, payload)
}

// MonthlyBudgetDeleted creates a monthly_budget.deleted event
func MonthlyBudgetDeleted(payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeMonthlyBudget, payload)
}

// SettingUpdated creates a setting.updated event
func SettingUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeSetting, payload)
}

// DeviceUpdated creates a device.updated event
func DeviceUpdated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeDevice, payload)
}
