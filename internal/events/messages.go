package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type names a domain event emitted after a successful mutation.
type Type string

const (
	RecordInserted   Type = "record.inserted"
	RecordsDeleted   Type = "records.deleted"
	CustomerArchived Type = "customer.archived"
)

// Event is the message published for every change to a session's records.
// It carries identifiers only, never full record contents.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	Customer  string    `json:"customer,omitempty"`
	Month     string    `json:"month,omitempty"`
	RecordIDs []string  `json:"record_ids,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(t Type, sessionID string) *Event {
	return &Event{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects unknown types
func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Type {
	case RecordInserted, RecordsDeleted, CustomerArchived:
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return &ev, nil
}
