package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message type discriminator carried in the envelope.
const (
	TypeCreated = "created"
	TypeUpdated = "updated"
	TypeDeleted = "deleted"
)

// EventType identifies the event family a calendar entry belongs to.
// The enumeration values are part of the wire contract shared with the
// producing services.
type EventType string

const (
	EventTypeMeeting  EventType = "meeting"
	EventTypeTask     EventType = "task"
	EventTypePersonal EventType = "personal"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventTypeMeeting, EventTypeTask, EventTypePersonal:
		return true
	}
	return false
}

// Envelope is the wire schema shared by all producers and the consumer:
// a discriminated union of the three message shapes. There is no version
// field; adding a new type means teaching the deserializer a new case.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventPayload is the payload of created and updated messages. Optional
// fields are pointers so an updated message can carry only the fields
// that actually changed.
type EventPayload struct {
	SourceId    int64      `json:"sourceId"`
	EmployeeId  int64      `json:"employeeId"`
	EventType   EventType  `json:"eventType"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// DeletedPayload carries only the correlation key.
type DeletedPayload struct {
	SourceId   int64     `json:"sourceId"`
	EmployeeId int64     `json:"employeeId"`
	EventType  EventType `json:"eventType"`
}

func serializeEnvelope(messageType string, payload any) ([]byte, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", messageType, err)
	}
	return json.Marshal(Envelope{
		Type:    messageType,
		Payload: rawPayload,
	})
}
