package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"calendar-read-model/pkg/logattr"
	"calendar-read-model/pkg/messages"
)

var _ messages.Deserializer[Handler] = (*Deserializer)(nil)

// Deserializer parses raw message bodies into typed events. Validation
// happens here, at parse time: a body that cannot be turned into a valid
// event is a deserialization error and follows the poison-message path.
type Deserializer struct {
	logger *slog.Logger
}

func NewDeserializer(logger *slog.Logger) *Deserializer {
	return &Deserializer{logger: logger}
}

func (d *Deserializer) Deserialize(rawPayload []byte) (messages.Event[Handler], error) {
	var envelope Envelope
	err := json.Unmarshal(rawPayload, &envelope)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling envelope: %w", err)
	}

	switch envelope.Type {
	case TypeCreated:
		payload, err := unmarshalEventPayload(envelope)
		if err != nil {
			return nil, err
		}
		if payload.Title == nil || payload.StartTime == nil {
			return nil, fmt.Errorf("created payload missing title or startTime")
		}
		return EventCreated{Payload: payload}, nil
	case TypeUpdated:
		payload, err := unmarshalEventPayload(envelope)
		if err != nil {
			return nil, err
		}
		return EventUpdated{Payload: payload}, nil
	case TypeDeleted:
		var payload DeletedPayload
		err := json.Unmarshal(envelope.Payload, &payload)
		if err != nil {
			return nil, fmt.Errorf("unmarshalling %s payload: %w", envelope.Type, err)
		}
		if !payload.EventType.IsValid() {
			return nil, fmt.Errorf("invalid eventType: %s", payload.EventType)
		}
		return EventDeleted{Payload: payload}, nil
	default:
		d.logger.Warn("unknown message type", logattr.MessageType(envelope.Type))
		return nil, fmt.Errorf("unknown message type: %s", envelope.Type)
	}
}

func unmarshalEventPayload(envelope Envelope) (EventPayload, error) {
	var payload EventPayload
	err := json.Unmarshal(envelope.Payload, &payload)
	if err != nil {
		return EventPayload{}, fmt.Errorf("unmarshalling %s payload: %w", envelope.Type, err)
	}
	if !payload.EventType.IsValid() {
		return EventPayload{}, fmt.Errorf("invalid eventType: %s", payload.EventType)
	}
	return payload, nil
}
