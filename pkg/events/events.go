package events

import (
	"context"

	"github.com/walletera/werrors"
)

// EventData is the producer-side view of an event: something that can be
// serialized into an envelope and handed to a Publisher.
type EventData interface {
	Type() string
	Serialize() ([]byte, error)
}

// Publisher is the capability a producing service holds to broadcast
// lifecycle notifications. It is injected at construction, never a
// process-global.
type Publisher interface {
	Publish(ctx context.Context, data EventData) error
}

// Handler receives deserialized events, one at a time, in receipt order.
type Handler interface {
	HandleEventCreated(ctx context.Context, event EventCreated) werrors.WError
	HandleEventUpdated(ctx context.Context, event EventUpdated) werrors.WError
	HandleEventDeleted(ctx context.Context, event EventDeleted) werrors.WError
}

type EventCreated struct {
	Payload EventPayload
}

func (e EventCreated) Type() string {
	return TypeCreated
}

func (e EventCreated) Serialize() ([]byte, error) {
	return serializeEnvelope(TypeCreated, e.Payload)
}

func (e EventCreated) Accept(ctx context.Context, handler Handler) werrors.WError {
	return handler.HandleEventCreated(ctx, e)
}

type EventUpdated struct {
	Payload EventPayload
}

func (e EventUpdated) Type() string {
	return TypeUpdated
}

func (e EventUpdated) Serialize() ([]byte, error) {
	return serializeEnvelope(TypeUpdated, e.Payload)
}

func (e EventUpdated) Accept(ctx context.Context, handler Handler) werrors.WError {
	return handler.HandleEventUpdated(ctx, e)
}

type EventDeleted struct {
	Payload DeletedPayload
}

func (e EventDeleted) Type() string {
	return TypeDeleted
}

func (e EventDeleted) Serialize() ([]byte, error) {
	return serializeEnvelope(TypeDeleted, e.Payload)
}

func (e EventDeleted) Accept(ctx context.Context, handler Handler) werrors.WError {
	return handler.HandleEventDeleted(ctx, e)
}
