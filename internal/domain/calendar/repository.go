package calendar

import (
	"context"
	"time"

	"calendar-read-model/pkg/events"

	"github.com/google/uuid"
	"github.com/walletera/werrors"
)

// Event is the consumer-owned read model row. SourceId, EventType and
// EmployeeId form the correlation key and are never edited independently
// of an envelope; ID is locally assigned and never referenced by senders.
type Event struct {
	ID          uuid.UUID
	EmployeeId  int64
	Title       string
	Description *string
	StartTime   time.Time
	EndTime     *time.Time
	EventType   events.EventType
	SourceId    *int64
	CreatedAt   time.Time
}

// EventKey is the correlation key identifying which calendar rows a
// mutating envelope refers to.
type EventKey struct {
	SourceId   int64
	EventType  events.EventType
	EmployeeId int64
}

// EventUpdate carries only the fields present in an updated payload;
// nil fields are left untouched on matching rows.
type EventUpdate struct {
	Key         EventKey
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
}

type Repository interface {
	CreateEvent(ctx context.Context, event Event) werrors.WError
	// UpdateEventsByKey mutates every row matching the correlation key;
	// zero matches is a successful no-op.
	UpdateEventsByKey(ctx context.Context, update EventUpdate) werrors.WError
	// DeleteEventsByKey removes every row matching the correlation key;
	// zero matches is a successful no-op.
	DeleteEventsByKey(ctx context.Context, key EventKey) werrors.WError
	EventsByPeriod(ctx context.Context, employeeId int64, from time.Time, to time.Time) ([]Event, werrors.WError)
	ExistsInPeriod(ctx context.Context, employeeId int64, from time.Time, to time.Time) (bool, werrors.WError)
}
