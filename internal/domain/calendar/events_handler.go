package calendar

import (
	"context"
	"log/slog"
	"time"

	"calendar-read-model/pkg/events"
	"calendar-read-model/pkg/logattr"

	"github.com/google/uuid"
	"github.com/walletera/werrors"
)

// EventsHandler translates one envelope into exactly one store operation,
// matched by the correlation key. Deletes and sparse updates are naturally
// idempotent under at-least-once delivery; a redelivered created envelope
// may duplicate a row since the store does not enforce uniqueness on the
// correlation key.
type EventsHandler struct {
	repository Repository
	logger     *slog.Logger
}

var _ events.Handler = (*EventsHandler)(nil)

func NewEventsHandler(repository Repository, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		repository: repository,
		logger:     logger,
	}
}

func (e *EventsHandler) HandleEventCreated(ctx context.Context, event events.EventCreated) werrors.WError {
	payload := event.Payload
	sourceId := payload.SourceId
	calendarEvent := Event{
		ID: uuid.New(),
		// always from the payload: producers may target a participant
		// rather than the domain creator
		EmployeeId:  payload.EmployeeId,
		Title:       *payload.Title,
		Description: payload.Description,
		StartTime:   *payload.StartTime,
		EndTime:     payload.EndTime,
		EventType:   payload.EventType,
		SourceId:    &sourceId,
		CreatedAt:   time.Now().UTC(),
	}
	werr := e.repository.CreateEvent(ctx, calendarEvent)
	if werr != nil {
		e.logger.Error(
			"failed saving calendar event",
			logattr.Error(werr.Message()),
			logattr.SourceId(payload.SourceId),
			logattr.EventType(string(payload.EventType)),
			logattr.EmployeeId(payload.EmployeeId),
		)
		return werr
	}
	e.logger.Info(
		"calendar event saved",
		logattr.EventId(calendarEvent.ID.String()),
		logattr.SourceId(payload.SourceId),
		logattr.EventType(string(payload.EventType)),
		logattr.EmployeeId(payload.EmployeeId),
	)
	return nil
}

func (e *EventsHandler) HandleEventUpdated(ctx context.Context, event events.EventUpdated) werrors.WError {
	payload := event.Payload
	update := EventUpdate{
		Key: EventKey{
			SourceId:   payload.SourceId,
			EventType:  payload.EventType,
			EmployeeId: payload.EmployeeId,
		},
		Title:       payload.Title,
		Description: payload.Description,
		StartTime:   payload.StartTime,
		EndTime:     payload.EndTime,
	}
	werr := e.repository.UpdateEventsByKey(ctx, update)
	if werr != nil {
		e.logger.Error(
			"failed updating calendar event",
			logattr.Error(werr.Message()),
			logattr.SourceId(payload.SourceId),
			logattr.EventType(string(payload.EventType)),
			logattr.EmployeeId(payload.EmployeeId),
		)
		return werr
	}
	e.logger.Info(
		"calendar event updated",
		logattr.SourceId(payload.SourceId),
		logattr.EventType(string(payload.EventType)),
		logattr.EmployeeId(payload.EmployeeId),
	)
	return nil
}

func (e *EventsHandler) HandleEventDeleted(ctx context.Context, event events.EventDeleted) werrors.WError {
	payload := event.Payload
	key := EventKey{
		SourceId:   payload.SourceId,
		EventType:  payload.EventType,
		EmployeeId: payload.EmployeeId,
	}
	werr := e.repository.DeleteEventsByKey(ctx, key)
	if werr != nil {
		e.logger.Error(
			"failed deleting calendar event",
			logattr.Error(werr.Message()),
			logattr.SourceId(payload.SourceId),
			logattr.EventType(string(payload.EventType)),
			logattr.EmployeeId(payload.EmployeeId),
		)
		return werr
	}
	e.logger.Info(
		"calendar event deleted",
		logattr.SourceId(payload.SourceId),
		logattr.EventType(string(payload.EventType)),
		logattr.EmployeeId(payload.EmployeeId),
	)
	return nil
}
