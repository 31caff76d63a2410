package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"calendar-read-model/pkg/events"
	"calendar-read-model/pkg/logattr"
)

// SourceEvent is a committed domain mutation seen from the calendar's
// perspective: the producing domain's identifier plus the employee whose
// calendar the entry belongs to. The employee is chosen by the producer
// (a meeting may target an invited participant, not its creator).
type SourceEvent struct {
	SourceId    int64
	EmployeeId  int64
	Title       string
	Description *string
	StartTime   time.Time
	EndTime     *time.Time
}

// SourceEventUpdate carries only the fields that changed.
type SourceEventUpdate struct {
	SourceId    int64
	EmployeeId  int64
	Title       *string
	Description *string
	StartTime   *time.Time
	EndTime     *time.Time
}

// Notifier builds envelopes for one event family and hands them to an
// injected Publisher capability. A domain service holds a Notifier
// supplied at construction and calls it after its own commit succeeds;
// a returned error means the read model stays stale until the next
// successful publish, never that the domain operation failed.
type Notifier struct {
	publisher events.Publisher
	eventType events.EventType
	logger    *slog.Logger
}

func NewNotifier(publisher events.Publisher, eventType events.EventType, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		eventType: eventType,
		logger:    logger,
	}
}

func (n *Notifier) EventCreated(ctx context.Context, source SourceEvent) error {
	title := source.Title
	startTime := source.StartTime
	event := events.EventCreated{
		Payload: events.EventPayload{
			SourceId:    source.SourceId,
			EmployeeId:  source.EmployeeId,
			EventType:   n.eventType,
			Title:       &title,
			Description: source.Description,
			StartTime:   &startTime,
			EndTime:     source.EndTime,
		},
	}
	return n.publish(ctx, event, source.SourceId, source.EmployeeId)
}

func (n *Notifier) EventUpdated(ctx context.Context, update SourceEventUpdate) error {
	event := events.EventUpdated{
		Payload: events.EventPayload{
			SourceId:    update.SourceId,
			EmployeeId:  update.EmployeeId,
			EventType:   n.eventType,
			Title:       update.Title,
			Description: update.Description,
			StartTime:   update.StartTime,
			EndTime:     update.EndTime,
		},
	}
	return n.publish(ctx, event, update.SourceId, update.EmployeeId)
}

func (n *Notifier) EventDeleted(ctx context.Context, sourceId int64, employeeId int64) error {
	event := events.EventDeleted{
		Payload: events.DeletedPayload{
			SourceId:   sourceId,
			EmployeeId: employeeId,
			EventType:  n.eventType,
		},
	}
	return n.publish(ctx, event, sourceId, employeeId)
}

func (n *Notifier) publish(ctx context.Context, event events.EventData, sourceId int64, employeeId int64) error {
	err := n.publisher.Publish(ctx, event)
	if err != nil {
		n.logger.Error(
			"failed publishing calendar event",
			logattr.Error(err.Error()),
			logattr.MessageType(event.Type()),
			logattr.SourceId(sourceId),
			logattr.EmployeeId(employeeId),
		)
		return fmt.Errorf("failed publishing %s event: %w", event.Type(), err)
	}
	n.logger.Info(
		"calendar event published",
		logattr.MessageType(event.Type()),
		logattr.EventType(string(n.eventType)),
		logattr.SourceId(sourceId),
		logattr.EmployeeId(employeeId),
	)
	return nil
}
