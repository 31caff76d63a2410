package mongodb

import (
	"context"
	"time"

	"calendar-read-model/internal/domain/calendar"
	"calendar-read-model/pkg/events"

	"github.com/google/uuid"
	"github.com/walletera/werrors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type EventBSON struct {
	ID          uuid.UUID  `bson:"_id"`
	EmployeeId  int64      `bson:"employeeId"`
	Title       string     `bson:"title"`
	Description *string    `bson:"description,omitempty"`
	StartTime   time.Time  `bson:"startTime"`
	EndTime     *time.Time `bson:"endTime,omitempty"`
	EventType   string     `bson:"eventType"`
	SourceId    *int64     `bson:"sourceId,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
}

// EventsRepository implements calendar.Repository on MongoDB. Each
// mutation is a single conditional statement (insert, update-where or
// delete-where) so the applier introduces no read-then-write window.
type EventsRepository struct {
	client         *mongo.Client
	dbName         string
	collectionName string
}

var _ calendar.Repository = (*EventsRepository)(nil)

func NewEventsRepository(client *mongo.Client, dbName string, collectionName string) *EventsRepository {
	return &EventsRepository{client: client, dbName: dbName, collectionName: collectionName}
}

func (r *EventsRepository) CreateEvent(ctx context.Context, event calendar.Event) werrors.WError {
	eventBSON := EventBSON{
		ID:          event.ID,
		EmployeeId:  event.EmployeeId,
		Title:       event.Title,
		Description: event.Description,
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
		EventType:   string(event.EventType),
		SourceId:    event.SourceId,
		CreatedAt:   event.CreatedAt,
	}
	_, err := r.collection().InsertOne(ctx, eventBSON)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return werrors.NewNonRetryableInternalError("duplicate key error: %s", err.Error())
		}
		return werrors.NewRetryableInternalError("failed to save calendar event: %s", err.Error())
	}
	return nil
}

func (r *EventsRepository) UpdateEventsByKey(ctx context.Context, update calendar.EventUpdate) werrors.WError {
	set := bson.M{}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.StartTime != nil {
		set["startTime"] = *update.StartTime
	}
	if update.EndTime != nil {
		set["endTime"] = *update.EndTime
	}
	if len(set) == 0 {
		return nil
	}

	// zero matched documents is a successful no-op
	_, err := r.collection().UpdateMany(ctx, keyFilter(update.Key), bson.M{"$set": set})
	if err != nil {
		return werrors.NewRetryableInternalError("failed to update calendar events: %s", err.Error())
	}
	return nil
}

func (r *EventsRepository) DeleteEventsByKey(ctx context.Context, key calendar.EventKey) werrors.WError {
	// zero deleted documents is a successful no-op
	_, err := r.collection().DeleteMany(ctx, keyFilter(key))
	if err != nil {
		return werrors.NewRetryableInternalError("failed to delete calendar events: %s", err.Error())
	}
	return nil
}

func (r *EventsRepository) EventsByPeriod(ctx context.Context, employeeId int64, from time.Time, to time.Time) ([]calendar.Event, werrors.WError) {
	filter := bson.M{
		"employeeId": employeeId,
		"startTime":  bson.M{"$gte": from, "$lt": to},
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}})

	cursor, err := r.collection().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, werrors.NewRetryableInternalError("failed to find calendar events: %s", err.Error())
	}
	defer cursor.Close(ctx)

	var result []calendar.Event
	for cursor.Next(ctx) {
		var eventBSON EventBSON
		decodeErr := cursor.Decode(&eventBSON)
		if decodeErr != nil {
			return nil, werrors.NewNonRetryableInternalError("failed decoding mongodb result: %s", decodeErr.Error())
		}
		result = append(result, buildEventFromBSON(eventBSON))
	}
	if cursorErr := cursor.Err(); cursorErr != nil {
		return nil, werrors.NewRetryableInternalError("error iterating calendar events: %s", cursorErr.Error())
	}
	return result, nil
}

func (r *EventsRepository) ExistsInPeriod(ctx context.Context, employeeId int64, from time.Time, to time.Time) (bool, werrors.WError) {
	filter := bson.M{
		"employeeId": employeeId,
		"startTime":  bson.M{"$gte": from, "$lt": to},
	}
	count, err := r.collection().CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, werrors.NewRetryableInternalError("failed to count calendar events: %s", err.Error())
	}
	return count > 0, nil
}

func (r *EventsRepository) collection() *mongo.Collection {
	return r.client.Database(r.dbName).Collection(r.collectionName)
}

func keyFilter(key calendar.EventKey) bson.M {
	return bson.M{
		"sourceId":   key.SourceId,
		"eventType":  string(key.EventType),
		"employeeId": key.EmployeeId,
	}
}

func buildEventFromBSON(eventBSON EventBSON) calendar.Event {
	return calendar.Event{
		ID:          eventBSON.ID,
		EmployeeId:  eventBSON.EmployeeId,
		Title:       eventBSON.Title,
		Description: eventBSON.Description,
		StartTime:   eventBSON.StartTime,
		EndTime:     eventBSON.EndTime,
		EventType:   events.EventType(eventBSON.EventType),
		SourceId:    eventBSON.SourceId,
		CreatedAt:   eventBSON.CreatedAt,
	}
}
