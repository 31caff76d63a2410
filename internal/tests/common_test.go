package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"calendar-read-model/internal/adapters/mongodb"
	"calendar-read-model/internal/adapters/rabbitmq"
	"calendar-read-model/internal/app"
	"calendar-read-model/pkg/events"

	"github.com/cucumber/godog"
	slogwatcher "github.com/walletera/logs-watcher/slog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

const (
	appKey                    = "app"
	appCtxCancelFuncKey       = "appCtxCancelFuncKey"
	logsWatcherKey            = "logsWatcher"
	rawEventKey               = "rawEvent"
	publishedEventKey         = "publishedEvent"
	logsWatcherWaitForTimeout = 5 * time.Second
	mongodbURL                = "mongodb://localhost:27017/?retryWrites=true&w=majority"
)

var mongodbClient *mongo.Client

// publishedEvent keeps the last envelope a scenario published so the
// assertion steps can locate the matching rows by correlation key.
type publishedEvent struct {
	messageType string
	payload     events.EventPayload
}

func beforeScenarioHook(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
	handler, err := newZapHandler()
	if err != nil {
		return ctx, err
	}
	logsWatcher := slogwatcher.NewWatcher(handler)
	ctx = context.WithValue(ctx, logsWatcherKey, logsWatcher)

	client, err := getMongodbClient()
	if err != nil {
		return ctx, err
	}

	// cleanup database before each scenario
	err = client.Database(app.MongoDBName).Collection(app.MongoCollectionName).Drop(ctx)
	if err != nil {
		return nil, err
	}

	return ctx, nil
}

func afterScenarioHook(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
	logsWatcher := logsWatcherFromCtx(ctx)

	appFromCtx(ctx).Stop(ctx)
	foundLogEntry := logsWatcher.WaitFor("calendar-read-model stopped", logsWatcherWaitForTimeout)
	if !foundLogEntry {
		return ctx, fmt.Errorf("app termination failed (didn't find expected log entry)")
	}

	err = logsWatcher.Stop()
	if err != nil {
		return ctx, fmt.Errorf("failed stopping the logsWatcher: %w", err)
	}

	return ctx, nil
}

func aRunningCalendarReadModel(ctx context.Context) (context.Context, error) {
	logHandler := logsWatcherFromCtx(ctx).DecoratedHandler()

	appCtx, appCtxCancelFunc := context.WithCancel(ctx)

	calendarRMApp, err := app.NewApp(
		app.WithRabbitmqHost(rabbitmq.DefaultHost),
		app.WithRabbitmqPort(rabbitmq.DefaultPort),
		app.WithRabbitmqUser(rabbitmq.DefaultUser),
		app.WithRabbitmqPassword(rabbitmq.DefaultPassword),
		app.WithMongoDBURL(mongodbURL),
		app.WithLogHandler(logHandler),
	)
	if err != nil {
		appCtxCancelFunc()
		return ctx, fmt.Errorf("failed initializing calendarRMApp: %s", err.Error())
	}

	err = calendarRMApp.Run(appCtx)
	if err != nil {
		appCtxCancelFunc()
		return ctx, fmt.Errorf("failed running calendarRMApp: %s", err.Error())
	}

	ctx = context.WithValue(ctx, appKey, calendarRMApp)
	ctx = context.WithValue(ctx, appCtxCancelFuncKey, appCtxCancelFunc)

	foundLogEntry := logsWatcherFromCtx(ctx).WaitFor("calendar-read-model started", logsWatcherWaitForTimeout)
	if !foundLogEntry {
		return ctx, fmt.Errorf("calendarRMApp startup failed (didn't find expected log entry)")
	}

	return ctx, nil
}

func anEvent(ctx context.Context, messageType string, event *godog.DocString) (context.Context, error) {
	if event == nil || len(event.Content) == 0 {
		return ctx, fmt.Errorf("the event is empty or was not defined")
	}
	rawEvent := []byte(event.Content)

	var envelope events.Envelope
	err := json.Unmarshal(rawEvent, &envelope)
	if err != nil {
		return ctx, fmt.Errorf("error unmarshalling envelope: %w", err)
	}
	if envelope.Type != messageType {
		return ctx, fmt.Errorf("envelope type %s does not match step type %s", envelope.Type, messageType)
	}
	var payload events.EventPayload
	err = json.Unmarshal(envelope.Payload, &payload)
	if err != nil {
		return ctx, fmt.Errorf("error unmarshalling payload: %w", err)
	}

	ctx = context.WithValue(ctx, publishedEventKey, publishedEvent{messageType: messageType, payload: payload})
	return context.WithValue(ctx, rawEventKey, rawEvent), nil
}

func theEventIsPublished(ctx context.Context) (context.Context, error) {
	rawEvent := ctx.Value(rawEventKey).([]byte)
	return publishRawMessage(ctx, publishedEventFromCtx(ctx).messageType, rawEvent)
}

func theSameEventIsPublishedAgain(ctx context.Context) (context.Context, error) {
	return theEventIsPublished(ctx)
}

func aMessageIsPublishedThatIsNotAValidEnvelope(ctx context.Context, message *godog.DocString) (context.Context, error) {
	if message == nil || len(message.Content) == 0 {
		return ctx, fmt.Errorf("the message is empty or was not defined")
	}
	return publishRawMessage(ctx, "malformed", []byte(message.Content))
}

func publishRawMessage(ctx context.Context, messageType string, rawMessage []byte) (context.Context, error) {
	publisher, err := rabbitmq.NewClient(
		rabbitmq.WithExchangeName(app.RabbitMQCalendarExchangeName),
	)
	if err != nil {
		return ctx, fmt.Errorf("error creating rabbitmq client: %s", err.Error())
	}
	defer publisher.Close()

	err = publisher.Publish(ctx, publishable{messageType: messageType, rawEvent: rawMessage})
	if err != nil {
		return ctx, fmt.Errorf("error publishing %s message to rabbitmq: %s", messageType, err.Error())
	}

	return ctx, nil
}

func allBrokerConnectionsAreDropped(ctx context.Context) (context.Context, error) {
	exitCode, output, err := rabbitmqContainer.Exec(ctx, []string{
		"rabbitmqctl", "close_all_connections", "connection drop requested by tests",
	})
	if err != nil {
		return ctx, fmt.Errorf("failed executing close_all_connections: %w", err)
	}
	if exitCode != 0 {
		out, _ := io.ReadAll(output)
		return ctx, fmt.Errorf("close_all_connections exited with code %d: %s", exitCode, string(out))
	}
	return ctx, nil
}

func theCalendarReadModelProducesTheFollowingLogNTimes(ctx context.Context, n int, logMsg string) (context.Context, error) {
	logsWatcher := logsWatcherFromCtx(ctx)
	foundLogEntry := logsWatcher.WaitForNTimes(logMsg, logsWatcherWaitForTimeout, n)
	if !foundLogEntry {
		return ctx, fmt.Errorf("didn't find expected log entry %d times", n)
	}
	return ctx, nil
}

func theCalendarReadModelProducesTheFollowingLog(ctx context.Context, logMsg string) (context.Context, error) {
	logsWatcher := logsWatcherFromCtx(ctx)
	foundLogEntry := logsWatcher.WaitFor(logMsg, logsWatcherWaitForTimeout)
	if !foundLogEntry {
		return ctx, fmt.Errorf("didn't find expected log entry")
	}
	return ctx, nil
}

func theCalendarEventExistsInTheReadModel(ctx context.Context) (context.Context, error) {
	client, err := getMongodbClient()
	if err != nil {
		return ctx, err
	}

	published := publishedEventFromCtx(ctx)

	retrievedEvent := mongodb.EventBSON{}
	singleResult := eventsCollection(client).FindOne(ctx, correlationKeyFilter(published.payload))
	if singleResult.Err() != nil {
		return ctx, singleResult.Err()
	}

	err = singleResult.Decode(&retrievedEvent)
	if err != nil {
		return ctx, err
	}

	if published.payload.Title != nil && retrievedEvent.Title != *published.payload.Title {
		return ctx, fmt.Errorf("expected event title to be %s, but got %s", *published.payload.Title, retrievedEvent.Title)
	}
	if published.payload.StartTime != nil && !retrievedEvent.StartTime.Equal(*published.payload.StartTime) {
		return ctx, fmt.Errorf("expected event startTime to be %s, but got %s", *published.payload.StartTime, retrievedEvent.StartTime)
	}
	if published.payload.EndTime != nil {
		if retrievedEvent.EndTime == nil || !retrievedEvent.EndTime.Equal(*published.payload.EndTime) {
			return ctx, fmt.Errorf("expected event endTime to be %s, but got %v", *published.payload.EndTime, retrievedEvent.EndTime)
		}
	}
	if retrievedEvent.EmployeeId != published.payload.EmployeeId {
		return ctx, fmt.Errorf("expected event employeeId to be %d, but got %d", published.payload.EmployeeId, retrievedEvent.EmployeeId)
	}
	if retrievedEvent.EventType != string(published.payload.EventType) {
		return ctx, fmt.Errorf("expected event eventType to be %s, but got %s", published.payload.EventType, retrievedEvent.EventType)
	}
	if retrievedEvent.SourceId == nil || *retrievedEvent.SourceId != published.payload.SourceId {
		return ctx, fmt.Errorf("expected event sourceId to be %d, but got %v", published.payload.SourceId, retrievedEvent.SourceId)
	}
	if retrievedEvent.CreatedAt.IsZero() {
		return ctx, fmt.Errorf("expected event createdAt to be set")
	}

	return ctx, nil
}

func onlyOneCalendarEventMatchesTheCorrelationKey(ctx context.Context) (context.Context, error) {
	count, err := countEventsByCorrelationKey(ctx)
	if err != nil {
		return ctx, err
	}
	if count != 1 {
		return ctx, fmt.Errorf("expected exactly one calendar event matching the correlation key, but found %d", count)
	}
	return ctx, nil
}

func noCalendarEventMatchesTheCorrelationKey(ctx context.Context) (context.Context, error) {
	count, err := countEventsByCorrelationKey(ctx)
	if err != nil {
		return ctx, err
	}
	if count != 0 {
		return ctx, fmt.Errorf("expected no calendar event matching the correlation key, but found %d", count)
	}
	return ctx, nil
}

func theStoredCalendarEventHasTitle(ctx context.Context, title string) (context.Context, error) {
	retrievedEvent, err := findEventByCorrelationKey(ctx)
	if err != nil {
		return ctx, err
	}
	if retrievedEvent.Title != title {
		return ctx, fmt.Errorf("expected event title to be %s, but got %s", title, retrievedEvent.Title)
	}
	return ctx, nil
}

func theStoredCalendarEventStartsAt(ctx context.Context, startTimeStr string) (context.Context, error) {
	startTime, err := time.Parse(time.RFC3339, startTimeStr)
	if err != nil {
		return ctx, fmt.Errorf("invalid start time in step: %w", err)
	}
	retrievedEvent, findErr := findEventByCorrelationKey(ctx)
	if findErr != nil {
		return ctx, findErr
	}
	if !retrievedEvent.StartTime.Equal(startTime) {
		return ctx, fmt.Errorf("expected event startTime to be %s, but got %s", startTime, retrievedEvent.StartTime)
	}
	return ctx, nil
}

func aDayQueryForEmployeeReturnsNoEvents(ctx context.Context, employeeId int, dateStr string) (context.Context, error) {
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return ctx, fmt.Errorf("invalid date in step: %w", err)
	}

	client, clientErr := getMongodbClient()
	if clientErr != nil {
		return ctx, clientErr
	}

	repository := mongodb.NewEventsRepository(client, app.MongoDBName, app.MongoCollectionName)
	dayEvents, werr := repository.EventsByPeriod(ctx, int64(employeeId), date, date.AddDate(0, 0, 1))
	if werr != nil {
		return ctx, fmt.Errorf("failed querying events by period: %s", werr.Message())
	}
	if len(dayEvents) != 0 {
		return ctx, fmt.Errorf("expected no events for employee %d on %s, but found %d", employeeId, dateStr, len(dayEvents))
	}

	return ctx, nil
}

func findEventByCorrelationKey(ctx context.Context) (mongodb.EventBSON, error) {
	client, err := getMongodbClient()
	if err != nil {
		return mongodb.EventBSON{}, err
	}

	published := publishedEventFromCtx(ctx)

	retrievedEvent := mongodb.EventBSON{}
	singleResult := eventsCollection(client).FindOne(ctx, correlationKeyFilter(published.payload))
	if singleResult.Err() != nil {
		return mongodb.EventBSON{}, singleResult.Err()
	}
	err = singleResult.Decode(&retrievedEvent)
	if err != nil {
		return mongodb.EventBSON{}, err
	}
	return retrievedEvent, nil
}

func countEventsByCorrelationKey(ctx context.Context) (int64, error) {
	client, err := getMongodbClient()
	if err != nil {
		return 0, err
	}
	published := publishedEventFromCtx(ctx)
	count, err := eventsCollection(client).CountDocuments(ctx, correlationKeyFilter(published.payload))
	if err != nil {
		return 0, fmt.Errorf("failed counting calendar events: %w", err)
	}
	return count, nil
}

func correlationKeyFilter(payload events.EventPayload) bson.M {
	return bson.M{
		"sourceId":   payload.SourceId,
		"eventType":  string(payload.EventType),
		"employeeId": payload.EmployeeId,
	}
}

func eventsCollection(client *mongo.Client) *mongo.Collection {
	return client.Database(app.MongoDBName).Collection(app.MongoCollectionName)
}

func logsWatcherFromCtx(ctx context.Context) *slogwatcher.Watcher {
	value := ctx.Value(logsWatcherKey)
	if value == nil {
		panic("logs watcher not found in context")
	}
	watcher, ok := value.(*slogwatcher.Watcher)
	if !ok {
		panic("logs watcher has invalid type")
	}
	return watcher
}

func appFromCtx(ctx context.Context) *app.App {
	value := ctx.Value(appKey)
	if value == nil {
		panic("calendarRMApp not found in context")
	}
	calendarRMApp, ok := value.(*app.App)
	if !ok {
		panic("calendarRMApp has invalid type")
	}
	return calendarRMApp
}

func publishedEventFromCtx(ctx context.Context) publishedEvent {
	value := ctx.Value(publishedEventKey)
	if value == nil {
		panic("publishedEvent not found in context")
	}
	published, ok := value.(publishedEvent)
	if !ok {
		panic("publishedEvent has invalid type")
	}
	return published
}

func newZapHandler() (slog.Handler, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.DebugLevel),
		Development:       false,
		DisableStacktrace: true,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	if zapLogger.Core() == nil {
		return nil, fmt.Errorf("zapLogger.Core() is nil")
	}
	return zapslog.NewHandler(zapLogger.Core()), nil
}

func getMongodbClient() (*mongo.Client, error) {
	if mongodbClient != nil {
		return mongodbClient, nil
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(mongodbURL).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, err
	}
	mongodbClient = client

	return mongodbClient, nil
}
