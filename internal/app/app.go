package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"calendar-read-model/internal/adapters/mongodb"
	"calendar-read-model/internal/adapters/rabbitmq"
	"calendar-read-model/internal/domain/calendar"
	"calendar-read-model/pkg/events"
	"calendar-read-model/pkg/logattr"
	"calendar-read-model/pkg/messages"

	"github.com/walletera/werrors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

const (
	RabbitMQCalendarExchangeName = "calendar_events"

	MongoDBName         = "calendar"
	MongoCollectionName = "events"
)

// App is the lifecycle manager: it owns the broker connection and the
// store client, hands them to the consumer as capabilities, and releases
// them on every exit path.
type App struct {
	rabbitmqHost     string
	rabbitmqPort     int
	rabbitmqUser     string
	rabbitmqPassword string
	mongodbURL       string
	logHandler       slog.Handler
	logger           *slog.Logger

	rabbitmqClient *rabbitmq.Client
	mongoClient    *mongo.Client
	processor      *messages.Processor[events.Handler]
}

func NewApp(opts ...Option) (*App, error) {
	app := &App{}
	err := setDefaultOpts(app)
	if err != nil {
		return nil, fmt.Errorf("failed setting default options: %w", err)
	}
	for _, opt := range opts {
		opt(app)
	}
	return app, nil
}

func (app *App) Run(ctx context.Context) error {
	app.logger = slog.
		New(app.logHandler).
		With(logattr.ServiceName("calendar-read-model"))

	processor, err := createCalendarMessageProcessor(app)
	if err != nil {
		return fmt.Errorf("error creating calendar message processor: %w", err)
	}
	app.processor = processor

	err = processor.Start(ctx)
	if err != nil {
		return fmt.Errorf("error starting calendar message processor: %w", err)
	}

	app.logger.Info("calendar-read-model started",
		logattr.ExchangeName(RabbitMQCalendarExchangeName),
		logattr.QueueName(app.rabbitmqClient.QueueName()))

	return nil
}

// Stop cancels the consume loop, waits for the in-flight message, and
// only then closes the broker connection and the store client.
func (app *App) Stop(ctx context.Context) {
	if app.processor != nil {
		err := app.processor.Stop(ctx)
		if err != nil {
			app.logger.Error("error stopping message processor", logattr.Error(err.Error()))
		}
	}
	if app.rabbitmqClient != nil {
		err := app.rabbitmqClient.Close()
		if err != nil {
			app.logger.Error("error closing rabbitmq client", logattr.Error(err.Error()))
		}
	}
	if app.mongoClient != nil {
		err := app.mongoClient.Disconnect(ctx)
		if err != nil {
			app.logger.Error("error disconnecting from mongo", logattr.Error(err.Error()))
		}
	}
	app.logger.Info("calendar-read-model stopped")
}

func setDefaultOpts(app *App) error {
	zapLogger, err := newZapLogger()
	if err != nil {
		return err
	}
	app.logHandler = zapslog.NewHandler(zapLogger.Core())
	return nil
}

func newZapLogger() (*zap.Logger, error) {
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
	return zapConfig.Build()
}

func createCalendarMessageProcessor(app *App) (*messages.Processor[events.Handler], error) {
	rabbitMQClient, err := rabbitmq.NewClient(
		rabbitmq.WithHost(app.rabbitmqHost),
		rabbitmq.WithPort(uint(app.rabbitmqPort)),
		rabbitmq.WithUser(app.rabbitmqUser),
		rabbitmq.WithPassword(app.rabbitmqPassword),
		rabbitmq.WithExchangeName(RabbitMQCalendarExchangeName),
		rabbitmq.WithLogger(app.logger.With(logattr.Component("rabbitmq.Client"))),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rabbitmq client: %w", err)
	}
	app.rabbitmqClient = rabbitMQClient

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(app.mongodbURL).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongodb: %w", err)
	}
	app.mongoClient = client

	repository := mongodb.NewEventsRepository(client, MongoDBName, MongoCollectionName)
	eventsHandler := calendar.NewEventsHandler(repository, app.logger.With(logattr.Component("calendar.EventsHandler")))

	calendarMessageProcessor := messages.NewProcessor[events.Handler](
		rabbitMQClient,
		events.NewDeserializer(app.logger.With(logattr.Component("events.Deserializer"))),
		eventsHandler,
		withErrorCallback(
			app.logger.With(
				logattr.Component("calendar.rabbitmq.MessageProcessor")),
		),
	)

	return calendarMessageProcessor, nil
}

func withErrorCallback(logger *slog.Logger) messages.ProcessorOpt {
	return messages.WithErrorCallback(func(wError werrors.WError) {
		logger.Error(
			"failed processing message",
			logattr.Error(wError.Message()))
	})
}
