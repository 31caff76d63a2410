package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"calendar-read-model/pkg/events"
	"calendar-read-model/pkg/logattr"
	"calendar-read-model/pkg/messages"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultHost     = "localhost"
	DefaultPort     = 5672
	DefaultUser     = "guest"
	DefaultPassword = "guest"

	ManagementUIPort = 15672

	DefaultReconnectInterval = 2 * time.Second
)

// Client owns one connection/channel pair to the broker and one declared
// fanout exchange. The same client type serves both roles: producing
// services call Publish, the calendar service calls Consume. The client
// is an injected, per-process resource; its owner calls Close exactly
// once on shutdown.
type Client struct {
	host              string
	port              uint
	user              string
	password          string
	exchangeName      string
	reconnectInterval time.Duration
	logger            *slog.Logger

	mu          sync.Mutex
	conn        *amqp.Connection
	connChannel *amqp.Channel
	queueName   string
	consuming   bool
	out         chan messages.Message

	closed       chan struct{}
	closeOnce    sync.Once
	outCloseOnce sync.Once
}

var _ messages.Consumer = (*Client)(nil)
var _ events.Publisher = (*Client)(nil)

type Option func(c *Client)

func NewClient(opts ...Option) (*Client, error) {
	client := &Client{
		host:              DefaultHost,
		port:              DefaultPort,
		user:              DefaultUser,
		password:          DefaultPassword,
		reconnectInterval: DefaultReconnectInterval,
		logger:            slog.Default(),
		closed:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.exchangeName == "" {
		return nil, fmt.Errorf("exchange name can't be empty")
	}
	err := client.connect()
	if err != nil {
		return nil, err
	}
	go client.monitorConnection()
	return client, nil
}

// Publish serializes the event and sends it through the fanout exchange
// with no routing key, marked for persistent storage by the broker.
// Failures surface to the caller; there is no internal retry.
func (c *Client) Publish(ctx context.Context, data events.EventData) error {
	serializedEvent, err := data.Serialize()
	if err != nil {
		return fmt.Errorf("error serializing event: %w", err)
	}

	c.mu.Lock()
	connChannel := c.connChannel
	c.mu.Unlock()
	if connChannel == nil {
		return fmt.Errorf("rabbitmq client is not connected")
	}

	err = connChannel.PublishWithContext(ctx,
		c.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         serializedEvent,
		})
	if err != nil {
		return fmt.Errorf("failed publishing %s event: %w", data.Type(), err)
	}
	return nil
}

// Consume declares a server-named exclusive durable queue, binds it to
// the exchange and starts delivering messages. It may be called once per
// client; the returned channel stays valid across reconnections.
func (c *Client) Consume() (<-chan messages.Message, error) {
	c.mu.Lock()
	if c.connChannel == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("rabbitmq client is not connected")
	}
	if c.consuming {
		c.mu.Unlock()
		return nil, fmt.Errorf("Consume was already called on this client")
	}
	c.consuming = true
	c.out = make(chan messages.Message)
	c.mu.Unlock()

	deliveries, err := c.subscribe()
	if err != nil {
		return nil, err
	}
	go c.pump(deliveries)

	return c.out, nil
}

func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.connChannel != nil {
			err := c.connChannel.Close()
			if err != nil {
				closeErr = fmt.Errorf("failed to close rabbitmq connection channel: %w", err)
			}
		}
		if c.conn != nil {
			err := c.conn.Close()
			if err != nil && closeErr == nil {
				closeErr = fmt.Errorf("failed to close rabbitmq connection: %w", err)
			}
		}
	})
	return closeErr
}

func (c *Client) QueueName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueName
}

func (c *Client) connect() error {
	conn, err := amqp.Dial(fmt.Sprintf("amqp://%s:%s@%s:%d/", c.user, c.password, c.host, c.port))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	// idempotent: safe if a producer already declared it
	err = ch.ExchangeDeclare(
		c.exchangeName,      // name
		amqp.ExchangeFanout, // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connChannel = ch
	c.mu.Unlock()

	return nil
}

func (c *Client) subscribe() (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.connChannel.QueueDeclare(
		"",    // name, assigned by the broker
		true,  // durable
		false, // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}
	c.queueName = q.Name

	err = c.connChannel.QueueBind(
		q.Name,         // queue name
		"",             // routing key, ignored by fanout
		c.exchangeName, // exchange
		false,
		nil)
	if err != nil {
		return nil, fmt.Errorf("failed to bind queue %s to exchange %s: %w", q.Name, c.exchangeName, err)
	}

	deliveries, err := c.connChannel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	return deliveries, nil
}

// pump forwards broker deliveries to the channel handed out by Consume.
// When the delivery channel closes because the connection was lost, pump
// returns and the monitor goroutine starts a replacement after redialing.
func (c *Client) pump(deliveries <-chan amqp.Delivery) {
	for delivery := range deliveries {
		select {
		case c.out <- messages.NewMessage(delivery.Body, NewAcknowledger(delivery)):
		case <-c.closed:
			return
		}
	}
	if c.isClosed() {
		c.closeOut()
	}
}

// closeOut may be reached from both an old pump draining after a lost
// connection and its replacement; the channel closes exactly once.
func (c *Client) closeOut() {
	c.outCloseOnce.Do(func() {
		close(c.out)
	})
}

func (c *Client) monitorConnection() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.closed:
			return
		case amqpErr := <-connClosed:
			if amqpErr == nil {
				// closed locally
				return
			}
			c.logger.Warn("broker connection lost, reconnecting",
				logattr.ExchangeName(c.exchangeName),
				logattr.Error(amqpErr.Error()))
		}

		// redial until the broker is reachable again; there is no retry ceiling
		for {
			if c.isClosed() {
				return
			}
			err := c.reconnect()
			if err == nil {
				break
			}
			c.logger.Warn("broker reconnect failed, retrying",
				logattr.ExchangeName(c.exchangeName),
				logattr.Error(err.Error()))
			select {
			case <-c.closed:
				return
			case <-time.After(c.reconnectInterval):
			}
		}
		c.logger.Info("broker connection restored", logattr.ExchangeName(c.exchangeName))
	}
}

// reconnect re-dials and re-declares the exchange; when the client is
// consuming it also re-declares the exclusive queue, re-binds it and
// resumes deliveries on the channel handed out by Consume.
func (c *Client) reconnect() error {
	err := c.connect()
	if err != nil {
		return err
	}

	c.mu.Lock()
	consuming := c.consuming
	c.mu.Unlock()
	if !consuming {
		return nil
	}

	deliveries, err := c.subscribe()
	if err != nil {
		// don't leak the fresh connection while queue setup keeps failing
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		conn.Close()
		return err
	}
	go c.pump(deliveries)
	return nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func WithHost(host string) Option {
	return func(c *Client) {
		c.host = host
	}
}

func WithPort(port uint) Option {
	return func(c *Client) {
		c.port = port
	}
}

func WithUser(user string) Option {
	return func(c *Client) {
		c.user = user
	}
}

func WithPassword(password string) Option {
	return func(c *Client) {
		c.password = password
	}
}

func WithExchangeName(exchangeName string) Option {
	return func(c *Client) {
		c.exchangeName = exchangeName
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithReconnectInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.reconnectInterval = interval
	}
}
