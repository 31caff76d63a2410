package rabbitmq

import (
	"calendar-read-model/pkg/messages"

	"github.com/rabbitmq/amqp091-go"
)

// Acknowledger settles one delivery. Retry accounting comes from the
// broker itself: quorum queues stamp each redelivery with an
// x-delivery-count header, classic queues only expose the boolean
// Redelivered flag, which allows a single requeue before the message is
// dropped.
type Acknowledger struct {
	delivery amqp091.Delivery
}

func NewAcknowledger(delivery amqp091.Delivery) *Acknowledger {
	return &Acknowledger{
		delivery: delivery,
	}
}

func (a *Acknowledger) Ack() error {
	return a.delivery.Ack(false)
}

func (a *Acknowledger) Nack(opts messages.NackOpts) error {
	return a.delivery.Nack(false, opts.Requeue && a.retryBudgetLeft(opts.MaxRetries))
}

func (a *Acknowledger) retryBudgetLeft(maxRetries int) bool {
	if header, ok := a.delivery.Headers["x-delivery-count"]; ok {
		switch count := header.(type) {
		case int32:
			return int(count) < maxRetries
		case int64:
			return count < int64(maxRetries)
		}
	}
	return !a.delivery.Redelivered
}
