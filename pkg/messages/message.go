package messages

// NackOpts tells the acknowledger how a rejected message may be retried.
// MaxRetries bounds requeueing of retryable failures; how the retry count
// is tracked is the transport's concern.
type NackOpts struct {
	Requeue    bool
	MaxRetries int
}

type Acknowledger interface {
	Ack() error
	Nack(opts NackOpts) error
}

// Message pairs a raw payload with the acknowledger that settles it.
type Message struct {
	payload      []byte
	acknowledger Acknowledger
}

func NewMessage(payload []byte, acknowledger Acknowledger) Message {
	return Message{payload: payload, acknowledger: acknowledger}
}

func (m Message) Payload() []byte {
	return m.payload
}

func (m Message) Acknowledger() Acknowledger {
	return m.acknowledger
}

// Consumer is the transport side of the processor. Consume hands out the
// message channel once per consumer; the channel stays open across
// reconnections and closes only when the consumer itself is closed.
type Consumer interface {
	Consume() (<-chan Message, error)
	Close() error
}
