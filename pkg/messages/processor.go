package messages

import (
	"context"
	"fmt"

	"github.com/walletera/werrors"
)

type Event[Handler any] interface {
	Accept(ctx context.Context, handler Handler) werrors.WError
}

type Deserializer[Handler any] interface {
	Deserialize(rawPayload []byte) (Event[Handler], error)
}

// Processor dispatches messages from a Consumer to an events handler.
// Messages are processed one at a time, in receipt order, so per-queue
// delivery order is preserved through processing.
type Processor[Handler any] struct {
	messageConsumer    Consumer
	eventsDeserializer Deserializer[Handler]
	eventsHandler      Handler
	opts               ProcessorOpts

	cancel context.CancelFunc
	done   chan struct{}
}

func NewProcessor[Handler any](
	messageConsumer Consumer,
	eventsDeserializer Deserializer[Handler],
	eventsHandler Handler,
	customOpts ...ProcessorOpt,
) *Processor[Handler] {

	opts := defaultProcessorOpts
	for _, customOpt := range customOpts {
		customOpt(&opts)
	}

	return &Processor[Handler]{
		messageConsumer:    messageConsumer,
		eventsDeserializer: eventsDeserializer,
		eventsHandler:      eventsHandler,
		opts:               opts,
	}
}

func (p *Processor[Handler]) Start(ctx context.Context) error {
	msgCh, err := p.messageConsumer.Consume()
	if err != nil {
		return fmt.Errorf("failed consuming from message consumer: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.processMsgs(loopCtx, msgCh)
	return nil
}

// Stop cancels the processing loop and waits, bounded by ctx, for the
// in-flight message to finish. It does not close the consumer; the owner
// of the transport closes it after Stop returns.
func (p *Processor[Handler]) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("processor did not stop in time: %w", ctx.Err())
	}
}

func (p *Processor[Handler]) processMsgs(ctx context.Context, ch <-chan Message) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.processMsg(ctx, msg)
		}
	}
}

func (p *Processor[Handler]) processMsg(ctx context.Context, msg Message) {
	event, err := p.eventsDeserializer.Deserialize(msg.Payload())
	if err != nil {
		// poison message: report it and ack so it can't block the queue
		p.opts.errorCallback(werrors.NewUnprocessableMessageError(err.Error()))
		msg.Acknowledger().Ack()
		return
	}

	handlerCtx, cancelHandlerCtx := context.WithTimeout(ctx, p.opts.processingTimeout)
	defer cancelHandlerCtx()

	processingErr := event.Accept(handlerCtx, p.eventsHandler)
	if processingErr != nil {
		if ctx.Err() != nil {
			// shutdown interrupted the handler; the message stays unacked
			// and broker redelivery policy takes over
			return
		}
		p.handleError(msg, processingErr)
		return
	}
	msg.Acknowledger().Ack()
}

func (p *Processor[Handler]) handleError(msg Message, err werrors.WError) {
	p.opts.errorCallback(err)
	msg.Acknowledger().Nack(NackOpts{
		Requeue:    err.IsRetryable(),
		MaxRetries: p.opts.maxRetries,
	})
}
