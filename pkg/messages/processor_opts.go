package messages

import (
	"time"

	"github.com/walletera/werrors"
)

// ErrorCallback is invoked for every message that could not be processed,
// whether it was dropped or nacked.
type ErrorCallback func(processingError werrors.WError)

type ProcessorOpts struct {
	errorCallback     ErrorCallback
	processingTimeout time.Duration
	maxRetries        int
}

var defaultProcessorOpts = ProcessorOpts{
	errorCallback:     func(err werrors.WError) {},
	processingTimeout: 1 * time.Minute,
	maxRetries:        3,
}

type ProcessorOpt func(opts *ProcessorOpts)

func WithErrorCallback(errorCallback ErrorCallback) ProcessorOpt {
	return func(opts *ProcessorOpts) {
		opts.errorCallback = errorCallback
	}
}

func WithProcessingTimeout(processingTimeout time.Duration) ProcessorOpt {
	return func(opts *ProcessorOpts) {
		opts.processingTimeout = processingTimeout
	}
}

func WithMaxRetries(maxRetries int) ProcessorOpt {
	return func(opts *ProcessorOpts) {
		opts.maxRetries = maxRetries
	}
}
