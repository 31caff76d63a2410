package tests

import (
	"calendar-read-model/pkg/events"
)

var _ events.EventData = publishable{}

// publishable lets the tests push arbitrary bytes through the broker,
// including bytes that are not a valid envelope.
type publishable struct {
	messageType string
	rawEvent    []byte
}

func (p publishable) Type() string {
	return p.messageType
}

func (p publishable) Serialize() ([]byte, error) {
	return p.rawEvent, nil
}
