package kafka

import (
	"errors"
	"fmt"
)

// ErrBrokerUnavailable is returned by Connect when no broker answered within
// the connect timeout. The accompanying Publisher drops every message.
var ErrBrokerUnavailable = errors.New("kafka broker unavailable")

// PublishError reports a record the client failed to deliver.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
