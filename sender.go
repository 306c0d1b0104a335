package gelf

import (
	"context"

	"github.com/google/uuid"
)

// Sender is the contract shared by GELF transports. Every call takes an
// optional correlation id through WithCorrelationID; when none is given a
// fresh one is generated and carried into the result or error.
//
// Precondition violations are returned as plain errors before any attempt
// is made. Delivery faults are returned as *SendError.
type Sender interface {
	Send(ctx context.Context, short, full string, data any, options ...SendOption) (*SendResult, error)
	SendFields(ctx context.Context, short, full string, fields Fields, options ...SendOption) (*SendResult, error)
	SendAsync(ctx context.Context, short, full string, data any, options ...SendOption) (<-chan Outcome, error)
	SendFieldsAsync(ctx context.Context, short, full string, fields Fields, options ...SendOption) (<-chan Outcome, error)

	// SendRaw replays a body captured from a SendResult or SendError.
	SendRaw(ctx context.Context, body []byte, options ...SendOption) (*SendResult, error)
}

// SendOption adjusts a single send.
type SendOption func(*sendConf)

type sendConf struct {
	id       uuid.UUID
	override *Override
	level    *int32
}

func newSendConf(options []SendOption) sendConf {
	var sc sendConf
	for _, option := range options {
		option(&sc)
	}
	if sc.id == uuid.Nil {
		sc.id = uuid.New()
	}
	return sc
}

// WithCorrelationID sets the id reported with the outcome.
func WithCorrelationID(id uuid.UUID) SendOption {
	return func(sc *sendConf) {
		sc.id = id
	}
}

// WithOverride sends this attempt to another endpoint, leaving the
// client's configuration untouched.
func WithOverride(o Override) SendOption {
	return func(sc *sendConf) {
		sc.override = &o
	}
}

// WithLevel sets the GELF syslog level of the entry. Raw sends ignore it.
func WithLevel(level int32) SendOption {
	return func(sc *sendConf) {
		sc.level = &level
	}
}
