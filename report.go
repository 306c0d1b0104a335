package gelf

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendResult describes a delivered message.
type SendResult struct {
	CorrelationID uuid.UUID

	// MessageContent is the serialized GELF text. It is empty for raw sends.
	MessageContent string

	// MessageBody holds the bytes put on the wire, compressed when
	// compression applied.
	MessageBody []byte
}

// SendError describes a failed delivery. Err is the fault, MessageBody the
// bytes that were, or would have been, transmitted; SendRaw accepts them
// as they are.
type SendError struct {
	SendResult
	URL string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("gelf: send %s to %s failed: %v", e.CorrelationID, e.URL, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// StatusError is the fault for a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "gelf: collector responded " + e.Status
	}
	return "gelf: collector responded " + e.Status + ": " + e.Body
}

// Outcome is what an asynchronous send delivers: exactly one of Result and
// Err is set.
type Outcome struct {
	Result *SendResult
	Err    *SendError
}

// reporter fans outcomes out to registered observers in registration
// order, on the goroutine that completed the attempt.
type reporter struct {
	logger *zap.Logger

	mu         sync.RWMutex
	onSuccess  []func(*SendResult)
	onError    []func(*SendError)
	onTLSError []func(*TLSValidationError)
}

func (r *reporter) addSuccess(fn func(*SendResult)) {
	r.mu.Lock()
	r.onSuccess = append(r.onSuccess, fn)
	r.mu.Unlock()
}

func (r *reporter) addError(fn func(*SendError)) {
	r.mu.Lock()
	r.onError = append(r.onError, fn)
	r.mu.Unlock()
}

func (r *reporter) addTLSError(fn func(*TLSValidationError)) {
	r.mu.Lock()
	r.onTLSError = append(r.onTLSError, fn)
	r.mu.Unlock()
}

func (r *reporter) success(res *SendResult) {
	r.mu.RLock()
	observers := r.onSuccess
	r.mu.RUnlock()

	for _, fn := range observers {
		r.call("success", func() { fn(res) })
	}
}

func (r *reporter) failure(err *SendError) {
	r.mu.RLock()
	observers := r.onError
	r.mu.RUnlock()

	for _, fn := range observers {
		r.call("error", func() { fn(err) })
	}
}

func (r *reporter) tlsError(v *TLSValidationError) {
	r.mu.RLock()
	observers := r.onTLSError
	r.mu.RUnlock()

	for _, fn := range observers {
		r.call("tls", func() { fn(v) })
	}
}

// call keeps a panicking observer from taking down the send.
func (r *reporter) call(channel string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("gelf observer panicked",
				zap.String("channel", channel),
				zap.Any("panic", p),
			)
		}
	}()
	fn()
}
