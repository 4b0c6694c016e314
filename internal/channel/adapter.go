package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shiftguard/notify-engine/internal/domain"
)

// Stable error codes recorded in the ledger and surfaced to callers.
const (
	CodeUnknownChannel    = "UNKNOWN_CHANNEL"
	CodeChannelDisabled   = "CHANNEL_DISABLED"
	CodeEmailNotFound     = "EMAIL_NOT_FOUND"
	CodeSMSNotImplemented = "SMS_NOT_IMPLEMENTED"
	CodeTimeout           = "TIMEOUT"
	CodeTransportError    = "TRANSPORT_ERROR"
)

// Receipt carries provider metadata from a successful delivery.
type Receipt struct {
	MessageID string
}

// Adapter is the uniform per-channel delivery port. A nil error means the
// channel accepted the notification; any error is a failed outcome.
type Adapter interface {
	Name() domain.Channel
	Provider() string
	Deliver(ctx context.Context, n domain.Notification) (*Receipt, error)
}

// Error classifies a channel delivery failure with a stable code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if len(parts) == 0 {
		return "channel error"
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func asChannelError(err error, target **Error) bool {
	return errors.As(err, target)
}

// Registry maps channel names to adapters, rejecting unknown names explicitly.
type Registry struct {
	adapters map[domain.Channel]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	byName := make(map[domain.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("nil adapter")
		}
		name := a.Name()
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("duplicate adapter for channel %q", name)
		}
		byName[name] = a
	}

	return &Registry{adapters: byName}, nil
}

// Resolve returns the adapter registered for the channel name.
func (r *Registry) Resolve(name domain.Channel) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}
