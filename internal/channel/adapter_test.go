package channel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shiftguard/notify-engine/internal/domain"
)

type stubAdapter struct {
	name      domain.Channel
	provider  string
	deliverFn func(ctx context.Context, n domain.Notification) (*Receipt, error)
}

func (a *stubAdapter) Name() domain.Channel { return a.name }
func (a *stubAdapter) Provider() string     { return a.provider }
func (a *stubAdapter) Deliver(ctx context.Context, n domain.Notification) (*Receipt, error) {
	return a.deliverFn(ctx, n)
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	inapp := NewInAppAdapter()
	registry, err := NewRegistry(inapp, NewSMSAdapter())
	if err != nil {
		t.Fatalf("NewRegistry() unexpected error = %v", err)
	}

	got, ok := registry.Resolve(domain.ChannelInApp)
	if !ok || got != Adapter(inapp) {
		t.Fatal("registry should resolve the in-app adapter")
	}

	if _, ok := registry.Resolve(domain.ChannelEmail); ok {
		t.Fatal("registry should not resolve an unregistered channel")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(NewInAppAdapter(), NewInAppAdapter()); err == nil {
		t.Fatal("NewRegistry() should reject duplicate adapters")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("NewRegistry() should reject nil adapters")
	}
}

func TestChannelErrorFormatsAndUnwraps(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("connection refused")
	err := &Error{Code: CodeTransportError, Message: "email send failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Fatal("channel error should unwrap to its cause")
	}

	var chErr *Error
	wrapped := fmt.Errorf("deliver: %w", err)
	if !errors.As(wrapped, &chErr) || chErr.Code != CodeTransportError {
		t.Fatalf("errors.As should find the channel error, got %v", chErr)
	}
}

func TestInAppAdapterDeliver(t *testing.T) {
	t.Parallel()

	adapter := NewInAppAdapter()
	if adapter.Name() != domain.ChannelInApp {
		t.Fatalf("name = %s, want %s", adapter.Name(), domain.ChannelInApp)
	}

	receipt, err := adapter.Deliver(context.Background(), domain.Notification{ID: "n1"})
	if err != nil {
		t.Fatalf("Deliver() unexpected error = %v", err)
	}
	if receipt == nil || receipt.MessageID != "n1" {
		t.Fatalf("receipt = %+v, want message id n1", receipt)
	}
}

func TestSMSAdapterDeliverAlwaysFails(t *testing.T) {
	t.Parallel()

	adapter := NewSMSAdapter()
	_, err := adapter.Deliver(context.Background(), domain.Notification{ID: "n1"})

	var chErr *Error
	if !errors.As(err, &chErr) {
		t.Fatalf("Deliver() error = %v, want *channel.Error", err)
	}
	if chErr.Code != CodeSMSNotImplemented {
		t.Fatalf("code = %s, want %s", chErr.Code, CodeSMSNotImplemented)
	}
}

type fakeDirectory struct {
	emailFn func(ctx context.Context, recipientID string) (string, error)
}

func (d *fakeDirectory) EmailAddress(ctx context.Context, recipientID string) (string, error) {
	return d.emailFn(ctx, recipientID)
}

type fakeSender struct {
	sendFn func(ctx context.Context, to, subject, body string) (string, error)
}

func (s *fakeSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	return s.sendFn(ctx, to, subject, body)
}

func TestEmailAdapterDeliverSuccess(t *testing.T) {
	t.Parallel()

	directory := &fakeDirectory{
		emailFn: func(ctx context.Context, recipientID string) (string, error) {
			if recipientID != "guard-1" {
				t.Fatalf("recipient = %q, want guard-1", recipientID)
			}
			return "guard@example.com", nil
		},
	}
	sender := &fakeSender{
		sendFn: func(ctx context.Context, to, subject, body string) (string, error) {
			if to != "guard@example.com" {
				t.Fatalf("to = %q, want guard@example.com", to)
			}
			if subject != "Shift update" || body != "Your shift moved." {
				t.Fatalf("subject/body = %q/%q", subject, body)
			}
			return "relay-123", nil
		},
	}

	adapter := NewEmailAdapter(directory, sender, "")
	receipt, err := adapter.Deliver(context.Background(), domain.Notification{
		RecipientID: "guard-1",
		Title:       "Shift update",
		Message:     "Your shift moved.",
	})
	if err != nil {
		t.Fatalf("Deliver() unexpected error = %v", err)
	}
	if receipt.MessageID != "relay-123" {
		t.Fatalf("message id = %q, want relay-123", receipt.MessageID)
	}
	if adapter.Provider() != "email-relay" {
		t.Fatalf("provider = %q, want email-relay", adapter.Provider())
	}
}

func TestEmailAdapterDeliverNoAddress(t *testing.T) {
	t.Parallel()

	senderCalled := false
	adapter := NewEmailAdapter(
		&fakeDirectory{
			emailFn: func(ctx context.Context, recipientID string) (string, error) {
				return "", nil
			},
		},
		&fakeSender{
			sendFn: func(ctx context.Context, to, subject, body string) (string, error) {
				senderCalled = true
				return "", nil
			},
		},
		"",
	)

	_, err := adapter.Deliver(context.Background(), domain.Notification{RecipientID: "guard-2"})

	var chErr *Error
	if !errors.As(err, &chErr) || chErr.Code != CodeEmailNotFound {
		t.Fatalf("Deliver() error = %v, want %s", err, CodeEmailNotFound)
	}
	if senderCalled {
		t.Fatal("sender must not be invoked for recipients without an address")
	}
}

func TestEmailAdapterDeliverLookupFailure(t *testing.T) {
	t.Parallel()

	adapter := NewEmailAdapter(
		&fakeDirectory{
			emailFn: func(ctx context.Context, recipientID string) (string, error) {
				return "", fmt.Errorf("profile service unavailable")
			},
		},
		&fakeSender{
			sendFn: func(ctx context.Context, to, subject, body string) (string, error) {
				return "", nil
			},
		},
		"",
	)

	_, err := adapter.Deliver(context.Background(), domain.Notification{RecipientID: "guard-3"})

	var chErr *Error
	if !errors.As(err, &chErr) || chErr.Code != CodeTransportError {
		t.Fatalf("Deliver() error = %v, want %s", err, CodeTransportError)
	}
}

func TestEmailAdapterDeliverSenderChannelError(t *testing.T) {
	t.Parallel()

	adapter := NewEmailAdapter(
		&fakeDirectory{
			emailFn: func(ctx context.Context, recipientID string) (string, error) {
				return "guard@example.com", nil
			},
		},
		&fakeSender{
			sendFn: func(ctx context.Context, to, subject, body string) (string, error) {
				return "", &Error{Code: CodeTimeout, Message: "relay timed out"}
			},
		},
		"",
	)

	_, err := adapter.Deliver(context.Background(), domain.Notification{RecipientID: "guard-4"})

	var chErr *Error
	if !errors.As(err, &chErr) || chErr.Code != CodeTimeout {
		t.Fatalf("sender channel error should pass through, got %v", err)
	}
}

func TestNewRelayEmailSenderValidatesEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewRelayEmailSender(""); err == nil {
		t.Fatal("empty endpoint should be rejected")
	}
	if _, err := NewRelayEmailSender("not a url"); err == nil {
		t.Fatal("malformed endpoint should be rejected")
	}
	if _, err := NewRelayEmailSender("https://relay.internal/v1/send"); err != nil {
		t.Fatalf("valid endpoint rejected: %v", err)
	}
}

func TestNewHTTPProfileDirectoryValidatesURL(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPProfileDirectory(" "); err == nil {
		t.Fatal("empty base url should be rejected")
	}
	if _, err := NewHTTPProfileDirectory("https://profiles.internal/"); err != nil {
		t.Fatalf("valid base url rejected: %v", err)
	}
}
