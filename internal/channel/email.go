package channel

import (
	"context"
	"strings"

	"github.com/shiftguard/notify-engine/internal/domain"
)

// ProfileDirectory resolves a recipient's email address. An empty address with
// a nil error means the recipient has no address on file.
type ProfileDirectory interface {
	EmailAddress(ctx context.Context, recipientID string) (string, error)
}

// EmailSender is the outbound email transport. It returns a provider message
// id on success.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// EmailAdapter resolves the recipient address and delegates to the transport.
type EmailAdapter struct {
	directory ProfileDirectory
	sender    EmailSender
	provider  string
}

func NewEmailAdapter(directory ProfileDirectory, sender EmailSender, provider string) *EmailAdapter {
	if strings.TrimSpace(provider) == "" {
		provider = "email-relay"
	}

	return &EmailAdapter{
		directory: directory,
		sender:    sender,
		provider:  provider,
	}
}

func (a *EmailAdapter) Name() domain.Channel { return domain.ChannelEmail }

func (a *EmailAdapter) Provider() string { return a.provider }

func (a *EmailAdapter) Deliver(ctx context.Context, n domain.Notification) (*Receipt, error) {
	address, err := a.directory.EmailAddress(ctx, n.RecipientID)
	if err != nil {
		return nil, &Error{
			Code:    CodeTransportError,
			Message: "profile lookup failed",
			Cause:   err,
		}
	}
	if strings.TrimSpace(address) == "" {
		// Do not hit the transport for recipients without an address.
		return nil, &Error{
			Code:    CodeEmailNotFound,
			Message: "no email address on file for recipient",
		}
	}

	messageID, err := a.sender.Send(ctx, address, n.Title, n.Message)
	if err != nil {
		var chErr *Error
		if ok := asChannelError(err, &chErr); ok {
			return nil, chErr
		}
		return nil, &Error{
			Code:    CodeTransportError,
			Message: "email send failed",
			Cause:   err,
		}
	}

	return &Receipt{MessageID: messageID}, nil
}
