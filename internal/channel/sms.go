package channel

import (
	"context"

	"github.com/shiftguard/notify-engine/internal/domain"
)

const smsProviderName = "sms-stub"

// SMSAdapter is a deliberate placeholder: no SMS provider is contracted yet,
// so every delivery fails with SMS_NOT_IMPLEMENTED and lands in the ledger.
type SMSAdapter struct{}

func NewSMSAdapter() *SMSAdapter {
	return &SMSAdapter{}
}

func (a *SMSAdapter) Name() domain.Channel { return domain.ChannelSMS }

func (a *SMSAdapter) Provider() string { return smsProviderName }

func (a *SMSAdapter) Deliver(_ context.Context, _ domain.Notification) (*Receipt, error) {
	return nil, &Error{
		Code:    CodeSMSNotImplemented,
		Message: "sms delivery is not implemented",
	}
}
