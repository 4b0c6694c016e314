package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRelayTimeout = 10 * time.Second

type relayRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type relayResponse struct {
	MessageID string `json:"messageId"`
}

// RelayEmailSender delivers email through an HTTP relay endpoint.
type RelayEmailSender struct {
	client   *resty.Client
	endpoint string
}

func NewRelayEmailSender(endpoint string) (*RelayEmailSender, error) {
	client := resty.New()
	client.SetTimeout(defaultRelayTimeout)
	client.SetRetryCount(0)

	return NewRelayEmailSenderWithClient(endpoint, client)
}

func NewRelayEmailSenderWithClient(endpoint string, client *resty.Client) (*RelayEmailSender, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("email relay endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid email relay endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRelayTimeout)
	}
	client.SetRetryCount(0)

	return &RelayEmailSender{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (s *RelayEmailSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("relay sender is not initialized")
	}

	var parsed relayResponse
	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(relayRequest{To: to, Subject: subject, Body: body}).
		SetResult(&parsed).
		Post(s.endpoint)
	if err != nil {
		code := CodeTransportError
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}
		return "", &Error{
			Code:    code,
			Message: "email relay request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return "", &Error{
			Code:    CodeTransportError,
			Message: "email relay returned empty response",
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		messageID := strings.TrimSpace(parsed.MessageID)
		if messageID == "" {
			messageID = strings.TrimSpace(response.Header().Get("X-Request-ID"))
		}
		return messageID, nil
	}

	return "", &Error{
		Code:    CodeTransportError,
		Message: fmt.Sprintf("email relay returned status %d", statusCode),
	}
}

// HTTPProfileDirectory resolves recipient email addresses from the profile
// service.
type HTTPProfileDirectory struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPProfileDirectory(baseURL string) (*HTTPProfileDirectory, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("profile service url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid profile service url: %w", err)
	}

	client := resty.New()
	client.SetTimeout(defaultRelayTimeout)
	client.SetRetryCount(0)

	return &HTTPProfileDirectory{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (d *HTTPProfileDirectory) EmailAddress(ctx context.Context, recipientID string) (string, error) {
	var parsed struct {
		Email string `json:"email"`
	}

	response, err := d.client.R().
		SetContext(ctx).
		SetResult(&parsed).
		Get(fmt.Sprintf("%s/v1/profiles/%s/email", d.baseURL, url.PathEscape(recipientID)))
	if err != nil {
		return "", fmt.Errorf("profile lookup request failed: %w", err)
	}

	switch {
	case response.StatusCode() == http.StatusNotFound:
		return "", nil
	case response.IsError():
		return "", fmt.Errorf("profile service returned status %d", response.StatusCode())
	}

	return strings.TrimSpace(parsed.Email), nil
}
