package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/civicgrid/complaint-service/internal/config"
)

// EmailClient sends email through SendGrid.
type EmailClient struct {
	cfg    config.EmailConfig
	logger *slog.Logger
	client *sendgrid.Client
}

// NewEmailClient creates a new email client
func NewEmailClient(cfg config.EmailConfig, logger *slog.Logger) *EmailClient {
	return &EmailClient{
		cfg:    cfg,
		logger: logger,
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
	}
}

// Send sends a plain-text email to the recipient.
func (c *EmailClient) Send(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail(c.cfg.FromName, c.cfg.FromAddress)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, body, "")

	resp, err := c.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	return nil
}

// SMSClient sends SMS through Twilio.
type SMSClient struct {
	cfg    config.SMSConfig
	logger *slog.Logger
	client *twilio.RestClient
}

// NewSMSClient creates a new SMS client
func NewSMSClient(cfg config.SMSConfig, logger *slog.Logger) *SMSClient {
	return &SMSClient{
		cfg:    cfg,
		logger: logger,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioSID,
			Password: cfg.TwilioToken,
		}),
	}
}

// Send sends an SMS to the recipient.
func (c *SMSClient) Send(ctx context.Context, to, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.cfg.FromNumber)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	return nil
}

// WebhookPayload is the JSON body posted to the configured webhook.
type WebhookPayload struct {
	Event        string `json:"event"`
	ComplaintID  string `json:"complaint_id"`
	TrackingCode string `json:"tracking_code"`
	Severity     string `json:"severity"`
	Reason       string `json:"reason"`
}

// WebhookClient posts escalation events to an operator-configured endpoint.
type WebhookClient struct {
	cfg    config.WebhookConfig
	logger *slog.Logger
	client *http.Client
}

// NewWebhookClient creates a new webhook client
func NewWebhookClient(cfg config.WebhookConfig, logger *slog.Logger) *WebhookClient {
	return &WebhookClient{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Send posts the payload to the configured URL.
func (c *WebhookClient) Send(ctx context.Context, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
