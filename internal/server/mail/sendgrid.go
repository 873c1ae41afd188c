package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridMailer struct {
	client *sendgrid.Client
	sender string
}

func NewSendGridMailer(apiKey, sender string) *SendGridMailer {
	return &SendGridMailer{client: sendgrid.NewSendClient(apiKey), sender: sender}
}

func (m *SendGridMailer) SendResetEmail(ctx context.Context, to, resetURL string) error {
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail("", m.sender),
		resetSubject,
		sgmail.NewEmail("", to),
		resetText(resetURL),
		resetHTML(resetURL),
	)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
