package mail

import (
	"context"

	"github.com/resend/resend-go/v2"
)

type ResendMailer struct {
	client *resend.Client
	sender string
}

func NewResendMailer(apiKey, sender string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), sender: sender}
}

func (m *ResendMailer) SendResetEmail(ctx context.Context, to, resetURL string) error {
	params := &resend.SendEmailRequest{
		From:    m.sender,
		To:      []string{to},
		Subject: resetSubject,
		Text:    resetText(resetURL),
		Html:    resetHTML(resetURL),
	}

	_, err := m.client.Emails.SendWithContext(ctx, params)
	return err
}
