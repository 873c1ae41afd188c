package mail

import (
	"context"

	"github.com/dmitrijs2005/ecomauth/internal/logging"
)

// LogMailer writes the reset link to the log instead of sending it.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendResetEmail(ctx context.Context, to, resetURL string) error {
	m.logger.Info(ctx, "password reset link", "to", to, "url", resetURL)
	return nil
}
