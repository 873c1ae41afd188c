// Package mail delivers password reset emails through SendGrid, Resend or, in
// development, the application log.
package mail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/ecomauth/internal/logging"
)

const resetSubject = "Reset your password"

type Mailer interface {
	SendResetEmail(ctx context.Context, to, resetURL string) error
}

type Options struct {
	Provider string // log, sendgrid or resend
	APIKey   string
	Sender   string
}

// New returns the Mailer selected by opts.Provider.
func New(opts Options, logger logging.Logger) (Mailer, error) {
	switch opts.Provider {
	case "", "log":
		return NewLogMailer(logger), nil
	case "sendgrid":
		return NewSendGridMailer(opts.APIKey, opts.Sender), nil
	case "resend":
		return NewResendMailer(opts.APIKey, opts.Sender), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", opts.Provider)
	}
}

func resetText(resetURL string) string {
	return fmt.Sprintf("We received a request to reset your password.\n\n"+
		"Open the link below to choose a new one:\n%s\n\n"+
		"If you did not ask for this, you can ignore this email.", resetURL)
}

func resetHTML(resetURL string) string {
	return fmt.Sprintf(`<p>We received a request to reset your password.</p>`+
		`<p><a href="%s">Choose a new password</a></p>`+
		`<p>If you did not ask for this, you can ignore this email.</p>`, resetURL)
}

// Dispatcher sends mail in the background. A failed delivery is logged and
// otherwise ignored.
type Dispatcher struct {
	mailer  Mailer
	logger  logging.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(mailer Mailer, logger logging.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{mailer: mailer, logger: logger, timeout: timeout}
}

// SendResetEmail queues the message and returns immediately.
func (d *Dispatcher) SendResetEmail(to, resetURL string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.mailer.SendResetEmail(ctx, to, resetURL); err != nil {
			d.logger.Warn(ctx, "password reset email not sent", "to", to, "error", err)
			return
		}
		d.logger.Info(ctx, "password reset email sent", "to", to)
	}()
}

// Wait blocks until every queued message has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
