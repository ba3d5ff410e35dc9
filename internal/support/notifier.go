// Package support tells the human review channel about suspended accounts.
package support

import (
	"context"
	"fmt"
	"time"

	"interviewprep/internal/config"
	"interviewprep/internal/models"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Notifier is satisfied by both notifiers.
type Notifier interface {
	NotifySuspended(ctx context.Context, st models.AbuseState) error
}

// Sender is the subset of the SendGrid client used here.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier mails the support inbox when an account is suspended.
type EmailNotifier struct {
	sender Sender
	from   *mail.Email
	to     *mail.Email
	log    *zap.SugaredLogger
}

// NewNotifier returns an email notifier, or a log-only one when SendGrid is
// not configured.
func NewNotifier(cfg config.SupportConfig, log *zap.SugaredLogger) Notifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.SendgridKey == "" || cfg.FromEmail == "" || cfg.ToEmail == "" {
		log.Infof("support notifier: sendgrid not configured, suspensions are only logged")
		return LogNotifier{log: log}
	}
	return NewEmailNotifier(sendgrid.NewSendClient(cfg.SendgridKey), cfg.FromEmail, cfg.ToEmail, log)
}

func NewEmailNotifier(sender Sender, from, to string, log *zap.SugaredLogger) *EmailNotifier {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &EmailNotifier{
		sender: sender,
		from:   mail.NewEmail("Interview Prep", from),
		to:     mail.NewEmail("Support Review", to),
		log:    log,
	}
}

func (n *EmailNotifier) NotifySuspended(ctx context.Context, st models.AbuseState) error {
	subject := fmt.Sprintf("Account %d suspended for review", st.UserID)
	body := fmt.Sprintf(
		"User %d was suspended after %d early exits.\nWarned at: %s\nSuspended at: %s\n\nReset from the admin endpoint once reviewed.",
		st.UserID, st.EarlyExitCount, formatTime(st.WarnedAt), formatTime(st.SuspendedAt),
	)
	msg := mail.NewV3MailInit(n.from, subject, n.to, mail.NewContent("text/plain", body))

	resp, err := n.sender.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("send suspension email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send suspension email: status %d: %s", resp.StatusCode, resp.Body)
	}
	n.log.Infof("support notified about suspended user %d", st.UserID)
	return nil
}

// LogNotifier only records the suspension in the service log.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func (n LogNotifier) NotifySuspended(_ context.Context, st models.AbuseState) error {
	n.log.Warnf("user %d suspended after %d early exits, review required", st.UserID, st.EarlyExitCount)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
