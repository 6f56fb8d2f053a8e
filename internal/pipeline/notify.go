package pipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type EmailConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

// Notifier emails operators when a run fails. Failed runs usually mean
// the portal changed its markup and someone needs to look at the
// diagnostic captures.
type Notifier struct {
	email EmailConfig
}

func NewNotifier(cfg EmailConfig) Notifier {
	return Notifier{email: cfg}
}

func (n Notifier) Enabled() bool {
	return n.email.Server != "" && len(n.email.Recipients) > 0
}

func (n Notifier) NotifyFailure(ctx context.Context, summary RunSummary, runErr error) error {
	_, span := tracer.Start(ctx, "Notifier.NotifyFailure")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Result Sync <%s>", n.email.EmailAddress)
	mail.To = n.email.Recipients
	mail.Subject = fmt.Sprintf("Scrape run %s failed during %s", summary.RunID, summary.Stage)

	body := fmt.Sprintf(`Scrape run %s failed.

Stage:      %s
Stabilized: %v
Extracted:  %d
Error:      %v

Diagnostic captures for this run are in the diagnostics directory.`,
		summary.RunID, summary.Stage, summary.Stabilized, summary.Extracted, runErr)
	mail.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", n.email.Server, n.email.Port)
	err := mail.Send(addr, smtp.PlainAuth("", n.email.EmailAddress, n.email.Password, n.email.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send failure notification")
		return err
	}
	return nil
}
