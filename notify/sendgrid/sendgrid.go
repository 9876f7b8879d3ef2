// Package sendgrid delivers invoice emails through the SendGrid v3 API.
package sendgrid

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/xraph/tally/notify"
)

// Config holds SendGrid credentials and the sender identity.
type Config struct {
	APIKey    string `json:"api_key" mapstructure:"api_key" yaml:"api_key"`
	FromEmail string `json:"from_email" mapstructure:"from_email" yaml:"from_email"`
	FromName  string `json:"from_name" mapstructure:"from_name" yaml:"from_name"`
}

// Sender is the subset of the SendGrid client used here.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Notifier implements notify.Notifier.
type Notifier struct {
	sender Sender
	from   *mail.Email
	logger *slog.Logger
}

var _ notify.Notifier = (*Notifier)(nil)

// New creates a Notifier backed by the SendGrid API.
func New(cfg Config, logger *slog.Logger) (*Notifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid: api key is empty")
	}
	return NewWithSender(sg.NewSendClient(cfg.APIKey), cfg, logger)
}

// NewWithSender creates a Notifier over an arbitrary Sender.
func NewWithSender(sender Sender, cfg Config, logger *slog.Logger) (*Notifier, error) {
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("sendgrid: from address is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sender: sender,
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}, nil
}

// SendInvoiceCreated emails the client a new or re-sent invoice.
func (n *Notifier) SendInvoiceCreated(ctx context.Context, msg *notify.Message) error {
	inv := msg.Invoice
	biz := businessName(msg)
	subject := fmt.Sprintf("Invoice %s from %s", inv.Number, biz)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", msg.Client.Name)
	fmt.Fprintf(&b, "%s has sent you invoice %s for %s, due %s.\n",
		biz, inv.Number, inv.BalanceDue(), inv.DueDate.Format("Jan 2, 2006"))
	if msg.PublicURL != "" {
		fmt.Fprintf(&b, "\nView and pay online: %s\n", msg.PublicURL)
	}
	if inv.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", inv.Notes)
	}

	return n.send(ctx, msg, subject, b.String())
}

// SendPaymentThanks emails the client a receipt once the invoice is paid.
func (n *Notifier) SendPaymentThanks(ctx context.Context, msg *notify.Message) error {
	inv := msg.Invoice
	biz := businessName(msg)
	subject := fmt.Sprintf("Thank you for your payment - %s", inv.Number)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", msg.Client.Name)
	fmt.Fprintf(&b, "We received %s for invoice %s. Thank you!\n", inv.AmountPaid, inv.Number)
	if msg.PublicURL != "" {
		fmt.Fprintf(&b, "\nYour receipt: %s\n", msg.PublicURL)
	}
	fmt.Fprintf(&b, "\n%s\n", biz)

	return n.send(ctx, msg, subject, b.String())
}

func (n *Notifier) send(ctx context.Context, msg *notify.Message, subject, plain string) error {
	to := mail.NewEmail(msg.Client.Name, msg.Recipient())
	htmlBody := "<pre>" + html.EscapeString(plain) + "</pre>"
	message := mail.NewSingleEmail(n.from, subject, to, plain, htmlBody)

	resp, err := n.sender.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: send failed: status=%d body=%s", resp.StatusCode, resp.Body)
	}

	n.logger.Debug("email sent",
		"kind", string(msg.Kind),
		"invoice_number", msg.Invoice.Number,
		"status", resp.StatusCode,
	)
	return nil
}

func businessName(msg *notify.Message) string {
	if msg.Business != nil && msg.Business.Name != "" {
		return msg.Business.Name
	}
	return "Your supplier"
}
