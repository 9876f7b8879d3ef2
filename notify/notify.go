// Package notify delivers invoice emails through a pluggable Notifier.
//
// Deliveries are never made inline by the billing engine. They are queued as
// Jobs on a Dispatcher, which owns its own worker and retry policy, so a slow
// or failing mail provider cannot roll back or block an invoice transition,
// and failed deliveries stay visible and retryable.
package notify

import (
	"context"
	"errors"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/invoice"
)

// Kind names the notification template.
type Kind string

const (
	KindInvoiceCreated Kind = "invoice_created"
	KindPaymentThanks  Kind = "payment_thanks"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer is exhausted.
	ErrQueueFull = errors.New("notify: queue full")

	// ErrJobNotFound is returned by Retry for unknown or non-failed jobs.
	ErrJobNotFound = errors.New("notify: job not found")

	// ErrNoRecipient means the client has no email address.
	ErrNoRecipient = errors.New("notify: no recipient")

	// ErrUnknownKind means no Notifier method matches the job kind.
	ErrUnknownKind = errors.New("notify: unknown kind")
)

// Message is a read-only snapshot of everything a template needs.
type Message struct {
	Kind      Kind               `json:"kind"`
	Invoice   *invoice.Invoice   `json:"invoice"`
	Client    *client.Client     `json:"client"`
	Business  *business.Business `json:"business"`
	Payment   *invoice.Payment   `json:"payment,omitempty"`
	PublicURL string             `json:"public_url,omitempty"`
}

// Recipient returns the client's email address, if any.
func (m *Message) Recipient() string {
	if m.Client == nil {
		return ""
	}
	return m.Client.Email
}

// Notifier sends the two emails of the invoice lifecycle.
type Notifier interface {
	SendInvoiceCreated(ctx context.Context, msg *Message) error
	SendPaymentThanks(ctx context.Context, msg *Message) error
}

// Deliver routes msg to the Notifier method matching its kind.
func Deliver(ctx context.Context, n Notifier, msg *Message) error {
	if msg.Recipient() == "" {
		return ErrNoRecipient
	}
	switch msg.Kind {
	case KindInvoiceCreated:
		return n.SendInvoiceCreated(ctx, msg)
	case KindPaymentThanks:
		return n.SendPaymentThanks(ctx, msg)
	default:
		return ErrUnknownKind
	}
}

// NotifierFunc adapts a single function to both Notifier methods.
type NotifierFunc func(ctx context.Context, msg *Message) error

// SendInvoiceCreated implements Notifier.
func (f NotifierFunc) SendInvoiceCreated(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// SendPaymentThanks implements Notifier.
func (f NotifierFunc) SendPaymentThanks(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Discard is a Notifier that drops every message.
var Discard Notifier = NotifierFunc(func(context.Context, *Message) error { return nil })
