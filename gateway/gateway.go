// Package gateway defines the payment-gateway collaborator: creating a hosted
// checkout for an invoice's balance and turning provider webhooks into
// confirmed payments.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/xraph/tally/types"
)

// ErrInvalidSignature is returned when a webhook fails verification.
var ErrInvalidSignature = errors.New("gateway: invalid webhook signature")

// ErrIgnoredEvent is returned for webhook events that carry no payment.
var ErrIgnoredEvent = errors.New("gateway: event ignored")

// CheckoutRequest describes the balance to collect.
type CheckoutRequest struct {
	InvoiceID     string
	InvoiceNumber string
	ShareToken    string
	Amount        types.Money
	Description   string
	CustomerName  string
	CustomerEmail string
	AccountID     string // the business's connected payment account
	ReturnURL     string
}

// Session is a created checkout.
type Session struct {
	Provider string      `json:"provider"`
	ID       string      `json:"id"`
	URL      string      `json:"url"`
	Amount   types.Money `json:"amount"`
}

// Confirmation is a verified payment reported by the provider.
type Confirmation struct {
	Provider   string
	Reference  string // provider payment id, used for idempotency
	SessionID  string
	InvoiceID  string
	ShareToken string
	Amount     types.Money
}

// Gateway is implemented by payment providers.
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	// ParseWebhook verifies and decodes a webhook delivery. Events that do not
	// confirm a payment return ErrIgnoredEvent.
	ParseWebhook(r *http.Request, body []byte) (*Confirmation, error)
}
