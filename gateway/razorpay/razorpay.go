// Package razorpay implements gateway.Gateway on Razorpay orders.
package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/types"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Razorpay-Signature"

// Config holds Razorpay API credentials.
type Config struct {
	KeyID         string `json:"key_id" mapstructure:"key_id" yaml:"key_id"`
	KeySecret     string `json:"key_secret" mapstructure:"key_secret" yaml:"key_secret"`
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret" yaml:"webhook_secret"`
}

// OrderCreator is the subset of the Razorpay client used to open orders.
type OrderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Gateway implements gateway.Gateway.
type Gateway struct {
	orders OrderCreator
	cfg    Config
}

var _ gateway.Gateway = (*Gateway)(nil)

// New creates a Gateway with a live Razorpay client.
func New(cfg Config) (*Gateway, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, fmt.Errorf("razorpay: client not configured")
	}
	client := rzp.NewClient(cfg.KeyID, cfg.KeySecret)
	return NewWithOrders(client.Order, cfg), nil
}

// NewWithOrders creates a Gateway over an arbitrary order API.
func NewWithOrders(orders OrderCreator, cfg Config) *Gateway {
	return &Gateway{orders: orders, cfg: cfg}
}

// Name implements gateway.Gateway.
func (g *Gateway) Name() string { return "razorpay" }

// CreateCheckoutSession opens an order for the balance. The returned URL is
// the invoice's public pay page carrying the order id, where the hosted
// checkout is launched.
func (g *Gateway) CreateCheckoutSession(_ context.Context, req gateway.CheckoutRequest) (*gateway.Session, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("razorpay: amount must be positive, got %s", req.Amount)
	}

	orderData := map[string]interface{}{
		"amount":   req.Amount.Amount,
		"currency": strings.ToUpper(req.Amount.Currency),
		"receipt":  req.InvoiceNumber,
		"notes": map[string]interface{}{
			"invoice_id":  req.InvoiceID,
			"share_token": req.ShareToken,
			"account_id":  req.AccountID,
		},
	}

	order, err := g.orders.Create(orderData, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: create order: %w", err)
	}
	orderID, _ := order["id"].(string)
	if orderID == "" {
		return nil, fmt.Errorf("razorpay: create order: response has no id")
	}

	return &gateway.Session{
		Provider: g.Name(),
		ID:       orderID,
		URL:      checkoutURL(req.ReturnURL, orderID, g.cfg.KeyID),
		Amount:   req.Amount,
	}, nil
}

// ParseWebhook verifies the signature and extracts captured payments.
func (g *Gateway) ParseWebhook(r *http.Request, body []byte) (*gateway.Confirmation, error) {
	if !VerifyWebhookSignature(body, r.Header.Get(SignatureHeader), g.cfg.WebhookSecret) {
		return nil, gateway.ErrInvalidSignature
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("razorpay: decode webhook: %w", err)
	}
	if evt.Event != "payment.captured" && evt.Event != "order.paid" {
		return nil, gateway.ErrIgnoredEvent
	}

	p := evt.Payload.Payment.Entity
	if p.ID == "" || p.Amount <= 0 {
		return nil, gateway.ErrIgnoredEvent
	}

	notes := p.Notes
	if notes.InvoiceID == "" {
		notes = evt.Payload.Order.Entity.Notes
	}

	return &gateway.Confirmation{
		Provider:   g.Name(),
		Reference:  p.ID,
		SessionID:  p.OrderID,
		InvoiceID:  notes.InvoiceID,
		ShareToken: notes.ShareToken,
		Amount:     types.New(p.Amount, p.Currency),
	}, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyPaymentSignature checks the signature returned to the browser by
// the hosted checkout ("order_id|payment_id" signed with the key secret).
func (g *Gateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if g.cfg.KeySecret == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(g.cfg.KeySecret))
	h.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func checkoutURL(base, orderID, keyID string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("razorpay_order_id", orderID)
	q.Set("razorpay_key_id", keyID)
	u.RawQuery = q.Encode()
	return u.String()
}

type notes struct {
	InvoiceID  string `json:"invoice_id"`
	ShareToken string `json:"share_token"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Notes    notes  `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID    string `json:"id"`
				Notes notes  `json:"notes"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// UnmarshalJSON accepts the empty array Razorpay sends when no notes exist.
func (n *notes) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '[' {
		*n = notes{}
		return nil
	}
	type plain notes
	return json.Unmarshal(b, (*plain)(n))
}
