package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/types"
)

type fakeOrders struct {
	got map[string]interface{}
	err error
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.got = data
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"id": "order_123"}, nil
}

func sign(body, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

func TestCreateCheckoutSession(t *testing.T) {
	orders := &fakeOrders{}
	g := NewWithOrders(orders, Config{KeyID: "rzp_test_key"})

	sess, err := g.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		InvoiceID:     "inv_01",
		InvoiceNumber: "INV-0001",
		ShareToken:    "tok",
		Amount:        types.INR(11000),
		ReturnURL:     "https://pay.example.com/i/tok",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if sess.ID != "order_123" {
		t.Errorf("session id = %q", sess.ID)
	}
	if !strings.Contains(sess.URL, "razorpay_order_id=order_123") {
		t.Errorf("url = %q", sess.URL)
	}
	if orders.got["amount"] != int64(11000) || orders.got["currency"] != "INR" || orders.got["receipt"] != "INV-0001" {
		t.Errorf("unexpected order data: %v", orders.got)
	}
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	g := NewWithOrders(&fakeOrders{err: errors.New("BAD_REQUEST_ERROR")}, Config{})
	if _, err := g.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{Amount: types.INR(100)}); err == nil {
		t.Error("expected provider error")
	}
	if _, err := g.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{Amount: types.INR(0)}); err == nil {
		t.Error("expected error for zero amount")
	}
}

const capturedEvent = `{
  "event": "payment.captured",
  "payload": {
    "payment": {"entity": {"id": "pay_ABC", "order_id": "order_123", "amount": 5000, "currency": "INR",
      "notes": {"invoice_id": "inv_01", "share_token": "tok"}}}
  }
}`

func TestParseWebhook(t *testing.T) {
	g := NewWithOrders(&fakeOrders{}, Config{WebhookSecret: "whsec"})

	req := httptest.NewRequest("POST", "/webhooks/razorpay", strings.NewReader(capturedEvent))
	req.Header.Set(SignatureHeader, sign(capturedEvent, "whsec"))

	conf, err := g.ParseWebhook(req, []byte(capturedEvent))
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if conf.Reference != "pay_ABC" || conf.InvoiceID != "inv_01" || conf.ShareToken != "tok" {
		t.Errorf("unexpected confirmation: %+v", conf)
	}
	if !conf.Amount.Equal(types.INR(5000)) {
		t.Errorf("amount = %v", conf.Amount)
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	g := NewWithOrders(&fakeOrders{}, Config{WebhookSecret: "whsec"})

	req := httptest.NewRequest("POST", "/webhooks/razorpay", nil)
	req.Header.Set(SignatureHeader, sign(capturedEvent, "other"))

	if _, err := g.ParseWebhook(req, []byte(capturedEvent)); !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	body := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_X","amount":100,"notes":[]}}}}`
	g := NewWithOrders(&fakeOrders{}, Config{WebhookSecret: "whsec"})

	req := httptest.NewRequest("POST", "/webhooks/razorpay", nil)
	req.Header.Set(SignatureHeader, sign(body, "whsec"))

	if _, err := g.ParseWebhook(req, []byte(body)); !errors.Is(err, gateway.ErrIgnoredEvent) {
		t.Errorf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	g := NewWithOrders(&fakeOrders{}, Config{KeySecret: "secret"})
	sig := sign("order_1|pay_1", "secret")

	if !g.VerifyPaymentSignature("order_1", "pay_1", sig) {
		t.Error("valid signature rejected")
	}
	if g.VerifyPaymentSignature("order_1", "pay_2", sig) {
		t.Error("signature for another payment accepted")
	}
}
