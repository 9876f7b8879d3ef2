package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

// fakeGateway accepts webhooks carrying the header X-Test-Signature: ok.
type fakeGateway struct {
	sessions int
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req gateway.CheckoutRequest) (*gateway.Session, error) {
	g.sessions++
	return &gateway.Session{
		Provider: "fake",
		ID:       "sess_" + req.InvoiceNumber,
		URL:      "https://pay.test/" + req.ShareToken,
		Amount:   req.Amount,
	}, nil
}

func (g *fakeGateway) ParseWebhook(r *http.Request, body []byte) (*gateway.Confirmation, error) {
	if r.Header.Get("X-Test-Signature") != "ok" {
		return nil, gateway.ErrInvalidSignature
	}
	var evt struct {
		Event     string `json:"event"`
		Reference string `json:"reference"`
		Token     string `json:"token"`
		Amount    int64  `json:"amount"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, err
	}
	if evt.Event != "paid" {
		return nil, gateway.ErrIgnoredEvent
	}
	return &gateway.Confirmation{
		Provider:   "fake",
		Reference:  evt.Reference,
		ShareToken: evt.Token,
		Amount:     types.USD(evt.Amount),
	}, nil
}

type fixture struct {
	engine *tally.Tally
	gw     *fakeGateway
	router http.Handler
	biz    *business.Business
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &fakeGateway{}
	eng := tally.New(memory.New(),
		tally.WithGateway(gw),
		tally.WithClock(func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }),
	)
	biz := &business.Business{Name: "Acme", Email: "billing@acme.test", PaymentAccountID: "acc_1"}
	require.NoError(t, eng.CreateBusiness(context.Background(), biz))
	return &fixture{engine: eng, gw: gw, router: NewRouter(eng, ""), biz: biz}
}

func (f *fixture) invoice(t *testing.T, send bool) *invoice.Invoice {
	t.Helper()
	ctx := context.Background()
	cl := &client.Client{BusinessID: f.biz.ID, Name: "Wile", Email: "wile@example.test"}
	require.NoError(t, f.engine.CreateClient(ctx, cl))

	inv, err := f.engine.CreateInvoice(ctx, tally.CreateInvoiceCommand{
		BusinessID:          f.biz.ID,
		ClientID:            cl.ID,
		AcceptOnlinePayment: true,
		Items: []tally.LineItemInput{
			{Description: "Rockets", Quantity: decimal.NewFromInt(2), Rate: 5000},
		},
		Shipping: 1000,
	})
	require.NoError(t, err)
	if send {
		res, err := f.engine.SendInvoice(ctx, f.biz.ID, inv.ID)
		require.NoError(t, err)
		inv = res.Invoice
	}
	return inv
}

func (f *fixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetPublicInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, true)

	w := f.do(http.MethodGet, "/i/"+inv.ShareToken, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view invoice.PublicView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	assert.Equal(t, inv.Number, view.Number)
	assert.Equal(t, int64(11000), view.Total.Amount)
	assert.Equal(t, "Acme", view.BusinessName)
	assert.NotContains(t, w.Body.String(), f.biz.ID.String())
}

func TestDraftIsNotPublic(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, false)

	w := f.do(http.MethodGet, "/i/"+inv.ShareToken, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/i/unknown-token", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPublicInvoicePDF(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, true)

	w := f.do(http.MethodGet, "/i/"+inv.ShareToken+"/pdf", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
}

func TestCheckoutReusesSendTimeSession(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, true)
	require.Equal(t, 1, f.gw.sessions)

	w := f.do(http.MethodPost, "/i/"+inv.ShareToken+"/checkout", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sess gateway.Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sess))
	assert.Equal(t, "https://pay.test/"+inv.ShareToken, sess.URL)
	assert.Equal(t, 1, f.gw.sessions)
}

func TestWebhookSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, true)
	body := `{"event":"paid","reference":"pay_1","token":"` + inv.ShareToken + `","amount":11000}`
	signed := map[string]string{"X-Test-Signature": "ok"}

	w := f.do(http.MethodPost, "/webhooks/fake", body, signed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"applied"`)
	assert.Contains(t, w.Body.String(), `"invoice_status":"paid"`)

	// Redelivery changes nothing.
	w = f.do(http.MethodPost, "/webhooks/fake", body, signed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"duplicate"`)

	got, err := f.engine.GetInvoice(context.Background(), f.biz.ID, inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Payments, 1)
	assert.Equal(t, invoice.StatusPaid, got.Status)
}

func TestWebhookRejections(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/webhooks/fake", `{"event":"paid"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/webhooks/fake", `{"event":"refund"}`, map[string]string{"X-Test-Signature": "ok"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")

	w = f.do(http.MethodPost, "/webhooks/other", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/webhooks/fake", `{"event":"paid","reference":"p","token":"nope","amount":1}`, map[string]string{"X-Test-Signature": "ok"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterPrefix(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, true)
	router := NewRouter(f.engine, "/public")

	req := httptest.NewRequest(http.MethodGet, "/public/i/"+inv.ShareToken, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
