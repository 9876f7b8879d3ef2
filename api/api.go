// Package api serves the unauthenticated surface of Tally: share-token
// invoice views, their PDFs, on-demand checkout and payment webhooks.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xraph/tally"
	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/invoice"
)

// maxWebhookBody bounds the webhook payload read into memory.
const maxWebhookBody = 1 << 20

// Engine is the subset of *tally.Tally the handlers need.
type Engine interface {
	GetPublicInvoice(ctx context.Context, token string) (*invoice.PublicView, error)
	RenderPublicInvoicePDF(ctx context.Context, token string, w io.Writer) error
	RendererContentType() string
	CreatePublicCheckout(ctx context.Context, token string) (*gateway.Session, error)
	ConfirmGatewayPayment(ctx context.Context, conf *gateway.Confirmation) (*tally.PaymentResult, error)
	Gateway() gateway.Gateway
}

// Handlers provides HTTP handlers for public invoice access.
type Handlers struct {
	engine Engine
	logger *slog.Logger
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) { h.logger = logger }
}

// NewHandlers creates handlers backed by engine.
func NewHandlers(engine Engine, opts ...Option) *Handlers {
	h := &Handlers{engine: engine, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the public routes on router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/i/{token}", h.getInvoice).Methods(http.MethodGet)
	router.HandleFunc("/i/{token}/pdf", h.getInvoicePDF).Methods(http.MethodGet)
	router.HandleFunc("/i/{token}/checkout", h.createCheckout).Methods(http.MethodPost)
	router.HandleFunc("/webhooks/{provider}", h.webhook).Methods(http.MethodPost)
}

// NewRouter returns a router with the public routes mounted under prefix.
func NewRouter(engine Engine, prefix string, opts ...Option) *mux.Router {
	router := mux.NewRouter()
	sub := router
	if prefix != "" && prefix != "/" {
		sub = router.PathPrefix(prefix).Subrouter()
	}
	NewHandlers(engine, opts...).RegisterRoutes(sub)
	return router
}

// getInvoice handles GET /i/{token}
func (h *Handlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.GetPublicInvoice(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// getInvoicePDF handles GET /i/{token}/pdf
func (h *Handlers) getInvoicePDF(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var buf bytes.Buffer
	if err := h.engine.RenderPublicInvoicePDF(r.Context(), token, &buf); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", h.engine.RendererContentType())
	w.Header().Set("Content-Disposition", `inline; filename="invoice.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// createCheckout handles POST /i/{token}/checkout
func (h *Handlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.CreatePublicCheckout(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// webhook handles POST /webhooks/{provider}
func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	gw := h.engine.Gateway()
	if gw == nil || gw.Name() != mux.Vars(r)["provider"] {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown provider"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return
	}

	conf, err := gw.ParseWebhook(r, body)
	switch {
	case errors.Is(err, gateway.ErrIgnoredEvent):
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case errors.Is(err, gateway.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", "provider", gw.Name())
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid signature"})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed event"})
		return
	}

	res, err := h.engine.ConfirmGatewayPayment(r.Context(), conf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := "applied"
	if res.Duplicate {
		status = "duplicate"
	}
	h.logger.Info("gateway payment confirmed",
		"provider", gw.Name(),
		"reference", conf.Reference,
		"invoice_id", res.Invoice.ID.String(),
		"status", status,
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         status,
		"invoice_status": string(res.Invoice.Status),
	})
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps engine errors to status codes. Unexpected errors are
// logged and answered with a generic body.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case tally.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case tally.IsQuotaExceeded(err):
		writeJSON(w, http.StatusPaymentRequired, errorBody{Error: err.Error()})
	case errors.Is(err, tally.ErrGatewayNotConfigured):
		writeJSON(w, http.StatusConflict, errorBody{Error: "online payment is not available for this invoice"})
	case errors.Is(err, tally.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invoice changed, retry"})
	case tally.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		h.logger.Error("public request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
