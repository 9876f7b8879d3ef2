package tally

import (
	"context"
	"fmt"
	"io"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/render"
)

// GetPublicInvoice resolves a share token to its sanitized projection.
// Drafts and templates are not public.
func (t *Tally) GetPublicInvoice(ctx context.Context, token string) (*invoice.PublicView, error) {
	inv, b, cl, err := t.loadPublic(ctx, token)
	if err != nil {
		return nil, err
	}
	clientName := ""
	if cl != nil {
		clientName = cl.DisplayName()
	}
	return inv.Public(b.Name, clientName, t.Now()), nil
}

// CreatePublicCheckout starts a hosted checkout for the balance of a shared
// invoice, reusing the session created at send time when it still covers the
// balance.
func (t *Tally) CreatePublicCheckout(ctx context.Context, token string) (*gateway.Session, error) {
	inv, b, cl, err := t.loadPublic(ctx, token)
	if err != nil {
		return nil, err
	}
	if t.gateway == nil || !b.AcceptsOnlinePayments() || !inv.AcceptOnlinePayment {
		return nil, ErrGatewayNotConfigured
	}
	if err := checkPayable(inv); err != nil {
		return nil, err
	}
	if inv.PaymentLink != "" && inv.AmountPaid.IsZero() {
		return &gateway.Session{
			Provider: t.gateway.Name(),
			ID:       inv.CheckoutSessionID,
			URL:      inv.PaymentLink,
			Amount:   inv.BalanceDue(),
		}, nil
	}
	return t.createCheckout(ctx, b, cl, inv)
}

// RenderInvoicePDF writes an invoice owned by businessID to w.
func (t *Tally) RenderInvoicePDF(ctx context.Context, businessID id.BusinessID, invID id.InvoiceID, w io.Writer) error {
	inv, err := t.loadInvoice(ctx, businessID, invID)
	if err != nil {
		return err
	}
	b, err := t.loadBusiness(ctx, businessID)
	if err != nil {
		return err
	}
	return t.render(ctx, inv, b, t.optionalClient(ctx, inv), w)
}

// RenderPublicInvoicePDF writes a shared invoice to w.
func (t *Tally) RenderPublicInvoicePDF(ctx context.Context, token string, w io.Writer) error {
	inv, b, cl, err := t.loadPublic(ctx, token)
	if err != nil {
		return err
	}
	return t.render(ctx, inv, b, cl, w)
}

// RendererContentType is the MIME type of rendered documents.
func (t *Tally) RendererContentType() string { return t.renderer.ContentType() }

func (t *Tally) render(ctx context.Context, inv *invoice.Invoice, b *business.Business, cl *client.Client, w io.Writer) error {
	err := t.renderer.Render(ctx, render.Snapshot{Invoice: inv, Business: b, Client: cl, Now: t.Now()}, w)
	if err != nil {
		return &ExternalServiceError{Service: "render", Op: "pdf", Err: err}
	}
	return nil
}

func (t *Tally) loadPublic(ctx context.Context, token string) (*invoice.Invoice, *business.Business, *client.Client, error) {
	if token == "" {
		return nil, nil, nil, notFound("invoice", "")
	}
	inv, err := t.store.GetInvoiceByShareToken(ctx, token)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, nil, notFound("invoice", "")
		}
		return nil, nil, nil, fmt.Errorf("lookup share token: %w", err)
	}
	inv.Status = invoice.Normalize(inv.Status)
	if inv.Status == invoice.StatusDraft || inv.IsTemplate() {
		return nil, nil, nil, notFound("invoice", "")
	}
	b, err := t.loadBusiness(ctx, inv.BusinessID)
	if err != nil {
		return nil, nil, nil, notFound("invoice", "")
	}
	return inv, b, t.optionalClient(ctx, inv), nil
}

func (t *Tally) optionalClient(ctx context.Context, inv *invoice.Invoice) *client.Client {
	if inv.ClientID.IsNil() {
		return nil
	}
	cl, err := t.loadClient(ctx, inv.BusinessID, inv.ClientID)
	if err != nil {
		return nil
	}
	return cl
}
