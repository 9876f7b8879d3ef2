package tally

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/calc"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/notify"
	"github.com/xraph/tally/usage"
)

// SendResult reports what a send did. Collaborator failures are recorded
// here rather than returned: the transition already stands.
type SendResult struct {
	Invoice       *invoice.Invoice `json:"invoice"`
	Resent        bool             `json:"resent"`
	Usage         *usage.Snapshot  `json:"usage,omitempty"`
	Checkout      *gateway.Session `json:"checkout,omitempty"`
	CheckoutError error            `json:"-"`
	Notification  *notify.Job      `json:"notification,omitempty"`
	NotifyError   error            `json:"-"`
}

// SendInvoice moves a draft to sent, or re-delivers an invoice that was
// already sent. Only the first send consumes monthly quota.
//
// A first send is all-or-nothing: validation and quota are checked before
// any write, the quota reservation is released if the status write loses a
// race, and the checkout and email only happen after the write succeeded.
func (t *Tally) SendInvoice(ctx context.Context, businessID id.BusinessID, invID id.InvoiceID) (*SendResult, error) {
	inv, err := t.loadInvoice(ctx, businessID, invID)
	if err != nil {
		return nil, err
	}
	if inv.IsTemplate() {
		return nil, ErrTemplateNotSendable
	}
	b, err := t.loadBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	switch {
	case inv.Status == invoice.StatusDraft:
		return t.sendDraft(ctx, b, inv)
	case invoice.IsResendable(inv.Status):
		return t.resend(ctx, b, inv)
	default:
		return nil, fmt.Errorf("%w: cannot send a %s invoice", ErrInvalidTransition, inv.Status)
	}
}

func (t *Tally) sendDraft(ctx context.Context, b *business.Business, inv *invoice.Invoice) (*SendResult, error) {
	cl, err := t.checkSendable(ctx, inv)
	if err != nil {
		return nil, err
	}

	now := t.Now()
	snap, ok, err := t.gate.Reserve(ctx, b.ID, b.Tier, now)
	if err != nil {
		return nil, fmt.Errorf("reserve send quota: %w", err)
	}
	if !ok {
		t.plugins.EmitQuotaExceeded(ctx, b.ID.String(), snap.Period, snap.Count, snap.Limit)
		return nil, &QuotaExceededError{
			BusinessID: b.ID.String(),
			Period:     snap.Period,
			Used:       snap.Count,
			Limit:      snap.Limit,
		}
	}

	sentAt := now
	inv.Status = invoice.StatusSent
	inv.SentAt = &sentAt
	inv.TouchAt(now)

	if err := t.store.TransitionInvoice(ctx, inv, invoice.StatusDraft); err != nil {
		if rerr := t.gate.Release(ctx, b.ID, snap.Period); rerr != nil {
			t.logger.Error("failed to release send quota",
				"business_id", b.ID.String(),
				"period", snap.Period,
				"error", rerr,
			)
		}
		return nil, err
	}

	res := &SendResult{Invoice: inv, Usage: snap}
	res.Checkout, res.CheckoutError = t.attachCheckout(ctx, b, cl, inv)
	res.Notification, res.NotifyError = t.enqueue(notify.KindInvoiceCreated, b, cl, inv, nil)

	t.plugins.EmitInvoiceSent(ctx, inv, false)
	t.logger.Info("invoice sent",
		"invoice_id", inv.ID.String(),
		"business_id", b.ID.String(),
		"number", inv.Number,
		"usage", snap.Count,
		"limit", snap.Limit,
	)
	return res, nil
}

func (t *Tally) resend(ctx context.Context, b *business.Business, inv *invoice.Invoice) (*SendResult, error) {
	cl, err := t.loadClient(ctx, b.ID, inv.ClientID)
	if err != nil {
		if IsNotFound(err) {
			return nil, Invalid("client_id", "invoice has no client to deliver to")
		}
		return nil, err
	}
	if cl.Email == "" {
		return nil, Invalid("client.email", "client has no email address")
	}

	res := &SendResult{Invoice: inv, Resent: true}
	res.Notification, res.NotifyError = t.enqueue(notify.KindInvoiceCreated, b, cl, inv, nil)
	if res.NotifyError != nil {
		return nil, res.NotifyError
	}

	t.plugins.EmitInvoiceSent(ctx, inv, true)
	t.logger.Info("invoice resent", "invoice_id", inv.ID.String(), "number", inv.Number)
	return res, nil
}

// checkSendable validates a draft for sending and refreshes its totals from
// the current tax catalog.
func (t *Tally) checkSendable(ctx context.Context, inv *invoice.Invoice) (*client.Client, error) {
	errs := &MultiError{}

	cl, err := t.loadClient(ctx, inv.BusinessID, inv.ClientID)
	switch {
	case IsNotFound(err):
		errs.Add(Invalid("client_id", "a client is required to send an invoice"))
	case err != nil:
		return nil, err
	}

	if len(inv.LineItems) == 0 {
		errs.Add(Invalid("items", "at least one line item is required"))
	}
	for i, li := range inv.LineItems {
		if !li.IsValid() {
			errs.Add(Invalid(itemField(i, "description"), "needs a description, a positive quantity and a non-negative rate"))
		}
	}
	if errs.HasErrors() {
		return nil, errs
	}

	cat, err := t.catalog(ctx, inv.BusinessID)
	if err != nil {
		return nil, err
	}
	calc.Apply(inv, cat)
	if inv.Total.IsNegative() {
		return nil, Invalid("discount", "discount exceeds the invoice amount")
	}
	return cl, nil
}

// attachCheckout creates a hosted checkout when the invoice asks for online
// payment and the business has a connected account. Failures degrade to an
// invoice without a payment link.
func (t *Tally) attachCheckout(ctx context.Context, b *business.Business, cl *client.Client, inv *invoice.Invoice) (*gateway.Session, error) {
	if !inv.AcceptOnlinePayment || t.gateway == nil || !b.AcceptsOnlinePayments() {
		return nil, nil
	}
	sess, err := t.createCheckout(ctx, b, cl, inv)
	if err != nil {
		t.logger.Warn("checkout session failed",
			"invoice_id", inv.ID.String(),
			"gateway", t.gateway.Name(),
			"error", err,
		)
		return nil, err
	}
	return sess, nil
}

func (t *Tally) createCheckout(ctx context.Context, b *business.Business, cl *client.Client, inv *invoice.Invoice) (*gateway.Session, error) {
	req := gateway.CheckoutRequest{
		InvoiceID:     inv.ID.String(),
		InvoiceNumber: inv.Number,
		ShareToken:    inv.ShareToken,
		Amount:        inv.BalanceDue(),
		Description:   fmt.Sprintf("Invoice %s from %s", inv.Number, b.Name),
		AccountID:     b.PaymentAccountID,
		ReturnURL:     t.PublicURL(inv.ShareToken),
	}
	if cl != nil {
		req.CustomerName = cl.DisplayName()
		req.CustomerEmail = cl.Email
	}

	sess, err := t.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, &ExternalServiceError{Service: t.gateway.Name(), Op: "create checkout", Err: err}
	}

	inv.PaymentLink = sess.URL
	inv.CheckoutSessionID = sess.ID
	if err := t.store.UpdateInvoice(ctx, inv); err != nil {
		return sess, fmt.Errorf("save payment link: %w", err)
	}
	return sess, nil
}

// enqueue queues an email. A client without an address is not an error.
func (t *Tally) enqueue(kind notify.Kind, b *business.Business, cl *client.Client, inv *invoice.Invoice, pay *invoice.Payment) (*notify.Job, error) {
	if cl == nil || cl.Email == "" {
		return nil, nil
	}
	var paySnapshot *invoice.Payment
	if pay != nil {
		p := *pay
		paySnapshot = &p
	}
	job, err := t.dispatch.Enqueue(&notify.Message{
		Kind:      kind,
		Invoice:   inv.Clone(),
		Client:    cl,
		Business:  b,
		Payment:   paySnapshot,
		PublicURL: t.PublicURL(inv.ShareToken),
	})
	if err != nil {
		t.logger.Warn("notification not queued",
			"kind", string(kind),
			"invoice_id", inv.ID.String(),
			"error", err,
		)
		if errors.Is(err, notify.ErrQueueFull) {
			return nil, fmt.Errorf("%w: %w", ErrNotifyQueueFull, err)
		}
		return nil, &ExternalServiceError{Service: "notify", Op: "enqueue", Err: err}
	}
	return job, nil
}
