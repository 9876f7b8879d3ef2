package tally

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/notify"
	"github.com/xraph/tally/types"
)

// PaymentResult reports the effect of a posted payment.
type PaymentResult struct {
	Invoice    *invoice.Invoice `json:"invoice"`
	Payment    *invoice.Payment `json:"payment,omitempty"`
	Duplicate  bool             `json:"duplicate,omitempty"`
	BecamePaid bool             `json:"became_paid,omitempty"`
}

// maxWriteAttempts bounds how often a payment is re-applied after losing a
// conditional write to a concurrent writer.
const maxWriteAttempts = 5

// RecordPayment posts a manual payment. It may not exceed the balance due.
func (t *Tally) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (*PaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	method := cmd.Method
	if method == "" {
		method = invoice.MethodOther
	}

	return t.retryConflicts(ctx, "record payment", func() (*PaymentResult, error) {
		inv, err := t.loadInvoice(ctx, cmd.BusinessID, cmd.InvoiceID)
		if err != nil {
			return nil, err
		}
		if inv.HasPaymentReference(cmd.Reference) {
			return nil, ErrDuplicatePayment
		}
		if err := checkPayable(inv); err != nil {
			return nil, err
		}

		amount := types.New(cmd.Amount, inv.Currency)
		if amount.Amount > inv.BalanceDue().Amount {
			return nil, fmt.Errorf("%w: %s against %s due", ErrPaymentExceedsBalance, amount, inv.BalanceDue())
		}
		return t.applyPayment(ctx, inv, amount, method, cmd.Notes, cmd.Reference)
	})
}

// MarkPaid settles the remaining balance with a synthesized payment.
// Calling it on a paid invoice is a no-op. An invoice with nothing due is
// moved to paid without a ledger entry.
func (t *Tally) MarkPaid(ctx context.Context, businessID id.BusinessID, invID id.InvoiceID, method invoice.PaymentMethod) (*PaymentResult, error) {
	if method == "" {
		method = invoice.MethodOther
	}

	return t.retryConflicts(ctx, "mark paid", func() (*PaymentResult, error) {
		inv, err := t.loadInvoice(ctx, businessID, invID)
		if err != nil {
			return nil, err
		}
		if inv.Status == invoice.StatusPaid {
			return &PaymentResult{Invoice: inv}, nil
		}
		if err := checkPayable(inv); err != nil {
			return nil, err
		}
		if !inv.BalanceDue().IsPositive() {
			return t.settle(ctx, inv)
		}
		return t.applyPayment(ctx, inv, inv.BalanceDue(), method, "marked as paid", "")
	})
}

// ConfirmGatewayPayment posts a provider-confirmed payment. Redelivered
// webhooks are recognized by their reference and change nothing. Money the
// provider already captured is recorded in full even when it exceeds the
// balance due; the excess is reported through OnPaymentOverage.
func (t *Tally) ConfirmGatewayPayment(ctx context.Context, conf *gateway.Confirmation) (*PaymentResult, error) {
	return t.retryConflicts(ctx, "confirm gateway payment", func() (*PaymentResult, error) {
		inv, err := t.invoiceForConfirmation(ctx, conf)
		if err != nil {
			return nil, err
		}
		if inv.HasPaymentReference(conf.Reference) {
			return &PaymentResult{Invoice: inv, Duplicate: true}, nil
		}
		if inv.Status == invoice.StatusPaid {
			t.logger.Warn("gateway payment for settled invoice",
				"invoice_id", inv.ID.String(),
				"reference", conf.Reference,
				"amount", conf.Amount.String(),
			)
			return &PaymentResult{Invoice: inv}, nil
		}
		if err := checkPayable(inv); err != nil {
			return nil, err
		}
		if conf.Amount.Currency != "" && conf.Amount.Currency != inv.Currency {
			return nil, Invalid("amount", "currency %s does not match invoice currency %s", conf.Amount.Currency, inv.Currency)
		}
		if !conf.Amount.IsPositive() {
			return nil, Invalid("amount", "must be positive")
		}

		amount := types.New(conf.Amount.Amount, inv.Currency)
		excess := amount.Amount - inv.BalanceDue().Amount

		res, err := t.applyPayment(ctx, inv, amount, invoice.MethodGateway, conf.Provider, conf.Reference)
		if err != nil {
			return nil, err
		}
		if excess > 0 {
			t.logger.Warn("gateway payment exceeds balance due",
				"invoice_id", inv.ID.String(),
				"reference", conf.Reference,
				"amount", amount.String(),
				"excess", types.New(excess, inv.Currency).String(),
			)
			t.plugins.EmitPaymentOverage(ctx, res.Invoice, res.Payment, excess)
		}
		return res, nil
	})
}

// retryConflicts re-runs op while it loses conditional writes. Each run
// reloads the invoice, so every check is made against the latest state.
func (t *Tally) retryConflicts(ctx context.Context, op string, fn func() (*PaymentResult, error)) (*PaymentResult, error) {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		var res *PaymentResult
		res, err = fn()
		if !errors.Is(err, ErrStatusConflict) {
			return res, err
		}
		t.logger.Debug("concurrent invoice write, retrying",
			"op", op,
			"attempt", attempt,
			"error", err,
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, err
}

func (t *Tally) invoiceForConfirmation(ctx context.Context, conf *gateway.Confirmation) (*invoice.Invoice, error) {
	if conf.ShareToken != "" {
		inv, err := t.store.GetInvoiceByShareToken(ctx, conf.ShareToken)
		if err == nil {
			inv.Status = invoice.Normalize(inv.Status)
			return inv, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	invID, err := id.ParseInvoiceID(conf.InvoiceID)
	if err != nil {
		return nil, notFound("invoice", conf.InvoiceID)
	}
	inv, err := t.store.GetInvoice(ctx, invID)
	if err != nil {
		if IsNotFound(err) {
			return nil, notFound("invoice", conf.InvoiceID)
		}
		return nil, err
	}
	inv.Status = invoice.Normalize(inv.Status)
	return inv, nil
}

// applyPayment appends to the payment ledger, derives the new status and
// writes both in one conditional update.
func (t *Tally) applyPayment(ctx context.Context, inv *invoice.Invoice, amount types.Money, method invoice.PaymentMethod, notes, ref string) (*PaymentResult, error) {
	now := t.Now()
	from := inv.Status

	pay := invoice.Payment{
		ID:        id.NewPaymentID(),
		InvoiceID: inv.ID,
		Amount:    amount,
		Method:    method,
		Notes:     notes,
		Reference: ref,
		CreatedAt: now,
	}
	inv.Payments = append(inv.Payments, pay)
	inv.AmountPaid = inv.SumPayments()

	to := invoice.StatusForAmountPaid(inv.Total, inv.AmountPaid)
	if !invoice.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	inv.Status = to

	becamePaid := to == invoice.StatusPaid && from != invoice.StatusPaid
	var thank bool
	if becamePaid {
		paidAt := now
		inv.PaidAt = &paidAt
		if inv.ThankYouSentAt == nil {
			stamped := now
			inv.ThankYouSentAt = &stamped
			thank = true
		}
	}
	inv.TouchAt(now)

	if err := t.store.TransitionInvoice(ctx, inv, from); err != nil {
		return nil, err
	}

	res := &PaymentResult{Invoice: inv, Payment: &pay, BecamePaid: becamePaid}
	t.plugins.EmitPaymentRecorded(ctx, inv, &pay)
	t.logger.Info("payment recorded",
		"invoice_id", inv.ID.String(),
		"amount", amount.String(),
		"method", string(method),
		"status", string(inv.Status),
	)

	if becamePaid {
		t.plugins.EmitInvoicePaid(ctx, inv)
		if thank {
			t.sendThanks(ctx, inv, &pay)
		}
	}
	return res, nil
}

// settle moves an invoice with nothing left to pay straight to paid.
func (t *Tally) settle(ctx context.Context, inv *invoice.Invoice) (*PaymentResult, error) {
	now := t.Now()
	from := inv.Status
	if !invoice.CanTransition(from, invoice.StatusPaid) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, invoice.StatusPaid)
	}
	inv.Status = invoice.StatusPaid
	paidAt := now
	inv.PaidAt = &paidAt
	inv.TouchAt(now)

	if err := t.store.TransitionInvoice(ctx, inv, from); err != nil {
		return nil, err
	}
	t.plugins.EmitInvoicePaid(ctx, inv)
	t.logger.Info("invoice settled with nothing due", "invoice_id", inv.ID.String())
	return &PaymentResult{Invoice: inv, BecamePaid: true}, nil
}

// sendThanks queues the one-time thank-you email. ThankYouSentAt is already
// stamped; it is cleared again if nothing could be queued.
func (t *Tally) sendThanks(ctx context.Context, inv *invoice.Invoice, pay *invoice.Payment) {
	b, err := t.loadBusiness(ctx, inv.BusinessID)
	if err != nil {
		t.logger.Warn("thank-you skipped", "invoice_id", inv.ID.String(), "error", err)
		return
	}
	cl, err := t.loadClient(ctx, inv.BusinessID, inv.ClientID)
	if err != nil {
		t.logger.Warn("thank-you skipped", "invoice_id", inv.ID.String(), "error", err)
		return
	}
	job, err := t.enqueue(notify.KindPaymentThanks, b, cl, inv, pay)
	if job != nil || err == nil {
		return
	}

	inv.ThankYouSentAt = nil
	if uerr := t.store.UpdateInvoice(ctx, inv); uerr != nil {
		t.logger.Error("failed to clear thank-you marker", "invoice_id", inv.ID.String(), "error", uerr)
	}
}

func checkPayable(inv *invoice.Invoice) error {
	if inv.IsTemplate() {
		return fmt.Errorf("%w: recurring template", ErrNotPayable)
	}
	if !invoice.AcceptsPayment(inv.Status) {
		return fmt.Errorf("%w: invoice is %s", ErrNotPayable, inv.Status)
	}
	return nil
}
