package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/recurrence"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/types"
)

// ==================== Business models ====================

type businessModel struct {
	grove.BaseModel `grove:"table:tally_businesses"`

	ID               string    `grove:"id,pk"              bson:"_id"`
	Name             string    `grove:"name"               bson:"name"`
	Email            string    `grove:"email"              bson:"email"`
	Currency         string    `grove:"currency"           bson:"currency"`
	Tier             string    `grove:"tier"               bson:"tier"`
	PaymentTermsDays int       `grove:"payment_terms_days" bson:"payment_terms_days"`
	InvoicePrefix    string    `grove:"invoice_prefix"     bson:"invoice_prefix"`
	PaymentAccountID string    `grove:"payment_account_id" bson:"payment_account_id,omitempty"`
	Address          string    `grove:"address"            bson:"address,omitempty"`
	InvoiceSeq       int64     `grove:"invoice_seq"        bson:"invoice_seq"`
	CreatedAt        time.Time `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"         bson:"updated_at"`
}

func toBusinessModel(b *business.Business) *businessModel {
	return &businessModel{
		ID:               b.ID.String(),
		Name:             b.Name,
		Email:            b.Email,
		Currency:         b.Currency,
		Tier:             string(b.Tier),
		PaymentTermsDays: b.PaymentTermsDays,
		InvoicePrefix:    b.InvoicePrefix,
		PaymentAccountID: b.PaymentAccountID,
		Address:          b.Address,
		InvoiceSeq:       b.InvoiceSeq,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

func fromBusinessModel(m *businessModel) (*business.Business, error) {
	bizID, err := id.ParseBusinessID(m.ID)
	if err != nil {
		return nil, err
	}
	return &business.Business{
		Entity:           types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:               bizID,
		Name:             m.Name,
		Email:            m.Email,
		Currency:         m.Currency,
		Tier:             business.Tier(m.Tier),
		PaymentTermsDays: m.PaymentTermsDays,
		InvoicePrefix:    m.InvoicePrefix,
		PaymentAccountID: m.PaymentAccountID,
		Address:          m.Address,
		InvoiceSeq:       m.InvoiceSeq,
	}, nil
}

// ==================== Client models ====================

type clientModel struct {
	grove.BaseModel `grove:"table:tally_clients"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	BusinessID string    `grove:"business_id" bson:"business_id"`
	Name       string    `grove:"name"        bson:"name"`
	Email      string    `grove:"email"       bson:"email,omitempty"`
	Company    string    `grove:"company"     bson:"company,omitempty"`
	Address    string    `grove:"address"     bson:"address,omitempty"`
	Phone      string    `grove:"phone"       bson:"phone,omitempty"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toClientModel(c *client.Client) *clientModel {
	return &clientModel{
		ID:         c.ID.String(),
		BusinessID: c.BusinessID.String(),
		Name:       c.Name,
		Email:      c.Email,
		Company:    c.Company,
		Address:    c.Address,
		Phone:      c.Phone,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func fromClientModel(m *clientModel) (*client.Client, error) {
	clientID, err := id.ParseClientID(m.ID)
	if err != nil {
		return nil, err
	}
	bizID, err := id.ParseBusinessID(m.BusinessID)
	if err != nil {
		return nil, err
	}
	return &client.Client{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         clientID,
		BusinessID: bizID,
		Name:       m.Name,
		Email:      m.Email,
		Company:    m.Company,
		Address:    m.Address,
		Phone:      m.Phone,
	}, nil
}

// ==================== Tax type models ====================

type taxTypeModel struct {
	grove.BaseModel `grove:"table:tally_tax_types"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	BusinessID string    `grove:"business_id" bson:"business_id"`
	Name       string    `grove:"name"        bson:"name"`
	Rate       string    `grove:"rate"        bson:"rate"`
	IsDefault  bool      `grove:"is_default"  bson:"is_default"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toTaxTypeModel(t *tax.TaxType) *taxTypeModel {
	return &taxTypeModel{
		ID:         t.ID.String(),
		BusinessID: t.BusinessID.String(),
		Name:       t.Name,
		Rate:       t.Rate.String(),
		IsDefault:  t.IsDefault,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func fromTaxTypeModel(m *taxTypeModel) (*tax.TaxType, error) {
	taxID, err := id.ParseTaxTypeID(m.ID)
	if err != nil {
		return nil, err
	}
	bizID, err := id.ParseBusinessID(m.BusinessID)
	if err != nil {
		return nil, err
	}
	rate, err := parseDecimal(m.Rate)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: tax type %s rate: %w", m.ID, err)
	}
	return &tax.TaxType{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         taxID,
		BusinessID: bizID,
		Name:       m.Name,
		Rate:       rate,
		IsDefault:  m.IsDefault,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:tally_invoices"`

	ID                  string          `grove:"id,pk"                 bson:"_id"`
	BusinessID          string          `grove:"business_id"           bson:"business_id"`
	ClientID            string          `grove:"client_id"             bson:"client_id"`
	Number              string          `grove:"invoice_number"        bson:"invoice_number"`
	Status              string          `grove:"status"                bson:"status"`
	Currency            string          `grove:"currency"              bson:"currency"`
	IssueDate           time.Time       `grove:"issue_date"            bson:"issue_date"`
	DueDate             time.Time       `grove:"due_date"              bson:"due_date"`
	Notes               string          `grove:"notes"                 bson:"notes,omitempty"`
	LineItems           []lineItemModel `grove:"line_items"            bson:"line_items"`
	Payments            []paymentModel  `grove:"payments"              bson:"payments"`
	TaxBreakdown        []taxLineModel  `grove:"tax_breakdown"         bson:"tax_breakdown"`
	Discount            discountModel   `grove:"discount"              bson:"discount"`
	ShippingCents       int64           `grove:"shipping_cents"        bson:"shipping_cents"`
	SubtotalCents       int64           `grove:"subtotal_cents"        bson:"subtotal_cents"`
	TaxAmountCents      int64           `grove:"tax_amount_cents"      bson:"tax_amount_cents"`
	DiscountAmountCents int64           `grove:"discount_amount_cents" bson:"discount_amount_cents"`
	TotalCents          int64           `grove:"total_cents"           bson:"total_cents"`
	AmountPaidCents     int64           `grove:"amount_paid_cents"     bson:"amount_paid_cents"`
	Version             int64           `grove:"version"               bson:"version"`
	ShareToken          string          `grove:"share_token"           bson:"share_token"`
	AcceptOnlinePayment bool            `grove:"accept_online_payment" bson:"accept_online_payment"`
	PaymentLink         string          `grove:"payment_link"          bson:"payment_link,omitempty"`
	CheckoutSessionID   string          `grove:"checkout_session_id"   bson:"checkout_session_id,omitempty"`
	IsRecurring         bool            `grove:"is_recurring"          bson:"is_recurring"`
	Recurrence          recurrenceModel `grove:"recurrence"            bson:"recurrence"`
	NextRecurringDate   *time.Time      `grove:"next_recurring_date"   bson:"next_recurring_date,omitempty"`
	LastRecurringDate   *time.Time      `grove:"last_recurring_date"   bson:"last_recurring_date,omitempty"`
	TemplateID          string          `grove:"template_id"           bson:"template_id,omitempty"`
	SentAt              *time.Time      `grove:"sent_at"               bson:"sent_at,omitempty"`
	PaidAt              *time.Time      `grove:"paid_at"               bson:"paid_at,omitempty"`
	ThankYouSentAt      *time.Time      `grove:"thank_you_sent_at"     bson:"thank_you_sent_at,omitempty"`
	CreatedAt           time.Time       `grove:"created_at"            bson:"created_at"`
	UpdatedAt           time.Time       `grove:"updated_at"            bson:"updated_at"`
}

type lineItemModel struct {
	ID          string `bson:"id"`
	Description string `bson:"description"`
	Quantity    string `bson:"quantity"`
	RateCents   int64  `bson:"rate_cents"`
	TaxTypeID   string `bson:"tax_type_id,omitempty"`
	LineTotal   int64  `bson:"line_total_cents"`
}

type paymentModel struct {
	ID          string    `bson:"id"`
	AmountCents int64     `bson:"amount_cents"`
	Method      string    `bson:"method"`
	Notes       string    `bson:"notes,omitempty"`
	Reference   string    `bson:"reference,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

type taxLineModel struct {
	TaxTypeID   string `bson:"tax_type_id"`
	Name        string `bson:"name"`
	Rate        string `bson:"rate"`
	AmountCents int64  `bson:"amount_cents"`
}

type discountModel struct {
	Kind        string `bson:"kind,omitempty"`
	AmountCents int64  `bson:"amount_cents,omitempty"`
	Percent     string `bson:"percent,omitempty"`
}

type recurrenceModel struct {
	Frequency string `bson:"frequency,omitempty"`
	Every     int    `bson:"every,omitempty"`
	Day       int    `bson:"day,omitempty"`
	Month     int    `bson:"month,omitempty"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items := make([]lineItemModel, len(inv.LineItems))
	for i, li := range inv.LineItems {
		items[i] = lineItemModel{
			ID:          li.ID.String(),
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			RateCents:   li.Rate.Amount,
			TaxTypeID:   li.TaxTypeID.String(),
			LineTotal:   li.LineTotal.Amount,
		}
	}

	payments := make([]paymentModel, len(inv.Payments))
	for i, p := range inv.Payments {
		payments[i] = paymentModel{
			ID:          p.ID.String(),
			AmountCents: p.Amount.Amount,
			Method:      string(p.Method),
			Notes:       p.Notes,
			Reference:   p.Reference,
			CreatedAt:   p.CreatedAt,
		}
	}

	breakdown := make([]taxLineModel, len(inv.TaxBreakdown))
	for i, tl := range inv.TaxBreakdown {
		breakdown[i] = taxLineModel{
			TaxTypeID:   tl.TaxTypeID.String(),
			Name:        tl.Name,
			Rate:        tl.Rate.String(),
			AmountCents: tl.Amount.Amount,
		}
	}

	discount := discountModel{
		Kind:        string(inv.Discount.Kind),
		AmountCents: inv.Discount.Amount.Amount,
	}
	if !inv.Discount.Percent.IsZero() {
		discount.Percent = inv.Discount.Percent.String()
	}

	return &invoiceModel{
		ID:                  inv.ID.String(),
		BusinessID:          inv.BusinessID.String(),
		ClientID:            inv.ClientID.String(),
		Number:              inv.Number,
		Status:              string(invoice.Normalize(inv.Status)),
		Currency:            inv.Currency,
		IssueDate:           inv.IssueDate,
		DueDate:             inv.DueDate,
		Notes:               inv.Notes,
		LineItems:           items,
		Payments:            payments,
		TaxBreakdown:        breakdown,
		Discount:            discount,
		ShippingCents:       inv.Shipping.Amount,
		SubtotalCents:       inv.Subtotal.Amount,
		TaxAmountCents:      inv.TaxAmount.Amount,
		DiscountAmountCents: inv.DiscountAmount.Amount,
		TotalCents:          inv.Total.Amount,
		AmountPaidCents:     inv.AmountPaid.Amount,
		Version:             inv.Version,
		ShareToken:          inv.ShareToken,
		AcceptOnlinePayment: inv.AcceptOnlinePayment,
		PaymentLink:         inv.PaymentLink,
		CheckoutSessionID:   inv.CheckoutSessionID,
		IsRecurring:         inv.IsRecurring,
		Recurrence: recurrenceModel{
			Frequency: string(inv.Recurrence.Frequency),
			Every:     inv.Recurrence.Every,
			Day:       inv.Recurrence.Day,
			Month:     inv.Recurrence.Month,
		},
		NextRecurringDate: inv.NextRecurringDate,
		LastRecurringDate: inv.LastRecurringDate,
		TemplateID:        inv.TemplateID.String(),
		SentAt:            inv.SentAt,
		PaidAt:            inv.PaidAt,
		ThankYouSentAt:    inv.ThankYouSentAt,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	bizID, err := id.ParseBusinessID(m.BusinessID)
	if err != nil {
		return nil, err
	}
	clientID, err := parseOptional(m.ClientID, id.PrefixClient)
	if err != nil {
		return nil, err
	}
	templateID, err := parseOptional(m.TemplateID, id.PrefixInvoice)
	if err != nil {
		return nil, err
	}

	cur := m.Currency
	inv := &invoice.Invoice{
		Entity:              types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                  invID,
		BusinessID:          bizID,
		ClientID:            clientID,
		Number:              m.Number,
		Status:              invoice.Normalize(invoice.Status(m.Status)),
		Currency:            cur,
		IssueDate:           m.IssueDate,
		DueDate:             m.DueDate,
		Notes:               m.Notes,
		Shipping:            types.New(m.ShippingCents, cur),
		Subtotal:            types.New(m.SubtotalCents, cur),
		TaxAmount:           types.New(m.TaxAmountCents, cur),
		DiscountAmount:      types.New(m.DiscountAmountCents, cur),
		Total:               types.New(m.TotalCents, cur),
		AmountPaid:          types.New(m.AmountPaidCents, cur),
		Version:             m.Version,
		ShareToken:          m.ShareToken,
		AcceptOnlinePayment: m.AcceptOnlinePayment,
		PaymentLink:         m.PaymentLink,
		CheckoutSessionID:   m.CheckoutSessionID,
		IsRecurring:         m.IsRecurring,
		Recurrence: recurrence.Rule{
			Frequency: recurrence.Frequency(m.Recurrence.Frequency),
			Every:     m.Recurrence.Every,
			Day:       m.Recurrence.Day,
			Month:     m.Recurrence.Month,
		},
		NextRecurringDate: m.NextRecurringDate,
		LastRecurringDate: m.LastRecurringDate,
		TemplateID:        templateID,
		SentAt:            m.SentAt,
		PaidAt:            m.PaidAt,
		ThankYouSentAt:    m.ThankYouSentAt,
	}

	inv.LineItems = make([]invoice.LineItem, len(m.LineItems))
	for i, li := range m.LineItems {
		liID, err := id.ParseLineItemID(li.ID)
		if err != nil {
			return nil, err
		}
		taxID, err := parseOptional(li.TaxTypeID, id.PrefixTaxType)
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal(li.Quantity)
		if err != nil {
			return nil, fmt.Errorf("tally/mongo: invoice %s line %d quantity: %w", m.ID, i, err)
		}
		inv.LineItems[i] = invoice.LineItem{
			ID:          liID,
			Description: li.Description,
			Quantity:    qty,
			Rate:        types.New(li.RateCents, cur),
			TaxTypeID:   taxID,
			LineTotal:   types.New(li.LineTotal, cur),
		}
	}

	if len(m.Payments) > 0 {
		inv.Payments = make([]invoice.Payment, len(m.Payments))
	}
	for i, p := range m.Payments {
		payID, err := id.ParsePaymentID(p.ID)
		if err != nil {
			return nil, err
		}
		inv.Payments[i] = invoice.Payment{
			ID:        payID,
			InvoiceID: invID,
			Amount:    types.New(p.AmountCents, cur),
			Method:    invoice.PaymentMethod(p.Method),
			Notes:     p.Notes,
			Reference: p.Reference,
			CreatedAt: p.CreatedAt,
		}
	}

	if len(m.TaxBreakdown) > 0 {
		inv.TaxBreakdown = make([]invoice.TaxLine, len(m.TaxBreakdown))
	}
	for i, tl := range m.TaxBreakdown {
		taxID, err := id.ParseTaxTypeID(tl.TaxTypeID)
		if err != nil {
			return nil, err
		}
		rate, err := parseDecimal(tl.Rate)
		if err != nil {
			return nil, fmt.Errorf("tally/mongo: invoice %s tax rate: %w", m.ID, err)
		}
		inv.TaxBreakdown[i] = invoice.TaxLine{
			TaxTypeID: taxID,
			Name:      tl.Name,
			Rate:      rate,
			Amount:    types.New(tl.AmountCents, cur),
		}
	}

	percent, err := parseDecimal(m.Discount.Percent)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: invoice %s discount: %w", m.ID, err)
	}
	inv.Discount = invoice.Discount{
		Kind:    invoice.DiscountKind(m.Discount.Kind),
		Amount:  types.New(m.Discount.AmountCents, cur),
		Percent: percent,
	}
	return inv, nil
}

// ==================== Usage models ====================

// usageModel is keyed by "<business id>:<period>" so the conditional upsert
// collides on _id instead of inserting a second counter.
type usageModel struct {
	grove.BaseModel `grove:"table:tally_usage"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	BusinessID string    `grove:"business_id" bson:"business_id"`
	Period     string    `grove:"period"      bson:"period"`
	Count      int64     `grove:"count"       bson:"count"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func usageKey(businessID id.BusinessID, period string) string {
	return businessID.String() + ":" + period
}

// ==================== Helpers ====================

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseOptional(s string, prefix id.Prefix) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.ParseWithPrefix(s, prefix)
}
