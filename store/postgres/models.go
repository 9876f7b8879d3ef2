package postgres

import (
	"encoding/json"
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

	ID               string    `grove:"id,pk"`
	Name             string    `grove:"name"`
	Email            string    `grove:"email"`
	Currency         string    `grove:"currency"`
	Tier             string    `grove:"tier"`
	PaymentTermsDays int       `grove:"payment_terms_days"`
	InvoicePrefix    string    `grove:"invoice_prefix"`
	PaymentAccountID string    `grove:"payment_account_id"`
	Address          string    `grove:"address"`
	InvoiceSeq       int64     `grove:"invoice_seq"`
	CreatedAt        time.Time `grove:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"`
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

	ID         string    `grove:"id,pk"`
	BusinessID string    `grove:"business_id"`
	Name       string    `grove:"name"`
	Email      string    `grove:"email"`
	Company    string    `grove:"company"`
	Address    string    `grove:"address"`
	Phone      string    `grove:"phone"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
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

	ID         string    `grove:"id,pk"`
	BusinessID string    `grove:"business_id"`
	Name       string    `grove:"name"`
	Rate       string    `grove:"rate"`
	IsDefault  bool      `grove:"is_default"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
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
	rate, err := decimal.NewFromString(m.Rate)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: tax type %s rate: %w", m.ID, err)
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

// invoiceModel keeps the line items, payments and tax breakdown as JSONB
// documents on the invoice row; they are always read and written with it.
type invoiceModel struct {
	grove.BaseModel `grove:"table:tally_invoices"`

	ID                  string          `grove:"id,pk"`
	BusinessID          string          `grove:"business_id"`
	ClientID            string          `grove:"client_id"`
	Number              string          `grove:"invoice_number"`
	Status              string          `grove:"status"`
	Currency            string          `grove:"currency"`
	IssueDate           time.Time       `grove:"issue_date"`
	DueDate             time.Time       `grove:"due_date"`
	Notes               string          `grove:"notes"`
	LineItems           json.RawMessage `grove:"line_items,type:jsonb"`
	Payments            json.RawMessage `grove:"payments,type:jsonb"`
	TaxBreakdown        json.RawMessage `grove:"tax_breakdown,type:jsonb"`
	Discount            json.RawMessage `grove:"discount,type:jsonb"`
	ShippingCents       int64           `grove:"shipping_cents"`
	SubtotalCents       int64           `grove:"subtotal_cents"`
	TaxAmountCents      int64           `grove:"tax_amount_cents"`
	DiscountAmountCents int64           `grove:"discount_amount_cents"`
	TotalCents          int64           `grove:"total_cents"`
	AmountPaidCents     int64           `grove:"amount_paid_cents"`
	Version             int64           `grove:"version"`
	ShareToken          string          `grove:"share_token"`
	AcceptOnlinePayment bool            `grove:"accept_online_payment"`
	PaymentLink         string          `grove:"payment_link"`
	CheckoutSessionID   string          `grove:"checkout_session_id"`
	IsRecurring         bool            `grove:"is_recurring"`
	Recurrence          json.RawMessage `grove:"recurrence,type:jsonb"`
	NextRecurringDate   *time.Time      `grove:"next_recurring_date"`
	LastRecurringDate   *time.Time      `grove:"last_recurring_date"`
	TemplateID          string          `grove:"template_id"`
	SentAt              *time.Time      `grove:"sent_at"`
	PaidAt              *time.Time      `grove:"paid_at"`
	ThankYouSentAt      *time.Time      `grove:"thank_you_sent_at"`
	CreatedAt           time.Time       `grove:"created_at"`
	UpdatedAt           time.Time       `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	m := &invoiceModel{
		ID:                  inv.ID.String(),
		BusinessID:          inv.BusinessID.String(),
		ClientID:            inv.ClientID.String(),
		Number:              inv.Number,
		Status:              string(invoice.Normalize(inv.Status)),
		Currency:            inv.Currency,
		IssueDate:           inv.IssueDate,
		DueDate:             inv.DueDate,
		Notes:               inv.Notes,
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
		NextRecurringDate:   inv.NextRecurringDate,
		LastRecurringDate:   inv.LastRecurringDate,
		TemplateID:          inv.TemplateID.String(),
		SentAt:              inv.SentAt,
		PaidAt:              inv.PaidAt,
		ThankYouSentAt:      inv.ThankYouSentAt,
		CreatedAt:           inv.CreatedAt,
		UpdatedAt:           inv.UpdatedAt,
	}

	var err error
	if m.LineItems, err = marshalList(inv.LineItems); err != nil {
		return nil, err
	}
	if m.Payments, err = marshalList(inv.Payments); err != nil {
		return nil, err
	}
	if m.TaxBreakdown, err = marshalList(inv.TaxBreakdown); err != nil {
		return nil, err
	}
	if m.Discount, err = json.Marshal(inv.Discount); err != nil {
		return nil, fmt.Errorf("tally/postgres: encode discount: %w", err)
	}
	if m.Recurrence, err = json.Marshal(inv.Recurrence); err != nil {
		return nil, fmt.Errorf("tally/postgres: encode recurrence: %w", err)
	}
	return m, nil
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

	inv := &invoice.Invoice{
		Entity:              types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                  invID,
		BusinessID:          bizID,
		ClientID:            clientID,
		Number:              m.Number,
		Status:              invoice.Normalize(invoice.Status(m.Status)),
		Currency:            m.Currency,
		IssueDate:           m.IssueDate,
		DueDate:             m.DueDate,
		Notes:               m.Notes,
		Shipping:            types.New(m.ShippingCents, m.Currency),
		Subtotal:            types.New(m.SubtotalCents, m.Currency),
		TaxAmount:           types.New(m.TaxAmountCents, m.Currency),
		DiscountAmount:      types.New(m.DiscountAmountCents, m.Currency),
		Total:               types.New(m.TotalCents, m.Currency),
		AmountPaid:          types.New(m.AmountPaidCents, m.Currency),
		Version:             m.Version,
		ShareToken:          m.ShareToken,
		AcceptOnlinePayment: m.AcceptOnlinePayment,
		PaymentLink:         m.PaymentLink,
		CheckoutSessionID:   m.CheckoutSessionID,
		IsRecurring:         m.IsRecurring,
		NextRecurringDate:   m.NextRecurringDate,
		LastRecurringDate:   m.LastRecurringDate,
		TemplateID:          templateID,
		SentAt:              m.SentAt,
		PaidAt:              m.PaidAt,
		ThankYouSentAt:      m.ThankYouSentAt,
	}

	if err := unmarshalDoc(m.LineItems, &inv.LineItems); err != nil {
		return nil, fmt.Errorf("tally/postgres: invoice %s line items: %w", m.ID, err)
	}
	if err := unmarshalDoc(m.Payments, &inv.Payments); err != nil {
		return nil, fmt.Errorf("tally/postgres: invoice %s payments: %w", m.ID, err)
	}
	if err := unmarshalDoc(m.TaxBreakdown, &inv.TaxBreakdown); err != nil {
		return nil, fmt.Errorf("tally/postgres: invoice %s tax breakdown: %w", m.ID, err)
	}
	var discount invoice.Discount
	if err := unmarshalDoc(m.Discount, &discount); err != nil {
		return nil, fmt.Errorf("tally/postgres: invoice %s discount: %w", m.ID, err)
	}
	inv.Discount = discount
	var rule recurrence.Rule
	if err := unmarshalDoc(m.Recurrence, &rule); err != nil {
		return nil, fmt.Errorf("tally/postgres: invoice %s recurrence: %w", m.ID, err)
	}
	inv.Recurrence = rule
	return inv, nil
}

// ==================== Usage models ====================

type usageModel struct {
	grove.BaseModel `grove:"table:tally_usage"`

	BusinessID string    `grove:"business_id,pk"`
	Period     string    `grove:"period,pk"`
	Count      int64     `grove:"count"`
	UpdatedAt  time.Time `grove:"updated_at"`
}

// ==================== Helpers ====================

// marshalList encodes nil slices as "[]" so the NOT NULL columns stay valid.
func marshalList[T any](items []T) (json.RawMessage, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: encode %T: %w", items, err)
	}
	return raw, nil
}

func unmarshalDoc(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func parseOptional(s string, prefix id.Prefix) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.ParseWithPrefix(s, prefix)
}
