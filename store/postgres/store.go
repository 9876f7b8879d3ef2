package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/usage"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", tally.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Business Store ====================

func (s *Store) CreateBusiness(ctx context.Context, b *business.Business) error {
	_, err := s.pg.NewInsert(toBusinessModel(b)).Exec(ctx)
	return err
}

func (s *Store) GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	m := new(businessModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", businessID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrBusinessNotFound
		}
		return nil, err
	}
	return fromBusinessModel(m)
}

// UpdateBusiness writes every column except invoice_seq, which only
// NextInvoiceSeq moves.
func (s *Store) UpdateBusiness(ctx context.Context, b *business.Business) error {
	m := toBusinessModel(b)
	res, err := s.pg.NewUpdate((*businessModel)(nil)).
		Set("name = $1", m.Name).
		Set("email = $2", m.Email).
		Set("currency = $3", m.Currency).
		Set("tier = $4", m.Tier).
		Set("payment_terms_days = $5", m.PaymentTermsDays).
		Set("invoice_prefix = $6", m.InvoicePrefix).
		Set("payment_account_id = $7", m.PaymentAccountID).
		Set("address = $8", m.Address).
		Set("updated_at = $9", m.UpdatedAt).
		Where("id = $10", m.ID).
		Exec(ctx)
	return affected(res, err, tally.ErrBusinessNotFound)
}

func (s *Store) NextInvoiceSeq(ctx context.Context, businessID id.BusinessID) (int64, error) {
	var seq int64
	err := s.pg.NewRaw(`
		UPDATE tally_businesses SET invoice_seq = invoice_seq + 1, updated_at = $2
		WHERE id = $1
		RETURNING invoice_seq
	`, businessID.String(), now()).Scan(ctx, &seq)
	if err != nil {
		if isNoRows(err) {
			return 0, tally.ErrBusinessNotFound
		}
		return 0, err
	}
	return seq, nil
}

// ==================== Client Store ====================

func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	_, err := s.pg.NewInsert(toClientModel(c)).Exec(ctx)
	return err
}

func (s *Store) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	m := new(clientModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", clientID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrClientNotFound
		}
		return nil, err
	}
	return fromClientModel(m)
}

func (s *Store) ListClients(ctx context.Context, businessID id.BusinessID, opts client.ListOpts) ([]*client.Client, error) {
	var models []clientModel
	q := s.pg.NewSelect(&models).Where("business_id = $1", businessID.String())
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*client.Client, len(models))
	for i := range models {
		c, err := fromClientModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpdateClient(ctx context.Context, c *client.Client) error {
	m := toClientModel(c)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	return affected(res, err, tally.ErrClientNotFound)
}

func (s *Store) DeleteClient(ctx context.Context, clientID id.ClientID) error {
	res, err := s.pg.NewDelete((*clientModel)(nil)).
		Where("id = $1", clientID.String()).
		Exec(ctx)
	return affected(res, err, tally.ErrClientNotFound)
}

// ==================== Tax Store ====================

func (s *Store) CreateTaxType(ctx context.Context, t *tax.TaxType) error {
	_, err := s.pg.NewInsert(toTaxTypeModel(t)).Exec(ctx)
	return err
}

func (s *Store) GetTaxType(ctx context.Context, taxTypeID id.TaxTypeID) (*tax.TaxType, error) {
	m := new(taxTypeModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", taxTypeID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrTaxTypeNotFound
		}
		return nil, err
	}
	return fromTaxTypeModel(m)
}

func (s *Store) ListTaxTypes(ctx context.Context, businessID id.BusinessID) ([]*tax.TaxType, error) {
	var models []taxTypeModel
	err := s.pg.NewSelect(&models).
		Where("business_id = $1", businessID.String()).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*tax.TaxType, len(models))
	for i := range models {
		t, err := fromTaxTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) UpdateTaxType(ctx context.Context, t *tax.TaxType) error {
	m := toTaxTypeModel(t)
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	return affected(res, err, tally.ErrTaxTypeNotFound)
}

func (s *Store) DeleteTaxType(ctx context.Context, taxTypeID id.TaxTypeID) error {
	res, err := s.pg.NewDelete((*taxTypeModel)(nil)).
		Where("id = $1", taxTypeID.String()).
		Exec(ctx)
	return affected(res, err, tally.ErrTaxTypeNotFound)
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) GetInvoiceByShareToken(ctx context.Context, token string) (*invoice.Invoice, error) {
	if token == "" {
		return nil, tally.ErrInvoiceNotFound
	}
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("share_token = $1", token).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, businessID id.BusinessID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models).Where("business_id = $1", businessID.String())

	argIdx := 1
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		args := make([]any, len(opts.Statuses))
		for i, st := range opts.Statuses {
			argIdx++
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args[i] = string(invoice.Normalize(st))
		}
		q = q.Where("status IN ("+strings.Join(placeholders, ", ")+")", args...)
	}
	if !opts.ClientID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("client_id = $%d", argIdx), opts.ClientID.String())
	}
	if opts.Templates != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("is_recurring = $%d", argIdx), *opts.Templates)
	}
	if !opts.DueBefore.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("due_date < $%d", argIdx), opts.DueBefore)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromInvoiceModels(models)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return s.writeInvoice(ctx, inv, "")
}

// TransitionInvoice rewrites the row only while its status and version still
// match. A row that no longer matches is re-read to tell a missing invoice
// from a lost race.
func (s *Store) TransitionInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error {
	return s.writeInvoice(ctx, inv, from)
}

// writeInvoice rewrites every mutable column and bumps the version. A
// non-empty from makes the write conditional.
func (s *Store) writeInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}

	cols, args := invoiceAssignments(m)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	where := fmt.Sprintf("id = $%d", len(args)+1)
	args = append(args, m.ID)
	if from != "" {
		expected := invoice.Normalize(from)
		legacy := expected
		if expected == invoice.StatusSent {
			legacy = invoice.StatusOverdue
		}
		n := len(args)
		where += fmt.Sprintf(" AND status IN ($%d, $%d) AND version = $%d", n+1, n+2, n+3)
		args = append(args, string(expected), string(legacy), inv.Version)
	}

	query := "UPDATE tally_invoices SET " + strings.Join(sets, ", ") +
		", version = version + 1 WHERE " + where + " RETURNING version"

	var version int64
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &version); err != nil {
		if !isNoRows(err) {
			return err
		}
		cur, getErr := s.GetInvoice(ctx, inv.ID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: invoice %s is %s at version %d, expected %s at version %d",
			tally.ErrStatusConflict, inv.ID, cur.Status, cur.Version, from, inv.Version)
	}
	inv.Version = version
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, invID id.InvoiceID) error {
	res, err := s.pg.NewDelete((*invoiceModel)(nil)).
		Where("id = $1", invID.String()).
		Exec(ctx)
	return affected(res, err, tally.ErrInvoiceNotFound)
}

func (s *Store) ListDueTemplates(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.pg.NewSelect(&models).
		Where("is_recurring = TRUE").
		Where("next_recurring_date IS NOT NULL").
		Where("next_recurring_date <= $1", asOf.UTC()).
		OrderExpr("next_recurring_date ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromInvoiceModels(models)
}

// ==================== Usage Store ====================

// IncrementUsage upserts the counter. The conditional DO UPDATE leaves a
// full counter untouched and returns no row.
func (s *Store) IncrementUsage(ctx context.Context, businessID id.BusinessID, period string, limit int64) (int64, bool, error) {
	if limit != usage.Unlimited && limit <= 0 {
		count, err := s.GetUsage(ctx, businessID, period)
		return count, false, err
	}

	query := `
		INSERT INTO tally_usage (business_id, period, count, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (business_id, period) DO UPDATE
		SET count = tally_usage.count + 1, updated_at = EXCLUDED.updated_at`
	args := []any{businessID.String(), period, now()}
	if limit != usage.Unlimited {
		query += `
		WHERE tally_usage.count < $4`
		args = append(args, limit)
	}
	query += `
		RETURNING count`

	var count int64
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &count); err != nil {
		if !isNoRows(err) {
			return 0, false, err
		}
		current, getErr := s.GetUsage(ctx, businessID, period)
		return current, false, getErr
	}
	return count, true, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, businessID id.BusinessID, period string) error {
	_, err := s.pg.NewUpdate((*usageModel)(nil)).
		Set("count = count - 1").
		Set("updated_at = $1", now()).
		Where("business_id = $2", businessID.String()).
		Where("period = $3", period).
		Where("count > 0").
		Exec(ctx)
	return err
}

func (s *Store) GetUsage(ctx context.Context, businessID id.BusinessID, period string) (int64, error) {
	m := new(usageModel)
	err := s.pg.NewSelect(m).
		Where("business_id = $1", businessID.String()).
		Where("period = $2", period).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return m.Count, nil
}

// ==================== Helpers ====================

// invoiceAssignments lists the mutable invoice columns in a fixed order.
// Identity and ownership columns are never rewritten.
func invoiceAssignments(m *invoiceModel) ([]string, []any) {
	cols := []string{
		"client_id", "invoice_number", "status", "currency", "issue_date", "due_date", "notes",
		"line_items", "payments", "tax_breakdown", "discount",
		"shipping_cents", "subtotal_cents", "tax_amount_cents", "discount_amount_cents", "total_cents", "amount_paid_cents",
		"share_token", "accept_online_payment", "payment_link", "checkout_session_id",
		"is_recurring", "recurrence", "next_recurring_date", "last_recurring_date", "template_id",
		"sent_at", "paid_at", "thank_you_sent_at", "updated_at",
	}
	args := []any{
		m.ClientID, m.Number, m.Status, m.Currency, m.IssueDate, m.DueDate, m.Notes,
		m.LineItems, m.Payments, m.TaxBreakdown, m.Discount,
		m.ShippingCents, m.SubtotalCents, m.TaxAmountCents, m.DiscountAmountCents, m.TotalCents, m.AmountPaidCents,
		m.ShareToken, m.AcceptOnlinePayment, m.PaymentLink, m.CheckoutSessionID,
		m.IsRecurring, m.Recurrence, m.NextRecurringDate, m.LastRecurringDate, m.TemplateID,
		m.SentAt, m.PaidAt, m.ThankYouSentAt, m.UpdatedAt,
	}
	return cols, args
}

func fromInvoiceModels(models []invoiceModel) ([]*invoice.Invoice, error) {
	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// affected maps a zero-row write to notFound.
func affected(res rowsAffecter, err error, notFound error) error {
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
