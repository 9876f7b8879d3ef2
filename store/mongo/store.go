package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/usage"
)

// Collection name constants.
const (
	colBusinesses = "tally_businesses"
	colClients    = "tally_clients"
	colTaxTypes   = "tally_tax_types"
	colInvoices   = "tally_invoices"
	colUsage      = "tally_usage"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: mongo %s indexes: %w", tally.ErrMigrationFailed, col, err)
		}
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
	if _, err := s.mdb.NewInsert(toBusinessModel(b)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create business: %w", err)
	}
	return nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	var m businessModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": businessID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrBusinessNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get business: %w", err)
	}
	return fromBusinessModel(&m)
}

func (s *Store) UpdateBusiness(ctx context.Context, b *business.Business) error {
	m := toBusinessModel(b)
	res, err := s.mdb.NewUpdate((*businessModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("name", m.Name).
		Set("email", m.Email).
		Set("currency", m.Currency).
		Set("tier", m.Tier).
		Set("payment_terms_days", m.PaymentTermsDays).
		Set("invoice_prefix", m.InvoicePrefix).
		Set("payment_account_id", m.PaymentAccountID).
		Set("address", m.Address).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update business: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrBusinessNotFound
	}
	return nil
}

func (s *Store) NextInvoiceSeq(ctx context.Context, businessID id.BusinessID) (int64, error) {
	var out struct {
		InvoiceSeq int64 `bson:"invoice_seq"`
	}
	err := s.mdb.Collection(colBusinesses).FindOneAndUpdate(ctx,
		bson.M{"_id": businessID.String()},
		bson.M{
			"$inc": bson.M{"invoice_seq": 1},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		if isNoDocuments(err) {
			return 0, tally.ErrBusinessNotFound
		}
		return 0, fmt.Errorf("tally/mongo: next invoice seq: %w", err)
	}
	return out.InvoiceSeq, nil
}

// ==================== Client Store ====================

func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	if _, err := s.mdb.NewInsert(toClientModel(c)).Exec(ctx); err != nil {
		return fmt.Errorf("tally/mongo: create client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	var m clientModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": clientID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrClientNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get client: %w", err)
	}
	return fromClientModel(&m)
}

func (s *Store) ListClients(ctx context.Context, businessID id.BusinessID, opts client.ListOpts) ([]*client.Client, error) {
	var models []clientModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{"business_id": businessID.String()}).
		Sort(bson.D{{Key: "name", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list clients: %w", err)
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
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update client: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrClientNotFound
	}
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, clientID id.ClientID) error {
	res, err := s.mdb.NewDelete((*clientModel)(nil)).
		Filter(bson.M{"_id": clientID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete client: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrClientNotFound
	}
	return nil
}

// ==================== Tax Store ====================

func (s *Store) CreateTaxType(ctx context.Context, t *tax.TaxType) error {
	if _, err := s.mdb.NewInsert(toTaxTypeModel(t)).Exec(ctx); err != nil {
		return fmt.Errorf("tally/mongo: create tax type: %w", err)
	}
	return nil
}

func (s *Store) GetTaxType(ctx context.Context, taxTypeID id.TaxTypeID) (*tax.TaxType, error) {
	var m taxTypeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": taxTypeID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrTaxTypeNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get tax type: %w", err)
	}
	return fromTaxTypeModel(&m)
}

func (s *Store) ListTaxTypes(ctx context.Context, businessID id.BusinessID) ([]*tax.TaxType, error) {
	var models []taxTypeModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"business_id": businessID.String()}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list tax types: %w", err)
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
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update tax type: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrTaxTypeNotFound
	}
	return nil
}

func (s *Store) DeleteTaxType(ctx context.Context, taxTypeID id.TaxTypeID) error {
	res, err := s.mdb.NewDelete((*taxTypeModel)(nil)).
		Filter(bson.M{"_id": taxTypeID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete tax type: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrTaxTypeNotFound
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if _, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return s.findInvoice(ctx, bson.M{"_id": invID.String()})
}

func (s *Store) GetInvoiceByShareToken(ctx context.Context, token string) (*invoice.Invoice, error) {
	if token == "" {
		return nil, tally.ErrInvoiceNotFound
	}
	return s.findInvoice(ctx, bson.M{"share_token": token})
}

func (s *Store) ListInvoices(ctx context.Context, businessID id.BusinessID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{"business_id": businessID.String()}
	if len(opts.Statuses) > 0 {
		statuses := make([]string, len(opts.Statuses))
		for i, st := range opts.Statuses {
			statuses[i] = string(invoice.Normalize(st))
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if !opts.ClientID.IsNil() {
		filter["client_id"] = opts.ClientID.String()
	}
	if opts.Templates != nil {
		filter["is_recurring"] = *opts.Templates
	}
	if !opts.DueBefore.IsZero() {
		filter["due_date"] = bson.M{"$lt": opts.DueBefore}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list invoices: %w", err)
	}
	return fromInvoiceModels(models)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	m.Version = inv.Version + 1
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update invoice: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrInvoiceNotFound
	}
	inv.Version = m.Version
	return nil
}

// TransitionInvoice filters on the expected status and version so the
// document is only replaced while nobody else wrote it.
func (s *Store) TransitionInvoice(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error {
	m := toInvoiceModel(inv)
	m.Version = inv.Version + 1
	expected := []string{string(invoice.Normalize(from))}
	if invoice.Normalize(from) == invoice.StatusSent {
		expected = append(expected, string(invoice.StatusOverdue))
	}

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "status": bson.M{"$in": expected}, "version": inv.Version}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: transition invoice: %w", err)
	}
	if res.MatchedCount() > 0 {
		inv.Version = m.Version
		return nil
	}

	cur, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: invoice %s is %s at version %d, expected %s at version %d",
		tally.ErrStatusConflict, inv.ID, cur.Status, cur.Version, from, inv.Version)
}

func (s *Store) DeleteInvoice(ctx context.Context, invID id.InvoiceID) error {
	res, err := s.mdb.NewDelete((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete invoice: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) ListDueTemplates(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"is_recurring":        true,
			"next_recurring_date": bson.M{"$ne": nil, "$lte": asOf.UTC()},
		}).
		Sort(bson.D{{Key: "next_recurring_date", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list due templates: %w", err)
	}
	return fromInvoiceModels(models)
}

func (s *Store) findInvoice(ctx context.Context, filter bson.M) (*invoice.Invoice, error) {
	var m invoiceModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

// ==================== Usage Store ====================

// IncrementUsage upserts the counter with the limit in the filter. When the
// counter is already full the filter misses, the upsert collides on _id and
// the duplicate-key error is the quota signal.
func (s *Store) IncrementUsage(ctx context.Context, businessID id.BusinessID, period string, limit int64) (int64, bool, error) {
	if limit != usage.Unlimited && limit <= 0 {
		count, err := s.GetUsage(ctx, businessID, period)
		return count, false, err
	}

	key := usageKey(businessID, period)
	filter := bson.M{"_id": key}
	if limit != usage.Unlimited {
		filter["count"] = bson.M{"$lt": limit}
	}

	var m usageModel
	err := s.mdb.Collection(colUsage).FindOneAndUpdate(ctx,
		filter,
		bson.M{
			"$inc":         bson.M{"count": 1},
			"$set":         bson.M{"updated_at": now()},
			"$setOnInsert": bson.M{"business_id": businessID.String(), "period": period},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			count, getErr := s.GetUsage(ctx, businessID, period)
			return count, false, getErr
		}
		return 0, false, fmt.Errorf("tally/mongo: increment usage: %w", err)
	}
	return m.Count, true, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, businessID id.BusinessID, period string) error {
	_, err := s.mdb.NewUpdate((*usageModel)(nil)).
		Filter(bson.M{"_id": usageKey(businessID, period), "count": bson.M{"$gt": 0}}).
		SetUpdate(bson.M{
			"$inc": bson.M{"count": -1},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: release usage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, businessID id.BusinessID, period string) (int64, error) {
	var m usageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": usageKey(businessID, period)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("tally/mongo: get usage: %w", err)
	}
	return m.Count, nil
}

// ==================== Helpers ====================

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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colClients: {
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "name", Value: 1}}},
		},
		colTaxTypes: {
			{Keys: bson.D{{Key: "business_id", Value: 1}}},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "status", Value: 1}}},
			{
				Keys: bson.D{{Key: "share_token", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"share_token": bson.M{"$gt": ""}}),
			},
			{
				Keys:    bson.D{{Key: "next_recurring_date", Value: 1}},
				Options: options.Index().SetPartialFilterExpression(bson.M{"is_recurring": true}),
			},
		},
		colUsage: {
			{Keys: bson.D{{Key: "business_id", Value: 1}, {Key: "period", Value: 1}}},
		},
	}
}
