// Package mongo implements store.Store on MongoDB. Posting and voiding use
// multi-document transactions, so the deployment must be a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	ledger "github.com/rentbook/ledger"
	"github.com/rentbook/ledger/account"
	"github.com/rentbook/ledger/id"
	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/recurring"
	ledgerstore "github.com/rentbook/ledger/store"
)

// Collection name constants.
const (
	colAccounts    = "ledger_accounts"
	colGroups      = "ledger_posting_groups"
	colEntries     = "ledger_entries"
	colDefinitions = "ledger_charge_definitions"
	colSubjects    = "ledger_subjects"
)

// compile-time interface check
var _ ledgerstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a store over database name of an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Open connects to uri and uses database.
func Open(uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: connect: %w", err)
	}
	return New(client, database), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: mongo %s indexes: %w", ledger.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return ledger.Unavailable("mongo ping", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.Collection(colAccounts).InsertOne(ctx, toAccountModel(a))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrAlreadyExists
		}
		return classify("create account", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, code string) (*account.Account, error) {
	var m accountModel
	err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": code}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrAccountNotFound
		}
		return nil, classify("get account", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	filter := bson.M{}
	if opts.Category != "" {
		filter["category"] = string(opts.Category)
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	var models []accountModel
	if err := s.find(ctx, colAccounts, filter, bson.D{{Key: "_id", Value: 1}}, opts.Limit, opts.Offset, &models); err != nil {
		return nil, classify("list accounts", err)
	}
	out := make([]*account.Account, 0, len(models))
	for i := range models {
		out = append(out, fromAccountModel(&models[i]))
	}
	return out, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	res, err := s.db.Collection(colAccounts).UpdateOne(ctx, bson.M{"_id": a.Code}, bson.M{"$set": bson.M{
		"name":           a.Name,
		"description":    a.Description,
		"category":       string(a.Category),
		"normal_balance": string(a.NormalBalance),
		"active":         a.Active,
		"updated_at":     a.UpdatedAt,
	}})
	if err != nil {
		return classify("update account", err)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, code string) error {
	return s.inTx(ctx, "delete account", func(ctx context.Context) error {
		n, err := s.db.Collection(colEntries).CountDocuments(ctx, bson.M{"account_code": code})
		if err != nil {
			return err
		}
		if n > 0 {
			return ledger.ErrAccountInUse
		}
		res, err := s.db.Collection(colAccounts).DeleteOne(ctx, bson.M{"_id": code})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ledger.ErrAccountNotFound
		}
		return nil
	})
}

// ==================== Journal Store ====================

func (s *Store) AppendGroup(ctx context.Context, g *journal.PostingGroup) error {
	return s.inTx(ctx, "append group", func(ctx context.Context) error {
		return s.insertGroup(ctx, g)
	})
}

// insertGroup must run inside a transaction.
func (s *Store) insertGroup(ctx context.Context, g *journal.PostingGroup) error {
	codes := make([]string, 0, len(g.Entries))
	seen := make(map[string]bool, len(g.Entries))
	for _, e := range g.Entries {
		if !seen[e.AccountCode] {
			seen[e.AccountCode] = true
			codes = append(codes, e.AccountCode)
		}
	}
	n, err := s.db.Collection(colAccounts).CountDocuments(ctx, bson.M{"_id": bson.M{"$in": codes}})
	if err != nil {
		return err
	}
	if int(n) != len(codes) {
		return s.unknownAccount(ctx, codes)
	}

	if _, err := s.db.Collection(colGroups).InsertOne(ctx, toGroupModel(g)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateKey
		}
		return err
	}

	docs := make([]any, 0, len(g.Entries))
	for _, e := range g.Entries {
		docs = append(docs, toEntryModel(e))
	}
	_, err = s.db.Collection(colEntries).InsertMany(ctx, docs)
	return err
}

func (s *Store) unknownAccount(ctx context.Context, codes []string) error {
	for _, code := range codes {
		err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": code}).Err()
		if isNoDocuments(err) {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, code)
		}
		if err != nil {
			return err
		}
	}
	return ledger.ErrUnknownAccount
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*journal.Entry, error) {
	var m entryModel
	err := s.db.Collection(colEntries).FindOne(ctx, bson.M{"_id": entryID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, classify("get entry", err)
	}
	return fromEntryModel(&m)
}

func (s *Store) GetGroup(ctx context.Context, groupID id.PostingGroupID) (*journal.PostingGroup, error) {
	return s.getGroup(ctx, bson.M{"_id": groupID.String()})
}

func (s *Store) GetGroupByKey(ctx context.Context, idempotencyKey string) (*journal.PostingGroup, error) {
	if idempotencyKey == "" {
		return nil, ledger.ErrGroupNotFound
	}
	return s.getGroup(ctx, bson.M{"idempotency_key": idempotencyKey})
}

func (s *Store) getGroup(ctx context.Context, filter bson.M) (*journal.PostingGroup, error) {
	var g *journal.PostingGroup
	err := s.inTx(ctx, "get group", func(ctx context.Context) error {
		var m groupModel
		if err := s.db.Collection(colGroups).FindOne(ctx, filter).Decode(&m); err != nil {
			if isNoDocuments(err) {
				return ledger.ErrGroupNotFound
			}
			return err
		}
		entries, err := s.findEntries(ctx, bson.M{"group_id": m.ID}, 0, 0)
		if err != nil {
			return err
		}
		g, err = fromGroupModel(&m, entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) VoidGroup(ctx context.Context, v *journal.Void) ([]*journal.Entry, error) {
	var voided []*journal.Entry
	err := s.inTx(ctx, "void group", func(ctx context.Context) error {
		groupID := v.GroupID.String()
		if err := s.db.Collection(colGroups).FindOne(ctx, bson.M{"_id": groupID}).Err(); err != nil {
			if isNoDocuments(err) {
				return ledger.ErrGroupNotFound
			}
			return err
		}

		// A concurrent void conflicts on these documents; the retried
		// transaction then matches nothing.
		res, err := s.db.Collection(colEntries).UpdateMany(ctx,
			bson.M{"group_id": groupID, "status": string(journal.StatusPosted)},
			bson.M{"$set": bson.M{
				"status":      string(journal.StatusVoid),
				"void_reason": v.Reason,
				"voided_at":   v.At,
			}})
		if err != nil {
			return err
		}
		if res.ModifiedCount == 0 {
			return ledger.ErrAlreadyVoided
		}

		voided, err = s.findEntries(ctx, bson.M{
			"group_id":  groupID,
			"status":    string(journal.StatusVoid),
			"voided_at": v.At,
		}, 0, 0)
		if err != nil {
			return err
		}

		if v.Reversal != nil {
			return s.insertGroup(ctx, v.Reversal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *Store) ListEntries(ctx context.Context, f journal.Filter) ([]*journal.Entry, error) {
	entries, err := s.findEntries(ctx, entryFilter(f), f.Limit, f.Offset)
	if err != nil {
		return nil, classify("list entries", err)
	}
	return entries, nil
}

func (s *Store) SumEntries(ctx context.Context, f journal.Filter) (journal.Totals, error) {
	sideSum := func(side string) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$side", side}}, "$amount", 0}}}
	}
	pipeline := bson.A{
		bson.M{"$match": entryFilter(f)},
		bson.M{"$group": bson.M{
			"_id":     nil,
			"debits":  sideSum("DEBIT"),
			"credits": sideSum("CREDIT"),
			"count":   bson.M{"$sum": 1},
		}},
	}

	cursor, err := s.db.Collection(colEntries).Aggregate(ctx, pipeline)
	if err != nil {
		return journal.Totals{}, classify("sum entries", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Debits  int64 `bson:"debits"`
		Credits int64 `bson:"credits"`
		Count   int64 `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return journal.Totals{}, classify("sum entries decode", err)
	}
	if len(results) == 0 {
		return journal.Totals{}, nil
	}
	return journal.Totals{Debits: results[0].Debits, Credits: results[0].Credits, Count: results[0].Count}, nil
}

func entryFilter(f journal.Filter) bson.M {
	filter := bson.M{}
	if f.AccountCode != "" {
		filter["account_code"] = f.AccountCode
	}
	if f.SubjectID != "" {
		filter["subject_id"] = f.SubjectID
	}
	if !f.GroupID.IsNil() {
		filter["group_id"] = f.GroupID.String()
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		window := bson.M{}
		if !f.From.IsZero() {
			window["$gte"] = f.From
		}
		if !f.To.IsZero() {
			window["$lt"] = f.To
		}
		filter["effective_date"] = window
	}
	return filter
}

func (s *Store) findEntries(ctx context.Context, filter bson.M, limit, offset int) ([]*journal.Entry, error) {
	var models []entryModel
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "group_id", Value: 1}, {Key: "line", Value: 1}}
	if err := s.find(ctx, colEntries, filter, sort, limit, offset, &models); err != nil {
		return nil, err
	}
	out := make([]*journal.Entry, 0, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ==================== Recurring Store ====================

func (s *Store) CreateDefinition(ctx context.Context, d *recurring.Definition) error {
	_, err := s.db.Collection(colDefinitions).InsertOne(ctx, toDefinitionModel(d))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrAlreadyExists
		}
		return classify("create definition", err)
	}
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, defID id.DefinitionID) (*recurring.Definition, error) {
	var m definitionModel
	err := s.db.Collection(colDefinitions).FindOne(ctx, bson.M{"_id": defID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrDefinitionNotFound
		}
		return nil, classify("get definition", err)
	}
	return fromDefinitionModel(&m)
}

func (s *Store) ListDefinitions(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Definition, error) {
	filter := bson.M{}
	if opts.SubjectID != "" {
		filter["subject_id"] = opts.SubjectID
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	var models []definitionModel
	if err := s.find(ctx, colDefinitions, filter, bson.D{{Key: "_id", Value: 1}}, opts.Limit, opts.Offset, &models); err != nil {
		return nil, classify("list definitions", err)
	}
	out := make([]*recurring.Definition, 0, len(models))
	for i := range models {
		d, err := fromDefinitionModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) UpdateDefinition(ctx context.Context, d *recurring.Definition) error {
	res, err := s.db.Collection(colDefinitions).UpdateOne(ctx, bson.M{"_id": d.ID.String()}, bson.M{"$set": bson.M{
		"subject_id":     d.SubjectID,
		"description":    d.Description,
		"amount":         d.Amount.Amount,
		"currency":       d.Amount.Currency,
		"income_account": d.IncomeAccount,
		"due_day":        d.DueDay,
		"active":         d.Active,
		"updated_at":     d.UpdatedAt,
	}})
	if err != nil {
		return classify("update definition", err)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrDefinitionNotFound
	}
	return nil
}

func (s *Store) MarkCharged(ctx context.Context, defID id.DefinitionID, period recurring.Period) (bool, error) {
	col := s.db.Collection(colDefinitions)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": defID.String(), "last_charged_period": bson.M{"$lt": string(period)}},
		bson.M{"$set": bson.M{"last_charged_period": string(period)}})
	if err != nil {
		return false, classify("mark charged", err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}
	n, err := col.CountDocuments(ctx, bson.M{"_id": defID.String()})
	if err != nil {
		return false, classify("mark charged", err)
	}
	if n == 0 {
		return false, ledger.ErrDefinitionNotFound
	}
	return false, nil
}

func (s *Store) UpsertSubject(ctx context.Context, sub *recurring.Subject) error {
	set := bson.M{
		"name":               sub.Name,
		"receivable_account": sub.ReceivableAccount,
		"status":             string(sub.Status),
		"start_date":         sub.StartDate,
		"updated_at":         sub.UpdatedAt,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": sub.CreatedAt},
	}
	if sub.EndDate != nil {
		set["end_date"] = *sub.EndDate
	} else {
		update["$unset"] = bson.M{"end_date": ""}
	}

	_, err := s.db.Collection(colSubjects).UpdateOne(ctx, bson.M{"_id": sub.ID}, update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return classify("upsert subject", err)
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, subjectID string) (*recurring.Subject, error) {
	var m subjectModel
	err := s.db.Collection(colSubjects).FindOne(ctx, bson.M{"_id": subjectID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrSubjectNotFound
		}
		return nil, classify("get subject", err)
	}
	return fromSubjectModel(&m), nil
}

// ==================== Helpers ====================

// inTx runs fn in a session transaction. The driver retries fn on transient
// transaction errors such as write conflicts.
func (s *Store) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return classify(op, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if isSentinel(err) {
			return err
		}
		return classify(op, err)
	}
	return nil
}

func (s *Store) find(ctx context.Context, col string, filter bson.M, sort bson.D, limit, offset int, out any) error {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	cursor, err := s.db.Collection(col).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isSentinel reports errors that are already in the ledger's vocabulary.
func isSentinel(err error) bool {
	return errors.Is(err, ledger.ErrNotFound) ||
		errors.Is(err, ledger.ErrDuplicateKey) ||
		errors.Is(err, ledger.ErrAlreadyVoided) ||
		errors.Is(err, ledger.ErrAccountInUse) ||
		errors.Is(err, ledger.ErrUnknownAccount) ||
		errors.Is(err, ledger.ErrAlreadyExists)
}

// classify marks network failures and timeouts as retryable.
func classify(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return ledger.Unavailable("mongo "+op, err)
	}
	return fmt.Errorf("ledger/mongo: %s: %w", op, err)
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colGroups: {
			{
				Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "reversal_of", Value: 1}}},
		},
		colEntries: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "line", Value: 1}}},
			{Keys: bson.D{{Key: "account_code", Value: 1}, {Key: "subject_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "effective_date", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colDefinitions: {
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "subject_id", Value: 1}}},
		},
	}
}
