// Package configstore resolves strategy parameters through a layered
// priority chain backed by a document store, with an in-process cache and a
// full audit trail.
package configstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrosa/realtime-strategies/errs"
)

const (
	collectionGlobal = "strategy_configs_global"
	collectionSymbol = "strategy_configs_symbol"
	collectionAudit  = "strategy_config_audit"
)

// StoredConfig is one persisted configuration document. An empty Symbol
// marks a global config.
type StoredConfig struct {
	StrategyID string         `bson:"strategy_id" json:"strategy_id"`
	Symbol     string         `bson:"symbol,omitempty" json:"symbol,omitempty"`
	Parameters map[string]any `bson:"parameters" json:"parameters"`
	Version    int            `bson:"version" json:"version"`
	UpdatedAt  time.Time      `bson:"updated_at" json:"updated_at"`
	UpdatedBy  string         `bson:"updated_by" json:"updated_by"`
}

// AuditRecord is one append-only configuration change entry.
type AuditRecord struct {
	StrategyID    string         `bson:"strategy_id" json:"strategy_id"`
	Symbol        string         `bson:"symbol,omitempty" json:"symbol,omitempty"`
	Action        string         `bson:"action" json:"action"`
	OldParameters map[string]any `bson:"old_parameters,omitempty" json:"old_parameters,omitempty"`
	NewParameters map[string]any `bson:"new_parameters,omitempty" json:"new_parameters,omitempty"`
	ChangedBy     string         `bson:"changed_by" json:"changed_by"`
	ChangedAt     time.Time      `bson:"changed_at" json:"changed_at"`
	Reason        string         `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Store is the persistence surface the manager depends on.
type Store interface {
	Get(ctx context.Context, strategyID, symbol string) (*StoredConfig, error)
	Upsert(ctx context.Context, cfg StoredConfig) (*StoredConfig, error)
	Delete(ctx context.Context, strategyID, symbol string) (*StoredConfig, error)
	AppendAudit(ctx context.Context, rec AuditRecord) error
	Audit(ctx context.Context, strategyID, symbol string, limit int) ([]AuditRecord, error)
	CountOverrides(ctx context.Context, strategyID string) (global int, symbols int, err error)
}

// MongoStore persists configs in three collections: global configs keyed by
// strategy, symbol overrides keyed by strategy and symbol, and the audit log.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps a connected database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureIndexes creates the unique and audit indexes. Safe to call on every
// startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collectionGlobal).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "strategy_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return storeErr("create global index", err)
	}
	_, err = s.db.Collection(collectionSymbol).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "strategy_id", Value: 1}, {Key: "symbol", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return storeErr("create symbol index", err)
	}
	_, err = s.db.Collection(collectionAudit).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "strategy_id", Value: 1}, {Key: "symbol", Value: 1}, {Key: "changed_at", Value: -1}},
		Options: options.Index(),
	})
	if err != nil {
		return storeErr("create audit index", err)
	}
	return nil
}

func (s *MongoStore) collectionFor(symbol string) *mongo.Collection {
	if symbol == "" {
		return s.db.Collection(collectionGlobal)
	}
	return s.db.Collection(collectionSymbol)
}

func filterFor(strategyID, symbol string) bson.M {
	filter := bson.M{"strategy_id": strategyID}
	if symbol != "" {
		filter["symbol"] = symbol
	}
	return filter
}

// Get returns the stored config, or nil when none exists.
func (s *MongoStore) Get(ctx context.Context, strategyID, symbol string) (*StoredConfig, error) {
	var cfg StoredConfig
	err := s.collectionFor(symbol).FindOne(ctx, filterFor(strategyID, symbol)).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get config", err)
	}
	return &cfg, nil
}

// Upsert writes the config, bumping the version past any existing document,
// and returns the persisted state.
func (s *MongoStore) Upsert(ctx context.Context, cfg StoredConfig) (*StoredConfig, error) {
	existing, err := s.Get(ctx, cfg.StrategyID, cfg.Symbol)
	if err != nil {
		return nil, err
	}
	cfg.Version = 1
	if existing != nil {
		cfg.Version = existing.Version + 1
	}
	_, err = s.collectionFor(cfg.Symbol).ReplaceOne(ctx,
		filterFor(cfg.StrategyID, cfg.Symbol),
		cfg,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, storeErr("upsert config", err)
	}
	return &cfg, nil
}

// Delete removes the config and returns the previous state, or nil when
// nothing existed.
func (s *MongoStore) Delete(ctx context.Context, strategyID, symbol string) (*StoredConfig, error) {
	existing, err := s.Get(ctx, strategyID, symbol)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if _, err := s.collectionFor(symbol).DeleteOne(ctx, filterFor(strategyID, symbol)); err != nil {
		return nil, storeErr("delete config", err)
	}
	return existing, nil
}

// AppendAudit writes one audit entry.
func (s *MongoStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	if _, err := s.db.Collection(collectionAudit).InsertOne(ctx, rec); err != nil {
		return storeErr("append audit", err)
	}
	return nil
}

// Audit returns the newest entries first, up to limit.
func (s *MongoStore) Audit(ctx context.Context, strategyID, symbol string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"strategy_id": strategyID}
	if symbol != "" {
		filter["symbol"] = symbol
	}
	cursor, err := s.db.Collection(collectionAudit).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "changed_at", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, storeErr("query audit", err)
	}
	defer cursor.Close(ctx)
	var records []AuditRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, storeErr("decode audit", err)
	}
	return records, nil
}

// CountOverrides reports whether a global config exists and how many symbol
// overrides are stored for the strategy.
func (s *MongoStore) CountOverrides(ctx context.Context, strategyID string) (int, int, error) {
	global, err := s.db.Collection(collectionGlobal).CountDocuments(ctx, bson.M{"strategy_id": strategyID})
	if err != nil {
		return 0, 0, storeErr("count global", err)
	}
	symbols, err := s.db.Collection(collectionSymbol).CountDocuments(ctx, bson.M{"strategy_id": strategyID})
	if err != nil {
		return 0, 0, storeErr("count symbols", err)
	}
	return int(global), int(symbols), nil
}

func storeErr(op string, err error) error {
	return errs.New("configstore", errs.CodeUnavailable,
		errs.WithMessage(op+" failed"),
		errs.WithCause(err),
	)
}

// Connect dials the document store and returns the database handle plus a
// disconnect function.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*mongo.Database, func(context.Context) error, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, nil, storeErr("connect", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, storeErr("ping", err)
	}
	return client.Database(database), client.Disconnect, nil
}
