// Package store is the read-only business catalog behind the twin: profile,
// persona, products and offers, persisted with bun on Postgres or SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver       string `split_words:"true" default:"sqlite"`
	DSN          string `envconfig:"DSN" default:"twin.db"`
	MaxOpenConns int    `split_words:"true" default:"10"`
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: unsupported database driver %q", contractx.ErrConfig, c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("%w: database dsn is required", contractx.ErrConfig)
	}
	return nil
}

type Store struct {
	db     *bun.DB
	logger zerolog.Logger
}

var _ contractx.BusinessReader = (*Store)(nil)

// Open connects to the configured database. It does not migrate.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *bun.DB
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s := New(db)
	s.logger.Info().Str("driver", cfg.Driver).Msg("database opened")
	return s, nil
}

func New(db *bun.DB) *Store {
	return &Store{db: db, logger: logx.Component("store")}
}

func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the catalog tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	indexes := []struct {
		model any
		name  string
	}{
		{(*productRow)(nil), "products_business_id_idx"},
		{(*offerRow)(nil), "offers_business_id_idx"},
	}
	for _, idx := range indexes {
		if _, err := s.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column("business_id").
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}

	s.logger.Info().Int("tables", len(models)).Msg("migrations applied")
	return nil
}

// LoadBusiness resolves a business by id or slug.
func (s *Store) LoadBusiness(ctx context.Context, businessID string) (contractx.BusinessProfile, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return contractx.BusinessProfile{}, fmt.Errorf("%w: business id is empty", contractx.ErrNotFound)
	}

	var row businessRow
	err := s.db.NewSelect().
		Model(&row).
		Where("id = ?", businessID).
		WhereOr("slug = ?", businessID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.BusinessProfile{}, fmt.Errorf("%w: business %q", contractx.ErrNotFound, businessID)
	}
	if err != nil {
		return contractx.BusinessProfile{}, fmt.Errorf("load business %q: %w", businessID, err)
	}
	return row.toProfile(), nil
}

// LoadPersona returns nil when the business has no persona configured.
func (s *Store) LoadPersona(ctx context.Context, businessID string) (*contractx.Persona, error) {
	var row personaRow
	err := s.db.NewSelect().Model(&row).Where("business_id = ?", businessID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load persona %q: %w", businessID, err)
	}
	persona := row.toPersona()
	return &persona, nil
}

func (s *Store) ListProducts(ctx context.Context, businessID string) ([]contractx.Product, error) {
	var rows []productRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("business_id = ?", businessID).
		OrderExpr("sort_order ASC, name ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list products %q: %w", businessID, err)
	}

	out := make([]contractx.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toProduct())
	}
	return out, nil
}

// ListActiveOffers returns offers enabled and valid at now. The window is
// evaluated here so both dialects agree on timestamp comparison.
func (s *Store) ListActiveOffers(ctx context.Context, businessID string, now time.Time) ([]contractx.Offer, error) {
	var rows []offerRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("business_id = ?", businessID).
		OrderExpr("discount_percent DESC, title ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list offers %q: %w", businessID, err)
	}

	out := make([]contractx.Offer, 0, len(rows))
	for _, r := range rows {
		if r.activeAt(now) {
			out = append(out, r.toOffer())
		}
	}
	return out, nil
}
