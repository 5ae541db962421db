// Package storage persists the price history into a SQLite database.
//
// Queries are built by the entgo.io/ent SQL builder and the schema is applied by the ent migration.
package storage

import (
	"context"
	stdsql "database/sql"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/price-tracker/internal/pkg/log"
	"github.com/keboola/price-tracker/internal/pkg/service/tracker/model"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

type Store struct {
	config Config
	dsn    string
	clock  clockwork.Clock
	logger log.Logger

	lock   sync.RWMutex
	driver *sql.Driver
	// cryptoIDs maps a coin symbol to the "crypto" table ID.
	cryptoIDs map[string]int64
}

// Open opens the database, applies the schema, seeds the tracked coins and loads the symbols cache.
func Open(ctx context.Context, cfg Config, clock clockwork.Clock, logger log.Logger) (*Store, error) {
	dsn, err := cfg.normalizedDSN()
	if err != nil {
		return nil, err
	}

	s := &Store{config: cfg, dsn: dsn, clock: clock, logger: logger.WithComponent("storage")}
	if err := s.open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// TestConnection returns true if the database is reachable.
func (s *Store) TestConnection(ctx context.Context) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.driver == nil {
		return false
	}
	return s.driver.DB().PingContext(ctx) == nil
}

// Reconnect closes the database and opens it again.
func (s *Store) Reconnect(ctx context.Context) error {
	if err := s.Close(); err != nil {
		s.logger.Warnf(ctx, "cannot close database: %s", err)
	}
	if err := s.open(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "database reconnected")
	return nil
}

func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close()
	s.driver = nil
	return err
}

// InsertPrices writes all prices in one transaction, unknown symbols are skipped.
// It returns the number of written records.
func (s *Store) InsertPrices(ctx context.Context, prices model.Prices, at time.Time) (written int, err error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.driver == nil {
		return 0, errors.New("database is closed")
	}

	tx, err := s.driver.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.PrefixError(err, "cannot start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	at = at.UTC()
	for _, symbol := range prices.Symbols() {
		cryptoID, found := s.cryptoIDs[symbol]
		if !found {
			s.logger.With(attribute.String("symbol", symbol)).Warn(ctx, `unknown symbol "<symbol>", skipped`)
			continue
		}

		query, args := sql.Dialect(dialect.SQLite).
			Insert(pricesTableName).
			Columns("crypto_id", "price", "recorded_at").
			Values(cryptoID, prices[symbol], at).
			Query()
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return 0, errors.PrefixErrorf(err, `cannot insert price of "%s"`, symbol)
		}
		written++
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.PrefixError(err, "cannot commit transaction")
	}
	return written, nil
}

// DeleteOlderThan deletes records older than the age, the age is computed from the clock.
func (s *Store) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.driver == nil {
		return 0, errors.New("database is closed")
	}

	cutoff := s.clock.Now().Add(-age).UTC()
	query, args := sql.Dialect(dialect.SQLite).
		Delete(pricesTableName).
		Where(sql.LT("recorded_at", cutoff)).
		Query()
	result, err := s.driver.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.PrefixError(err, "cannot delete expired prices")
	}
	return result.RowsAffected()
}

// CountPrices returns the number of stored price records.
func (s *Store) CountPrices(ctx context.Context) (int64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.driver == nil {
		return 0, errors.New("database is closed")
	}

	query, args := sql.Dialect(dialect.SQLite).
		Select(sql.Count("*")).
		From(sql.Table(pricesTableName)).
		Query()
	var count int64
	if err := s.driver.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.PrefixError(err, "cannot count prices")
	}
	return count, nil
}

func (s *Store) open(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	startTime := time.Now()
	driver, err := sql.Open(dialect.SQLite, s.dsn)
	if err != nil {
		return errors.PrefixError(err, "cannot open database")
	}

	if err := s.init(ctx, driver); err != nil {
		_ = driver.Close()
		return err
	}

	s.driver = driver
	s.logger.WithDuration(time.Since(startTime)).Infof(ctx, "opened database, %d coins tracked", len(s.cryptoIDs))
	return nil
}

func (s *Store) init(ctx context.Context, driver *sql.Driver) error {
	if err := driver.DB().PingContext(ctx); err != nil {
		return errors.PrefixError(err, "cannot connect to database")
	}

	// Schema
	migrate, err := schema.NewMigrate(driver)
	if err != nil {
		return errors.PrefixError(err, "cannot create schema migration")
	}
	if err := migrate.Create(ctx, tables...); err != nil {
		return errors.PrefixError(err, "cannot apply schema")
	}

	// Seed tracked coins
	for _, coin := range s.config.Coins {
		query, args := sql.Dialect(dialect.SQLite).
			Insert(cryptoTableName).
			Columns("symbol", "gecko_id").
			Values(coin.Symbol, coin.GeckoID).
			OnConflict(sql.ConflictColumns("symbol"), sql.DoNothing()).
			Query()
		if _, err := driver.DB().ExecContext(ctx, query, args...); err != nil {
			return errors.PrefixErrorf(err, `cannot seed coin "%s"`, coin.Symbol)
		}
	}

	// Load cache
	cryptoIDs, err := loadCryptoIDs(ctx, driver.DB())
	if err != nil {
		return err
	}
	s.cryptoIDs = cryptoIDs
	return nil
}

func loadCryptoIDs(ctx context.Context, db *stdsql.DB) (map[string]int64, error) {
	query, args := sql.Dialect(dialect.SQLite).
		Select("id", "symbol").
		From(sql.Table(cryptoTableName)).
		Query()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot load coins")
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id int64
		var symbol string
		if err := rows.Scan(&id, &symbol); err != nil {
			return nil, errors.PrefixError(err, "cannot load coins")
		}
		out[symbol] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PrefixError(err, "cannot load coins")
	}
	return out, nil
}
