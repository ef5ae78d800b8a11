// Package postgres implements port.Store on PostgreSQL.
//
// CRUD and transactions go through gorm; the hot single-statement paths
// (view increment, search, stats) use pgx directly through pgxscan. Both
// share one pgx pool. The pgx paths always run on the pool, outside any
// surrounding transaction.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

// DefaultTimeout bounds every pgx query.
const DefaultTimeout = 5 * time.Second

const (
	uniqueViolation = "23505"

	constraintShareID      = "uq_published_cards_share_id"
	constraintActiveCustom = "uq_published_cards_active_customer"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL-backed port.Store.
type Store struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
	orm   *gorm.DB
	inTx  bool
}

var _ port.Store = (*Store)(nil)

// Open connects to dsn and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// Prefer simple protocol for compatibility with goose and poolers.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	orm, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	return &Store{pool: pool, sqlDB: sqlDB, orm: orm}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	_ = s.sqlDB.Close()
	s.pool.Close()
}

// Migrate applies every embedded migration.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.sqlDB, "migrations")
}

// MigrationStatus logs the state of every embedded migration through goose.
func (s *Store) MigrationStatus(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.StatusContext(ctx, s.sqlDB, "migrations")
}

func (s *Store) Customers() port.CustomerStore { return s }
func (s *Store) Cards() port.CardStore         { return s }
func (s *Store) Users() port.UserStore         { return s }
func (s *Store) Sessions() port.SessionStore   { return s }

// InTx runs fn in a gorm transaction. Nested calls use a savepoint.
func (s *Store) InTx(ctx context.Context, fn func(tx port.Store) error) error {
	return s.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{pool: s.pool, sqlDB: s.sqlDB, orm: tx, inTx: true})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.orm.WithContext(ctx)
}

// translate maps unique violations onto the port sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintShareID:
		return port.ErrShareIDTaken
	case constraintActiveCustom:
		return port.ErrActiveCardExists
	default:
		return fmt.Errorf("%w: %s", port.ErrDuplicate, pgErr.ConstraintName)
	}
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
