package postgres

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/importer"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// conn is an open transaction.
type conn interface {
	DBTX
	Commit(context.Context) error
	Rollback(context.Context) error
}

// Beginner starts transactions. Satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Store is an importer.Store backed by PostgreSQL.
type Store struct {
	db Beginner
}

var _ importer.Store = (*Store)(nil)

// New returns a store using db, usually a *pgxpool.Pool.
func New(db Beginner) *Store {
	return &Store{db: db}
}

// Begin opens the import transaction.
func (s *Store) Begin(ctx context.Context) (importer.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}
	return newTx(tx), nil
}

// Connect builds a pool from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database URL")
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return pool, nil
}

// DatabaseName returns the database named in a connection URL, for logging.
func DatabaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// uniqueViolation marks a 23505 error as importer.ErrUniqueViolation while
// keeping the driver error in the chain.
type uniqueViolation struct {
	pgErr *pgconn.PgError
}

func (e *uniqueViolation) Error() string {
	return importer.ErrUniqueViolation.Error() + ": " + e.pgErr.Message + " (" + e.pgErr.ConstraintName + ")"
}

func (e *uniqueViolation) Unwrap() error { return e.pgErr }

func (e *uniqueViolation) Is(target error) bool { return target == importer.ErrUniqueViolation }

func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return &uniqueViolation{pgErr: pgErr}
	}
	return err
}
