package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"grantflow.org/internal/audit"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/orchestrator"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store persists the control plane in PostgreSQL.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ grants.Store             = (*Store)(nil)
	_ audit.Store              = (*Store)(nil)
	_ orchestrator.ReportStore = (*Store)(nil)
)

// PoolConfig tunes the connection pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(orDefault(pool.MaxOpenConns, 50))
	db.SetMaxIdleConns(orDefault(pool.MaxIdleConns, 25))
	db.SetConnMaxLifetime(orDefault(pool.ConnMaxLifetime, 15*time.Minute))
	db.SetConnMaxIdleTime(orDefault(pool.ConnMaxIdleTime, 5*time.Minute))
	return &Store{db: db, now: time.Now}, nil
}

// New wraps an existing connection, typically a test double.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "pgx"), now: time.Now}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db.DB }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) stamp() time.Time { return s.now().UTC().Truncate(time.Microsecond) }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// classify maps driver errors onto the grants sentinels.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", grants.ErrNotFound, what)
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", grants.ErrAlreadyExists, what)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s references a missing row", grants.ErrNotFound, what)
		}
	}
	return err
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonArray encodes v, storing nil slices as an empty array.
func jsonArray(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}

func decodeJSON(raw []byte, v any, column string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	return nil
}

func tableFor(kind lifecycle.Kind) (string, error) {
	switch kind {
	case lifecycle.KindProject:
		return "projects", nil
	case lifecycle.KindApplication:
		return "applications", nil
	}
	return "", fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, kind)
}

// missingOrConflict tells a vanished row from a moved version after a guarded
// update matched nothing.
func (s *Store) missingOrConflict(ctx context.Context, table, id string) error {
	var exists bool
	q := fmt.Sprintf(`select exists(select 1 from %s where id = $1)`, table)
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s %s", grants.ErrNotFound, strings.TrimSuffix(table, "s"), id)
	}
	return grants.ErrConflict
}
