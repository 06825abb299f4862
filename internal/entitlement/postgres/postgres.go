// Package postgres implements entitlement.Checker on PostgreSQL using pgx.
//
// Each account has an optional row in entitlement_quotas; accounts without one
// get the store's default quota. Usage is an append-only log in usage_events,
// and the remaining allowance is the quota minus the events recorded in the
// trailing period.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/ezhuthu/internal/entitlement"
)

// Schema is the SQL DDL for the entitlement tables. Execute it via
// [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS entitlement_quotas (
    account_id  TEXT PRIMARY KEY,
    quota       INTEGER NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS usage_events (
    id          BIGSERIAL PRIMARY KEY,
    account_id  TEXT NOT NULL,
    kind        TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_usage_events_account_kind_time
    ON usage_events(account_id, kind, created_at);
`

// Defaults for a Store built without options.
const (
	DefaultQuota  = 100
	DefaultPeriod = 30 * 24 * time.Hour
)

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is an [entitlement.Checker] backed by PostgreSQL.
type Store struct {
	db           DB
	defaultQuota int
	period       time.Duration
	now          func() time.Time
}

var _ entitlement.Checker = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDefaultQuota sets the quota for accounts without an entitlement_quotas
// row. A negative quota means unlimited.
func WithDefaultQuota(n int) Option {
	return func(s *Store) { s.defaultQuota = n }
}

// WithPeriod sets the trailing window usage is counted over. Non-positive
// values are ignored.
func WithPeriod(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithClock overrides time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store on db. The caller is responsible for calling
// [Store.Migrate] before issuing queries.
func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		defaultQuota: DefaultQuota,
		period:       DefaultPeriod,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate executes the [Schema] DDL.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("entitlement/postgres: migrate: %w", err)
	}
	return nil
}

// CheckEntitlement returns the account's remaining allowance for augmented
// suggestions. It requires an account in ctx.
func (s *Store) CheckEntitlement(ctx context.Context) (entitlement.Status, error) {
	account, ok := entitlement.AccountFromContext(ctx)
	if !ok {
		return entitlement.Status{}, entitlement.ErrNoAccount
	}

	const query = `
		SELECT COALESCE(q.quota, $2),
		       (SELECT count(*) FROM usage_events e
		         WHERE e.account_id = $1 AND e.kind = $3 AND e.created_at >= $4)
		FROM (SELECT 1) AS one
		LEFT JOIN entitlement_quotas q ON q.account_id = $1`

	since := s.now().Add(-s.period)
	var quota int
	var used int64
	err := s.db.QueryRow(ctx, query,
		account, s.defaultQuota, entitlement.UsageAugmentedSuggestion, since,
	).Scan(&quota, &used)
	if err != nil {
		return entitlement.Status{}, fmt.Errorf("entitlement/postgres: check %q: %w", account, err)
	}

	if quota < 0 {
		return entitlement.Status{Allowed: true, Remaining: -1}, nil
	}
	remaining := quota - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return entitlement.Status{Allowed: remaining > 0, Remaining: remaining}, nil
}

// RecordUsageEvent appends one usage event for the account in ctx.
func (s *Store) RecordUsageEvent(ctx context.Context, kind string) error {
	account, ok := entitlement.AccountFromContext(ctx)
	if !ok {
		return entitlement.ErrNoAccount
	}
	const query = `INSERT INTO usage_events (account_id, kind, created_at) VALUES ($1, $2, $3)`
	if _, err := s.db.Exec(ctx, query, account, kind, s.now()); err != nil {
		return fmt.Errorf("entitlement/postgres: record %q for %q: %w", kind, account, err)
	}
	return nil
}

// SetQuota creates or replaces the quota for account.
func (s *Store) SetQuota(ctx context.Context, account string, quota int) error {
	if account == "" {
		return fmt.Errorf("entitlement/postgres: set quota: account must not be empty")
	}
	const query = `
		INSERT INTO entitlement_quotas (account_id, quota, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_id) DO UPDATE SET quota = EXCLUDED.quota, updated_at = now()`
	if _, err := s.db.Exec(ctx, query, account, quota); err != nil {
		return fmt.Errorf("entitlement/postgres: set quota for %q: %w", account, err)
	}
	return nil
}

// UsageEvent is one row of usage_events.
type UsageEvent struct {
	Kind      string
	CreatedAt time.Time
}

// Usage lists the account's usage events in the current period, newest first.
func (s *Store) Usage(ctx context.Context, account string) ([]UsageEvent, error) {
	const query = `
		SELECT kind, created_at FROM usage_events
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, account, s.now().Add(-s.period))
	if err != nil {
		return nil, fmt.Errorf("entitlement/postgres: usage for %q: %w", account, err)
	}
	defer rows.Close()

	var events []UsageEvent
	for rows.Next() {
		var ev UsageEvent
		if err := rows.Scan(&ev.Kind, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("entitlement/postgres: scan usage: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entitlement/postgres: usage rows: %w", err)
	}
	return events, nil
}
