/*
Package postgres provides a PostgreSQL-backed implementation of the ledger storage interfaces.

PURPOSE:
  Same layout as store/sqlite for deployments that already run PostgreSQL:
  the case collection as one JSONB snapshot row plus an append-only audit log.

KEY TABLES:
  case_snapshots: slot TEXT PRIMARY KEY, payload JSONB
  audit_log:      Immutable record of every committed mutation

CONCURRENCY:
  pgxpool handles connection concurrency; SaveAll is a single upsert so a
  reader never sees a half-written collection.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite twin
  - ledger/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/ledger"
)

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, dsn string, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres pool created", zap.Int32("max_conns", cfg.MaxConns))
	return pool, nil
}

// Store implements ledger.Store and ledger.AuditLog on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	slot string
}

// New migrates the schema and returns a store. The pool stays owned by the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool, slot: ledger.SnapshotSlot}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS case_snapshots (
			slot TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			case_count INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS audit_log (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			ts TIMESTAMPTZ NOT NULL,
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			case_id TEXT,
			payload JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_audit_case ON audit_log(case_id, ts);
	`)
	return err
}

func (s *Store) LoadAll(ctx context.Context) ([]ledger.Case, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM case_snapshots WHERE slot = $1`, s.slot,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return []ledger.Case{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	cases := []ledger.Case{}
	if err := json.Unmarshal(payload, &cases); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return cases, nil
}

func (s *Store) SaveAll(ctx context.Context, cases []ledger.Case) error {
	if cases == nil {
		cases = []ledger.Case{}
	}
	payload, err := json.Marshal(cases)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO case_snapshots (slot, payload, case_count, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (slot) DO UPDATE SET
			payload = EXCLUDED.payload,
			case_count = EXCLUDED.case_count,
			updated_at = now()
	`, s.slot, payload, len(cases))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) Append(ctx context.Context, entry ledger.AuditEntry) error {
	payload, _ := json.Marshal(entry.Payload)
	var caseID *string
	if entry.CaseID != "" {
		id := string(entry.CaseID)
		caseID = &id
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, case_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Timestamp, entry.ActorID, string(entry.Action), caseID, payload)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	query, args := buildAuditQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []ledger.AuditEntry
	for rows.Next() {
		var (
			e       ledger.AuditEntry
			action  string
			caseID  *string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &action, &caseID, &payload); err != nil {
			return nil, err
		}
		e.Action = ledger.AuditAction(action)
		if caseID != nil {
			e.CaseID = ledger.CaseID(*caseID)
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// buildAuditQuery turns a filter into positional-parameter SQL.
func buildAuditQuery(filter ledger.AuditFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CaseID != nil {
		where = append(where, "case_id = "+arg(string(*filter.CaseID)))
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = "+arg(*filter.ActorID))
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		where = append(where, "action = ANY("+arg(actions)+")")
	}
	if filter.From != nil {
		where = append(where, "ts >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "ts <= "+arg(*filter.To))
	}

	query := `SELECT id, ts, actor_id, action, case_id, payload FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts, seq"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	return query, args
}
