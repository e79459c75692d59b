/*
Package sqlite provides a SQLite-backed implementation of the ledger storage interfaces.

PURPOSE:
  Default persistence for the server. Keeps the whole case collection as one
  JSON snapshot row plus an append-only audit log. The same layout is used by
  the PostgreSQL store, only the SQL dialect differs.

INTERFACES IMPLEMENTED:
  ledger.Store:    Snapshot persistence (LoadAll / SaveAll)
  ledger.AuditLog: Who did what when

KEY TABLES:
  case_snapshots: One row per slot; the ledger uses slot "bail_cases"
  audit_log:      Immutable record of every committed mutation

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on audit_log
  - case_snapshots is replaced wholesale, never patched

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The ledger already serializes commits;
  the mutex keeps direct callers (audit queries, admin reset) honest.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/bailaid.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l, err := ledger.New(ctx, store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: Same layout on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bailaid/case-ledger/ledger"
)

// Store implements ledger.Store and ledger.AuditLog using SQLite.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	slot string
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, slot: ledger.SnapshotSlot}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Whole-collection snapshots, keyed by slot
	CREATE TABLE IF NOT EXISTS case_snapshots (
		slot TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		case_count INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		case_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_case
		ON audit_log(case_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp
		ON audit_log(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// LoadAll returns the persisted collection, or an empty slice if nothing was
// ever saved.
func (s *Store) LoadAll(ctx context.Context) ([]ledger.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM case_snapshots WHERE slot = ?`, s.slot,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []ledger.Case{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var cases []ledger.Case
	if err := json.Unmarshal([]byte(payload), &cases); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if cases == nil {
		cases = []ledger.Case{}
	}
	return cases, nil
}

// SaveAll replaces the snapshot in a single statement.
func (s *Store) SaveAll(ctx context.Context, cases []ledger.Case) error {
	if cases == nil {
		cases = []ledger.Case{}
	}
	payload, err := json.Marshal(cases)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO case_snapshots (slot, payload, case_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			payload = excluded.payload,
			case_count = excluded.case_count,
			updated_at = excluded.updated_at
	`, s.slot, string(payload), len(cases), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// timestampLayout is fixed width so that text comparison in SQL orders the
// same way as time. RFC3339Nano trims trailing zeros and does not.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Append records an audit entry.
func (s *Store) Append(ctx context.Context, entry ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, _ := json.Marshal(entry.Payload)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, case_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Timestamp.UTC().Format(timestampLayout),
		entry.ActorID,
		entry.Action,
		nullString(string(entry.CaseID)),
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries matching filter, oldest first.
func (s *Store) Query(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.CaseID != nil {
		where = append(where, "case_id = ?")
		args = append(args, string(*filter.CaseID))
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.From.UTC().Format(timestampLayout))
	}
	if filter.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.To.UTC().Format(timestampLayout))
	}

	query := `SELECT id, timestamp, actor_id, action, case_id, payload_json FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp, rowid"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []ledger.AuditEntry
	for rows.Next() {
		var (
			e           ledger.AuditEntry
			ts          string
			caseID      sql.NullString
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &e.Action, &caseID, &payloadJSON); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.CaseID = ledger.CaseID(caseID.String)
		if payloadJSON.Valid && payloadJSON.String != "" && payloadJSON.String != "null" {
			_ = json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
