/*
store.go - Persistence boundary for the case collection

PURPOSE:
  The ledger treats the whole case collection as one serializable snapshot:
  it reads it wholesale at startup and writes it wholesale after every
  mutation. The Store does not care whether that lands in a SQLite row, a
  bolt bucket, a Postgres JSONB column or a map in memory.

KEY INTERFACES:
  Store:    LoadAll / SaveAll of the whole collection
  AuditLog: Optional append-only record of who did what when

SNAPSHOT CONTRACT:
  - LoadAll on an empty store returns an empty slice, not an error
  - SaveAll replaces the previous snapshot atomically (all or nothing)
  - Neither call retains the slice it is given or returns

IMPLEMENTATIONS:
  - ledger/store/memory.go:  In-memory for testing
  - store/sqlite/sqlite.go:  SQLite (default for the server)
  - store/bolt/bolt.go:      BoltDB single-file key/value
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - ledger.go: Calls SaveAll after each committed mutation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Wholesale snapshot persistence
// =============================================================================

type Store interface {
	// LoadAll returns every persisted case.
	LoadAll(ctx context.Context) ([]Case, error)

	// SaveAll atomically replaces the persisted collection.
	SaveAll(ctx context.Context, cases []Case) error
}

// SnapshotSlot is the key under which single-slot stores keep the collection.
const SnapshotSlot = "bail_cases"

// =============================================================================
// AUDIT LOG - Separate from the snapshot, tracks who did what when
// =============================================================================

type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    AuditAction    `json:"action"`
	CaseID    CaseID         `json:"case_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type AuditAction string

const (
	AuditCaseRegistered    AuditAction = "case_registered"
	AuditContribution      AuditAction = "contribution_applied"
	AuditReleaseAuthorized AuditAction = "release_authorized"
	AuditCaseLocked        AuditAction = "case_locked"
	AuditCaseUnlocked      AuditAction = "case_unlocked"
	AuditCaseClosed        AuditAction = "case_closed"
	AuditCasesImported     AuditAction = "cases_imported"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	CaseID  *CaseID
	ActorID *string
	Actions []AuditAction
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Matches reports whether e passes every set criterion of the filter.
// Stores without a query language use it to filter in memory.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.CaseID != nil && e.CaseID != *f.CaseID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
