/*
ledger.go - The Case Ledger: sole owner of every case record

PURPOSE:
  Registers cases, applies contributions, authorizes release and runs the
  administrative lock/unlock/close actions. No other component mutates
  Raised, Status or the contribution list.

CRITICAL INVARIANTS:
  1. AT MOST ONE MUTATION PER CASE: every mutation runs under the case's
     Locker key, from validation through persistence.
  2. NO GLOBAL LOCK: different cases proceed in parallel. The map guard and
     the commit mutex are held only for map access and the snapshot write.
  3. COMMIT OR NOTHING: a mutation is applied to a clone, persisted with
     SaveAll, and only then published in memory. A failed save changes nothing.
  4. REJECT, NEVER CLAMP: an amount above the remaining balance fails with
     OverpaymentError naming the exact remaining balance.

STATE MACHINE:
  OPEN ──contribution (raised < target)──▶ CONTRIBUTING ──┐
    │                                          │  ▲        │
    │                                          └──┘        │
    └──────contribution (raised == target)──────▶ PAID ◀──┘
                                                  │
                                      AuthorizeRelease (police)
                                                  ▼
                                              RELEASED

  OPEN|CONTRIBUTING ──LockCase──▶ LOCKED ──UnlockCase──▶ OPEN (raised == 0)
                                                      └─▶ CONTRIBUTING
  OPEN|CONTRIBUTING|LOCKED ──CloseCase──▶ CLOSED

SESSIONS:
  Exclusive(ctx, id, fn) hands fn a Session holding the case's lock. The
  settlement controller uses it to keep the case locked across the payment
  rail round trip, so a second contribution cannot read a stale balance.

SEE ALSO:
  - store.go: Persistence boundary
  - locker.go: Per-case mutual exclusion
  - settlement/controller.go: Orchestrates one contribution end to end
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errConcurrentModification means the stored case moved on since the session
// read it. Only reachable when Import runs alongside a session.
var errConcurrentModification = errors.New("case modified concurrently")

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store Store
	audit AuditLog
	locks Locker
	clock func() time.Time
	log   *zap.Logger

	mu    sync.RWMutex
	cases map[CaseID]Case
	order []CaseID // registration order

	commitMu sync.Mutex
}

type Option func(*Ledger)

// WithLocker replaces the in-process KeyedMutex.
func WithLocker(locker Locker) Option {
	return func(l *Ledger) { l.locks = locker }
}

func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithLogger sets the logger for failures that do not fail the mutation.
func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithAuditLog sets the audit log explicitly. By default the store is used
// when it implements AuditLog.
func WithAuditLog(audit AuditLog) Option {
	return func(l *Ledger) { l.audit = audit }
}

// New loads the persisted collection and returns a ready ledger.
// Fails if any stored case violates an invariant.
func New(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store: store,
		locks: NewKeyedMutex(),
		clock: func() time.Time { return time.Now().UTC() },
		log:   zap.NewNop(),
		cases: make(map[CaseID]Case),
	}
	if audit, ok := store.(AuditLog); ok {
		l.audit = audit
	}
	for _, opt := range opts {
		opt(l)
	}

	cases, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cases: %w", err)
	}
	if err := l.install(cases); err != nil {
		return nil, err
	}
	return l, nil
}

// install validates cases and swaps them in as the whole collection.
func (l *Ledger) install(cases []Case) error {
	next := make(map[CaseID]Case, len(cases))
	order := make([]CaseID, 0, len(cases))
	for _, c := range cases {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := next[c.ID]; dup {
			return &IntegrityError{CaseID: c.ID, Reason: "duplicate case id"}
		}
		next[c.ID] = c.Clone()
		order = append(order, c.ID)
	}

	l.mu.Lock()
	l.cases = next
	l.order = order
	l.mu.Unlock()
	return nil
}

// AuditLog returns the audit log in use, or nil.
func (l *Ledger) AuditLog() AuditLog { return l.audit }

// =============================================================================
// REGISTRATION
// =============================================================================

// Register validates the draft and creates a new OPEN case with nothing raised.
// No side effect on failure.
func (l *Ledger) Register(ctx context.Context, d Draft) (Case, error) {
	d, err := d.normalize()
	if err != nil {
		return Case{}, err
	}

	now := l.clock()
	arrested := d.ArrestedAt
	if arrested.IsZero() {
		arrested = now
	}

	c := Case{
		ReportNumber: d.ReportNumber,
		Station:      d.Station,
		Detainee: Detainee{
			Name:       d.DetaineeName,
			Phone:      d.DetaineePhone,
			Image:      d.DetaineeImage,
			NationalID: strings.TrimSpace(d.NationalID),
			Gender:     d.Gender,
			AgeRange:   d.AgeRange,
		},
		Offence:           d.Offence,
		OffenceCategory:   d.OffenceCategory,
		Category:          d.Category,
		SettlementType:    d.SettlementType,
		Target:            d.Target,
		Raised:            0,
		Status:            StatusOpen,
		CourtName:         strings.TrimSpace(d.CourtName),
		ExpectedCourtDate: strings.TrimSpace(d.ExpectedCourtDate),
		ArrestedAt:        arrested.UTC(),
		CreatedAt:         now,
		Contributions:     []Contribution{},
	}

	// A freshly minted id colliding is unlikely but possible with short ids.
	for attempt := 0; attempt < 3; attempt++ {
		c.ID = NewCaseID()
		err = l.commit(ctx, c, -1, AuditEntry{
			ActorID: d.Station,
			Action:  AuditCaseRegistered,
			Payload: map[string]any{"report_number": c.ReportNumber, "target": int64(c.Target)},
		})
		if !errors.Is(err, errDuplicateID) {
			break
		}
	}
	if err != nil {
		return Case{}, err
	}
	return c.Clone(), nil
}

// =============================================================================
// SINGLE-SHOT OPERATIONS (each takes the case lock for its own duration)
// =============================================================================

// ApplyContribution validates and applies one contribution, minting its id
// and settlement reference.
func (l *Ledger) ApplyContribution(ctx context.Context, id CaseID, amount Money, contributor Contributor) (Case, Contribution, error) {
	var (
		updated Case
		contrib Contribution
	)
	err := l.Exclusive(ctx, id, func(s *Session) error {
		var err error
		updated, contrib, err = s.ApplyContribution(ctx, amount, contributor, "")
		return err
	})
	return updated, contrib, err
}

// AuthorizeRelease moves a PAID case to RELEASED and records who did it.
func (l *Ledger) AuthorizeRelease(ctx context.Context, id CaseID, actor string) (Case, error) {
	var updated Case
	err := l.Exclusive(ctx, id, func(s *Session) error {
		var err error
		updated, err = s.AuthorizeRelease(ctx, actor)
		return err
	})
	return updated, err
}

// LockCase holds an OPEN or CONTRIBUTING case for registration correction.
func (l *Ledger) LockCase(ctx context.Context, id CaseID, actor, reason string) (Case, error) {
	var updated Case
	err := l.Exclusive(ctx, id, func(s *Session) error {
		var err error
		updated, err = s.Lock(ctx, actor, reason)
		return err
	})
	return updated, err
}

// UnlockCase returns a LOCKED case to the funding path.
func (l *Ledger) UnlockCase(ctx context.Context, id CaseID, actor string) (Case, error) {
	var updated Case
	err := l.Exclusive(ctx, id, func(s *Session) error {
		var err error
		updated, err = s.Unlock(ctx, actor)
		return err
	})
	return updated, err
}

// CloseCase withdraws a case that has not been paid. Terminal.
func (l *Ledger) CloseCase(ctx context.Context, id CaseID, actor, reason string) (Case, error) {
	var updated Case
	err := l.Exclusive(ctx, id, func(s *Session) error {
		var err error
		updated, err = s.Close(ctx, actor, reason)
		return err
	})
	return updated, err
}

// Exclusive runs fn while holding the case's lock. Lock acquisition honours
// ctx; once fn is running the case is unavailable to every other mutation.
func (l *Ledger) Exclusive(ctx context.Context, id CaseID, fn func(*Session) error) error {
	if _, ok := l.lookup(id); !ok {
		return &NotFoundError{CaseID: id}
	}

	release, err := l.locks.Acquire(ctx, string(id))
	if err != nil {
		return err
	}
	defer release()

	// Re-read under the lock: the case may have moved while we waited.
	c, ok := l.lookup(id)
	if !ok {
		return &NotFoundError{CaseID: id}
	}
	return fn(&Session{ledger: l, current: c})
}

// =============================================================================
// READS
// =============================================================================

func (l *Ledger) Get(id CaseID) (Case, error) {
	c, ok := l.lookup(id)
	if !ok {
		return Case{}, &NotFoundError{CaseID: id}
	}
	return c, nil
}

// List returns every case, most recently registered first.
func (l *Ledger) List() []Case {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Case, 0, len(l.order))
	for i := len(l.order) - 1; i >= 0; i-- {
		out = append(out, l.cases[l.order[i]].Clone())
	}
	return out
}

// Browse returns the cases still accepting contributions.
func (l *Ledger) Browse() []Case {
	var out []Case
	for _, c := range l.List() {
		if c.Status.AcceptsContributions() {
			out = append(out, c)
		}
	}
	return out
}

// Audit returns an IntegrityError for every case breaking an invariant.
// An empty result is the expected outcome.
func (l *Ledger) Audit() []error {
	var problems []error
	for _, c := range l.List() {
		if err := c.Validate(); err != nil {
			problems = append(problems, err)
		}
	}
	return problems
}

func (l *Ledger) lookup(id CaseID) (Case, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.cases[id]
	if !ok {
		return Case{}, false
	}
	return c.Clone(), true
}

// =============================================================================
// ADMINISTRATION (demo scenarios)
// =============================================================================

// Import swaps the whole collection, e.g. to load a demo scenario.
// Every case must pass Validate. Sessions already running against a replaced
// case fail their commit instead of overwriting the new data.
func (l *Ledger) Import(ctx context.Context, cases []Case, actor string) error {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	staged := &Ledger{}
	if err := staged.install(cases); err != nil {
		return err
	}
	snapshot := make([]Case, 0, len(staged.order))
	for _, id := range staged.order {
		snapshot = append(snapshot, staged.cases[id])
	}

	if err := l.store.SaveAll(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist cases: %w", err)
	}

	l.mu.Lock()
	l.cases = staged.cases
	l.order = staged.order
	l.mu.Unlock()

	l.appendAudit(ctx, AuditEntry{
		ActorID: actor,
		Action:  AuditCasesImported,
		Payload: map[string]any{"count": len(snapshot)},
	})
	return nil
}

// Reset empties the collection.
func (l *Ledger) Reset(ctx context.Context, actor string) error {
	return l.Import(ctx, nil, actor)
}

// =============================================================================
// COMMIT
// =============================================================================

var errDuplicateID = errors.New("duplicate case id")

// commit persists updated as part of the whole collection and then publishes
// it in memory. baseVersion is the version the caller read; -1 means updated
// is a new case.
func (l *Ledger) commit(ctx context.Context, updated Case, baseVersion int64, entry AuditEntry) error {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	l.mu.RLock()
	current, exists := l.cases[updated.ID]
	l.mu.RUnlock()

	switch {
	case baseVersion < 0 && exists:
		return errDuplicateID
	case baseVersion >= 0 && !exists:
		return &NotFoundError{CaseID: updated.ID}
	case baseVersion >= 0 && current.Version != baseVersion:
		return errConcurrentModification
	}
	updated.Version = baseVersion + 1

	if err := l.store.SaveAll(ctx, l.snapshotWith(updated)); err != nil {
		return fmt.Errorf("failed to persist cases: %w", err)
	}

	l.mu.Lock()
	if !exists {
		l.order = append(l.order, updated.ID)
	}
	l.cases[updated.ID] = updated.Clone()
	l.mu.Unlock()

	entry.CaseID = updated.ID
	l.appendAudit(ctx, entry)
	return nil
}

// snapshotWith returns the whole collection in registration order with
// updated substituted (or appended).
func (l *Ledger) snapshotWith(updated Case) []Case {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Case, 0, len(l.order)+1)
	replaced := false
	for _, id := range l.order {
		if id == updated.ID {
			out = append(out, updated)
			replaced = true
			continue
		}
		out = append(out, l.cases[id])
	}
	if !replaced {
		out = append(out, updated)
	}
	return out
}

// appendAudit is best effort: the snapshot is the source of truth and is
// already committed when this runs.
func (l *Ledger) appendAudit(ctx context.Context, entry AuditEntry) {
	if l.audit == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock()
	}
	if err := l.audit.Append(ctx, entry); err != nil {
		l.log.Warn("failed to append audit entry",
			zap.String("case_id", string(entry.CaseID)),
			zap.String("action", string(entry.Action)),
			zap.Error(err),
		)
	}
}
