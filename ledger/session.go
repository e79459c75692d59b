package ledger

import (
	"context"
	"strings"
)

// =============================================================================
// SESSION - One holder of a case lock
// =============================================================================

// Session is handed out by Ledger.Exclusive. All methods assume the lock is
// held and must not be used after the Exclusive callback returns.
type Session struct {
	ledger  *Ledger
	current Case
}

// Case returns the case as of the last commit made through this session.
func (s *Session) Case() Case { return s.current.Clone() }

// CheckContribution runs every check ApplyContribution would run, without
// changing anything. Callers use it before charging a payer.
func (s *Session) CheckContribution(amount Money, contributor Contributor) error {
	_, err := s.check(amount, contributor)
	return err
}

func (s *Session) check(amount Money, contributor Contributor) (Contributor, error) {
	c := s.current
	if !c.Status.AcceptsContributions() {
		return contributor, &InvalidStateError{CaseID: c.ID, Status: c.Status, Operation: "contribute to"}
	}
	if amount <= 0 {
		return contributor, newValidationError("amount", "must be positive")
	}
	contributor, err := normalizeContributor(contributor)
	if err != nil {
		return contributor, err
	}
	if amount > c.Remaining() {
		return contributor, &OverpaymentError{CaseID: c.ID, Remaining: c.Remaining(), Requested: amount}
	}
	return contributor, nil
}

func normalizeContributor(in Contributor) (Contributor, error) {
	out := Contributor{Name: strings.TrimSpace(in.Name), Type: in.Type}
	if out.Name == "" {
		out.Name = AnonymousContributor.Name
	}
	if out.Type == "" {
		out.Type = AnonymousContributor.Type
	}
	if !out.Type.Valid() {
		return out, newValidationError("contributor_type", "must be one of Family NGO Community 'Legal Aid'")
	}
	return out, nil
}

// ApplyContribution records one contribution. An empty reference gets a
// freshly minted one. On any error the case is unchanged.
func (s *Session) ApplyContribution(ctx context.Context, amount Money, contributor Contributor, reference string) (Case, Contribution, error) {
	contributor, err := s.check(amount, contributor)
	if err != nil {
		return Case{}, Contribution{}, err
	}
	if reference == "" {
		reference = NewReference()
	}

	now := s.ledger.clock()
	contrib := Contribution{
		ID:           NewContributionID(),
		Amount:       amount,
		Contributor:  contributor,
		Reference:    reference,
		Verification: VerificationVerified,
		CreatedAt:    now,
	}

	updated := s.current.Clone()
	updated.Contributions = append(updated.Contributions, contrib)
	updated.Raised += amount

	next := StatusContributing
	if updated.Raised == updated.Target {
		next = StatusPaid
	}
	s.transition(&updated, next, contributor.Name, "")

	err = s.commit(ctx, updated, AuditEntry{
		ActorID: contributor.Name,
		Action:  AuditContribution,
		Payload: map[string]any{
			"contribution_id": string(contrib.ID),
			"amount":          int64(amount),
			"reference":       reference,
			"status":          string(updated.Status),
		},
	})
	if err != nil {
		return Case{}, Contribution{}, err
	}
	return s.Case(), contrib, nil
}

// AuthorizeRelease marks a PAID case RELEASED on behalf of a police officer.
func (s *Session) AuthorizeRelease(ctx context.Context, actor string) (Case, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Case{}, newValidationError("actor", "is required")
	}
	if s.current.Status != StatusPaid {
		return Case{}, &InvalidStateError{CaseID: s.current.ID, Status: s.current.Status, Operation: "release"}
	}

	updated := s.current.Clone()
	now := s.ledger.clock()
	updated.ReleasedBy = actor
	updated.ReleasedAt = &now
	s.transition(&updated, StatusReleased, actor, "")

	err := s.commit(ctx, updated, AuditEntry{ActorID: actor, Action: AuditReleaseAuthorized})
	if err != nil {
		return Case{}, err
	}
	return s.Case(), nil
}

// Lock stops contributions while an officer corrects the registration.
func (s *Session) Lock(ctx context.Context, actor, reason string) (Case, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Case{}, newValidationError("actor", "is required")
	}
	if !s.current.Status.AcceptsContributions() {
		return Case{}, &InvalidStateError{CaseID: s.current.ID, Status: s.current.Status, Operation: "lock"}
	}

	updated := s.current.Clone()
	updated.LockedBy = actor
	s.transition(&updated, StatusLocked, actor, reason)

	err := s.commit(ctx, updated, AuditEntry{
		ActorID: actor,
		Action:  AuditCaseLocked,
		Payload: map[string]any{"reason": reason},
	})
	if err != nil {
		return Case{}, err
	}
	return s.Case(), nil
}

// Unlock returns a LOCKED case to OPEN, or to CONTRIBUTING if money was
// already raised.
func (s *Session) Unlock(ctx context.Context, actor string) (Case, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Case{}, newValidationError("actor", "is required")
	}
	if s.current.Status != StatusLocked {
		return Case{}, &InvalidStateError{CaseID: s.current.ID, Status: s.current.Status, Operation: "unlock"}
	}

	updated := s.current.Clone()
	updated.LockedBy = ""
	next := StatusOpen
	if updated.Raised > 0 {
		next = StatusContributing
	}
	s.transition(&updated, next, actor, "")

	err := s.commit(ctx, updated, AuditEntry{ActorID: actor, Action: AuditCaseUnlocked})
	if err != nil {
		return Case{}, err
	}
	return s.Case(), nil
}

// Close withdraws an unpaid case. Funds already raised are reconciled outside
// the ledger; the contribution history is kept as is.
func (s *Session) Close(ctx context.Context, actor, reason string) (Case, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Case{}, newValidationError("actor", "is required")
	}
	switch s.current.Status {
	case StatusOpen, StatusContributing, StatusLocked:
	default:
		return Case{}, &InvalidStateError{CaseID: s.current.ID, Status: s.current.Status, Operation: "close"}
	}

	updated := s.current.Clone()
	updated.ClosedBy = actor
	updated.ClosedReason = strings.TrimSpace(reason)
	updated.LockedBy = ""
	s.transition(&updated, StatusClosed, actor, reason)

	err := s.commit(ctx, updated, AuditEntry{
		ActorID: actor,
		Action:  AuditCaseClosed,
		Payload: map[string]any{"reason": reason},
	})
	if err != nil {
		return Case{}, err
	}
	return s.Case(), nil
}

func (s *Session) transition(c *Case, to Status, actor, reason string) {
	if c.Status == to {
		return
	}
	c.History = append(c.History, Transition{
		From:   c.Status,
		To:     to,
		Actor:  actor,
		Reason: strings.TrimSpace(reason),
		At:     s.ledger.clock(),
	})
	c.Status = to
}

func (s *Session) commit(ctx context.Context, updated Case, entry AuditEntry) error {
	if err := s.ledger.commit(ctx, updated, s.current.Version, entry); err != nil {
		return err
	}
	updated.Version = s.current.Version + 1
	s.current = updated
	return nil
}
