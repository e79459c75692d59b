/*
Package ledger provides the case funding and settlement engine.

PURPOSE:
  This package owns the canonical record of every bail/fine case: who is
  detained, how much is needed, who has contributed, and where the case sits
  in its lifecycle. Every change to the amount raised, the contribution list,
  or the status goes through the Ledger so the funding invariants hold at all
  times.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An integer amount in the smallest currency unit (KES)
  - Case: One detainee's bail or fine record
  - Contribution: One accepted payment toward a case
  - Status: The case state machine (OPEN -> CONTRIBUTING -> PAID -> RELEASED)

INVARIANTS:
  1. 0 <= Raised <= Target, and Target never changes after registration
  2. sum(Contributions[i].Amount) == Raised
  3. Contributions are append-only, in insertion order
  4. Status == PAID exactly when Raised == Target on the funding path

USAGE:
  l, _ := ledger.New(ctx, store.NewMemory())
  c, _ := l.Register(ctx, ledger.Draft{ReportNumber: "OB 12/05/2024", ...})
  c, contrib, err := l.ApplyContribution(ctx, c.ID, 1500, ledger.Contributor{...})

SEE ALSO:
  - ledger.go: Register, ApplyContribution, AuthorizeRelease
  - errors.go: ValidationError, OverpaymentError, InvalidStateError
  - store.go: Persistence boundary (LoadAll / SaveAll)
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is an amount in the smallest currency unit. KES has no minor unit in
// practice, so one Money is one shilling.
type Money int64

func (m Money) String() string { return fmt.Sprintf("KES %d", int64(m)) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CaseID string
type ContributionID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusContributing Status = "CONTRIBUTING"
	StatusLocked       Status = "LOCKED"
	StatusPaid         Status = "PAID"
	StatusReleased     Status = "RELEASED"
	StatusClosed       Status = "CLOSED"
)

// AcceptsContributions reports whether a contribution may be applied.
func (s Status) AcceptsContributions() bool {
	return s == StatusOpen || s == StatusContributing
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusContributing, StatusLocked, StatusPaid, StatusReleased, StatusClosed:
		return true
	}
	return false
}

type Category string

const (
	CategoryBail Category = "Bail"
	CategoryFine Category = "Fine"
)

type SettlementType string

const (
	SettlementCashBail  SettlementType = "Cash Bail"
	SettlementBond      SettlementType = "Bond"
	SettlementCourtFine SettlementType = "Court Fine"
)

// DefaultSettlement returns the settlement type used when intake leaves it blank.
func (c Category) DefaultSettlement() SettlementType {
	if c == CategoryFine {
		return SettlementCourtFine
	}
	return SettlementCashBail
}

type ContributorType string

const (
	ContributorFamily    ContributorType = "Family"
	ContributorNGO       ContributorType = "NGO"
	ContributorCommunity ContributorType = "Community"
	ContributorLegalAid  ContributorType = "Legal Aid"
)

func (t ContributorType) Valid() bool {
	switch t {
	case ContributorFamily, ContributorNGO, ContributorCommunity, ContributorLegalAid:
		return true
	}
	return false
}

type Verification string

const (
	VerificationVerified Verification = "Verified"
	VerificationPending  Verification = "Pending"
)

// =============================================================================
// CONTRIBUTION - One accepted funding event
// =============================================================================

type Contributor struct {
	Name string          `json:"name"`
	Type ContributorType `json:"type"`
}

// AnonymousContributor is used when the payer gives no details.
var AnonymousContributor = Contributor{Name: "Well Wisher", Type: ContributorCommunity}

type Contribution struct {
	ID           ContributionID `json:"id"`
	Amount       Money          `json:"amount"`
	Contributor  Contributor    `json:"contributor"`
	Reference    string         `json:"reference"`
	Verification Verification   `json:"verification"`
	CreatedAt    time.Time      `json:"created_at"`
}

// =============================================================================
// CASE - The unit of work
// =============================================================================

type Detainee struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Image      string `json:"image,omitempty"`
	NationalID string `json:"national_id,omitempty"`
	Gender     string `json:"gender"`
	AgeRange   string `json:"age_range"`
}

// Transition is one audited status change.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type Case struct {
	ID                CaseID         `json:"id"`
	ReportNumber      string         `json:"report_number"`
	Station           string         `json:"station,omitempty"`
	Detainee          Detainee       `json:"detainee"`
	Offence           string         `json:"offence"`
	OffenceCategory   string         `json:"offence_category,omitempty"`
	Category          Category       `json:"category"`
	SettlementType    SettlementType `json:"settlement_type"`
	Target            Money          `json:"target"`
	Raised            Money          `json:"raised"`
	Status            Status         `json:"status"`
	CourtName         string         `json:"court_name,omitempty"`
	ExpectedCourtDate string         `json:"expected_court_date,omitempty"`
	ArrestedAt        time.Time      `json:"arrested_at"`
	CreatedAt         time.Time      `json:"created_at"`
	Contributions     []Contribution `json:"contributions"`

	// Audit fields
	LockedBy     string       `json:"locked_by,omitempty"`
	ReleasedBy   string       `json:"released_by,omitempty"`
	ReleasedAt   *time.Time   `json:"released_at,omitempty"`
	ClosedBy     string       `json:"closed_by,omitempty"`
	ClosedReason string       `json:"closed_reason,omitempty"`
	History      []Transition `json:"history,omitempty"`

	// Version counts committed mutations; used to detect stale sessions.
	Version int64 `json:"version"`
}

// Remaining is the balance still needed to reach the target.
func (c Case) Remaining() Money { return c.Target - c.Raised }

// Progress is the funded share of the target as a percentage, one decimal place.
func (c Case) Progress() decimal.Decimal {
	if c.Target <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(c.Raised)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(c.Target))).
		Round(1)
}

// Clone returns a deep copy. Cases leave the ledger only as clones so callers
// can never mutate ledger-owned slices.
func (c Case) Clone() Case {
	out := c
	out.Contributions = append([]Contribution(nil), c.Contributions...)
	out.History = append([]Transition(nil), c.History...)
	if c.ReleasedAt != nil {
		t := *c.ReleasedAt
		out.ReleasedAt = &t
	}
	return out
}

// Validate checks every funding invariant. Used on load, on import and by the
// integrity audit; a case built only through the Ledger always passes.
func (c Case) Validate() error {
	if c.ID == "" {
		return &IntegrityError{CaseID: c.ID, Reason: "missing id"}
	}
	if !c.Status.Valid() {
		return &IntegrityError{CaseID: c.ID, Reason: fmt.Sprintf("unknown status %q", c.Status)}
	}
	if c.Target <= 0 {
		return &IntegrityError{CaseID: c.ID, Reason: "target must be positive"}
	}
	if c.Raised < 0 || c.Raised > c.Target {
		return &IntegrityError{CaseID: c.ID, Reason: fmt.Sprintf("raised %d outside [0, %d]", c.Raised, c.Target)}
	}

	var sum Money
	for _, contrib := range c.Contributions {
		if contrib.Amount <= 0 {
			return &IntegrityError{CaseID: c.ID, Reason: fmt.Sprintf("contribution %s has non-positive amount", contrib.ID)}
		}
		sum += contrib.Amount
	}
	if sum != c.Raised {
		return &IntegrityError{CaseID: c.ID, Reason: fmt.Sprintf("contributions sum %d != raised %d", sum, c.Raised)}
	}

	switch c.Status {
	case StatusOpen:
		if c.Raised != 0 {
			return &IntegrityError{CaseID: c.ID, Reason: "OPEN case has contributions"}
		}
	case StatusContributing:
		if c.Raised == 0 || c.Raised >= c.Target {
			return &IntegrityError{CaseID: c.ID, Reason: "CONTRIBUTING case must be partially funded"}
		}
	case StatusPaid, StatusReleased:
		if c.Raised != c.Target {
			return &IntegrityError{CaseID: c.ID, Reason: fmt.Sprintf("%s case is not fully funded", c.Status)}
		}
	case StatusLocked, StatusClosed:
		// Only reachable from the funding path before PAID.
		if c.Raised >= c.Target {
			return &IntegrityError{CaseID: c.ID, Reason: fmt.Sprintf("%s case is fully funded", c.Status)}
		}
	}
	return nil
}
