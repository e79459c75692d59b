package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bailaid/case-ledger/ledger"
)

// =============================================================================
// RAIL - External payment rail
// =============================================================================

// RailClient charges a payer and returns the rail's settlement reference.
// Charge may block for the rail's turnaround and must honour ctx.
type RailClient interface {
	Charge(ctx context.Context, caseID ledger.CaseID, amount ledger.Money) (reference string, err error)
}

// ErrRail is returned (wrapped in RailError) when the payment rail fails.
var ErrRail = errors.New("payment rail failure")

// RailError wraps a rail failure. No ledger mutation happened.
type RailError struct {
	CaseID ledger.CaseID
	Cause  error
}

func (e *RailError) Error() string {
	return fmt.Sprintf("payment rail failed for case %s: %v", e.CaseID, e.Cause)
}

func (e *RailError) Unwrap() []error {
	return []error{ErrRail, e.Cause}
}

// DefaultRailDelay is the simulated rail turnaround.
const DefaultRailDelay = 2 * time.Second

// SimulatedRail stands in for a mobile-money rail: it waits Delay and
// returns an "MP..." reference.
type SimulatedRail struct {
	Delay time.Duration
}

func (r SimulatedRail) Charge(ctx context.Context, _ ledger.CaseID, _ ledger.Money) (string, error) {
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}
	return ledger.NewReference(), nil
}

// RailFunc adapts a function to RailClient.
type RailFunc func(ctx context.Context, caseID ledger.CaseID, amount ledger.Money) (string, error)

func (f RailFunc) Charge(ctx context.Context, caseID ledger.CaseID, amount ledger.Money) (string, error) {
	return f(ctx, caseID, amount)
}
