/*
Package settlement runs one contribution attempt end to end.

PURPOSE:
  Looks the case up, validates the amount, charges the payment rail while
  holding the case, applies the contribution and reports the outcome. The
  Controller never touches Raised or Status itself; the ledger does.

SEQUENCE (Submit):
  1. ledger.Exclusive(case)       case lock held from here ...
  2. CheckContribution            Validation / InvalidState / Overpayment
  3. rail.Charge                  bounded delay, the only cancellation point
  4. Session.ApplyContribution    non-cancellable once started
  5. return Result                ... to here

CANCELLATION:
  Cancelled while waiting for the lock or during the rail delay: the request
  is discarded and the case is untouched. Once the rail has charged, the
  ledger mutation completes even if the caller gives up, because the money
  has moved.

SEE ALSO:
  - rail.go: RailClient, SimulatedRail
  - ledger/ledger.go: Exclusive, Session
*/
package settlement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/ledger"
)

type Controller struct {
	ledger *ledger.Ledger
	rail   RailClient
	log    *zap.Logger
	clock  func() time.Time
}

func NewController(l *ledger.Ledger, rail RailClient, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{ledger: l, rail: rail, log: log, clock: time.Now}
}

// Result of a successful Submit.
type Result struct {
	Case         ledger.Case
	Contribution ledger.Contribution
	// Elapsed covers lock wait, rail turnaround and commit.
	Elapsed time.Duration
}

// Submit performs one contribution attempt. Errors are the ledger's typed
// errors, a *RailError, or ctx's error if the attempt was abandoned before
// the rail charged.
func (c *Controller) Submit(ctx context.Context, caseID ledger.CaseID, amount ledger.Money, contributor ledger.Contributor) (Result, error) {
	start := c.clock()
	var res Result

	err := c.ledger.Exclusive(ctx, caseID, func(s *ledger.Session) error {
		if err := s.CheckContribution(amount, contributor); err != nil {
			return err
		}

		reference, err := c.rail.Charge(ctx, caseID, amount)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			return &RailError{CaseID: caseID, Cause: err}
		}

		// The payer has been charged; finish the commit regardless of the caller.
		updated, contrib, err := s.ApplyContribution(context.WithoutCancel(ctx), amount, contributor, reference)
		if err != nil {
			c.log.Error("charged contribution not recorded",
				zap.String("case_id", string(caseID)),
				zap.String("reference", reference),
				zap.Int64("amount", int64(amount)),
				zap.Error(err),
			)
			return err
		}
		res.Case = updated
		res.Contribution = contrib
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res.Elapsed = c.clock().Sub(start)
	c.log.Info("contribution settled",
		zap.String("case_id", string(caseID)),
		zap.String("contribution_id", string(res.Contribution.ID)),
		zap.Int64("amount", int64(amount)),
		zap.String("status", string(res.Case.Status)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}
