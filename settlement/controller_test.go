package settlement_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/ledger"
	"github.com/bailaid/case-ledger/ledger/store"
	"github.com/bailaid/case-ledger/settlement"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestController(t *testing.T, rail settlement.RailClient) (*settlement.Controller, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New(context.Background(), store.NewMemory())
	require.NoError(t, err)
	return settlement.NewController(l, rail, zap.NewNop()), l
}

func registerCase(t *testing.T, l *ledger.Ledger, target ledger.Money) ledger.CaseID {
	t.Helper()
	c, err := l.Register(context.Background(), ledger.Draft{
		ReportNumber: "OB 12/05/2024",
		DetaineeName: "John Kamau",
		Target:       target,
	})
	require.NoError(t, err)
	return c.ID
}

var family = ledger.Contributor{Name: "Mary Wanjiku", Type: ledger.ContributorFamily}

// countingRail records calls and waits for delay.
type countingRail struct {
	delay time.Duration
	calls atomic.Int32
	err   error
}

func (r *countingRail) Charge(ctx context.Context, id ledger.CaseID, amount ledger.Money) (string, error) {
	r.calls.Add(1)
	if r.err != nil {
		return "", r.err
	}
	return settlement.SimulatedRail{Delay: r.delay}.Charge(ctx, id, amount)
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_AppliesContributionWithRailReference(t *testing.T) {
	rail := settlement.RailFunc(func(context.Context, ledger.CaseID, ledger.Money) (string, error) {
		return "MPABCDEF12", nil
	})
	ctrl, l := newTestController(t, rail)
	id := registerCase(t, l, 5000)

	res, err := ctrl.Submit(context.Background(), id, 1500, family)

	require.NoError(t, err)
	assert.Equal(t, ledger.StatusContributing, res.Case.Status)
	assert.Equal(t, ledger.Money(1500), res.Case.Raised)
	assert.Equal(t, "MPABCDEF12", res.Contribution.Reference)
	assert.GreaterOrEqual(t, res.Elapsed, time.Duration(0))
}

func TestSubmit_ValidationFailsBeforeCharging(t *testing.T) {
	rail := &countingRail{}
	ctrl, l := newTestController(t, rail)
	id := registerCase(t, l, 2000)

	_, err := ctrl.Submit(context.Background(), id, 2500, family)
	var over *ledger.OverpaymentError
	require.ErrorAs(t, err, &over)
	assert.Equal(t, ledger.Money(2000), over.Remaining)

	_, err = ctrl.Submit(context.Background(), id, 0, family)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = ctrl.Submit(context.Background(), "BC-MISSING", 100, family)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.Equal(t, int32(0), rail.calls.Load(), "rail must not be charged for a rejected request")
}

func TestSubmit_RailFailure_NoMutation(t *testing.T) {
	cause := errors.New("M-Pesa timeout")
	ctrl, l := newTestController(t, &countingRail{err: cause})
	id := registerCase(t, l, 2000)

	_, err := ctrl.Submit(context.Background(), id, 500, family)

	var railErr *settlement.RailError
	require.ErrorAs(t, err, &railErr)
	assert.ErrorIs(t, err, settlement.ErrRail)
	assert.ErrorIs(t, err, cause)
	c, _ := l.Get(id)
	assert.Equal(t, ledger.Money(0), c.Raised)
	assert.Equal(t, ledger.StatusOpen, c.Status)
}

func TestSubmit_CancelledDuringRailDelay_Discards(t *testing.T) {
	// GIVEN: A slow rail
	// WHEN: The caller cancels mid-delay
	// THEN: ctx's error is returned and the case is untouched
	ctrl, l := newTestController(t, &countingRail{delay: time.Second})
	id := registerCase(t, l, 2000)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ctrl.Submit(ctx, id, 500, family)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var railErr *settlement.RailError
	assert.False(t, errors.As(err, &railErr))
	c, _ := l.Get(id)
	assert.Equal(t, ledger.Money(0), c.Raised)
	assert.Empty(t, c.Contributions)
}

func TestSubmit_CancelledAfterCharge_StillCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rail := settlement.RailFunc(func(context.Context, ledger.CaseID, ledger.Money) (string, error) {
		cancel() // the caller walks away just as the rail confirms
		return "MPLATE0001", nil
	})
	ctrl, l := newTestController(t, rail)
	id := registerCase(t, l, 2000)

	res, err := ctrl.Submit(ctx, id, 2000, family)

	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, res.Case.Status)
	c, _ := l.Get(id)
	assert.Equal(t, ledger.Money(2000), c.Raised)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSubmit_ConcurrentOvershoot_ExactlyOneAccepted(t *testing.T) {
	// GIVEN: Remaining 3500 and a rail with a real delay
	// WHEN: Two submits of 2000 race
	// THEN: One is accepted; the other, after waiting out the first's rail
	//       delay, fails with an OverpaymentError naming 1500
	rail := &countingRail{delay: 30 * time.Millisecond}
	ctrl, l := newTestController(t, rail)
	id := registerCase(t, l, 5000)
	_, err := ctrl.Submit(context.Background(), id, 1500, family)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ctrl.Submit(context.Background(), id, 2000, family)
		}(i)
	}
	wg.Wait()

	var accepted int
	var over *ledger.OverpaymentError
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.ErrorAs(t, err, &over)
	}
	assert.Equal(t, 1, accepted)
	require.NotNil(t, over)
	assert.Equal(t, ledger.Money(1500), over.Remaining)
	assert.Equal(t, int32(2), rail.calls.Load(), "the rejected request never reaches the rail")

	c, _ := l.Get(id)
	assert.Equal(t, ledger.Money(3500), c.Raised)
	require.NoError(t, c.Validate())
}

func TestSubmit_DifferentCasesRunInParallel(t *testing.T) {
	const delay = 100 * time.Millisecond
	ctrl, l := newTestController(t, settlement.SimulatedRail{Delay: delay})
	a := registerCase(t, l, 1000)
	b := registerCase(t, l, 1000)

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range []ledger.CaseID{a, b} {
		wg.Add(1)
		go func(id ledger.CaseID) {
			defer wg.Done()
			_, err := ctrl.Submit(context.Background(), id, 100, family)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 2*delay, "submits on different cases must not serialize")
}

func TestSimulatedRail_MintsReference(t *testing.T) {
	ref, err := settlement.SimulatedRail{}.Charge(context.Background(), "BC-1", 10)

	require.NoError(t, err)
	assert.Regexp(t, `^MP[0-9A-Z]{8}$`, ref)
}
