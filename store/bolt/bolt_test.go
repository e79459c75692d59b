package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bailaid/case-ledger/ledger"
	"github.com/bailaid/case-ledger/store/bolt"
)

func newTestStore(t *testing.T) (*bolt.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := bolt.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestLoadAll_Empty(t *testing.T) {
	s, _ := newTestStore(t)

	cases, err := s.LoadAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestSaveAll_RoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	l, err := ledger.New(ctx, s)
	require.NoError(t, err)
	c, err := l.Register(ctx, ledger.Draft{ReportNumber: "OB 7", DetaineeName: "Otieno", Target: 1200})
	require.NoError(t, err)
	_, _, err = l.ApplyContribution(ctx, c.ID, 200, ledger.Contributor{Name: "Kibera CBO", Type: ledger.ContributorCommunity})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := bolt.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	cases, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, ledger.Money(200), cases[0].Raised)
	assert.Equal(t, "Kibera CBO", cases[0].Contributions[0].Contributor.Name)
	assert.NoError(t, cases[0].Validate())
}

func TestSaveAll_CancelledContext(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SaveAll(ctx, []ledger.Case{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuditLog_KeepsAppendOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	now := time.Now().UTC()

	for i, action := range []ledger.AuditAction{ledger.AuditCaseRegistered, ledger.AuditCaseLocked, ledger.AuditCaseUnlocked} {
		require.NoError(t, s.Append(ctx, ledger.AuditEntry{
			ID: string(rune('a' + i)), Timestamp: now, ActorID: "OCS", Action: action, CaseID: "BC-1",
		}))
	}

	all, err := s.Query(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	locks, err := s.Query(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditCaseLocked}})
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "b", locks[0].ID)

	limited, err := s.Query(ctx, ledger.AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
