package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bailaid/case-ledger/ledger"
)

func seedSearch(t *testing.T) (*ledger.Ledger, ledger.Case, ledger.Case) {
	t.Helper()
	l, _ := newTestLedger(t)
	ctx := context.Background()

	john, err := l.Register(ctx, draft(5000))
	require.NoError(t, err)

	d := draft(2000)
	d.ReportNumber = "OB 04/05/2024"
	d.DetaineeName = "Sarah Atieno"
	d.DetaineePhone = "+254 722 000 111"
	sarah, err := l.Register(ctx, d)
	require.NoError(t, err)
	return l, john, sarah
}

func ids(cases []ledger.Case) []ledger.CaseID {
	out := make([]ledger.CaseID, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.ID)
	}
	return out
}

func TestSearch(t *testing.T) {
	l, john, sarah := seedSearch(t)

	tests := []struct {
		name  string
		query string
		want  []ledger.CaseID
	}{
		{"name substring ignores case", "kAMau", []ledger.CaseID{john.ID}},
		{"report number substring", "04/05", []ledger.CaseID{sarah.ID}},
		{"shared report prefix matches both, newest first", "OB ", []ledger.CaseID{sarah.ID, john.ID}},
		{"phone in local notation", "0722000111", []ledger.CaseID{sarah.ID}},
		{"phone in international notation", "+254712345678", []ledger.CaseID{john.ID}},
		{"exact case id", string(john.ID), []ledger.CaseID{john.ID}},
		{"partial phone does not match", "0722", nil},
		{"blank query", "   ", nil},
		{"no match", "Otieno", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(l.Search(tt.query))
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_CaseIDLowercase(t *testing.T) {
	l, john, _ := seedSearch(t)

	got := l.Search("bc-" + string(john.ID[3:]))

	require.Len(t, got, 1)
	assert.Equal(t, john.ID, got[0].ID)
}

func TestBrowse_OnlyFundableCases(t *testing.T) {
	ctx := context.Background()
	l, john, sarah := seedSearch(t)
	_, _, err := l.ApplyContribution(ctx, sarah.ID, 2000, family)
	require.NoError(t, err)

	browse := l.Browse()

	assert.Equal(t, []ledger.CaseID{john.ID}, ids(browse))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	l, john, sarah := seedSearch(t)
	_, _, err := l.ApplyContribution(ctx, john.ID, 1500, family)
	require.NoError(t, err)
	_, _, err = l.ApplyContribution(ctx, sarah.ID, 2000, family)
	require.NoError(t, err)

	st := l.Stats()

	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.ByStatus[ledger.StatusContributing])
	assert.Equal(t, 1, st.ByStatus[ledger.StatusPaid])
	assert.Equal(t, ledger.Money(7000), st.Target)
	assert.Equal(t, ledger.Money(3500), st.Raised)
	assert.True(t, decimal.NewFromInt(50).Equal(st.Progress), "got %s", st.Progress)
}

func TestProgress_RoundsToOneDecimal(t *testing.T) {
	c := ledger.Case{Target: 3000, Raised: 1000}
	assert.Equal(t, "33.3", c.Progress().String())
}
