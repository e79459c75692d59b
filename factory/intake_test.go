package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bailaid/case-ledger/ledger"
)

var fixedNow = time.Date(2024, 5, 12, 10, 30, 0, 0, time.UTC)

func newFactory() *IntakeFactory {
	return NewIntakeFactory().WithClock(func() time.Time { return fixedNow })
}

func TestParseIntake_FullForm(t *testing.T) {
	body := []byte(`{
		"report_number": "OB 12/05/2024",
		"station": "Kilimani Police Station",
		"detainee_name": "John Kamau",
		"detainee_phone": "0712345678",
		"gender": "Male",
		"age_range": "Adult",
		"offence": "Public Nuisance",
		"case_category": "bail",
		"settlement_type": "Cash Bail",
		"target_amount": 5000,
		"court_name": "Kibera Law Courts",
		"expected_court_date": "2024-05-15",
		"arrest_time": "2024-05-12T09:00"
	}`)

	d, err := newFactory().ParseIntake(body)
	require.NoError(t, err)

	assert.Equal(t, "OB 12/05/2024", d.ReportNumber)
	assert.Equal(t, ledger.CategoryBail, d.Category)
	assert.Equal(t, ledger.SettlementCashBail, d.SettlementType)
	assert.Equal(t, ledger.Money(5000), d.Target)
	assert.Equal(t, "2024-05-15", d.ExpectedCourtDate)
	// 09:00 EAT is 06:00 UTC.
	assert.Equal(t, time.Date(2024, 5, 12, 6, 0, 0, 0, time.UTC), d.ArrestedAt)
}

func TestParseIntake_RFC3339ArrestTime(t *testing.T) {
	d, err := newFactory().ParseIntake([]byte(`{"report_number":"OB 1","detainee_name":"A","target_amount":1,"arrest_time":"2024-05-12T07:30:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 12, 7, 30, 0, 0, time.UTC), d.ArrestedAt)
}

func TestParseIntake_MissingArrestTimeIsNow(t *testing.T) {
	d, err := newFactory().ParseIntake([]byte(`{"report_number":"OB 1","detainee_name":"A","target_amount":1}`))
	require.NoError(t, err)
	assert.Equal(t, fixedNow, d.ArrestedAt)
}

func TestParseIntake_RejectsMintedFields(t *testing.T) {
	// GIVEN: a client trying to register a case that is already paid
	body := []byte(`{"report_number":"OB 1","detainee_name":"A","target_amount":100,"status":"PAID","raised":100}`)

	// WHEN: parsing
	_, err := newFactory().ParseIntake(body)

	// THEN: the whole form is rejected
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestParseIntake_BadDates(t *testing.T) {
	_, err := newFactory().ParseIntake([]byte(`{"report_number":"OB 1","detainee_name":"A","target_amount":1,"arrest_time":"yesterday","expected_court_date":"15/05/2024"}`))

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "arrest_time")
	assert.Contains(t, verr.Fields, "expected_court_date")
}

func TestParseSettlementType(t *testing.T) {
	tests := []struct {
		in   string
		want ledger.SettlementType
	}{
		{"", ""},
		{"cash_bail", ledger.SettlementCashBail},
		{"Bond", ledger.SettlementBond},
		{"court fine", ledger.SettlementCourtFine},
		{"Surety", "Surety"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseSettlementType(tt.in), tt.in)
	}
}

func TestToJSON_RoundTripsThroughFromJSON(t *testing.T) {
	f := newFactory()
	c := ledger.Case{
		ReportNumber:   "OB 04/05/2024",
		Detainee:       ledger.Detainee{Name: "Sarah Atieno", Gender: "Female", AgeRange: "Adult"},
		Category:       ledger.CategoryFine,
		SettlementType: ledger.SettlementCourtFine,
		Target:         2000,
		ArrestedAt:     time.Date(2024, 5, 12, 7, 30, 0, 0, time.UTC),
	}

	d, err := f.FromJSON(f.ToJSON(c))
	require.NoError(t, err)
	assert.Equal(t, c.ArrestedAt, d.ArrestedAt)
	assert.Equal(t, c.SettlementType, d.SettlementType)
	assert.Equal(t, c.Target, d.Target)
}
