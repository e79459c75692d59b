/*
Package factory provides JSON to Go case intake conversion.

PURPOSE:
  Converts the registration form a station submits into a ledger.Draft.
  Field names, date formats and the category defaults all live here so
  the ledger only ever sees typed values.

JSON SCHEMA:
  {
    "report_number": "OB 12/05/2024",
    "station": "Kilimani Police Station",
    "detainee_name": "John Kamau",
    "detainee_phone": "0712345678",
    "gender": "Male",
    "age_range": "Adult",
    "offence": "Public Nuisance",
    "offence_category": "Public Nuisance",
    "case_category": "Bail",
    "settlement_type": "Cash Bail",
    "target_amount": 5000,
    "court_name": "Kibera Law Courts",
    "expected_court_date": "2024-05-15",
    "arrest_time": "2024-05-12T09:00"
  }

KEY FEATURES:
  - Rejects unknown fields, so clients cannot smuggle minted fields
    (id, status, raised, contributions) into a registration
  - Accepts arrest time as RFC3339 or as a datetime-local value
    ("2006-01-02T15:04", read as East Africa Time)
  - Missing arrest time means "now"
  - Remaining validation (required fields, positive target, phone number)
    is the ledger's job

USAGE:
  f := factory.NewIntakeFactory()
  draft, err := f.ParseIntake(body)
  c, err := l.Register(ctx, draft)

SEE ALSO:
  - ledger/draft.go: Draft type and its validation
  - api/handlers.go: RegisterCase
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bailaid/case-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CaseIntake is the JSON representation of a registration form.
type CaseIntake struct {
	ReportNumber      string `json:"report_number"`
	Station           string `json:"station,omitempty"`
	DetaineeName      string `json:"detainee_name"`
	DetaineePhone     string `json:"detainee_phone,omitempty"`
	DetaineeImage     string `json:"detainee_image,omitempty"` // data URL
	NationalID        string `json:"national_id,omitempty"`
	Gender            string `json:"gender,omitempty"`
	AgeRange          string `json:"age_range,omitempty"`
	Offence           string `json:"offence,omitempty"`
	OffenceCategory   string `json:"offence_category,omitempty"`
	CaseCategory      string `json:"case_category,omitempty"`   // Bail, Fine
	SettlementType    string `json:"settlement_type,omitempty"` // Cash Bail, Bond, Court Fine
	TargetAmount      int64  `json:"target_amount"`
	CourtName         string `json:"court_name,omitempty"`
	ExpectedCourtDate string `json:"expected_court_date,omitempty"` // YYYY-MM-DD
	ArrestTime        string `json:"arrest_time,omitempty"`
}

// Formats accepted for arrest_time, tried in order.
const (
	dateLayout          = "2006-01-02"
	datetimeLocalLayout = "2006-01-02T15:04"
)

// EastAfrica is the zone datetime-local values are read in.
var EastAfrica = time.FixedZone("EAT", 3*60*60)

// =============================================================================
// INTAKE FACTORY
// =============================================================================

// IntakeFactory converts JSON intake forms to drafts.
type IntakeFactory struct {
	now func() time.Time
}

// NewIntakeFactory creates a new intake factory.
func NewIntakeFactory() *IntakeFactory {
	return &IntakeFactory{now: time.Now}
}

// WithClock replaces the clock used for a missing arrest time.
func (f *IntakeFactory) WithClock(now func() time.Time) *IntakeFactory {
	f.now = now
	return f
}

// ParseIntake parses a JSON body into a Draft.
func (f *IntakeFactory) ParseIntake(data []byte) (ledger.Draft, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var in CaseIntake
	if err := dec.Decode(&in); err != nil {
		return ledger.Draft{}, &ledger.ValidationError{Fields: map[string]string{"body": fmt.Sprintf("invalid intake JSON: %v", err)}}
	}
	return f.FromJSON(in)
}

// FromJSON converts a CaseIntake to a ledger.Draft.
func (f *IntakeFactory) FromJSON(in CaseIntake) (ledger.Draft, error) {
	fields := make(map[string]string)

	arrested, err := f.parseArrestTime(in.ArrestTime)
	if err != nil {
		fields["arrest_time"] = err.Error()
	}

	courtDate := strings.TrimSpace(in.ExpectedCourtDate)
	if courtDate != "" {
		if _, err := time.Parse(dateLayout, courtDate); err != nil {
			fields["expected_court_date"] = "must be YYYY-MM-DD"
		}
	}

	if len(fields) > 0 {
		return ledger.Draft{}, &ledger.ValidationError{Fields: fields}
	}

	return ledger.Draft{
		ReportNumber:      in.ReportNumber,
		Station:           in.Station,
		DetaineeName:      in.DetaineeName,
		DetaineePhone:     in.DetaineePhone,
		DetaineeImage:     in.DetaineeImage,
		NationalID:        strings.TrimSpace(in.NationalID),
		Gender:            strings.TrimSpace(in.Gender),
		AgeRange:          strings.TrimSpace(in.AgeRange),
		Offence:           in.Offence,
		OffenceCategory:   strings.TrimSpace(in.OffenceCategory),
		Category:          parseCategory(in.CaseCategory),
		SettlementType:    parseSettlementType(in.SettlementType),
		Target:            ledger.Money(in.TargetAmount),
		CourtName:         strings.TrimSpace(in.CourtName),
		ExpectedCourtDate: courtDate,
		ArrestedAt:        arrested,
	}, nil
}

// ToJSON converts a case back to the intake form that would register it.
func (f *IntakeFactory) ToJSON(c ledger.Case) CaseIntake {
	return CaseIntake{
		ReportNumber:      c.ReportNumber,
		Station:           c.Station,
		DetaineeName:      c.Detainee.Name,
		DetaineePhone:     c.Detainee.Phone,
		DetaineeImage:     c.Detainee.Image,
		NationalID:        c.Detainee.NationalID,
		Gender:            c.Detainee.Gender,
		AgeRange:          c.Detainee.AgeRange,
		Offence:           c.Offence,
		OffenceCategory:   c.OffenceCategory,
		CaseCategory:      string(c.Category),
		SettlementType:    string(c.SettlementType),
		TargetAmount:      int64(c.Target),
		CourtName:         c.CourtName,
		ExpectedCourtDate: c.ExpectedCourtDate,
		ArrestTime:        c.ArrestedAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func (f *IntakeFactory) parseArrestTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return f.now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(datetimeLocalLayout, s, EastAfrica); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be RFC3339 or YYYY-MM-DDTHH:MM")
}

// Unknown values pass through untouched; the ledger validator names them.
func parseCategory(s string) ledger.Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "bail":
		return ledger.CategoryBail
	case "fine":
		return ledger.CategoryFine
	default:
		return ledger.Category(s)
	}
}

func parseSettlementType(s string) ledger.SettlementType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "cash bail", "cash_bail":
		return ledger.SettlementCashBail
	case "bond":
		return ledger.SettlementBond
	case "court fine", "court_fine":
		return ledger.SettlementCourtFine
	default:
		return ledger.SettlementType(s)
	}
}
