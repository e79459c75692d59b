package ledger

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"
)

// =============================================================================
// DRAFT - Registration input
// =============================================================================

// Draft carries everything the station supplies when registering a case.
// Minted fields (ID, status, raised, contributions, timestamps) are never
// part of it.
type Draft struct {
	ReportNumber      string         `json:"report_number" validate:"required"`
	Station           string         `json:"station"`
	DetaineeName      string         `json:"detainee_name" validate:"required"`
	DetaineePhone     string         `json:"detainee_phone"`
	DetaineeImage     string         `json:"detainee_image"`
	NationalID        string         `json:"national_id"`
	Gender            string         `json:"gender" validate:"omitempty,oneof=Male Female Other"`
	AgeRange          string         `json:"age_range" validate:"omitempty,oneof=Juvenile Adult"`
	Offence           string         `json:"offence"`
	OffenceCategory   string         `json:"offence_category"`
	Category          Category       `json:"case_category" validate:"omitempty,oneof=Bail Fine"`
	SettlementType    SettlementType `json:"settlement_type" validate:"omitempty,oneof='Cash Bail' 'Bond' 'Court Fine'"`
	Target            Money          `json:"target_amount" validate:"gt=0"`
	CourtName         string         `json:"court_name"`
	ExpectedCourtDate string         `json:"expected_court_date"`
	ArrestedAt        time.Time      `json:"arrested_at"`
}

// PhoneRegion is the default region for detainee phone numbers.
const PhoneRegion = "KE"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report field names the way clients send them.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalize trims free text, fills category defaults and canonicalizes the
// phone number. It returns a ValidationError listing every problem found.
func (d Draft) normalize() (Draft, error) {
	d.ReportNumber = strings.TrimSpace(d.ReportNumber)
	d.DetaineeName = strings.TrimSpace(d.DetaineeName)
	d.DetaineePhone = strings.TrimSpace(d.DetaineePhone)
	d.Station = strings.TrimSpace(d.Station)
	d.Offence = strings.TrimSpace(d.Offence)
	if d.Category == "" {
		d.Category = CategoryBail
	}
	if d.SettlementType == "" {
		d.SettlementType = d.Category.DefaultSettlement()
	}
	if d.Gender == "" {
		d.Gender = "Male"
	}
	if d.AgeRange == "" {
		d.AgeRange = "Adult"
	}

	fields := make(map[string]string)
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return d, err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
	}

	// Fines settle as court fines and nothing else does.
	isFine := d.SettlementType == SettlementCourtFine
	if (d.Category == CategoryFine) != isFine {
		if _, exists := fields["settlement_type"]; !exists {
			fields["settlement_type"] = "Court Fine applies to Fine cases only"
		}
	}

	if d.DetaineePhone != "" {
		phone, ok := NormalizePhone(d.DetaineePhone)
		if !ok {
			fields["detainee_phone"] = "is not a valid phone number"
		} else {
			d.DetaineePhone = phone
		}
	}

	if len(fields) > 0 {
		return d, &ValidationError{Fields: fields}
	}
	return d, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be positive"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

// NormalizePhone parses a Kenyan phone number in any common notation
// (0712..., +254712..., 254712...) and returns it in E.164 form.
func NormalizePhone(raw string) (string, bool) {
	num, err := libphonenumber.Parse(strings.TrimSpace(raw), PhoneRegion)
	if err != nil {
		return "", false
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", false
	}
	return libphonenumber.Format(num, libphonenumber.E164), true
}
