/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's model from the external API contract; in particular the
  public views carry the computed remaining balance and funded percentage
  so clients never do money arithmetic.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Cases:
    CaseDTO, ContributionDTO, StatsDTO

  Contributions:
    ContributeRequest, ContributeResponse

  Registration:
    RegisterResponse (case + eligibility opinion)

  Officer actions:
    ActionRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
  - factory/intake.go: CaseIntake, the registration request body
*/
package api

import (
	"time"

	"github.com/bailaid/case-ledger/advisory"
	"github.com/bailaid/case-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CaseDTO represents a case in API responses.
type CaseDTO struct {
	ID                string            `json:"id"`
	ReportNumber      string            `json:"report_number"`
	Station           string            `json:"station,omitempty"`
	Detainee          ledger.Detainee   `json:"detainee"`
	Offence           string            `json:"offence"`
	OffenceCategory   string            `json:"offence_category,omitempty"`
	CaseCategory      string            `json:"case_category"`
	SettlementType    string            `json:"settlement_type"`
	Target            int64             `json:"target_amount"`
	Raised            int64             `json:"amount_raised"`
	Remaining         int64             `json:"remaining"`
	Progress          string            `json:"progress_percent"`
	Status            string            `json:"status"`
	CourtName         string            `json:"court_name,omitempty"`
	ExpectedCourtDate string            `json:"expected_court_date,omitempty"`
	ArrestedAt        string            `json:"arrested_at"`
	CreatedAt         string            `json:"created_at"`
	Contributions     []ContributionDTO `json:"contributions"`
	LockedBy          string            `json:"locked_by,omitempty"`
	ReleasedBy        string            `json:"released_by,omitempty"`
	ReleasedAt        *string           `json:"released_at,omitempty"`
	ClosedBy          string            `json:"closed_by,omitempty"`
	ClosedReason      string            `json:"closed_reason,omitempty"`

	History []ledger.Transition `json:"history,omitempty"`
}

// ContributionDTO represents one contribution in API responses.
type ContributionDTO struct {
	ID              string `json:"id"`
	Amount          int64  `json:"amount"`
	ContributorName string `json:"contributor_name"`
	ContributorType string `json:"contributor_type"`
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// ContributeRequest is the body of POST /api/cases/{id}/contributions.
// Contributor fields are optional; blank means "Well Wisher / Community".
type ContributeRequest struct {
	Amount          int64  `json:"amount"`
	ContributorName string `json:"contributor_name,omitempty"`
	ContributorType string `json:"contributor_type,omitempty"`
}

// ContributeResponse is returned for an accepted contribution.
type ContributeResponse struct {
	Case         CaseDTO         `json:"case"`
	Contribution ContributionDTO `json:"contribution"`
	ElapsedMS    int64           `json:"elapsed_ms"`
}

// RegisterResponse carries the new case and the advisory opinion on it.
// The opinion never affects the case.
type RegisterResponse struct {
	Case        CaseDTO             `json:"case"`
	Eligibility advisory.Assessment `json:"eligibility"`
}

// EligibilityRequest is the body of POST /api/eligibility.
type EligibilityRequest struct {
	Offence string `json:"offence"`
}

// GuidanceDTO is the legal summary shown next to a case.
type GuidanceDTO struct {
	CaseID  string           `json:"case_id"`
	Offence string           `json:"offence"`
	Summary advisory.Summary `json:"summary"`
}

// ActionRequest is the body of lock and close. Release and unlock ignore it.
type ActionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// StatsDTO is the dashboard summary.
type StatsDTO struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Target   int64          `json:"target_total"`
	Raised   int64          `json:"raised_total"`
	Progress string         `json:"progress_percent"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Details   string            `json:"details,omitempty"`
	Code      string            `json:"code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Remaining *int64            `json:"remaining,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toCaseDTO(c ledger.Case) CaseDTO {
	dto := CaseDTO{
		ID:                string(c.ID),
		ReportNumber:      c.ReportNumber,
		Station:           c.Station,
		Detainee:          c.Detainee,
		Offence:           c.Offence,
		OffenceCategory:   c.OffenceCategory,
		CaseCategory:      string(c.Category),
		SettlementType:    string(c.SettlementType),
		Target:            int64(c.Target),
		Raised:            int64(c.Raised),
		Remaining:         int64(c.Remaining()),
		Progress:          c.Progress().StringFixed(1),
		Status:            string(c.Status),
		CourtName:         c.CourtName,
		ExpectedCourtDate: c.ExpectedCourtDate,
		ArrestedAt:        c.ArrestedAt.Format(time.RFC3339),
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
		Contributions:     make([]ContributionDTO, len(c.Contributions)),
		LockedBy:          c.LockedBy,
		ReleasedBy:        c.ReleasedBy,
		ClosedBy:          c.ClosedBy,
		ClosedReason:      c.ClosedReason,
		History:           c.History,
	}
	if c.ReleasedAt != nil {
		dto.ReleasedAt = strPtr(c.ReleasedAt.Format(time.RFC3339))
	}
	for i, contrib := range c.Contributions {
		dto.Contributions[i] = toContributionDTO(contrib)
	}
	return dto
}

func toCaseDTOs(cases []ledger.Case) []CaseDTO {
	dtos := make([]CaseDTO, len(cases))
	for i, c := range cases {
		dtos[i] = toCaseDTO(c)
	}
	return dtos
}

func toContributionDTO(c ledger.Contribution) ContributionDTO {
	return ContributionDTO{
		ID:              string(c.ID),
		Amount:          int64(c.Amount),
		ContributorName: c.Contributor.Name,
		ContributorType: string(c.Contributor.Type),
		Reference:       c.Reference,
		Status:          string(c.Verification),
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

func toStatsDTO(s ledger.Stats) StatsDTO {
	dto := StatsDTO{
		Total:    s.Total,
		ByStatus: make(map[string]int, len(s.ByStatus)),
		Target:   int64(s.Target),
		Raised:   int64(s.Raised),
		Progress: s.Progress.StringFixed(1),
	}
	for status, n := range s.ByStatus {
		dto.ByStatus[string(status)] = n
	}
	return dto
}

func strPtr(s string) *string {
	return &s
}
