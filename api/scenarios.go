/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that replace the ledger contents with
	realistic data for demos and manual testing.

AVAILABLE SCENARIOS:

	nairobi-demo: Two Nairobi cases, one part-funded and one paid
	empty:        No cases at all

HOW SCENARIOS WORK:
 1. Build the scenario's cases
 2. Ledger.Import validates every case and swaps the whole collection
 3. The import is persisted and audited like any other mutation

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "nairobi-demo"}

NOTE:

	Scenarios replace all data. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler struct
  - ledger/ledger.go: Import, Reset
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "nairobi-demo",
		Name:        "Nairobi Demo",
		Description: "Kilimani cash bail part-funded by family, Central station bail fully paid by an NGO",
	},
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "No cases; register your own",
	},
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// nairobiDemoCases lists cases oldest first, the order they were registered.
func nairobiDemoCases() []ledger.Case {
	return []ledger.Case{
		{
			ID:           "BC-9925",
			ReportNumber: "OB 04/05/2024",
			Station:      "Central Police Station - Nairobi",
			Detainee: ledger.Detainee{
				Name:     "Sarah Atieno",
				Phone:    "+254722000111",
				Gender:   "Female",
				AgeRange: "Adult",
			},
			Offence:           "Minor Traffic Offence",
			OffenceCategory:   "Traffic Offence",
			Category:          ledger.CategoryBail,
			SettlementType:    ledger.SettlementCashBail,
			Target:            2000,
			Raised:            2000,
			Status:            ledger.StatusPaid,
			CourtName:         "Milimani Law Courts",
			ExpectedCourtDate: "2024-05-13",
			ArrestedAt:        ts("2024-05-12T07:30:00Z"),
			CreatedAt:         ts("2024-05-12T08:15:00Z"),
			Contributions: []ledger.Contribution{{
				ID:           "CX-000000000002",
				Amount:       2000,
				Contributor:  ledger.Contributor{Name: "Haki Foundation", Type: ledger.ContributorNGO},
				Reference:    "QF12X81A0P",
				Verification: ledger.VerificationVerified,
				CreatedAt:    ts("2024-05-12T09:00:00Z"),
			}},
		},
		{
			ID:           "BC-9921",
			ReportNumber: "OB 12/05/2024",
			Station:      "Kilimani Police Station",
			Detainee: ledger.Detainee{
				Name:     "John Kamau",
				Phone:    "+254712345678",
				Gender:   "Male",
				AgeRange: "Adult",
			},
			Offence:           "Public Nuisance",
			OffenceCategory:   "Public Nuisance",
			Category:          ledger.CategoryBail,
			SettlementType:    ledger.SettlementCashBail,
			Target:            5000,
			Raised:            1500,
			Status:            ledger.StatusContributing,
			CourtName:         "Kibera Law Courts",
			ExpectedCourtDate: "2024-05-15",
			ArrestedAt:        ts("2024-05-12T09:00:00Z"),
			CreatedAt:         ts("2024-05-12T10:30:00Z"),
			Contributions: []ledger.Contribution{{
				ID:           "CX-000000000001",
				Amount:       1500,
				Contributor:  ledger.Contributor{Name: "Mary Wanjiku", Type: ledger.ContributorFamily},
				Reference:    "RE92K81S9L",
				Verification: ledger.VerificationVerified,
				CreatedAt:    ts("2024-05-12T11:00:00Z"),
			}},
		},
	}
}

// scenarioCases returns the cases for a scenario id.
var errUnknownScenario = errors.New("unknown scenario")

func scenarioCases(id string) ([]ledger.Case, error) {
	switch id {
	case "nairobi-demo":
		return nairobiDemoCases(), nil
	case "empty":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownScenario, id)
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the id of the last loaded scenario.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario replaces the ledger contents with a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		h.Log.Error("failed to load scenario", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scenario_id": req.ScenarioID,
		"cases":       len(h.Ledger.List()),
	})
}

// ResetDatabase removes every case.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Reset(r.Context(), actorFrom(r.Context())); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	cases, err := scenarioCases(id)
	if err != nil {
		return err
	}
	if err := h.Ledger.Import(ctx, cases, actorFrom(ctx)); err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	return nil
}

// SeedScenario loads a scenario at startup when the ledger is empty.
func (h *Handler) SeedScenario(ctx context.Context, id string) error {
	if len(h.Ledger.List()) > 0 {
		return nil
	}
	return h.loadScenario(ctx, id)
}
