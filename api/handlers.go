/*
handlers.go - HTTP API handlers for the case ledger

PURPOSE:
  Exposes the ledger, the settlement controller and the advisory guard via
  REST API. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic. Handlers never change a case except through the ledger
  or the settlement controller.

ENDPOINTS:
  Public (contributors):
    GET    /api/cases                        List / search cases (?q=, ?status=)
    GET    /api/cases/browse                 Cases still accepting funds
    GET    /api/cases/stats                  Dashboard counts and totals
    GET    /api/cases/{id}                   Case detail
    GET    /api/cases/{id}/guidance          Plain-language legal summary
    POST   /api/cases/{id}/contributions     Contribute (rate limited)

  Officers:
    POST   /api/cases                        Register + eligibility opinion
    POST   /api/eligibility                  Eligibility preview for the form
    POST   /api/cases/{id}/release           Authorize release (OCS/Admin)
    POST   /api/cases/{id}/lock|unlock|close Admin actions (OCS/Admin)
    GET    /api/audit                        Audit log query
    GET    /api/integrity                    Run the integrity audit

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (ledger, settlement, advisory)
  4. Publish events for committed changes
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Case not found
  - 409: Case status does not allow the operation
  - 422: Contribution exceeds the remaining balance (body has "remaining")
  - 502: Payment rail failure
  - 503: Request abandoned (cancelled or timed out)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/advisory"
	"github.com/bailaid/case-ledger/events"
	"github.com/bailaid/case-ledger/factory"
	"github.com/bailaid/case-ledger/ledger"
	"github.com/bailaid/case-ledger/settlement"
)

// maxBodyBytes bounds request bodies; a detainee photo as a data URL fits.
const maxBodyBytes = 4 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *ledger.Ledger
	Settlement *settlement.Controller
	Guard      *advisory.Guard
	Intake     *factory.IntakeFactory
	Events     events.Publisher
	Scheduler  *IntegrityScheduler
	Log        *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. events and scheduler may be nil.
func NewHandler(
	l *ledger.Ledger,
	controller *settlement.Controller,
	guard *advisory.Guard,
	publisher events.Publisher,
	scheduler *IntegrityScheduler,
	log *zap.Logger,
) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(log)
	}
	if scheduler == nil {
		scheduler = NewIntegrityScheduler(l, "", log)
	}
	return &Handler{
		Ledger:     l,
		Settlement: controller,
		Guard:      guard,
		Intake:     factory.NewIntakeFactory(),
		Events:     publisher,
		Scheduler:  scheduler,
		Log:        log,
	}
}

// =============================================================================
// PUBLIC CASE HANDLERS
// =============================================================================

// ListCases returns all cases, newest first, or the matches of ?q=.
// GET /api/cases
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	var cases []ledger.Case
	if q := r.URL.Query().Get("q"); q != "" {
		cases = h.Ledger.Search(q)
	} else {
		cases = h.Ledger.List()
	}

	if status := r.URL.Query().Get("status"); status != "" {
		want := ledger.Status(strings.ToUpper(status))
		if !want.Valid() {
			writeError(w, http.StatusBadRequest, "Unknown status", nil)
			return
		}
		filtered := cases[:0]
		for _, c := range cases {
			if c.Status == want {
				filtered = append(filtered, c)
			}
		}
		cases = filtered
	}

	writeJSON(w, http.StatusOK, toCaseDTOs(cases))
}

// BrowseCases returns cases contributors can still fund.
// GET /api/cases/browse
func (h *Handler) BrowseCases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCaseDTOs(h.Ledger.Browse()))
}

// GetStats returns the dashboard summary.
// GET /api/cases/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatsDTO(h.Ledger.Stats()))
}

// GetCase returns a single case.
// GET /api/cases/{id}
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.Ledger.Get(caseIDParam(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// GetGuidance returns a plain-language summary of the case's offence.
// Always 200: the guard substitutes a fixed text when the oracle fails.
// GET /api/cases/{id}/guidance
func (h *Handler) GetGuidance(w http.ResponseWriter, r *http.Request) {
	c, err := h.Ledger.Get(caseIDParam(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, GuidanceDTO{
		CaseID:  string(c.ID),
		Offence: c.Offence,
		Summary: h.Guard.Summarize(r.Context(), c.Offence),
	})
}

// Contribute submits one contribution through the settlement controller.
// POST /api/cases/{id}/contributions
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	var req ContributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	contributor := ledger.Contributor{
		Name: strings.TrimSpace(req.ContributorName),
		Type: ledger.ContributorType(strings.TrimSpace(req.ContributorType)),
	}

	res, err := h.Settlement.Submit(r.Context(), caseIDParam(r), ledger.Money(req.Amount), contributor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.publish(r.Context(), events.ContributionEvents(res.Case, res.Contribution)...)

	writeJSON(w, http.StatusCreated, ContributeResponse{
		Case:         toCaseDTO(res.Case),
		Contribution: toContributionDTO(res.Contribution),
		ElapsedMS:    res.Elapsed.Milliseconds(),
	})
}

// =============================================================================
// OFFICER HANDLERS
// =============================================================================

// RegisterCase registers a case, then asks the oracle for an eligibility
// opinion. The opinion is only attached to the response; the case is
// already committed by then.
// POST /api/cases
func (h *Handler) RegisterCase(w http.ResponseWriter, r *http.Request) {
	officer, _ := OfficerFrom(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	draft, err := h.Intake.ParseIntake(body)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if draft.Station == "" {
		draft.Station = officer.Station
	}

	c, err := h.Ledger.Register(r.Context(), draft)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.Log.Info("case registered",
		zap.String("case_id", string(c.ID)),
		zap.String("report_number", c.ReportNumber),
		zap.String("officer", officer.Actor()),
	)
	h.publish(r.Context(), events.CaseEvent(events.EventCaseRegistered, c))

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Case:        toCaseDTO(c),
		Eligibility: h.Guard.AssessEligibility(r.Context(), c.Offence),
	})
}

// CheckEligibility previews the eligibility opinion while the officer is
// still filling in the registration form.
// POST /api/eligibility
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var req EligibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Offence) == "" {
		writeError(w, http.StatusBadRequest, "offence is required", nil)
		return
	}

	writeJSON(w, http.StatusOK, h.Guard.AssessEligibility(r.Context(), req.Offence))
}

// ReleaseCase authorizes the release of a PAID case.
// POST /api/cases/{id}/release
func (h *Handler) ReleaseCase(w http.ResponseWriter, r *http.Request) {
	officer, _ := OfficerFrom(r.Context())
	h.officerAction(w, r, events.EventCaseReleased, func(ctx context.Context, id ledger.CaseID, _ string) (ledger.Case, error) {
		return h.Ledger.AuthorizeRelease(ctx, id, officer.Actor())
	})
}

// LockCase holds a case for registration correction.
// POST /api/cases/{id}/lock
func (h *Handler) LockCase(w http.ResponseWriter, r *http.Request) {
	officer, _ := OfficerFrom(r.Context())
	h.officerAction(w, r, events.EventCaseLocked, func(ctx context.Context, id ledger.CaseID, reason string) (ledger.Case, error) {
		return h.Ledger.LockCase(ctx, id, officer.Actor(), reason)
	})
}

// UnlockCase returns a locked case to the funding path.
// POST /api/cases/{id}/unlock
func (h *Handler) UnlockCase(w http.ResponseWriter, r *http.Request) {
	officer, _ := OfficerFrom(r.Context())
	h.officerAction(w, r, events.EventCaseUnlocked, func(ctx context.Context, id ledger.CaseID, _ string) (ledger.Case, error) {
		return h.Ledger.UnlockCase(ctx, id, officer.Actor())
	})
}

// CloseCase withdraws an unpaid case.
// POST /api/cases/{id}/close
func (h *Handler) CloseCase(w http.ResponseWriter, r *http.Request) {
	officer, _ := OfficerFrom(r.Context())
	h.officerAction(w, r, events.EventCaseClosed, func(ctx context.Context, id ledger.CaseID, reason string) (ledger.Case, error) {
		return h.Ledger.CloseCase(ctx, id, officer.Actor(), reason)
	})
}

func (h *Handler) officerAction(
	w http.ResponseWriter,
	r *http.Request,
	eventType string,
	action func(ctx context.Context, id ledger.CaseID, reason string) (ledger.Case, error),
) {
	var req ActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	c, err := action(r.Context(), caseIDParam(r), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.publish(r.Context(), events.CaseEvent(eventType, c))
	writeJSON(w, http.StatusOK, toCaseDTO(c))
}

// ListAudit queries the audit log.
// GET /api/audit?case_id=&actor=&action=&from=&to=&limit=
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	log := h.Ledger.AuditLog()
	if log == nil {
		writeError(w, http.StatusNotImplemented, "Audit log not supported by this store", nil)
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid audit filter", err)
		return
	}

	entries, err := log.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	if entries == nil {
		entries = []ledger.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetIntegrity runs the integrity audit now and returns the report.
// GET /api/integrity
func (h *Handler) GetIntegrity(w http.ResponseWriter, r *http.Request) {
	report := h.Scheduler.RunNow()
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func caseIDParam(r *http.Request) ledger.CaseID {
	return ledger.CaseID(strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "id"))))
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseAuditFilter(r *http.Request) (ledger.AuditFilter, error) {
	q := r.URL.Query()
	var filter ledger.AuditFilter

	if v := q.Get("case_id"); v != "" {
		id := ledger.CaseID(strings.ToUpper(v))
		filter.CaseID = &id
	}
	if v := q.Get("actor"); v != "" {
		filter.ActorID = &v
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, ledger.AuditAction(a))
	}
	for key, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return filter, errors.New(key + " must be RFC3339")
			}
			*dst = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	return filter, nil
}

// publish sends events for a change that is already committed. Failures are
// logged and never reach the client.
func (h *Handler) publish(ctx context.Context, evs ...events.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range evs {
		if err := h.Events.Publish(ctx, events.StreamCases, e); err != nil {
			h.Log.Warn("event publish failed",
				zap.String("type", e.Type),
				zap.String("request_id", RequestID(ctx)),
				zap.Error(err),
			)
		}
	}
}

// writeDomainError maps ledger, settlement and context errors to HTTP.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		overpay *ledger.OverpaymentError
		verr    *ledger.ValidationError
	)

	switch {
	case errors.As(err, &overpay):
		remaining := int64(overpay.Remaining)
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "Contribution exceeds remaining balance",
			Details:   err.Error(),
			Code:      "overpayment",
			Remaining: &remaining,
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: err.Error(),
			Code:    "validation",
			Fields:  verr.Fields,
		})
	case errors.Is(err, ledger.ErrNotFound):
		writeCodedError(w, http.StatusNotFound, "not_found", "Case not found", err)
	case errors.Is(err, ledger.ErrInvalidState):
		writeCodedError(w, http.StatusConflict, "invalid_state", "Operation not allowed in current case status", err)
	case errors.Is(err, settlement.ErrRail):
		h.Log.Warn("payment rail failure", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeCodedError(w, http.StatusBadGateway, "rail_failure", "Payment could not be processed", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeCodedError(w, http.StatusServiceUnavailable, "abandoned", "Request abandoned before completion", err)
	default:
		h.Log.Error("request failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeCodedError(w, http.StatusInternalServerError, "internal", "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// actorFrom names the officer behind ctx, or "system" for internal calls.
func actorFrom(ctx context.Context) string {
	if o, ok := OfficerFrom(ctx); ok {
		return o.Actor()
	}
	return "system"
}
