/*
handlers_test.go - HTTP tests for the case API

Tests for:
- Public reads, search and status filters
- Contributions through the settlement controller and the error mapping
- Officer registration with the eligibility opinion
- Role checks on release, lock, unlock and close
- Audit log and integrity endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bailaid/case-ledger/advisory"
	"github.com/bailaid/case-ledger/auth"
	"github.com/bailaid/case-ledger/events"
	"github.com/bailaid/case-ledger/ledger"
	"github.com/bailaid/case-ledger/settlement"
	"github.com/bailaid/case-ledger/store/sqlite"
)

const testSecret = "test-secret"

// =============================================================================
// FIXTURES
// =============================================================================

type stubOracle struct {
	summary     string
	eligibility advisory.Eligibility
	err         error
}

func (s stubOracle) Summarize(context.Context, string) (string, error) {
	return s.summary, s.err
}

func (s stubOracle) AssessEligibility(context.Context, string) (advisory.Eligibility, error) {
	return s.eligibility, s.err
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.got))
	for i, e := range p.got {
		out[i] = e.Type
	}
	return out
}

type testServer struct {
	handler   *Handler
	router    http.Handler
	events    *recordingPublisher
	railCalls int
	railErr   error
}

func setupTestServer(t *testing.T, oracle advisory.Oracle) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	l, err := ledger.New(context.Background(), store)
	require.NoError(t, err)

	ts := &testServer{events: &recordingPublisher{}}
	rail := settlement.RailFunc(func(ctx context.Context, _ ledger.CaseID, _ ledger.Money) (string, error) {
		ts.railCalls++
		if ts.railErr != nil {
			return "", ts.railErr
		}
		return "MPTEST0001", nil
	})

	ts.handler = NewHandler(
		l,
		settlement.NewController(l, rail, nil),
		advisory.NewGuard(oracle, time.Second, nil),
		ts.events,
		nil,
		nil,
	)
	require.NoError(t, ts.handler.loadScenario(context.Background(), "nairobi-demo"))

	ts.router = NewRouter(ts.handler, RouterConfig{JWTSecret: testSecret}, nil)
	return ts
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateJWT(testSecret, auth.Officer{
		ID:      uuid.New(),
		Name:    "Jane Wekesa",
		Role:    role,
		Station: "Kilimani Police Station",
	}, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =============================================================================
// PUBLIC READS
// =============================================================================

func TestListCases_NewestFirst(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/cases", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cases := decode[[]CaseDTO](t, rec)
	require.Len(t, cases, 2)
	assert.Equal(t, "BC-9921", cases[0].ID)
	assert.Equal(t, "BC-9925", cases[1].ID)
	assert.Equal(t, int64(3500), cases[0].Remaining)
	assert.Equal(t, "30.0", cases[0].Progress)
}

func TestListCases_SearchAndStatus(t *testing.T) {
	ts := setupTestServer(t, nil)

	tests := []struct {
		path string
		want []string
	}{
		{"/api/cases?q=john", []string{"BC-9921"}},
		{"/api/cases?q=0722000111", []string{"BC-9925"}},
		{"/api/cases?q=OB%2004", []string{"BC-9925"}},
		{"/api/cases?status=paid", []string{"BC-9925"}},
		{"/api/cases?q=nobody", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, "", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			got := []string{}
			for _, c := range decode[[]CaseDTO](t, rec) {
				got = append(got, c.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListCases_UnknownStatus(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/cases?status=pending", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBrowseAndStats(t *testing.T) {
	ts := setupTestServer(t, nil)

	browse := decode[[]CaseDTO](t, ts.do(t, http.MethodGet, "/api/cases/browse", "", nil))
	require.Len(t, browse, 1)
	assert.Equal(t, "BC-9921", browse[0].ID)

	stats := decode[StatsDTO](t, ts.do(t, http.MethodGet, "/api/cases/stats", "", nil))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus["PAID"])
	assert.Equal(t, int64(7000), stats.Target)
	assert.Equal(t, int64(3500), stats.Raised)
}

func TestGetCase_NotFound(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/cases/BC-0000", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

func TestGetCase_LowercaseID(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/cases/bc-9921", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "John Kamau", decode[CaseDTO](t, rec).Detainee.Name)
}

func TestGetGuidance_FallsBackWhenOracleFails(t *testing.T) {
	ts := setupTestServer(t, stubOracle{err: errors.New("quota exceeded")})

	rec := ts.do(t, http.MethodGet, "/api/cases/BC-9921/guidance", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[GuidanceDTO](t, rec)
	assert.True(t, g.Summary.Fallback)
	assert.Equal(t, advisory.FallbackSummary, g.Summary.Text)
}

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

func TestContribute_Accepted(t *testing.T) {
	// GIVEN: BC-9921 with 1500 of 5000 raised
	ts := setupTestServer(t, nil)

	// WHEN: an anonymous contributor sends 1000
	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9921/contributions", "", ContributeRequest{Amount: 1000})

	// THEN: the case shows 2500 raised and the rail reference is recorded
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[ContributeResponse](t, rec)
	assert.Equal(t, int64(2500), resp.Case.Raised)
	assert.Equal(t, "CONTRIBUTING", resp.Case.Status)
	assert.Equal(t, "MPTEST0001", resp.Contribution.Reference)
	assert.Equal(t, "Well Wisher", resp.Contribution.ContributorName)
	assert.Equal(t, []string{events.EventContributionReceived}, ts.events.types())
}

func TestContribute_ExactRemainderPublishesPaid(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9921/contributions", "",
		ContributeRequest{Amount: 3500, ContributorName: "Haki Foundation", ContributorType: "NGO"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "PAID", decode[ContributeResponse](t, rec).Case.Status)
	assert.Equal(t, []string{events.EventContributionReceived, events.EventCasePaid}, ts.events.types())
}

func TestContribute_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		caseID  string
		req     ContributeRequest
		railErr error
		status  int
		code    string
		charged bool
	}{
		{"overpayment", "BC-9921", ContributeRequest{Amount: 4000}, nil, http.StatusUnprocessableEntity, "overpayment", false},
		{"paid case", "BC-9925", ContributeRequest{Amount: 100}, nil, http.StatusConflict, "invalid_state", false},
		{"zero amount", "BC-9921", ContributeRequest{Amount: 0}, nil, http.StatusBadRequest, "validation", false},
		{"bad contributor type", "BC-9921", ContributeRequest{Amount: 10, ContributorType: "Bank"}, nil, http.StatusBadRequest, "validation", false},
		{"unknown case", "BC-0000", ContributeRequest{Amount: 10}, nil, http.StatusNotFound, "not_found", false},
		{"rail failure", "BC-9921", ContributeRequest{Amount: 10}, errors.New("timeout"), http.StatusBadGateway, "rail_failure", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, nil)
			ts.railErr = tt.railErr

			rec := ts.do(t, http.MethodPost, "/api/cases/"+tt.caseID+"/contributions", "", tt.req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
			assert.Equal(t, tt.charged, ts.railCalls > 0)

			c, err := ts.handler.Ledger.Get("BC-9921")
			require.NoError(t, err)
			assert.Equal(t, ledger.Money(1500), c.Raised, "rejected contribution must not change the case")
			assert.Empty(t, ts.events.types())
		})
	}
}

func TestContribute_OverpaymentReportsRemaining(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9921/contributions", "", ContributeRequest{Amount: 4000})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, int64(3500), *resp.Remaining)
}

func TestContribute_UnknownFieldRejected(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9921/contributions", "", map[string]any{"amount": 10, "status": "PAID"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// REGISTRATION
// =============================================================================

func intakeBody() map[string]any {
	return map[string]any{
		"report_number":  "OB 20/05/2024",
		"detainee_name":  "Peter Otieno",
		"detainee_phone": "0733123456",
		"offence":        "Loitering",
		"target_amount":  3000,
		"arrest_time":    "2024-05-20T08:15",
	}
}

func TestRegisterCase_RequiresToken(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/cases", "", intakeBody())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterCase_WithEligibility(t *testing.T) {
	// GIVEN: an oracle that considers the offence bailable
	ts := setupTestServer(t, stubOracle{eligibility: advisory.Eligibility{
		IsBailable: true, Reason: "Petty offence", LegalReference: "Article 49(1)(h)",
	}})

	// WHEN: a desk officer registers a case
	rec := ts.do(t, http.MethodPost, "/api/cases", tokenFor(t, auth.RoleDeskOfficer), intakeBody())

	// THEN: the case is OPEN, stamped with the officer's station, and the opinion is attached
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[RegisterResponse](t, rec)
	assert.Equal(t, "OPEN", resp.Case.Status)
	assert.Equal(t, "Kilimani Police Station", resp.Case.Station)
	assert.Equal(t, "+254733123456", resp.Case.Detainee.Phone)
	assert.False(t, resp.Eligibility.Fallback)
	assert.Equal(t, "Petty offence", resp.Eligibility.Reason)
	assert.Equal(t, []string{events.EventCaseRegistered}, ts.events.types())

	// AND: it is listed first
	cases := decode[[]CaseDTO](t, ts.do(t, http.MethodGet, "/api/cases", "", nil))
	assert.Equal(t, resp.Case.ID, cases[0].ID)
}

func TestRegisterCase_OracleDownStillRegisters(t *testing.T) {
	ts := setupTestServer(t, stubOracle{err: errors.New("unavailable")})

	rec := ts.do(t, http.MethodPost, "/api/cases", tokenFor(t, auth.RoleDeskOfficer), intakeBody())

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[RegisterResponse](t, rec)
	assert.True(t, resp.Eligibility.Fallback)
	assert.Equal(t, advisory.FallbackEligibility.Reason, resp.Eligibility.Reason)
}

func TestRegisterCase_ValidationFields(t *testing.T) {
	ts := setupTestServer(t, nil)
	body := intakeBody()
	delete(body, "detainee_name")
	body["target_amount"] = 0

	rec := ts.do(t, http.MethodPost, "/api/cases", tokenFor(t, auth.RoleDeskOfficer), body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "detainee_name")
	assert.Contains(t, resp.Fields, "target_amount")
	assert.Len(t, ts.handler.Ledger.List(), 2)
}

func TestCheckEligibility(t *testing.T) {
	ts := setupTestServer(t, stubOracle{eligibility: advisory.Eligibility{IsBailable: false, Reason: "Capital offence"}})

	rec := ts.do(t, http.MethodPost, "/api/eligibility", tokenFor(t, auth.RoleDeskOfficer), EligibilityRequest{Offence: "Robbery with violence"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[advisory.Assessment](t, rec).IsBailable)
}

// =============================================================================
// OFFICER ACTIONS
// =============================================================================

func TestReleaseCase_RoleCheck(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9925/release", tokenFor(t, auth.RoleDeskOfficer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/cases/BC-9925/release", tokenFor(t, auth.RoleOCS), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decode[CaseDTO](t, rec)
	assert.Equal(t, "RELEASED", c.Status)
	assert.Equal(t, "Jane Wekesa (OCS)", c.ReleasedBy)
	assert.NotNil(t, c.ReleasedAt)
	assert.Equal(t, []string{events.EventCaseReleased}, ts.events.types())
}

func TestReleaseCase_NotPaid(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9921/release", tokenFor(t, auth.RoleOCS), nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLockUnlockClose(t *testing.T) {
	ts := setupTestServer(t, nil)
	ocs := tokenFor(t, auth.RoleOCS)

	// Lock: contributions are refused while the registration is corrected.
	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9921/lock", ocs, ActionRequest{Reason: "wrong OB number"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "LOCKED", decode[CaseDTO](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/api/cases/BC-9921/contributions", "", ContributeRequest{Amount: 100})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unlock: back to CONTRIBUTING because money was already raised.
	rec = ts.do(t, http.MethodPost, "/api/cases/BC-9921/unlock", ocs, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONTRIBUTING", decode[CaseDTO](t, rec).Status)

	// Close is terminal.
	rec = ts.do(t, http.MethodPost, "/api/cases/BC-9921/close", ocs, ActionRequest{Reason: "charges dropped"})
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[CaseDTO](t, rec)
	assert.Equal(t, "CLOSED", c.Status)
	assert.Equal(t, "charges dropped", c.ClosedReason)

	rec = ts.do(t, http.MethodPost, "/api/cases/BC-9921/unlock", ocs, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLockCase_DeskOfficerForbidden(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/cases/BC-9921/lock", tokenFor(t, auth.RoleDeskOfficer), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// AUDIT & INTEGRITY
// =============================================================================

func TestListAudit(t *testing.T) {
	// GIVEN: a contribution and a release on top of the scenario import
	ts := setupTestServer(t, nil)
	ts.do(t, http.MethodPost, "/api/cases/BC-9921/contributions", "", ContributeRequest{Amount: 100})
	ts.do(t, http.MethodPost, "/api/cases/BC-9925/release", tokenFor(t, auth.RoleOCS), nil)

	// WHEN: querying the audit log for BC-9921
	rec := ts.do(t, http.MethodGet, "/api/audit?case_id=bc-9921", tokenFor(t, auth.RoleDeskOfficer), nil)

	// THEN: only the contribution is returned
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode[[]ledger.AuditEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.AuditContribution, entries[0].Action)
}

func TestListAudit_BadFilter(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/audit?from=yesterday", tokenFor(t, auth.RoleDeskOfficer), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIntegrity_Healthy(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/integrity", tokenFor(t, auth.RoleOCS), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[IntegrityReport](t, rec)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Problems)
}

func TestRequestIDEchoed(t *testing.T) {
	ts := setupTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()

	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
