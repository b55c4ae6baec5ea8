package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/overrides"
	"github.com/pipe-qc-server/internal/rules"
	"github.com/pipe-qc-server/internal/service"
)

// newTestServer wires a server over temp-file rule tables and a temp
// sqlite override store. Postgres-backed routes are not exercised here.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cache, err := rules.NewCache()
	require.NoError(t, err)

	dir := t.TempDir()
	chemStore := rules.NewStore(domain.ChemicalTable, filepath.Join(dir, "chem.json"), cache, logger)
	mechStore := rules.NewStore(domain.MechanicalTable, filepath.Join(dir, "mech.json"), cache, logger)

	require.NoError(t, chemStore.Save(&domain.RuleTable{
		ID: domain.ChemicalTable,
		Subjects: []domain.RuleSubject{
			{
				Code: "C",
				Ranges: []domain.Range{
					{Min: 3.0, Max: 3.9, Decision: domain.DecisionLastOnly},
					{Min: 3.91, Max: 4.5, Decision: domain.DecisionRejected},
				},
			},
		},
	}))

	_, err = mechStore.ReplaceCriteria(map[string]domain.AcceptanceCriterion{
		"tensile_strength": {Property: "tensile_strength", Condition: ">=420", Unit: "MPa"},
		"hardness":         {Property: "hardness", Condition: "<=230", Unit: "HB"},
	})
	require.NoError(t, err)

	overrideStore, err := overrides.NewSQLiteStore(filepath.Join(dir, "overrides.db"))
	require.NoError(t, err)
	t.Cleanup(func() { overrideStore.Close() })

	cfg := &domain.Config{}
	cfg.Logging.Level = "error"

	return NewServer(Deps{
		Config:          cfg,
		Logger:          logger,
		ChemicalStore:   chemStore,
		MechanicalStore: mechStore,
		ChemicalSvc:     service.NewChemicalDecisionService(chemStore, logger),
		MechanicalSvc:   service.NewMechanicalDecisionService(mechStore, logger),
		OverrideStore:   overrideStore,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestAutoDecisionEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/chemical/auto-decision", map[string]float64{
		"carbon": 4.0,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.DecisionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Recommended)
	assert.Equal(t, domain.DecisionRejected, *result.Recommended)
	assert.Equal(t, 4, result.Severity)
	assert.Equal(t, []string{"C"}, result.WorstSubjects)
}

func TestAutoDecisionEndpointEmptyBody(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/chemical/auto-decision", map[string]float64{})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.DecisionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Nil(t, result.Recommended)
}

func TestAutoDecisionSkipsUnmeasuredFields(t *testing.T) {
	s := newTestServer(t)

	// A null value means "not measured"; it must be skipped, never
	// classified as zero.
	w := doJSON(t, s, http.MethodPost, "/api/v1/chemical/auto-decision", map[string]any{
		"carbon": nil,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.DecisionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Nil(t, result.Recommended)
	assert.Empty(t, result.PerSubject)

	// Measured fields still classify alongside skipped ones.
	w = doJSON(t, s, http.MethodPost, "/api/v1/chemical/auto-decision", map[string]any{
		"carbon":  3.5,
		"silicon": nil,
		"sulfur":  "",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Recommended)
	assert.Equal(t, domain.DecisionLastOnly, *result.Recommended)
	assert.Len(t, result.PerSubject, 1)
}

func TestEvaluateMechanicalEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/mechanical/evaluate", map[string]float64{
		"tensile_strength": 430,
		"hardness":         250,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.MechanicalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictReject, *result.Verdict)
	assert.Equal(t, []string{"hardness"}, result.FailedProperties)
}

func TestEvaluateMechanicalSkipsUnmeasuredFields(t *testing.T) {
	s := newTestServer(t)

	// An unmeasured hardness is skipped; only the supplied property is
	// evaluated, so the test still accepts.
	w := doJSON(t, s, http.MethodPost, "/api/v1/mechanical/evaluate", map[string]any{
		"tensile_strength": 430,
		"hardness":         nil,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.MechanicalResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictAccept, *result.Verdict)
	assert.Empty(t, result.FailedProperties)
	assert.Len(t, result.PerProperty, 1)
}

func TestGetRuleTable(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/v1/rules/chemical", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"C"`)

	w = doJSON(t, s, http.MethodGet, "/api/v1/rules/thermal", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddRuleSubject(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/rules/chemical/subjects", RuleSubjectRequest{
		Code: "Si",
		Ranges: []domain.Range{
			{Min: 1.86, Max: 2.7, Decision: domain.DecisionLastOnly},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Duplicate code conflicts.
	w = doJSON(t, s, http.MethodPost, "/api/v1/rules/chemical/subjects", RuleSubjectRequest{
		Code:   "Si",
		Ranges: []domain.Range{{Min: 0, Max: 1, Decision: domain.DecisionLastOnly}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown decision labels are rejected before persisting.
	w = doJSON(t, s, http.MethodPost, "/api/v1/rules/chemical/subjects", RuleSubjectRequest{
		Code:   "Mg",
		Ranges: []domain.Range{{Min: 0, Max: 1, Decision: domain.Decision("scrap")}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplaceAndRemoveRuleSubject(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPut, "/api/v1/rules/chemical/subjects/C", RangesRequest{
		Ranges: []domain.Range{{Min: 2.9, Max: 4.0, Decision: domain.DecisionFirstAndLast}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPut, "/api/v1/rules/chemical/subjects/Zz", RangesRequest{
		Ranges: []domain.Range{{Min: 0, Max: 1, Decision: domain.DecisionLastOnly}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/v1/rules/chemical/subjects/C", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The engine now has no rule for carbon.
	w = doJSON(t, s, http.MethodPost, "/api/v1/chemical/auto-decision", map[string]float64{
		"carbon": 4.0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var result domain.DecisionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Nil(t, result.Recommended)
}

func TestReplaceCriteria(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPut, "/api/v1/rules/mechanical/criteria", CriteriaRequest{
		Criteria: map[string]domain.AcceptanceCriterion{
			"elongation": {Property: "elongation", Condition: ">=10", Unit: "%"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Unparseable conditions are rejected.
	w = doJSON(t, s, http.MethodPut, "/api/v1/rules/mechanical/criteria", CriteriaRequest{
		Criteria: map[string]domain.AcceptanceCriterion{
			"elongation": {Property: "elongation", Condition: "about 10"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverrideLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/overrides", OverrideRequest{
		LadleID:             "4713012025",
		RecommendedDecision: string(domain.DecisionFullInspection),
		FinalDecision:       string(domain.DecisionFirstAndLast),
		EngineerName:        "Qassim",
		Reason:              "retest passed",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var saved overrides.Override
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.False(t, saved.Agreed)
	assert.NotZero(t, saved.ID)

	w = doJSON(t, s, http.MethodGet, "/api/v1/overrides/ladle/4713012025", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/overrides/ladle/9913012025", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/overrides", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = doJSON(t, s, http.MethodGet, "/api/v1/overrides/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "4713012025")
}

func TestOverrideValidation(t *testing.T) {
	s := newTestServer(t)

	// Malformed ladle identifiers are rejected.
	w := doJSON(t, s, http.MethodPost, "/api/v1/overrides", OverrideRequest{
		LadleID:             "not-a-ladle",
		RecommendedDecision: string(domain.DecisionLastOnly),
		FinalDecision:       string(domain.DecisionLastOnly),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown final decision labels are rejected.
	w = doJSON(t, s, http.MethodPost, "/api/v1/overrides", OverrideRequest{
		LadleID:             "4713012025",
		RecommendedDecision: string(domain.DecisionLastOnly),
		FinalDecision:       "scrap it",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown recommended labels are rejected too; a typo here would
	// corrupt the agreed computation.
	w = doJSON(t, s, http.MethodPost, "/api/v1/overrides", OverrideRequest{
		LadleID:             "4713012025",
		RecommendedDecision: "فحص",
		FinalDecision:       string(domain.DecisionLastOnly),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cache, err := rules.NewCache()
	require.NoError(t, err)

	dir := t.TempDir()
	chemStore := rules.NewStore(domain.ChemicalTable, filepath.Join(dir, "chem.json"), cache, logger)
	mechStore := rules.NewStore(domain.MechanicalTable, filepath.Join(dir, "mech.json"), cache, logger)

	cfg := &domain.Config{}
	cfg.Logging.Level = "error"
	cfg.Server.RateLimit = 1
	cfg.Server.RateBurst = 2

	s := NewServer(Deps{
		Config:          cfg,
		Logger:          logger,
		ChemicalStore:   chemStore,
		MechanicalStore: mechStore,
		ChemicalSvc:     service.NewChemicalDecisionService(chemStore, logger),
		MechanicalSvc:   service.NewMechanicalDecisionService(mechStore, logger),
	})

	// Burst allows the first two, the third is throttled.
	codes := []int{}
	for i := 0; i < 3; i++ {
		w := doJSON(t, s, http.MethodGet, "/health", nil)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "test-trace-1")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "test-trace-1", w.Header().Get("X-Request-ID"))

	// Absent IDs are generated.
	w = doJSON(t, s, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
