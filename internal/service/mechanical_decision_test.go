package service

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/rules"
)

func testCriteria() map[string]domain.AcceptanceCriterion {
	return map[string]domain.AcceptanceCriterion{
		"tensile_strength": {Property: "tensile_strength", Condition: ">=420", Unit: "MPa"},
		"elongation":       {Property: "elongation", Condition: ">=10", Unit: "%"},
		"nd":               {Property: "nodularity_percent", Condition: ">=80", Unit: "%"},
		"nc":               {Property: "nodule_count", Condition: ">=100", Unit: "1/mm2"},
		"hardness":         {Property: "hardness", Condition: "<=230", Unit: "HB"},
	}
}

func TestEvaluateAcceptanceAllPass(t *testing.T) {
	result := EvaluateAcceptance(testCriteria(), map[string]float64{
		"tensile_strength":   430,
		"elongation":         12,
		"nodularity_percent": 85,
	})

	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictAccept, *result.Verdict)
	assert.True(t, result.Passed())
	assert.Empty(t, result.FailedProperties)
	assert.Len(t, result.PerProperty, 3)
}

func TestEvaluateAcceptanceSingleFailureRejects(t *testing.T) {
	result := EvaluateAcceptance(testCriteria(), map[string]float64{
		"tensile_strength":   430,
		"elongation":         9.5, // below threshold
		"nodularity_percent": 85,
	})

	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictReject, *result.Verdict)
	assert.Equal(t, []string{"elongation"}, result.FailedProperties)
	assert.False(t, result.PerProperty["elongation"].Passed)
	assert.True(t, result.PerProperty["tensile_strength"].Passed)
}

func TestEvaluateAcceptanceBoundaryValues(t *testing.T) {
	// Thresholds themselves satisfy >= and <= conditions.
	result := EvaluateAcceptance(testCriteria(), map[string]float64{
		"tensile_strength": 420,
		"hardness":         230,
	})

	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictAccept, *result.Verdict)
}

func TestEvaluateAcceptanceShortCodeMapping(t *testing.T) {
	// nodularity_percent and nodule_count resolve to the nd/nc keys.
	result := EvaluateAcceptance(testCriteria(), map[string]float64{
		"nodularity_percent": 75,
		"nodule_count":       120,
	})

	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictReject, *result.Verdict)
	assert.Equal(t, []string{"nodularity_percent"}, result.FailedProperties)
}

func TestEvaluateAcceptanceSkipsUnknownProperties(t *testing.T) {
	result := EvaluateAcceptance(testCriteria(), map[string]float64{
		"tensile_strength": 430,
		"surface_finish":   3, // no criterion
	})

	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictAccept, *result.Verdict)
	assert.Len(t, result.PerProperty, 1)
}

func TestEvaluateAcceptanceSkipsUnparseableConditions(t *testing.T) {
	criteria := map[string]domain.AcceptanceCriterion{
		"tensile_strength": {Property: "tensile_strength", Condition: "around 420"},
	}

	result := EvaluateAcceptance(criteria, map[string]float64{"tensile_strength": 100})

	// The only criterion was unparseable, so nothing was evaluated.
	assert.Nil(t, result.Verdict)
	assert.Empty(t, result.PerProperty)
}

func TestEvaluateAcceptanceEmptyInput(t *testing.T) {
	result := EvaluateAcceptance(testCriteria(), map[string]float64{})

	assert.Nil(t, result.Verdict)
	assert.False(t, result.Passed())
	assert.Empty(t, result.PerProperty)
	assert.Empty(t, result.FailedProperties)
}

func newMechanicalService(t *testing.T) (*MechanicalDecisionService, *rules.Store) {
	t.Helper()

	cache, err := rules.NewCache()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := rules.NewStore(domain.MechanicalTable, filepath.Join(t.TempDir(), "mech.json"), cache, logger)
	return NewMechanicalDecisionService(store, logger), store
}

func TestMechanicalServiceEvaluate(t *testing.T) {
	svc, store := newMechanicalService(t)
	_, err := store.ReplaceCriteria(testCriteria())
	require.NoError(t, err)

	result := svc.Evaluate(map[string]float64{
		"tensile_strength": 430,
		"hardness":         250,
	})

	require.NotNil(t, result.Verdict)
	assert.Equal(t, domain.VerdictReject, *result.Verdict)
	assert.Equal(t, []string{"hardness"}, result.FailedProperties)
}

func TestMechanicalServiceEvaluateMissingTable(t *testing.T) {
	svc, _ := newMechanicalService(t)

	// No document on disk: everything evaluates as unknown, no verdict.
	result := svc.Evaluate(map[string]float64{"tensile_strength": 430})
	assert.Nil(t, result.Verdict)
}

func TestMechanicalServiceValidateProperty(t *testing.T) {
	svc, store := newMechanicalService(t)
	_, err := store.ReplaceCriteria(testCriteria())
	require.NoError(t, err)

	eval, ok := svc.ValidateProperty("hardness", 200)
	require.True(t, ok)
	assert.True(t, eval.Passed)
	assert.Equal(t, "<=230", eval.Condition)

	eval, ok = svc.ValidateProperty("hardness", 231)
	require.True(t, ok)
	assert.False(t, eval.Passed)

	_, ok = svc.ValidateProperty("surface_finish", 1)
	assert.False(t, ok)
}
