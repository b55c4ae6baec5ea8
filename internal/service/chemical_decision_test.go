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

func newChemicalService(t *testing.T) (*ChemicalDecisionService, *rules.Store) {
	t.Helper()

	cache, err := rules.NewCache()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := rules.NewStore(domain.ChemicalTable, filepath.Join(t.TempDir(), "chem.json"), cache, logger)
	return NewChemicalDecisionService(store, logger), store
}

func TestChemicalServiceAutoDecision(t *testing.T) {
	svc, store := newChemicalService(t)
	require.NoError(t, store.Save(testTable()))

	result := svc.AutoDecision(map[string]float64{
		"carbon":  3.5,
		"silicon": 2.0,
	})

	require.NotNil(t, result.Recommended)
	assert.Equal(t, domain.DecisionLastOnly, *result.Recommended)
	assert.Equal(t, 1, result.Severity)
}

func TestChemicalServiceAutoDecisionMissingTable(t *testing.T) {
	svc, _ := newChemicalService(t)

	// No document on disk: the empty table classifies nothing.
	result := svc.AutoDecision(map[string]float64{"carbon": 3.5})
	assert.Nil(t, result.Recommended)
	assert.Empty(t, result.PerSubject)
}

func TestChemicalServiceAutoDecisionFromForm(t *testing.T) {
	svc, store := newChemicalService(t)
	require.NoError(t, store.Save(testTable()))

	result := svc.AutoDecisionFromForm(map[string]string{
		"carbon":  "3.5",
		"silicon": "",        // blank, skipped
		"lead":    "unknown", // non-numeric, skipped
	})

	require.NotNil(t, result.Recommended)
	assert.Equal(t, domain.DecisionLastOnly, *result.Recommended)
	assert.Len(t, result.PerSubject, 1)
}

func TestChemicalServiceClassifyElement(t *testing.T) {
	svc, store := newChemicalService(t)
	require.NoError(t, store.Save(testTable()))

	c, ok := svc.ClassifyElement("C", 4.0)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionRejected, c.Decision)

	_, ok = svc.ClassifyElement("Zz", 1.0)
	assert.False(t, ok)
}
