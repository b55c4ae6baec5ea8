package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipe-qc-server/internal/domain"
)

func testTable() *domain.RuleTable {
	return &domain.RuleTable{
		ID: domain.ChemicalTable,
		Subjects: []domain.RuleSubject{
			{
				Code: "C",
				Ranges: []domain.Range{
					{Min: 3.0, Max: 3.9, Decision: domain.DecisionLastOnly},
					{Min: 2.8, Max: 2.99, Decision: domain.DecisionFirstAndLast},
					{Min: 3.91, Max: 4.5, Decision: domain.DecisionRejected},
				},
			},
			{
				Code: "Si",
				Ranges: []domain.Range{
					{Min: 1.86, Max: 2.7, Decision: domain.DecisionLastOnly},
					{Min: 1.6, Max: 1.85, Decision: domain.DecisionFullInspection},
				},
			},
			{
				Code: "Mg",
				Ranges: []domain.Range{
					{Min: 0.031, Max: 0.07, Decision: domain.DecisionLastOnly},
				},
			},
		},
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	table := &domain.RuleTable{
		ID: domain.ChemicalTable,
		Subjects: []domain.RuleSubject{
			{
				Code: "C",
				Ranges: []domain.Range{
					{Min: 3.0, Max: 3.9, Decision: domain.DecisionLastOnly},
					{Min: 3.5, Max: 4.0, Decision: domain.DecisionRejected},
				},
			},
		},
	}

	// 3.6 is inside both overlapping ranges; the earlier one wins.
	c, ok := Classify(table, "C", 3.6)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionLastOnly, c.Decision)
	assert.True(t, c.InBestRange)
}

func TestClassifyInclusiveBounds(t *testing.T) {
	table := testTable()

	c, ok := Classify(table, "C", 3.0)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionLastOnly, c.Decision)

	c, ok = Classify(table, "C", 3.9)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionLastOnly, c.Decision)
}

func TestClassifyFallbackToWorst(t *testing.T) {
	table := testTable()

	// 5.0 is outside every configured C range.
	c, ok := Classify(table, "C", 5.0)
	require.True(t, ok)
	assert.Equal(t, domain.WorstDecision, c.Decision)
	assert.Equal(t, 4, c.Severity)
	assert.False(t, c.InBestRange)
}

func TestClassifyUnknownSubject(t *testing.T) {
	_, ok := Classify(testTable(), "Zz", 1.0)
	assert.False(t, ok)
}

func TestAggregateChemicalWorstCase(t *testing.T) {
	table := testTable()

	result := AggregateChemical(table, map[string]float64{
		"carbon":    3.5,  // best
		"silicon":   1.7,  // full inspection, severity 3
		"magnesium": 0.05, // best
	})

	require.NotNil(t, result.Recommended)
	assert.Equal(t, domain.DecisionFullInspection, *result.Recommended)
	assert.Equal(t, 3, result.Severity)
	assert.Equal(t, []string{"Si"}, result.WorstSubjects)
	assert.Len(t, result.PerSubject, 3)
	assert.True(t, result.PerSubject["C"].InBestRange)
	assert.False(t, result.PerSubject["Si"].InBestRange)
}

func TestAggregateChemicalTies(t *testing.T) {
	table := testTable()

	// Both C and Si out of range: both fall back to the worst label.
	result := AggregateChemical(table, map[string]float64{
		"carbon":  9.0,
		"silicon": 9.0,
	})

	require.NotNil(t, result.Recommended)
	assert.Equal(t, domain.DecisionRejected, *result.Recommended)
	assert.ElementsMatch(t, []string{"C", "Si"}, result.WorstSubjects)
}

func TestAggregateChemicalDeterministic(t *testing.T) {
	table := testTable()
	values := map[string]float64{
		"carbon":    9.0,
		"silicon":   9.0,
		"magnesium": 9.0,
	}

	first := AggregateChemical(table, values)
	for i := 0; i < 20; i++ {
		again := AggregateChemical(table, values)
		assert.Equal(t, first.WorstSubjects, again.WorstSubjects)
		assert.Equal(t, first.Severity, again.Severity)
	}
}

func TestAggregateChemicalIgnoresUnknownFields(t *testing.T) {
	table := testTable()

	result := AggregateChemical(table, map[string]float64{
		"carbon":       3.5,
		"temperature":  1500, // not a chemistry field
		"nodule_count": 120,  // mechanical field, no element mapping
	})

	require.NotNil(t, result.Recommended)
	assert.Equal(t, domain.DecisionLastOnly, *result.Recommended)
	assert.Len(t, result.PerSubject, 1)
}

func TestAggregateChemicalEmptyInput(t *testing.T) {
	result := AggregateChemical(testTable(), map[string]float64{})

	assert.Nil(t, result.Recommended)
	assert.Equal(t, 0, result.Severity)
	assert.Empty(t, result.PerSubject)
	assert.Empty(t, result.WorstSubjects)
}

func TestAggregateChemicalAllSubjectsAbsent(t *testing.T) {
	// A table without the supplied elements yields no recommendation.
	empty := &domain.RuleTable{ID: domain.ChemicalTable}

	result := AggregateChemical(empty, map[string]float64{"carbon": 3.5})
	assert.Nil(t, result.Recommended)
	assert.Empty(t, result.PerSubject)
}

func TestAggregateChemicalUnknownLabelNeverRecommends(t *testing.T) {
	table := &domain.RuleTable{
		ID: domain.ChemicalTable,
		Subjects: []domain.RuleSubject{
			{
				Code: "C",
				Ranges: []domain.Range{
					{Min: 0, Max: 10, Decision: domain.Decision("typo")},
				},
			},
		},
	}

	// A typo label ranks severity 0 and must not force a recommendation.
	result := AggregateChemical(table, map[string]float64{"carbon": 3.5})
	assert.Nil(t, result.Recommended)
	assert.Equal(t, 0, result.Severity)
	assert.Len(t, result.PerSubject, 1)
	assert.Empty(t, result.WorstSubjects)
}

func TestFieldForElement(t *testing.T) {
	field, ok := FieldForElement("C")
	require.True(t, ok)
	assert.Equal(t, "carbon", field)

	field, ok = FieldForElement("MgE")
	require.True(t, ok)
	assert.Equal(t, "magnesium_equivalent", field)

	_, ok = FieldForElement("Zz")
	assert.False(t, ok)
}
