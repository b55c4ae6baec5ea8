package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestCalculateEquivalents(t *testing.T) {
	a := &ChemicalAnalysis{
		Carbon:     f(3.5),
		Silicon:    f(2.1),
		Phosphorus: f(0.04),
		Chromium:   f(0.05),
		Copper:     f(0.08),
		Manganese:  f(0.3),
		Magnesium:  f(0.045),
		Sulfur:     f(0.012),
	}
	a.CalculateEquivalents()

	require.NotNil(t, a.CarbonEquivalent)
	assert.InDelta(t, 3.5+2.1/3+0.04/2, *a.CarbonEquivalent, 1e-9)

	require.NotNil(t, a.ManganeseEquivalent)
	assert.InDelta(t, 3*0.05+0.08+0.3+0.04, *a.ManganeseEquivalent, 1e-9)

	require.NotNil(t, a.MagnesiumEquivalent)
	assert.InDelta(t, 0.045-0.012, *a.MagnesiumEquivalent, 1e-9)
}

func TestCalculateEquivalentsMissingInputs(t *testing.T) {
	a := &ChemicalAnalysis{}
	a.CalculateEquivalents()

	assert.Nil(t, a.CarbonEquivalent)
	assert.Nil(t, a.ManganeseEquivalent)
	assert.Nil(t, a.MagnesiumEquivalent)

	// Magnesium alone is enough for MgE; sulfur defaults to zero.
	a = &ChemicalAnalysis{Magnesium: f(0.05)}
	a.CalculateEquivalents()
	require.NotNil(t, a.MagnesiumEquivalent)
	assert.InDelta(t, 0.05, *a.MagnesiumEquivalent, 1e-9)
}

func TestElementValues(t *testing.T) {
	a := &ChemicalAnalysis{
		Carbon:  f(3.5),
		Silicon: f(2.1),
	}
	a.CalculateEquivalents()

	values := a.ElementValues()
	assert.Equal(t, 3.5, values["C"])
	assert.Equal(t, 2.1, values["Si"])
	assert.Contains(t, values, "CE")

	// Unmeasured elements are omitted, not zero.
	assert.NotContains(t, values, "Mg")
	assert.NotContains(t, values, "Pb")
}

func TestFieldValues(t *testing.T) {
	a := &ChemicalAnalysis{Carbon: f(3.5), Sulfur: f(0.01)}
	values := a.FieldValues()

	assert.Equal(t, 3.5, values["carbon"])
	assert.Equal(t, 0.01, values["sulfur"])
	assert.NotContains(t, values, "silicon")
}

func TestElementSpecificationCheckValue(t *testing.T) {
	spec := &ElementSpecification{Code: "C", MinValue: f(3.0), MaxValue: f(3.9)}

	ok, _ := spec.CheckValue(3.5)
	assert.True(t, ok)

	ok, msg := spec.CheckValue(2.9)
	assert.False(t, ok)
	assert.Equal(t, "below minimum", msg)

	ok, msg = spec.CheckValue(4.0)
	assert.False(t, ok)
	assert.Equal(t, "above maximum", msg)

	// Unbounded sides always pass.
	open := &ElementSpecification{Code: "MgE", MinValue: f(0.023)}
	ok, _ = open.CheckValue(99)
	assert.True(t, ok)
}
