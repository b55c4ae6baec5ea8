package domain

import (
	"time"

	"github.com/google/uuid"
)

// MechanicalTest is one tensile/microstructure test record for a pipe
// sample, linked to its source ladle through LadleID.
type MechanicalTest struct {
	ID         uuid.UUID `json:"id"`
	TestDate   time.Time `json:"test_date"`
	TestNumber int       `json:"test_number"`
	Diameter   int       `json:"diameter"`
	Code       string    `json:"code,omitempty"`
	PipeNo     *int      `json:"pipe_no,omitempty"`
	LadleID    string    `json:"ladle_id,omitempty"`

	// Sample measurements.
	SampleThickness *float64 `json:"sample_thickness,omitempty"`
	D1              *float64 `json:"d1,omitempty"`
	D2              *float64 `json:"d2,omitempty"`
	D3              *float64 `json:"d3,omitempty"`
	AvgDimension    *float64 `json:"avg_dimension,omitempty"`
	OriginalLength  *float64 `json:"original_length,omitempty"`
	FinalLength     *float64 `json:"final_length,omitempty"`
	AreaDSquared    *float64 `json:"area_d_squared,omitempty"`

	// Test results.
	ForceKgf        *float64 `json:"force_kgf,omitempty"`
	TensileStrength *float64 `json:"tensile_strength,omitempty"`
	Elongation      *float64 `json:"elongation,omitempty"`

	// Microstructure.
	Microstructure    string   `json:"microstructure,omitempty"`
	NodularityPercent *float64 `json:"nodularity_percent,omitempty"`
	NoduleCount       *int     `json:"nodule_count,omitempty"`
	Ferrite           *float64 `json:"ferrite,omitempty"`
	Hardness          *float64 `json:"hardness,omitempty"`
	Carbides          *float64 `json:"carbides,omitempty"`

	// Quality control.
	Shift      int     `json:"shift,omitempty"`
	TesterName string  `json:"tester_name,omitempty"`
	Verdict    Verdict `json:"verdict,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Comments   string  `json:"comments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalculateDerivedValues fills the derived fields from raw measurements:
// average dimension from the three diameter readings, elongation percent
// from original/final lengths, tensile strength as force over area.
// Fields with missing inputs are left untouched.
func (t *MechanicalTest) CalculateDerivedValues() {
	if t.D1 != nil && t.D2 != nil && t.D3 != nil {
		avg := (*t.D1 + *t.D2 + *t.D3) / 3
		t.AvgDimension = &avg
	}

	if t.OriginalLength != nil && t.FinalLength != nil && *t.OriginalLength > 0 {
		e := (*t.FinalLength - *t.OriginalLength) / *t.OriginalLength * 100
		t.Elongation = &e
	}

	if t.ForceKgf != nil && t.AreaDSquared != nil && *t.AreaDSquared > 0 {
		sigma := *t.ForceKgf / *t.AreaDSquared
		t.TensileStrength = &sigma
	}
}

// PropertyValues returns the measured property values keyed by
// caller-facing field name, the form the mechanical evaluator accepts.
func (t *MechanicalTest) PropertyValues() map[string]float64 {
	values := make(map[string]float64)
	add := func(field string, v *float64) {
		if v != nil {
			values[field] = *v
		}
	}
	add("tensile_strength", t.TensileStrength)
	add("elongation", t.Elongation)
	add("nodularity_percent", t.NodularityPercent)
	add("ferrite", t.Ferrite)
	add("hardness", t.Hardness)
	add("carbides", t.Carbides)
	if t.NoduleCount != nil {
		values["nodule_count"] = float64(*t.NoduleCount)
	}
	return values
}
