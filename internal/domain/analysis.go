package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChemicalAnalysis is one ladle analysis record. Element fields are
// percentages; nil means the element was not measured, which the decision
// engine skips rather than treating as a failure.
type ChemicalAnalysis struct {
	ID       uuid.UUID `json:"id"`
	TestDate time.Time `json:"test_date"`
	Furnace  string    `json:"furnace"`
	LadleNo  int       `json:"ladle_no"`
	LadleID  string    `json:"ladle_id"`

	Carbon     *float64 `json:"carbon,omitempty"`
	Silicon    *float64 `json:"silicon,omitempty"`
	Magnesium  *float64 `json:"magnesium,omitempty"`
	Copper     *float64 `json:"copper,omitempty"`
	Chromium   *float64 `json:"chromium,omitempty"`
	Sulfur     *float64 `json:"sulfur,omitempty"`
	Manganese  *float64 `json:"manganese,omitempty"`
	Phosphorus *float64 `json:"phosphorus,omitempty"`
	Lead       *float64 `json:"lead,omitempty"`
	Aluminum   *float64 `json:"aluminum,omitempty"`

	// Derived equivalents, recomputed from the element fields on every save.
	CarbonEquivalent    *float64 `json:"carbon_equivalent,omitempty"`
	ManganeseEquivalent *float64 `json:"manganese_equivalent,omitempty"`
	MagnesiumEquivalent *float64 `json:"magnesium_equivalent,omitempty"`

	Decision      Decision `json:"decision,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	HasDefect     bool     `json:"has_defect"`
	EngineerNotes string   `json:"engineer_notes,omitempty"`
	Notes         string   `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalculateEquivalents recomputes CE, MnE and MgE from the measured
// elements, matching the plant formulas:
//
//	CE  = C + Si/3 + P/2
//	MnE = 3*Cr + Cu + Mn + P
//	MgE = Mg - S
//
// An equivalent stays nil when none of its inputs were measured.
func (a *ChemicalAnalysis) CalculateEquivalents() {
	c := deref(a.Carbon)
	si := deref(a.Silicon)
	p := deref(a.Phosphorus)
	if c > 0 || si > 0 || p > 0 {
		ce := c + si/3 + p/2
		a.CarbonEquivalent = &ce
	}

	cr := deref(a.Chromium)
	cu := deref(a.Copper)
	mn := deref(a.Manganese)
	if cr > 0 || cu > 0 || mn > 0 || p > 0 {
		mne := 3*cr + cu + mn + p
		a.ManganeseEquivalent = &mne
	}

	mg := deref(a.Magnesium)
	s := deref(a.Sulfur)
	if mg > 0 {
		mge := mg - s
		a.MagnesiumEquivalent = &mge
	}
}

// ElementValues returns the measured values keyed by element code,
// including derived equivalents. Unmeasured elements are omitted.
func (a *ChemicalAnalysis) ElementValues() map[string]float64 {
	values := make(map[string]float64)
	add := func(code string, v *float64) {
		if v != nil {
			values[code] = *v
		}
	}
	add("C", a.Carbon)
	add("Si", a.Silicon)
	add("Mg", a.Magnesium)
	add("Cu", a.Copper)
	add("Cr", a.Chromium)
	add("S", a.Sulfur)
	add("Mn", a.Manganese)
	add("P", a.Phosphorus)
	add("Pb", a.Lead)
	add("Al", a.Aluminum)
	add("CE", a.CarbonEquivalent)
	add("MnE", a.ManganeseEquivalent)
	add("MgE", a.MagnesiumEquivalent)
	return values
}

// FieldValues returns the measured values keyed by caller-facing field
// name, the form the decision aggregator accepts.
func (a *ChemicalAnalysis) FieldValues() map[string]float64 {
	values := make(map[string]float64)
	add := func(field string, v *float64) {
		if v != nil {
			values[field] = *v
		}
	}
	add("carbon", a.Carbon)
	add("silicon", a.Silicon)
	add("magnesium", a.Magnesium)
	add("copper", a.Copper)
	add("chromium", a.Chromium)
	add("sulfur", a.Sulfur)
	add("manganese", a.Manganese)
	add("phosphorus", a.Phosphorus)
	add("lead", a.Lead)
	add("aluminum", a.Aluminum)
	add("carbon_equivalent", a.CarbonEquivalent)
	add("manganese_equivalent", a.ManganeseEquivalent)
	add("magnesium_equivalent", a.MagnesiumEquivalent)
	return values
}

// ElementSpecification is a per-element min/max limit used for the
// has-defect flag. It is independent from the ranged rule tables: a value
// can be inside its specification yet still draw a strict inspection
// decision, and vice versa.
type ElementSpecification struct {
	Code     string   `json:"code"`
	Name     string   `json:"name,omitempty"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// CheckValue reports whether the value is within specification, with a
// short caller-facing message. A nil bound is unbounded on that side.
func (s *ElementSpecification) CheckValue(value float64) (bool, string) {
	if s.MinValue != nil && value < *s.MinValue {
		return false, "below minimum"
	}
	if s.MaxValue != nil && value > *s.MaxValue {
		return false, "above maximum"
	}
	return true, "OK"
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
