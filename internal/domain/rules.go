package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TableID identifies one of the two independent rule tables.
type TableID string

const (
	ChemicalTable   TableID = "chemical"
	MechanicalTable TableID = "mechanical"
)

// IsValid reports whether the table ID names a known rule table.
func (t TableID) IsValid() bool {
	return t == ChemicalTable || t == MechanicalTable
}

// Range maps an inclusive [Min, Max] value interval to a decision label.
// Ranges may overlap or leave gaps; classification is first-match in
// stored order and a value outside every range falls back to the worst
// label, so exhaustive coverage is not enforced.
type Range struct {
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Decision Decision `json:"decision"`
}

// Contains reports whether v falls inside the inclusive range.
func (r Range) Contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

// RuleSubject is one governed element or property: its code, display
// names, unit, and the ordered range list that classifies its values.
type RuleSubject struct {
	Code   string  `json:"code"`
	Name   string  `json:"name,omitempty"`
	NameAr string  `json:"name_ar,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Ranges []Range `json:"ranges"`
}

// AcceptanceCriterion is a single-threshold pass/fail condition for a
// mechanical property, e.g. Condition ">=420". It lives beside the ranged
// rules in the mechanical table document but drives a different, stricter
// reduction: any failed criterion rejects the whole test.
type AcceptanceCriterion struct {
	Property  string `json:"property"`
	Condition string `json:"condition"`
	Unit      string `json:"unit,omitempty"`
}

// RuleTable is an ordered list of rule subjects plus, for the mechanical
// table, the acceptance-criteria map keyed by short codes. Insertion order
// is display order and must round-trip through persistence unchanged.
type RuleTable struct {
	ID       TableID                        `json:"-"`
	Subjects []RuleSubject                  `json:"rules"`
	Criteria map[string]AcceptanceCriterion `json:"acceptance_criteria,omitempty"`
}

// Subject returns the subject with the given code, or ErrNotFound.
func (t *RuleTable) Subject(code string) (*RuleSubject, error) {
	for i := range t.Subjects {
		if t.Subjects[i].Code == code {
			return &t.Subjects[i], nil
		}
	}
	return nil, fmt.Errorf("subject %q: %w", code, ErrNotFound)
}

// HasSubject reports whether a subject with the given code exists.
func (t *RuleTable) HasSubject(code string) bool {
	_, err := t.Subject(code)
	return err == nil
}

// ConditionOp is a comparison operator in an acceptance condition.
type ConditionOp string

const (
	OpGreaterOrEqual ConditionOp = ">="
	OpGreater        ConditionOp = ">"
	OpLessOrEqual    ConditionOp = "<="
	OpLess           ConditionOp = "<"
)

// Condition is a parsed acceptance criterion condition.
type Condition struct {
	Op        ConditionOp
	Threshold float64
}

// ParseCondition parses a condition string such as ">=420" or "<= 230".
// The two-character operators must be tried before their one-character
// prefixes.
func ParseCondition(s string) (Condition, error) {
	trimmed := strings.TrimSpace(s)
	for _, op := range []ConditionOp{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess} {
		if strings.HasPrefix(trimmed, string(op)) {
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, string(op)))
			threshold, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Condition{}, fmt.Errorf("condition threshold %q: %w", raw, ErrInvalidFormat)
			}
			return Condition{Op: op, Threshold: threshold}, nil
		}
	}
	return Condition{}, fmt.Errorf("condition %q: %w", s, ErrInvalidFormat)
}

// Evaluate applies the condition to a measured value.
func (c Condition) Evaluate(value float64) bool {
	switch c.Op {
	case OpGreaterOrEqual:
		return value >= c.Threshold
	case OpGreater:
		return value > c.Threshold
	case OpLessOrEqual:
		return value <= c.Threshold
	case OpLess:
		return value < c.Threshold
	}
	return false
}

// String renders the condition back to its document form.
func (c Condition) String() string {
	return fmt.Sprintf("%s%s", c.Op, strconv.FormatFloat(c.Threshold, 'f', -1, 64))
}
