package service

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/rules"
)

// elementFieldMap translates caller-facing form field names to element
// codes in the chemical rule table. Fields with no entry here are ignored
// by the aggregator without error.
var elementFieldMap = map[string]string{
	"carbon":               "C",
	"silicon":              "Si",
	"manganese":            "Mn",
	"magnesium":            "Mg",
	"sulfur":               "S",
	"chromium":             "Cr",
	"copper":               "Cu",
	"aluminum":             "Al",
	"phosphorus":           "P",
	"lead":                 "Pb",
	"titanium":             "Ti",
	"tin":                  "Sn",
	"carbon_equivalent":    "CE",
	"manganese_equivalent": "MnE",
	"magnesium_equivalent": "MgE",
}

// elementCodeToField is the reverse of elementFieldMap.
var elementCodeToField = func() map[string]string {
	m := make(map[string]string, len(elementFieldMap))
	for field, code := range elementFieldMap {
		m[code] = field
	}
	return m
}()

// ElementFields returns the known caller-facing field names.
func ElementFields() []string {
	fields := make([]string, 0, len(elementFieldMap))
	for field := range elementFieldMap {
		fields = append(fields, field)
	}
	return fields
}

// FieldForElement returns the caller-facing field name for an element code.
func FieldForElement(code string) (string, bool) {
	field, ok := elementCodeToField[code]
	return field, ok
}

// AggregateChemical applies the range classifier to every resolvable
// field and reduces to the single worst decision. Pure over its inputs:
// identical table contents and values always yield identical output.
func AggregateChemical(table *domain.RuleTable, values map[string]float64) *domain.DecisionResult {
	return aggregate(table, values, func(field string) (string, bool) {
		code, ok := elementFieldMap[field]
		return code, ok
	})
}

// ChemicalDecisionService computes recommended inspection decisions for
// ladle chemistry against the chemical rule table.
type ChemicalDecisionService struct {
	store *rules.Store
	log   *logrus.Logger
}

// NewChemicalDecisionService creates the service over a chemical rule store.
func NewChemicalDecisionService(store *rules.Store, logger *logrus.Logger) *ChemicalDecisionService {
	return &ChemicalDecisionService{
		store: store,
		log:   logger,
	}
}

// AutoDecision loads the current rule table and aggregates the supplied
// field values. A table that fails to load aggregates as empty: every
// field becomes not applicable and the recommendation is nil, which the
// caller renders as "no recommendation" rather than an error.
func (s *ChemicalDecisionService) AutoDecision(values map[string]float64) *domain.DecisionResult {
	table, err := s.store.Load()
	if err != nil {
		s.log.WithError(err).Warn("Chemical rule table unavailable, no recommendation possible")
	}

	result := AggregateChemical(table, values)

	s.log.WithFields(logrus.Fields{
		"fields_supplied": len(values),
		"fields_resolved": len(result.PerSubject),
		"severity":        result.Severity,
		"worst_subjects":  result.WorstSubjects,
	}).Debug("Chemical auto decision computed")

	return result
}

// AutoDecisionFromForm is the permissive variant for callers that pass
// raw form values: blanks and non-numeric entries are silently skipped
// per field, never fatal, so a partially filled form still produces a
// partial decision.
func (s *ChemicalDecisionService) AutoDecisionFromForm(raw map[string]string) *domain.DecisionResult {
	values := make(map[string]float64, len(raw))
	for field, text := range raw {
		if text == "" {
			continue
		}
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			continue
		}
		values[field] = value
	}
	return s.AutoDecision(values)
}

// ClassifyElement classifies a single element value. The second return is
// false when the element is not governed by the table.
func (s *ChemicalDecisionService) ClassifyElement(code string, value float64) (Classification, bool) {
	table, err := s.store.Load()
	if err != nil {
		return Classification{}, false
	}
	return Classify(table, code, value)
}
