package service

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/rules"
)

// propertyCriteriaKey maps caller-facing mechanical field names to the
// short codes keying the acceptance-criteria map in the rule document.
var propertyCriteriaKey = map[string]string{
	"tensile_strength":   "tensile_strength",
	"elongation":         "elongation",
	"nodularity_percent": "nd",
	"ferrite":            "ferrite",
	"nodule_count":       "nc",
	"carbides":           "carbides",
	"hardness":           "hardness",
}

// EvaluateAcceptance runs the all-or-nothing reduction: every supplied
// property with a parseable criterion is checked against its single
// threshold condition, and the verdict is ACCEPT only if all of them
// pass. Any single failure forces REJECT. This is deliberately stricter
// than the chemical table's worst-case reduction. Properties without a
// known criterion, and criteria whose condition cannot be parsed, are
// skipped rather than failed. Verdict is nil when nothing was evaluated.
func EvaluateAcceptance(criteria map[string]domain.AcceptanceCriterion, values map[string]float64) *domain.MechanicalResult {
	result := &domain.MechanicalResult{
		PerProperty:      make(map[string]domain.PropertyEvaluation),
		FailedProperties: []string{},
	}

	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	evaluated := 0
	for _, field := range fields {
		key, ok := propertyCriteriaKey[field]
		if !ok {
			continue
		}
		criterion, ok := criteria[key]
		if !ok {
			continue
		}
		condition, err := domain.ParseCondition(criterion.Condition)
		if err != nil {
			continue
		}

		passed := condition.Evaluate(values[field])
		result.PerProperty[field] = domain.PropertyEvaluation{
			Value:     values[field],
			Condition: criterion.Condition,
			Unit:      criterion.Unit,
			Passed:    passed,
		}
		if !passed {
			result.FailedProperties = append(result.FailedProperties, field)
		}
		evaluated++
	}

	if evaluated == 0 {
		return result
	}

	verdict := domain.VerdictAccept
	if len(result.FailedProperties) > 0 {
		verdict = domain.VerdictReject
	}
	result.Verdict = &verdict
	return result
}

// MechanicalDecisionService evaluates mechanical test results against the
// acceptance criteria stored beside the mechanical rule table.
type MechanicalDecisionService struct {
	store *rules.Store
	log   *logrus.Logger
}

// NewMechanicalDecisionService creates the service over a mechanical rule store.
func NewMechanicalDecisionService(store *rules.Store, logger *logrus.Logger) *MechanicalDecisionService {
	return &MechanicalDecisionService{
		store: store,
		log:   logger,
	}
}

// Evaluate loads the current criteria and runs the all-or-nothing
// reduction over the supplied property values.
func (s *MechanicalDecisionService) Evaluate(values map[string]float64) *domain.MechanicalResult {
	table, err := s.store.Load()
	if err != nil {
		s.log.WithError(err).Warn("Mechanical rule table unavailable, no verdict possible")
	}

	result := EvaluateAcceptance(table.Criteria, values)

	s.log.WithFields(logrus.Fields{
		"properties_supplied": len(values),
		"properties_checked":  len(result.PerProperty),
		"failed":              result.FailedProperties,
	}).Debug("Mechanical acceptance evaluated")

	return result
}

// ValidateProperty checks a single property value against its acceptance
// criterion, for field-level form validation. The second return is false
// when no criterion governs the property, which callers treat as valid.
func (s *MechanicalDecisionService) ValidateProperty(field string, value float64) (domain.PropertyEvaluation, bool) {
	table, err := s.store.Load()
	if err != nil {
		return domain.PropertyEvaluation{}, false
	}

	key, ok := propertyCriteriaKey[field]
	if !ok {
		return domain.PropertyEvaluation{}, false
	}
	criterion, ok := table.Criteria[key]
	if !ok {
		return domain.PropertyEvaluation{}, false
	}
	condition, err := domain.ParseCondition(criterion.Condition)
	if err != nil {
		return domain.PropertyEvaluation{}, false
	}

	return domain.PropertyEvaluation{
		Value:     value,
		Condition: criterion.Condition,
		Unit:      criterion.Unit,
		Passed:    condition.Evaluate(value),
	}, true
}
