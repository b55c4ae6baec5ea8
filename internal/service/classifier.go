// Package service implements the rule-based decision engine: range
// classification over editable rule tables, worst-case aggregation for
// ladle chemistry, and all-or-nothing acceptance evaluation for
// mechanical tests.
package service

import (
	"sort"

	"github.com/pipe-qc-server/internal/domain"
)

// Classification is the outcome of classifying one value against one
// subject's ranges.
type Classification struct {
	Decision    domain.Decision
	Severity    int
	InBestRange bool
}

// Classify finds the decision for a value of one subject. Ranges are
// scanned in stored order and the first match wins; callers control tie
// resolution on overlapping ranges through edit order. A value outside
// every range classifies as the worst-case label. The second return is
// false when the subject is absent from the table, in which case the
// caller must skip the field rather than treat it as a failure.
func Classify(table *domain.RuleTable, subjectCode string, value float64) (Classification, bool) {
	subject, err := table.Subject(subjectCode)
	if err != nil {
		return Classification{}, false
	}

	for _, r := range subject.Ranges {
		if r.Contains(value) {
			return Classification{
				Decision:    r.Decision,
				Severity:    r.Decision.Severity(),
				InBestRange: r.Decision == domain.BestDecision,
			}, true
		}
	}

	return Classification{
		Decision:    domain.WorstDecision,
		Severity:    domain.WorstDecision.Severity(),
		InBestRange: false,
	}, true
}

// aggregate runs the worst-case reduction over resolvable fields. The
// resolve function maps a caller-facing field name to a subject code;
// fields it rejects are ignored without error. Fields are visited in
// sorted order so identical inputs always produce identical output,
// including the order of WorstSubjects.
func aggregate(table *domain.RuleTable, values map[string]float64, resolve func(string) (string, bool)) *domain.DecisionResult {
	result := &domain.DecisionResult{
		PerSubject:    make(map[string]domain.SubjectDecision),
		WorstSubjects: []string{},
	}

	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var worst *domain.Decision
	for _, field := range fields {
		code, ok := resolve(field)
		if !ok {
			continue
		}

		classification, ok := Classify(table, code, values[field])
		if !ok {
			continue
		}

		result.PerSubject[code] = domain.SubjectDecision{
			Value:       values[field],
			Decision:    classification.Decision,
			Severity:    classification.Severity,
			InBestRange: classification.InBestRange,
		}

		switch {
		case classification.Severity > result.Severity:
			result.Severity = classification.Severity
			decision := classification.Decision
			worst = &decision
			result.WorstSubjects = []string{code}
		case classification.Severity == result.Severity && worst != nil:
			result.WorstSubjects = append(result.WorstSubjects, code)
		}
	}

	result.Recommended = worst
	return result
}
