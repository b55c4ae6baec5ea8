// Package domain contains the core business entities for ductile-iron pipe
// quality control: ladle chemistry decisions, mechanical test verdicts, rule
// tables, and the ladle identifier scheme shared across all plant records.
package domain

import (
	"errors"
)

// Decision is an inspection decision label for a ladle or test record.
// The labels are the plant's Arabic inspection categories and are stored
// verbatim in rule tables and records, so they must never be transcoded.
type Decision string

const (
	// DecisionLastOnly is the best case: only the final inspection is required.
	DecisionLastOnly Decision = "فحص أخيرة فقط"
	// DecisionFirstAndLast requires both first and last inspections.
	DecisionFirstAndLast Decision = "فحص أولى وأخيرة"
	// DecisionFullInspection requires 100% inspection of the batch.
	DecisionFullInspection Decision = "فحص الشحنة 100%"
	// DecisionRejected marks the ladle as damaged. It is also the fallback
	// when a measured value falls outside every configured range.
	DecisionRejected Decision = "تالف"
)

// Verdict is the binary outcome of mechanical acceptance evaluation.
type Verdict string

const (
	VerdictAccept Verdict = "ACCEPT"
	VerdictReject Verdict = "REJECT"
)

// Sentinel errors surfaced by rule-table CRUD and the ladle codec.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidFormat = errors.New("invalid format")
)

// decisionSeverity fixes the total order over chemical decision labels.
// Higher is worse. Unknown labels rank 0 and never win the aggregation,
// which is deliberate: a typo in an edited rule table must not force a
// rejection on its own.
var decisionSeverity = map[Decision]int{
	DecisionLastOnly:       1,
	DecisionFirstAndLast:   2,
	DecisionFullInspection: 3,
	DecisionRejected:       4,
}

// Severity returns the rank of the decision in the chemical severity order.
// Unknown labels return 0.
func (d Decision) Severity() int {
	return decisionSeverity[d]
}

// IsValid reports whether the decision is one of the four known labels.
func (d Decision) IsValid() bool {
	_, ok := decisionSeverity[d]
	return ok
}

// String returns the raw label.
func (d Decision) String() string {
	return string(d)
}

// BestDecision is the first rank of the severity order. A classified value
// is "in best range" iff its matched range carries this label.
const BestDecision = DecisionLastOnly

// WorstDecision is the fallback label for values outside every range.
const WorstDecision = DecisionRejected

// AllDecisions returns the known decision labels in severity order,
// best first. Used by callers rendering selection lists.
func AllDecisions() []Decision {
	return []Decision{
		DecisionLastOnly,
		DecisionFirstAndLast,
		DecisionFullInspection,
		DecisionRejected,
	}
}

// SubjectDecision is the per-subject breakdown inside a DecisionResult.
type SubjectDecision struct {
	Value       float64  `json:"value"`
	Decision    Decision `json:"decision"`
	Severity    int      `json:"severity"`
	InBestRange bool     `json:"in_best_range"`
}

// DecisionResult is the outcome of aggregating classified values over a
// rule table. It is a transient value object: callers copy its fields onto
// the owning record, it is never persisted directly.
//
// Recommended is nil iff zero supplied values mapped to a known subject;
// that is a normal outcome for a partially filled form, not an error.
type DecisionResult struct {
	Recommended   *Decision                  `json:"recommended_decision"`
	Severity      int                        `json:"severity"`
	PerSubject    map[string]SubjectDecision `json:"per_subject"`
	WorstSubjects []string                   `json:"worst_subjects"`
}

// PropertyEvaluation is the per-property breakdown of a mechanical
// acceptance evaluation.
type PropertyEvaluation struct {
	Value     float64 `json:"value"`
	Condition string  `json:"condition"`
	Unit      string  `json:"unit,omitempty"`
	Passed    bool    `json:"passed"`
}

// MechanicalResult is the outcome of the all-or-nothing mechanical
// acceptance evaluation: ACCEPT iff every evaluated property passed.
// Verdict is nil when no supplied value mapped to a known criterion,
// mirroring DecisionResult.Recommended.
type MechanicalResult struct {
	Verdict          *Verdict                      `json:"verdict"`
	PerProperty      map[string]PropertyEvaluation `json:"per_property"`
	FailedProperties []string                      `json:"failed_properties"`
}

// Passed reports whether the evaluation produced an ACCEPT verdict.
func (r *MechanicalResult) Passed() bool {
	return r.Verdict != nil && *r.Verdict == VerdictAccept
}
