// Package overrides records engineer decision overrides so that rule
// tables can be tuned against what the engineers actually decided.
package overrides

import (
	"context"
	"io"
	"time"

	"github.com/pipe-qc-server/internal/domain"
)

// Override is one engineer correction of an engine recommendation for a
// ladle. One override per ladle; saving again replaces the previous one.
type Override struct {
	ID                  int64           `json:"id"`
	LadleID             string          `json:"ladle_id"`
	RecommendedDecision domain.Decision `json:"recommended_decision"`
	FinalDecision       domain.Decision `json:"final_decision"`
	Agreed              bool            `json:"agreed"`
	EngineerName        string          `json:"engineer_name,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Export is the JSON envelope for override dumps.
type Export struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Overrides  []*Override `json:"overrides"`
}

// Store persists decision overrides.
type Store interface {
	Save(ctx context.Context, override *Override) error
	Get(ctx context.Context, ladleID string) (*Override, error)
	List(ctx context.Context, limit, offset int) ([]*Override, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
	ExportJSON(ctx context.Context, writer io.Writer) error
	ImportJSON(ctx context.Context, reader io.Reader) (imported, skipped int, err error)
	Close() error
}
