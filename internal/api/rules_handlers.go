package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/rules"
)

// storeForTable resolves the :table path parameter to a rule store.
func (s *Server) storeForTable(c *gin.Context) (*rules.Store, bool) {
	id := domain.TableID(c.Param("table"))
	switch id {
	case domain.ChemicalTable:
		return s.chemicalStore, true
	case domain.MechanicalTable:
		return s.mechanicalStore, true
	default:
		s.badRequest(c, "table must be 'chemical' or 'mechanical'")
		return nil, false
	}
}

// handleGetRuleTable returns the full rule table.
func (s *Server) handleGetRuleTable(c *gin.Context) {
	store, ok := s.storeForTable(c)
	if !ok {
		return
	}

	table, err := store.Load()
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, table)
}

// RuleSubjectRequest is the payload for adding a rule subject.
type RuleSubjectRequest struct {
	Code   string         `json:"code" binding:"required"`
	Name   string         `json:"name"`
	NameAr string         `json:"name_ar"`
	Unit   string         `json:"unit"`
	Ranges []domain.Range `json:"ranges" binding:"required"`
}

// handleAddRuleSubject adds a subject with its ranges to a rule table.
func (s *Server) handleAddRuleSubject(c *gin.Context) {
	store, ok := s.storeForTable(c)
	if !ok {
		return
	}

	var req RuleSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	if err := s.validateRanges(c, req.Ranges); err != nil {
		return
	}

	table, err := store.AddSubject(domain.RuleSubject{
		Code:   req.Code,
		Name:   req.Name,
		NameAr: req.NameAr,
		Unit:   req.Unit,
		Ranges: req.Ranges,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.flushDecisionCache(c)
	c.JSON(http.StatusCreated, table)
}

// RangesRequest is the payload for replacing a subject's ranges.
type RangesRequest struct {
	Ranges []domain.Range `json:"ranges" binding:"required"`
}

// handleReplaceRuleRanges replaces all ranges of one subject.
func (s *Server) handleReplaceRuleRanges(c *gin.Context) {
	store, ok := s.storeForTable(c)
	if !ok {
		return
	}

	var req RangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	if err := s.validateRanges(c, req.Ranges); err != nil {
		return
	}

	table, err := store.ReplaceRanges(c.Param("code"), req.Ranges)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.flushDecisionCache(c)
	c.JSON(http.StatusOK, table)
}

// handleRemoveRuleSubject removes a subject from a rule table.
// Removing an absent subject is a no-op.
func (s *Server) handleRemoveRuleSubject(c *gin.Context) {
	store, ok := s.storeForTable(c)
	if !ok {
		return
	}

	table, err := store.RemoveSubject(c.Param("code"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.flushDecisionCache(c)
	c.JSON(http.StatusOK, table)
}

// CriteriaRequest is the payload for replacing acceptance criteria.
type CriteriaRequest struct {
	Criteria map[string]domain.AcceptanceCriterion `json:"criteria" binding:"required"`
}

// handleReplaceCriteria replaces the acceptance criteria of the
// mechanical table. Conditions must parse before they are accepted.
func (s *Server) handleReplaceCriteria(c *gin.Context) {
	store, ok := s.storeForTable(c)
	if !ok {
		return
	}

	var req CriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	for key, criterion := range req.Criteria {
		if _, err := domain.ParseCondition(criterion.Condition); err != nil {
			s.badRequest(c, "criterion "+key+": "+err.Error())
			return
		}
	}

	table, err := store.ReplaceCriteria(req.Criteria)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.flushDecisionCache(c)
	c.JSON(http.StatusOK, table)
}

// validateRanges rejects ranges whose decision label is not one of the
// four known labels, or whose bounds are inverted.
func (s *Server) validateRanges(c *gin.Context, ranges []domain.Range) error {
	for _, r := range ranges {
		if !r.Decision.IsValid() {
			s.badRequest(c, "unknown decision label: "+string(r.Decision))
			return domain.ErrInvalidInput
		}
		if r.Min > r.Max {
			s.badRequest(c, "range min exceeds max")
			return domain.ErrInvalidInput
		}
	}
	return nil
}

// flushDecisionCache drops cached decisions after a rule change so
// stale recommendations cannot be served.
func (s *Server) flushDecisionCache(c *gin.Context) {
	if s.decisionCache == nil {
		return
	}
	if err := s.decisionCache.Flush(c.Request.Context()); err != nil {
		s.log.WithError(err).Warn("Failed to flush decision cache after rule change")
	}
}

// handleListSpecs lists the element specifications.
func (s *Server) handleListSpecs(c *gin.Context) {
	specs, err := s.specRepo.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"specifications": specs,
		"count":          len(specs),
	})
}

// SpecRequest is the payload for saving an element specification.
type SpecRequest struct {
	Name     string   `json:"name"`
	MinValue *float64 `json:"min_value"`
	MaxValue *float64 `json:"max_value"`
	Unit     string   `json:"unit"`
}

// handleUpsertSpec creates or replaces an element specification.
func (s *Server) handleUpsertSpec(c *gin.Context) {
	var req SpecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	if req.MinValue != nil && req.MaxValue != nil && *req.MinValue > *req.MaxValue {
		s.badRequest(c, "min_value exceeds max_value")
		return
	}

	spec := &domain.ElementSpecification{
		Code:     c.Param("code"),
		Name:     req.Name,
		MinValue: req.MinValue,
		MaxValue: req.MaxValue,
		Unit:     req.Unit,
	}

	if err := s.specRepo.Upsert(c.Request.Context(), spec); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, spec)
}

// handleDeleteSpec removes an element specification.
func (s *Server) handleDeleteSpec(c *gin.Context) {
	if err := s.specRepo.Delete(c.Request.Context(), c.Param("code")); err != nil {
		s.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
