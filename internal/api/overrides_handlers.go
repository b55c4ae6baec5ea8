package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/overrides"
)

// OverrideRequest records an engineer's final decision for a ladle
// against what the engine recommended.
type OverrideRequest struct {
	LadleID             string `json:"ladle_id" binding:"required"`
	RecommendedDecision string `json:"recommended_decision" binding:"required"`
	FinalDecision       string `json:"final_decision" binding:"required"`
	EngineerName        string `json:"engineer_name"`
	Reason              string `json:"reason"`
	Notes               string `json:"notes"`
}

// handleSaveOverride stores or replaces the override for a ladle.
func (s *Server) handleSaveOverride(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	if _, err := domain.DecodeLadleID(req.LadleID); err != nil {
		s.respondError(c, err)
		return
	}

	// Both labels feed the audit trail and the agreed flag, so both
	// must be known decisions.
	recommended := domain.Decision(req.RecommendedDecision)
	if !recommended.IsValid() {
		s.badRequest(c, "unknown decision label: "+req.RecommendedDecision)
		return
	}
	final := domain.Decision(req.FinalDecision)
	if !final.IsValid() {
		s.badRequest(c, "unknown decision label: "+req.FinalDecision)
		return
	}

	override := &overrides.Override{
		LadleID:             req.LadleID,
		RecommendedDecision: recommended,
		FinalDecision:       final,
		Agreed:              req.RecommendedDecision == req.FinalDecision,
		EngineerName:        req.EngineerName,
		Reason:              req.Reason,
		Notes:               req.Notes,
	}

	if err := s.overrideStore.Save(c.Request.Context(), override); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, override)
}

// handleGetOverride returns the override for a ladle, 404 when none.
func (s *Server) handleGetOverride(c *gin.Context) {
	override, err := s.overrideStore.Get(c.Request.Context(), c.Param("ladle_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if override == nil {
		s.respondError(c, domain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, override)
}

// handleListOverrides lists overrides with pagination.
func (s *Server) handleListOverrides(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)

	list, err := s.overrideStore.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}

	total, err := s.overrideStore.Count(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"overrides": list,
		"count":     len(list),
		"total":     total,
	})
}

// handleDeleteOverride removes an override entry by numeric ID.
func (s *Server) handleDeleteOverride(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.badRequest(c, "id must be an integer")
		return
	}

	if err := s.overrideStore.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// handleExportOverrides streams all overrides as a JSON document.
func (s *Server) handleExportOverrides(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="overrides.json"`)

	if err := s.overrideStore.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.respondError(c, err)
	}
}

// handleImportOverrides loads overrides from an uploaded JSON document.
// Ladles that already have an override are skipped.
func (s *Server) handleImportOverrides(c *gin.Context) {
	imported, skipped, err := s.overrideStore.ImportJSON(c.Request.Context(), c.Request.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
	})
}
