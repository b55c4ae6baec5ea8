package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/repository"
)

const dateLayout = "2006-01-02"

// ChemicalRequest is the payload for creating or updating an analysis.
// Ladle number and identifier are assigned by the server on create.
type ChemicalRequest struct {
	TestDate string `json:"test_date" binding:"required"`
	Furnace  string `json:"furnace" binding:"required"`

	Carbon     *float64 `json:"carbon"`
	Silicon    *float64 `json:"silicon"`
	Magnesium  *float64 `json:"magnesium"`
	Copper     *float64 `json:"copper"`
	Chromium   *float64 `json:"chromium"`
	Sulfur     *float64 `json:"sulfur"`
	Manganese  *float64 `json:"manganese"`
	Phosphorus *float64 `json:"phosphorus"`
	Lead       *float64 `json:"lead"`
	Aluminum   *float64 `json:"aluminum"`

	EngineerNotes string `json:"engineer_notes"`
	Notes         string `json:"notes"`
}

// ChemicalResponse pairs the stored record with the decision detail
// that produced its recommendation.
type ChemicalResponse struct {
	Analysis *domain.ChemicalAnalysis `json:"analysis"`
	Decision *domain.DecisionResult   `json:"decision_detail,omitempty"`
}

// handleCreateChemical creates an analysis record: assigns the next
// ladle number for the test date, encodes the ladle identifier,
// computes equivalents, runs the auto decision and the spec check.
func (s *Server) handleCreateChemical(c *gin.Context) {
	var req ChemicalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	testDate, err := time.Parse(dateLayout, req.TestDate)
	if err != nil {
		s.badRequest(c, fmt.Sprintf("test_date must be %s", dateLayout))
		return
	}

	ctx := c.Request.Context()

	max, err := s.chemicalRepo.MaxLadleNoForDate(ctx, testDate)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ladleNo := domain.NextLadleSequence(max)

	ladleID, err := domain.EncodeLadleID(ladleNo, testDate)
	if err != nil {
		s.respondError(c, err)
		return
	}

	analysis := &domain.ChemicalAnalysis{
		ID:            uuid.New(),
		TestDate:      testDate,
		Furnace:       req.Furnace,
		LadleNo:       ladleNo,
		LadleID:       ladleID,
		Carbon:        req.Carbon,
		Silicon:       req.Silicon,
		Magnesium:     req.Magnesium,
		Copper:        req.Copper,
		Chromium:      req.Chromium,
		Sulfur:        req.Sulfur,
		Manganese:     req.Manganese,
		Phosphorus:    req.Phosphorus,
		Lead:          req.Lead,
		Aluminum:      req.Aluminum,
		EngineerNotes: req.EngineerNotes,
		Notes:         req.Notes,
	}
	analysis.CalculateEquivalents()

	result := s.decideChemical(c, analysis)
	s.flagDefects(c, analysis)

	if err := s.chemicalRepo.Create(ctx, analysis); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ChemicalResponse{Analysis: analysis, Decision: result})
}

// handleGetChemical retrieves one analysis by ID.
func (s *Server) handleGetChemical(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "id must be a UUID")
		return
	}

	analysis, err := s.chemicalRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChemicalResponse{Analysis: analysis})
}

// handleListChemical lists analyses with optional filters.
func (s *Server) handleListChemical(c *gin.Context) {
	filter := repository.ChemicalFilter{
		Furnace:  c.Query("furnace"),
		Decision: domain.Decision(c.Query("decision")),
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
	}

	if from := c.Query("date_from"); from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			s.badRequest(c, "date_from must be "+dateLayout)
			return
		}
		filter.DateFrom = &t
	}
	if to := c.Query("date_to"); to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			s.badRequest(c, "date_to must be "+dateLayout)
			return
		}
		filter.DateTo = &t
	}

	analyses, err := s.chemicalRepo.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// handleUpdateChemical updates the measured values of an existing
// analysis and recomputes everything derived from them. Ladle number
// and identifier are immutable.
func (s *Server) handleUpdateChemical(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "id must be a UUID")
		return
	}

	var req ChemicalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	analysis, err := s.chemicalRepo.GetByID(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	analysis.Furnace = req.Furnace
	analysis.Carbon = req.Carbon
	analysis.Silicon = req.Silicon
	analysis.Magnesium = req.Magnesium
	analysis.Copper = req.Copper
	analysis.Chromium = req.Chromium
	analysis.Sulfur = req.Sulfur
	analysis.Manganese = req.Manganese
	analysis.Phosphorus = req.Phosphorus
	analysis.Lead = req.Lead
	analysis.Aluminum = req.Aluminum
	analysis.EngineerNotes = req.EngineerNotes
	analysis.Notes = req.Notes
	analysis.CalculateEquivalents()

	result := s.decideChemical(c, analysis)
	s.flagDefects(c, analysis)

	if err := s.chemicalRepo.Update(ctx, analysis); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChemicalResponse{Analysis: analysis, Decision: result})
}

// handleDeleteChemical removes an analysis record.
func (s *Server) handleDeleteChemical(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "id must be a UUID")
		return
	}

	if err := s.chemicalRepo.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// handleAutoDecision evaluates chemistry without persisting anything.
// The body is a flat map of field name to value; null, blank, and
// non-numeric entries mean "not measured" and are skipped.
func (s *Server) handleAutoDecision(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	result := s.cachedAutoDecision(c, numericValues(raw))
	c.JSON(http.StatusOK, result)
}

// ValidateRequest checks one element value against its specification
// limits and its rule-table classification.
type ValidateRequest struct {
	Element string  `json:"element" binding:"required"`
	Value   float64 `json:"value"`
}

// handleValidateElement checks a single element value.
func (s *Server) handleValidateElement(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	response := gin.H{
		"element": req.Element,
		"value":   req.Value,
	}

	if spec, err := s.specRepo.GetByCode(c.Request.Context(), req.Element); err == nil {
		ok, message := spec.CheckValue(req.Value)
		response["within_spec"] = ok
		response["spec_message"] = message
	}

	if classification, ok := s.chemicalSvc.ClassifyElement(req.Element, req.Value); ok {
		response["decision"] = classification.Decision
		response["severity"] = classification.Severity
		response["in_best_range"] = classification.InBestRange
	}

	c.JSON(http.StatusOK, response)
}

// decideChemical runs the auto decision for an analysis and applies the
// recommendation to its QC fields.
func (s *Server) decideChemical(c *gin.Context, analysis *domain.ChemicalAnalysis) *domain.DecisionResult {
	result := s.cachedAutoDecision(c, analysis.FieldValues())

	if result.Recommended != nil {
		analysis.Decision = *result.Recommended
		if len(result.WorstSubjects) > 0 {
			analysis.Reason = "worst elements: " + strings.Join(result.WorstSubjects, ", ")
		}
	}

	return result
}

// cachedAutoDecision consults the decision cache when enabled, falling
// back to a fresh aggregation on miss or cache failure.
func (s *Server) cachedAutoDecision(c *gin.Context, values map[string]float64) *domain.DecisionResult {
	if s.decisionCache != nil {
		if result, ok := s.decisionCache.Get(c.Request.Context(), values); ok {
			return result
		}
	}

	result := s.chemicalSvc.AutoDecision(values)

	if s.decisionCache != nil {
		s.decisionCache.Set(c.Request.Context(), values, result, 0)
	}

	return result
}

// flagDefects sets HasDefect when any measured element is outside its
// specification limits. A missing spec table leaves the flag untouched.
func (s *Server) flagDefects(c *gin.Context, analysis *domain.ChemicalAnalysis) {
	specs, err := s.specRepo.List(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Warn("Element specifications unavailable, defect flag not computed")
		return
	}

	values := analysis.ElementValues()
	analysis.HasDefect = false
	for _, spec := range specs {
		value, ok := values[spec.Code]
		if !ok {
			continue
		}
		if ok, _ := spec.CheckValue(value); !ok {
			analysis.HasDefect = true
			return
		}
	}
}

// numericValues reduces a decoded JSON body to the measured fields.
// Null, blank, and non-numeric entries mean "not measured" and are
// dropped rather than classified, so a partially filled form still
// yields a partial decision.
func numericValues(raw map[string]any) map[string]float64 {
	values := make(map[string]float64, len(raw))
	for field, v := range raw {
		switch value := v.(type) {
		case float64:
			values[field] = value
		case string:
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				continue
			}
			if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
				values[field] = parsed
			}
		}
	}
	return values
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
