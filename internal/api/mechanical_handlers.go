package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/repository"
)

// MechanicalRequest is the payload for creating or updating a test.
// Derived fields (average dimension, elongation, tensile strength) are
// computed by the server and ignored if supplied.
type MechanicalRequest struct {
	TestDate string `json:"test_date" binding:"required"`
	Diameter int    `json:"diameter" binding:"required"`
	Code     string `json:"code"`
	PipeNo   *int   `json:"pipe_no"`
	LadleID  string `json:"ladle_id"`

	SampleThickness *float64 `json:"sample_thickness"`
	D1              *float64 `json:"d1"`
	D2              *float64 `json:"d2"`
	D3              *float64 `json:"d3"`
	OriginalLength  *float64 `json:"original_length"`
	FinalLength     *float64 `json:"final_length"`
	AreaDSquared    *float64 `json:"area_d_squared"`
	ForceKgf        *float64 `json:"force_kgf"`

	Microstructure    string   `json:"microstructure"`
	NodularityPercent *float64 `json:"nodularity_percent"`
	NoduleCount       *int     `json:"nodule_count"`
	Ferrite           *float64 `json:"ferrite"`
	Hardness          *float64 `json:"hardness"`
	Carbides          *float64 `json:"carbides"`

	Shift      int    `json:"shift"`
	TesterName string `json:"tester_name"`
	Comments   string `json:"comments"`
}

// MechanicalResponse pairs the stored record with its evaluation detail.
type MechanicalResponse struct {
	Test       *domain.MechanicalTest   `json:"test"`
	Evaluation *domain.MechanicalResult `json:"evaluation,omitempty"`
}

// handleCreateMechanical creates a test record: assigns the next test
// number for the date, computes derived values and the verdict.
func (s *Server) handleCreateMechanical(c *gin.Context) {
	var req MechanicalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	testDate, err := time.Parse(dateLayout, req.TestDate)
	if err != nil {
		s.badRequest(c, "test_date must be "+dateLayout)
		return
	}

	if req.LadleID != "" {
		if _, err := domain.DecodeLadleID(req.LadleID); err != nil {
			s.respondError(c, err)
			return
		}
	}

	ctx := c.Request.Context()

	max, err := s.mechanicalRepo.MaxTestNumberForDate(ctx, testDate)
	if err != nil {
		s.respondError(c, err)
		return
	}
	testNumber := 1
	if max != nil {
		testNumber = *max + 1
	}

	test := &domain.MechanicalTest{
		ID:                uuid.New(),
		TestDate:          testDate,
		TestNumber:        testNumber,
		Diameter:          req.Diameter,
		Code:              req.Code,
		PipeNo:            req.PipeNo,
		LadleID:           req.LadleID,
		SampleThickness:   req.SampleThickness,
		D1:                req.D1,
		D2:                req.D2,
		D3:                req.D3,
		OriginalLength:    req.OriginalLength,
		FinalLength:       req.FinalLength,
		AreaDSquared:      req.AreaDSquared,
		ForceKgf:          req.ForceKgf,
		Microstructure:    req.Microstructure,
		NodularityPercent: req.NodularityPercent,
		NoduleCount:       req.NoduleCount,
		Ferrite:           req.Ferrite,
		Hardness:          req.Hardness,
		Carbides:          req.Carbides,
		Shift:             req.Shift,
		TesterName:        req.TesterName,
		Comments:          req.Comments,
	}
	test.CalculateDerivedValues()

	evaluation := s.decideMechanical(test)

	if err := s.mechanicalRepo.Create(ctx, test); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, MechanicalResponse{Test: test, Evaluation: evaluation})
}

// handleGetMechanical retrieves one test by ID.
func (s *Server) handleGetMechanical(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "id must be a UUID")
		return
	}

	test, err := s.mechanicalRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MechanicalResponse{Test: test})
}

// handleListMechanical lists tests with optional filters.
func (s *Server) handleListMechanical(c *gin.Context) {
	filter := repository.MechanicalFilter{
		LadleID: c.Query("ladle_id"),
		Verdict: domain.Verdict(c.Query("verdict")),
		Limit:   intQuery(c, "limit", 100),
		Offset:  intQuery(c, "offset", 0),
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

	tests, err := s.mechanicalRepo.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tests": tests,
		"count": len(tests),
	})
}

// handleUpdateMechanical updates the measured values of an existing
// test and recomputes everything derived from them.
func (s *Server) handleUpdateMechanical(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "id must be a UUID")
		return
	}

	var req MechanicalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	test, err := s.mechanicalRepo.GetByID(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	test.Diameter = req.Diameter
	test.Code = req.Code
	test.PipeNo = req.PipeNo
	test.LadleID = req.LadleID
	test.SampleThickness = req.SampleThickness
	test.D1 = req.D1
	test.D2 = req.D2
	test.D3 = req.D3
	test.OriginalLength = req.OriginalLength
	test.FinalLength = req.FinalLength
	test.AreaDSquared = req.AreaDSquared
	test.ForceKgf = req.ForceKgf
	test.Microstructure = req.Microstructure
	test.NodularityPercent = req.NodularityPercent
	test.NoduleCount = req.NoduleCount
	test.Ferrite = req.Ferrite
	test.Hardness = req.Hardness
	test.Carbides = req.Carbides
	test.Shift = req.Shift
	test.TesterName = req.TesterName
	test.Comments = req.Comments
	test.CalculateDerivedValues()

	evaluation := s.decideMechanical(test)

	if err := s.mechanicalRepo.Update(ctx, test); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MechanicalResponse{Test: test, Evaluation: evaluation})
}

// handleDeleteMechanical removes a test record.
func (s *Server) handleDeleteMechanical(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "id must be a UUID")
		return
	}

	if err := s.mechanicalRepo.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// handleEvaluateMechanical evaluates properties without persisting
// anything. The body is a flat map of property name to value; null,
// blank, and non-numeric entries mean "not measured" and are skipped.
func (s *Server) handleEvaluateMechanical(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	result := s.mechanicalSvc.Evaluate(numericValues(raw))
	c.JSON(http.StatusOK, result)
}

// decideMechanical evaluates a test and applies the verdict to its QC
// fields.
func (s *Server) decideMechanical(test *domain.MechanicalTest) *domain.MechanicalResult {
	result := s.mechanicalSvc.Evaluate(test.PropertyValues())

	if result.Verdict != nil {
		test.Verdict = *result.Verdict
		if len(result.FailedProperties) > 0 {
			test.Reason = "failed: " + strings.Join(result.FailedProperties, ", ")
		} else {
			test.Reason = ""
		}
	}

	return result
}
