// Package api exposes the decision engine and record repositories over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/cache"
	"github.com/pipe-qc-server/internal/database"
	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/overrides"
	"github.com/pipe-qc-server/internal/repository"
	"github.com/pipe-qc-server/internal/rules"
	"github.com/pipe-qc-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	cfg    *domain.Config
	router *gin.Engine
	server *http.Server
	log    *logrus.Logger

	db             *database.DB
	chemicalRepo   *repository.ChemicalRepository
	mechanicalRepo *repository.MechanicalRepository
	specRepo       *repository.SpecRepository

	chemicalStore   *rules.Store
	mechanicalStore *rules.Store
	chemicalSvc     *service.ChemicalDecisionService
	mechanicalSvc   *service.MechanicalDecisionService

	overrideStore overrides.Store

	// decisionCache is nil when the cache is disabled.
	decisionCache *cache.DecisionCache
}

// Deps carries everything the server needs, wired in main.
type Deps struct {
	Config          *domain.Config
	Logger          *logrus.Logger
	DB              *database.DB
	ChemicalRepo    *repository.ChemicalRepository
	MechanicalRepo  *repository.MechanicalRepository
	SpecRepo        *repository.SpecRepository
	ChemicalStore   *rules.Store
	MechanicalStore *rules.Store
	ChemicalSvc     *service.ChemicalDecisionService
	MechanicalSvc   *service.MechanicalDecisionService
	OverrideStore   overrides.Store
	DecisionCache   *cache.DecisionCache
}

// NewServer creates a new HTTP server instance
func NewServer(deps Deps) *Server {
	// Set Gin mode based on environment
	if deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(deps.Logger))
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	if deps.Config.Server.RateLimit > 0 {
		router.Use(rateLimitMiddleware(deps.Config.Server.RateLimit, deps.Config.Server.RateBurst))
	}

	server := &Server{
		cfg:             deps.Config,
		router:          router,
		log:             deps.Logger,
		db:              deps.DB,
		chemicalRepo:    deps.ChemicalRepo,
		mechanicalRepo:  deps.MechanicalRepo,
		specRepo:        deps.SpecRepo,
		chemicalStore:   deps.ChemicalStore,
		mechanicalStore: deps.MechanicalStore,
		chemicalSvc:     deps.ChemicalSvc,
		mechanicalSvc:   deps.MechanicalSvc,
		overrideStore:   deps.OverrideStore,
		decisionCache:   deps.DecisionCache,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router exposes the gin engine, mainly for handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.log.WithField("addr", addr).Info("HTTP server started")

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		chemical := v1.Group("/chemical")
		{
			chemical.POST("", s.handleCreateChemical)
			chemical.GET("", s.handleListChemical)
			chemical.GET("/:id", s.handleGetChemical)
			chemical.PUT("/:id", s.handleUpdateChemical)
			chemical.DELETE("/:id", s.handleDeleteChemical)
			chemical.POST("/auto-decision", s.handleAutoDecision)
			chemical.POST("/validate", s.handleValidateElement)
		}

		mechanical := v1.Group("/mechanical")
		{
			mechanical.POST("", s.handleCreateMechanical)
			mechanical.GET("", s.handleListMechanical)
			mechanical.GET("/:id", s.handleGetMechanical)
			mechanical.PUT("/:id", s.handleUpdateMechanical)
			mechanical.DELETE("/:id", s.handleDeleteMechanical)
			mechanical.POST("/evaluate", s.handleEvaluateMechanical)
		}

		rules := v1.Group("/rules")
		{
			rules.GET("/:table", s.handleGetRuleTable)
			rules.POST("/:table/subjects", s.handleAddRuleSubject)
			rules.PUT("/:table/subjects/:code", s.handleReplaceRuleRanges)
			rules.DELETE("/:table/subjects/:code", s.handleRemoveRuleSubject)
			rules.PUT("/:table/criteria", s.handleReplaceCriteria)
		}

		specs := v1.Group("/specifications")
		{
			specs.GET("", s.handleListSpecs)
			specs.PUT("/:code", s.handleUpsertSpec)
			specs.DELETE("/:code", s.handleDeleteSpec)
		}

		ov := v1.Group("/overrides")
		{
			ov.POST("", s.handleSaveOverride)
			ov.GET("", s.handleListOverrides)
			ov.GET("/ladle/:ladle_id", s.handleGetOverride)
			ov.DELETE("/:id", s.handleDeleteOverride)
			ov.GET("/export", s.handleExportOverrides)
			ov.POST("/import", s.handleImportOverrides)
		}
	}
}

// handleHealth reports service and dependency health.
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	dbStatus := "ok"

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Health(ctx); err != nil {
			status = "degraded"
			dbStatus = "unreachable"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

// respondError maps domain sentinel errors to HTTP status codes and
// emits the standardized error payload.
func (s *Server) respondError(c *gin.Context, err error) {
	id := requestID(c)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrCodeNotFound, "resource not found", err.Error(), id))
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, domain.NewAPIError(domain.ErrCodeAlreadyExists, "resource already exists", err.Error(), id))
	case errors.Is(err, domain.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidFormat, "invalid format", err.Error(), id))
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidInput, "invalid input", err.Error(), id))
	default:
		s.log.WithError(err).WithField("request_id", id).Error("Request failed")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.ErrCodeInternalServer, "internal server error", "", id))
	}
}

func (s *Server) badRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrCodeInvalidInput, "invalid request body", details, requestID(c)))
}
