package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/viacare/risk-assessor/internal/domain"
	"github.com/viacare/risk-assessor/internal/metrics"
	"github.com/viacare/risk-assessor/internal/middleware"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Assessor runs a complete risk assessment for a visit sequence.
type Assessor interface {
	Assess(ctx context.Context, sequence domain.ObservationSequence) (*domain.Assessment, error)
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	assessor      Assessor
	metrics       *metrics.Manager
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance. metricsManager may be nil, in
// which case no metrics route is registered.
func NewServer(configManager domain.ConfigManager, assessor Assessor, metricsManager *metrics.Manager, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	var recorder middleware.HTTPRecorder
	if metricsManager != nil {
		recorder = metricsManager
	}

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger, recorder))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	server := &Server{
		configManager: configManager,
		assessor:      assessor,
		metrics:       metricsManager,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
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
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/features", s.handleFeatures)
		v1.POST("/assessments", s.handleAssessment)
	}

	cfg := s.configManager.GetConfig()
	if s.metrics != nil && cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.metrics.Handler()))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

func (s *Server) handleFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"features": domain.ObservationSchema,
	})
}

func (s *Server) handleAssessment(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, domain.ErrInvalidInput,
			"Invalid assessment request", bindingDetails(err))
		return
	}

	assessment, err := s.assessor.Assess(c.Request.Context(), req.sequence())
	if err != nil {
		_ = c.Error(err)
		s.handleAssessmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// handleAssessmentError maps validation and submission failures to HTTP responses.
func (s *Server) handleAssessmentError(c *gin.Context, err error) {
	var problems domain.ValidationErrors
	if errors.As(err, &problems) {
		s.writeError(c, http.StatusBadRequest, domain.ErrValidation, "Visit data failed validation", problems.Messages())
		return
	}
	if errors.Is(err, domain.ErrEmptySequence) {
		s.writeError(c, http.StatusBadRequest, domain.ErrInvalidInput, "At least one visit is required", nil)
		return
	}

	var subErr *domain.SubmissionError
	if !errors.As(err, &subErr) {
		s.writeError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Assessment failed", nil)
		return
	}

	switch subErr.Kind {
	case domain.KindServiceValidationError:
		s.writeError(c, http.StatusUnprocessableEntity, domain.ErrValidation, subErr.Message, subErr.Details)
	case domain.KindRateLimited, domain.KindRetriesExhausted:
		c.Header("Retry-After", s.retryAfter())
		s.writeError(c, http.StatusTooManyRequests, domain.ErrRateLimit,
			"Prediction service is rate limiting requests, try again later", nil)
	case domain.KindTransportUnreachable:
		s.writeError(c, http.StatusServiceUnavailable, domain.ErrServiceUnavailable,
			"Prediction service is unreachable", nil)
	case domain.KindCancelled:
		s.writeError(c, http.StatusRequestTimeout, domain.ErrRequestCancelled,
			"Assessment was cancelled before the prediction completed", nil)
	default:
		s.writeError(c, http.StatusBadGateway, domain.ErrPredictionService,
			fmt.Sprintf("Prediction service failed (%s)", subErr.Kind), subErr.Details)
	}
}

func (s *Server) writeError(c *gin.Context, status int, code, message string, details []string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

// retryAfter suggests the first backoff delay, in whole seconds.
func (s *Server) retryAfter() string {
	base := s.configManager.GetPredictionConfig().BackoffBase
	seconds := int(math.Ceil(base.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
