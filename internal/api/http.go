package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

// RESTHandler exposes the analyzer over JSON/HTTP.
type RESTHandler struct {
	analyzer IncidentAnalyzer
	logger   *zap.Logger
}

// NewRESTHandler constructs the REST adapter.
func NewRESTHandler(analyzer IncidentAnalyzer, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{analyzer: analyzer, logger: utils.OrNop(logger)}
}

// NewRouter wires every REST route onto a fresh gin engine.
func NewRouter(analyzer IncidentAnalyzer, logger *zap.Logger) *gin.Engine {
	h := NewRESTHandler(analyzer, logger)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "SERVING"})
	})

	v1 := r.Group("/api/v1/investigations")
	v1.POST("", h.Investigate)
	v1.GET("/:id/patterns", h.GetPatternAnalysis)
	v1.POST("/:id/patterns", h.AnalyzePatterns)
	v1.GET("/:id/diagnosis", h.GetDiagnosis)
	v1.POST("/:id/diagnosis", h.SynthesizeRootCause)
	return r
}

// Investigate runs a full investigation from the posted request.
func (h *RESTHandler) Investigate(c *gin.Context) {
	var req models.InvestigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.analyzer.Investigate(c.Request.Context(), req)
	h.respond(c, http.StatusCreated, result, err)
}

// AnalyzePatterns reruns pattern analysis for an existing investigation.
func (h *RESTHandler) AnalyzePatterns(c *gin.Context) {
	analysis, err := h.analyzer.AnalyzePatterns(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, analysis, err)
}

// SynthesizeRootCause reruns root cause synthesis for an existing investigation.
func (h *RESTHandler) SynthesizeRootCause(c *gin.Context) {
	diagnosis, err := h.analyzer.SynthesizeRootCause(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, diagnosis, err)
}

// GetDiagnosis returns the stored diagnosis.
func (h *RESTHandler) GetDiagnosis(c *gin.Context) {
	diagnosis, err := h.analyzer.GetDiagnosis(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, diagnosis, err)
}

// GetPatternAnalysis returns the stored pattern analysis.
func (h *RESTHandler) GetPatternAnalysis(c *gin.Context) {
	analysis, err := h.analyzer.GetPatternAnalysis(c.Request.Context(), c.Param("id"))
	h.respond(c, http.StatusOK, analysis, err)
}

func (h *RESTHandler) respond(c *gin.Context, code int, body any, err error) {
	if err != nil {
		status := HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(code, body)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// HTTPServer wraps the REST listener lifecycle.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer binds handler to address.
func NewHTTPServer(address string, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start serves until Shutdown is invoked.
func (s *HTTPServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
