package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/ethergraph-engine/internal/addresses"
	"github.com/rawblock/ethergraph-engine/internal/cluster"
	"github.com/rawblock/ethergraph-engine/internal/compliance"
	"github.com/rawblock/ethergraph-engine/internal/db"
	"github.com/rawblock/ethergraph-engine/internal/graph"
	"github.com/rawblock/ethergraph-engine/internal/ingest"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// Service interfaces consumed by the handlers. The concrete engines satisfy
// them; tests substitute fakes.

type TraceService interface {
	Trace(ctx context.Context, source, target string, maxHops int) (*models.TraceResult, error)
}

type ClusterService interface {
	AssignClusters(ctx context.Context, batchSize int) (int, error)
	Profile(ctx context.Context, address string) (*models.AddressProfile, error)
}

type ScoringService interface {
	RunScoring(ctx context.Context, contamination float64) ([]models.AddressScore, error)
	FetchAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

type ComplianceService interface {
	MarkSanctioned(ctx context.Context, list []string) (int, error)
	EvaluateSeverity(ctx context.Context) (int, error)
	ApplyBlacklistCSV(ctx context.Context, r io.Reader) (int, error)
}

type IngestService interface {
	IngestAddress(ctx context.Context, address string) (*models.IngestSummary, error)
}

// AuditRecorder is the optional audit trail. A nil recorder disables it.
type AuditRecorder interface {
	RecordScoringRun(ctx context.Context, scored, anomalies int, contamination float64) error
	RecordClusteringRun(ctx context.Context, assigned, batchSize int) error
	RecordSanctionEvent(ctx context.Context, supplied, matched int, source string) error
	RecentRuns(ctx context.Context, limit int) ([]db.RunRecord, error)
}

// Deps carries everything the router needs. Ingestor and Audit may be nil;
// the corresponding routes respond 503.
type Deps struct {
	Tracer      TraceService
	Clusters    ClusterService
	Scoring     ScoringService
	Compliance  ComplianceService
	Ingestor    IngestService
	SampleStore ingest.Store
	Audit       AuditRecorder
	Hub         *Hub

	AuthToken      string
	AllowedOrigins string
	RateLimitRPM   int
}

type APIHandler struct {
	deps Deps
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(metricsMiddleware())

	handler := &APIHandler{deps: deps}

	rpm := deps.RateLimitRPM
	if rpm <= 0 {
		rpm = 120
	}
	limiter := NewRateLimiter(rpm, rpm)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())

	// Public endpoints.
	api.GET("/health", handler.handleHealth)
	if deps.Hub != nil {
		api.GET("/stream", deps.Hub.Subscribe)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware(deps.AuthToken))
	{
		protected.POST("/trace", handler.handleTrace)
		protected.GET("/address/:address", handler.handleAddressProfile)
		protected.POST("/cluster/assign", handler.handleAssignClusters)
		protected.POST("/alerts/refresh", handler.handleRefreshAlerts)
		protected.GET("/alerts", handler.handleGetAlerts)
		protected.POST("/compliance/sanctions", handler.handleMarkSanctions)
		protected.POST("/compliance/blacklist", handler.handleBlacklistUpload)
		protected.POST("/compliance/severity", handler.handleEvaluateSeverity)
		protected.GET("/ingest/:address", handler.handleIngestAddress)
		protected.POST("/ingest/sample", handler.handleLoadSample)
		protected.GET("/runs", handler.handleRecentRuns)
	}

	r.GET("/metrics", metricsHandler())

	return r
}

// corsMiddleware mirrors origins from the configured allow list; empty or
// "*" allows everything.
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// respondError maps the error taxonomy onto HTTP statuses. Internal detail
// is logged; responses carry generic messages.
func respondError(c *gin.Context, err error) {
	var pe *ingest.ProviderError
	var se *graph.StoreError
	var ce *cluster.ClusteringError

	switch {
	case errors.Is(err, addresses.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Ethereum address"})
	case errors.Is(err, graph.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.As(err, &pe):
		log.Printf("[api] provider error: %v", pe)
		switch pe.Kind {
		case ingest.KindInvalidAddress:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provider rejected the address"})
		case ingest.KindRateLimited:
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Provider rate limit reached"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Transaction provider unavailable"})
		}
	case errors.As(err, &ce):
		log.Printf("[api] clustering error: %v", ce)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Clustering failed", "assigned": ce.Assigned})
	case errors.As(err, &se):
		log.Printf("[api] store error: %v", se)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Graph store unavailable"})
	default:
		log.Printf("[api] internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func (h *APIHandler) handleTrace(c *gin.Context) {
	var req struct {
		Source  string `json:"source"`
		Target  string `json:"target"`
		MaxHops int    `json:"maxHops"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {source, target?, maxHops?}"})
		return
	}

	result, err := h.deps.Tracer.Trace(c.Request.Context(), req.Source, req.Target, req.MaxHops)
	if err != nil {
		respondError(c, err)
		return
	}
	tracesCompleted.Inc()
	c.JSON(http.StatusOK, result)
}

func (h *APIHandler) handleAddressProfile(c *gin.Context) {
	profile, err := h.deps.Clusters.Profile(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *APIHandler) handleAssignClusters(c *gin.Context) {
	var req struct {
		BatchSize int `json:"batchSize"`
	}
	// Body is optional; defaults apply when absent.
	_ = c.ShouldBindJSON(&req)

	assigned, err := h.deps.Clusters.AssignClusters(c.Request.Context(), req.BatchSize)
	if err != nil {
		respondError(c, err)
		return
	}
	clustersAssigned.Add(float64(assigned))

	if h.deps.Audit != nil {
		if err := h.deps.Audit.RecordClusteringRun(c.Request.Context(), assigned, req.BatchSize); err != nil {
			log.Printf("[api] audit record failed: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"assigned": assigned})
}

func (h *APIHandler) handleRefreshAlerts(c *gin.Context) {
	var req struct {
		Contamination float64 `json:"contamination"`
	}
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	scores, err := h.deps.Scoring.RunScoring(ctx, req.Contamination)
	if err != nil {
		respondError(c, err)
		return
	}
	scoringRuns.Inc()

	if _, err := h.deps.Compliance.EvaluateSeverity(ctx); err != nil {
		respondError(c, err)
		return
	}

	anomalies := 0
	for _, s := range scores {
		if s.IsAnomaly {
			anomalies++
		}
	}
	if h.deps.Audit != nil {
		if err := h.deps.Audit.RecordScoringRun(ctx, len(scores), anomalies, req.Contamination); err != nil {
			log.Printf("[api] audit record failed: %v", err)
		}
	}

	h.pushAlerts(ctx, "scoring_refresh")
	c.JSON(http.StatusOK, gin.H{"scored": len(scores), "anomalies": anomalies})
}

func (h *APIHandler) handleGetAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	alerts, err := h.deps.Scoring.FetchAlerts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *APIHandler) handleMarkSanctions(c *gin.Context) {
	var req struct {
		Addresses []string `json:"addresses"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Addresses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {addresses: [...]}"})
		return
	}

	ctx := c.Request.Context()
	matched, err := h.deps.Compliance.MarkSanctioned(ctx, req.Addresses)
	if err != nil {
		respondError(c, err)
		return
	}
	sanctionsMarked.Add(float64(matched))

	if h.deps.Audit != nil {
		if err := h.deps.Audit.RecordSanctionEvent(ctx, len(req.Addresses), matched, "api"); err != nil {
			log.Printf("[api] audit record failed: %v", err)
		}
	}

	h.pushAlerts(ctx, "sanctions_update")
	c.JSON(http.StatusOK, gin.H{"supplied": len(req.Addresses), "matched": matched})
}

func (h *APIHandler) handleBlacklistUpload(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected multipart upload with a 'file' field"})
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	matched, err := h.deps.Compliance.ApplyBlacklistCSV(ctx, file)
	if err != nil {
		if errors.Is(err, compliance.ErrNoAddressColumn) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "CSV has no address column (address, addr, or wallet)"})
			return
		}
		respondError(c, err)
		return
	}
	sanctionsMarked.Add(float64(matched))

	if h.deps.Audit != nil {
		if err := h.deps.Audit.RecordSanctionEvent(ctx, -1, matched, "blacklist_csv"); err != nil {
			log.Printf("[api] audit record failed: %v", err)
		}
	}

	h.pushAlerts(ctx, "sanctions_update")
	c.JSON(http.StatusOK, gin.H{"matched": matched})
}

func (h *APIHandler) handleEvaluateSeverity(c *gin.Context) {
	updated, err := h.deps.Compliance.EvaluateSeverity(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *APIHandler) handleIngestAddress(c *gin.Context) {
	if h.deps.Ingestor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Transaction provider not configured"})
		return
	}
	summary, err := h.deps.Ingestor.IngestAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	transactionsIngested.Add(float64(summary.IngestedCount))
	c.JSON(http.StatusOK, summary)
}

func (h *APIHandler) handleLoadSample(c *gin.Context) {
	n, err := ingest.LoadSample(c.Request.Context(), h.deps.SampleStore)
	if err != nil {
		respondError(c, err)
		return
	}
	transactionsIngested.Add(float64(n))
	c.JSON(http.StatusOK, gin.H{"loaded": n})
}

func (h *APIHandler) handleRecentRuns(c *gin.Context) {
	if h.deps.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit store not connected"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.deps.Audit.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "EtherGraph Analysis Engine v1.0",
		"capabilities": gin.H{
			"trace":      true,
			"clustering": true,
			"scoring":    true,
			"compliance": true,
			"ingest":     h.deps.Ingestor != nil,
			"audit":      h.deps.Audit != nil,
		},
	})
}

// pushAlerts broadcasts the current top alerts; failures are logged and do
// not fail the triggering request.
func (h *APIHandler) pushAlerts(ctx context.Context, event string) {
	if h.deps.Hub == nil {
		return
	}
	alerts, err := h.deps.Scoring.FetchAlerts(ctx, 0)
	if err != nil {
		log.Printf("[api] alert broadcast fetch failed: %v", err)
		return
	}
	h.deps.Hub.BroadcastAlerts(event, alerts)
}
