package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/service"
)

// Runner runs one batch of queued embed jobs.
type Runner interface {
	Run(ctx context.Context) (*service.RunSummary, error)
}

// QueryEmbedder embeds a single piece of text.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// JobCounter reports the size of the job queue per status.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// EmbedHandler exposes the batch runner and the query embedder over HTTP.
// Overlapping runs are allowed; the job claim keeps them from sharing a job.
type EmbedHandler struct {
	runner   Runner
	embedder QueryEmbedder
	jobs     JobCounter

	// unavailable is set when the worker could not be built at startup.
	unavailable error

	mu            sync.RWMutex
	running       int
	lastRunTime   time.Time
	lastRunStatus string
	lastSummary   *service.RunSummary
}

// NewEmbedHandler creates a new embed handler.
// Parameters:
//   - runner: batch runner; nil when the worker is not configured.
//   - embedder: query embedder; nil when the worker is not configured.
//   - jobs: job counter used by the stats endpoint.
//   - unavailable: startup error reported by run and query, or nil.
// Returns:
//   - *EmbedHandler: initialized handler.
func NewEmbedHandler(runner Runner, embedder QueryEmbedder, jobs JobCounter, unavailable error) *EmbedHandler {
	if unavailable == nil && (runner == nil || embedder == nil) {
		unavailable = service.ErrNotConfigured
	}
	return &EmbedHandler{
		runner:      runner,
		embedder:    embedder,
		jobs:        jobs,
		unavailable: unavailable,
	}
}

// QueryRequest is the body of the query endpoint.
type QueryRequest struct {
	Text string `json:"text"`
}

// QueryResponse carries the embedding of the query text.
type QueryResponse struct {
	Vector []float32 `json:"vector"`
}

// StatsResponse describes the job queue and the last run served by this process.
type StatsResponse struct {
	Jobs          map[domain.JobStatus]int64 `json:"jobs"`
	Running       int                        `json:"running"`
	LastRunTime   string                     `json:"last_run_time,omitempty"`
	LastRunStatus string                     `json:"last_run_status,omitempty"`
	LastRun       *service.RunSummary        `json:"last_run,omitempty"`
}

// Run processes one batch of queued jobs and returns the run summary.
func (h *EmbedHandler) Run(c *gin.Context) {
	ctx := c.Request.Context()

	if h.unavailable != nil {
		logger.CtxError(ctx, "Embed run rejected: %v", h.unavailable)
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.unavailable.Error()})
		return
	}

	h.mu.Lock()
	h.running++
	h.mu.Unlock()

	// The run outlives a dropped client connection; claimed jobs are finished.
	summary, err := h.runner.Run(context.WithoutCancel(ctx))

	h.mu.Lock()
	h.running--
	h.lastRunTime = time.Now()
	h.lastSummary = summary
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.CtxError(ctx, "Embed run failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Query embeds the text of the request body.
func (h *EmbedHandler) Query(c *gin.Context) {
	ctx := c.Request.Context()

	if h.unavailable != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.unavailable.Error()})
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid query request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	start := time.Now()
	vector, err := h.embedder.EmbedOne(ctx, text)
	if err != nil {
		status := http.StatusInternalServerError
		var remoteErr *service.RemoteError
		if errors.As(err, &remoteErr) {
			status = http.StatusBadGateway
		}
		logger.CtxError(ctx, "Query embedding failed: %v", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldSize:       len(text),
	}).Debug(ctx, "Query embedded")

	c.JSON(http.StatusOK, QueryResponse{Vector: vector})
}

// Stats reports job counts per status and the last run of this process.
func (h *EmbedHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.jobs.CountByStatus(ctx)
	if err != nil {
		logger.CtxError(ctx, "Failed to count jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.mu.RLock()
	resp := StatsResponse{
		Jobs:          counts,
		Running:       h.running,
		LastRunStatus: h.lastRunStatus,
		LastRun:       h.lastSummary,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	h.mu.RUnlock()

	c.JSON(http.StatusOK, resp)
}
