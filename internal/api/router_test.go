package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/civicembed/internal/api/handler"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/service"
)

type stubRunner struct {
	summary *service.RunSummary
	err     error
	calls   int
}

func (r *stubRunner) Run(ctx context.Context) (*service.RunSummary, error) {
	r.calls++
	return r.summary, r.err
}

type stubEmbedder struct {
	texts []string
	err   error
}

func (e *stubEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.25, 0.5, 0.75}, nil
}

type stubCounter struct{}

func (stubCounter) CountByStatus(context.Context) (map[domain.JobStatus]int64, error) {
	return map[domain.JobStatus]int64{
		domain.JobStatusQueued:     4,
		domain.JobStatusProcessing: 1,
		domain.JobStatusDone:       10,
		domain.JobStatusError:      2,
	}, nil
}

func newTestRouter(embed *handler.EmbedHandler) *gin.Engine {
	cfg := &config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowAllOrigins: true}}
	return SetupRouter(handler.NewHealthHandler(nil), embed, cfg, logger.GetDefault())
}

func serve(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(handler.NewEmbedHandler(nil, nil, stubCounter{}, nil))
	w := serve(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRunReturnsSummary(t *testing.T) {
	runner := &stubRunner{summary: &service.RunSummary{Processed: 3, Done: 2, Errored: 1, DurationMs: 42}}
	r := newTestRouter(handler.NewEmbedHandler(runner, &stubEmbedder{}, stubCounter{}, nil))

	w := serve(r, http.MethodPost, "/api/v1/embed/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"processed":3,"done":2,"errored":1,"duration_ms":42}`, w.Body.String())
	assert.Equal(t, 1, runner.calls)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRunRejectsOtherMethods(t *testing.T) {
	runner := &stubRunner{summary: &service.RunSummary{}}
	r := newTestRouter(handler.NewEmbedHandler(runner, &stubEmbedder{}, stubCounter{}, nil))

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := serve(r, method, "/api/v1/embed/run", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
	}
	assert.Zero(t, runner.calls)
}

func TestRunFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("failed to fetch queued jobs: connection refused")}
	r := newTestRouter(handler.NewEmbedHandler(runner, &stubEmbedder{}, stubCounter{}, nil))

	w := serve(r, http.MethodPost, "/api/v1/embed/run", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRunWithoutConfiguration(t *testing.T) {
	cfgErr := &service.ConfigError{Err: errors.New("embedding: api_key is required")}
	r := newTestRouter(handler.NewEmbedHandler(nil, nil, stubCounter{}, cfgErr))

	w := serve(r, http.MethodPost, "/api/v1/embed/run", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "api_key is required")

	w = serve(r, http.MethodPost, "/api/v1/embed/query", []byte(`{"text":"water"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestQuery(t *testing.T) {
	embedder := &stubEmbedder{}
	r := newTestRouter(handler.NewEmbedHandler(&stubRunner{}, embedder, stubCounter{}, nil))

	w := serve(r, http.MethodPost, "/api/v1/embed/query", []byte(`{"text":"  groundwater rights  "}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"vector":[0.25,0.5,0.75]}`, w.Body.String())
	assert.Equal(t, []string{"groundwater rights"}, embedder.texts)
}

func TestQueryRequiresText(t *testing.T) {
	embedder := &stubEmbedder{}
	r := newTestRouter(handler.NewEmbedHandler(&stubRunner{}, embedder, stubCounter{}, nil))

	for _, body := range []string{`{"text":""}`, `{"text":"   "}`, `{}`, `not json`} {
		w := serve(r, http.MethodPost, "/api/v1/embed/query", []byte(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, embedder.texts)
}

func TestQueryRemoteFailure(t *testing.T) {
	embedder := &stubEmbedder{err: &service.RemoteError{StatusCode: 429, Transient: true, Attempts: 5}}
	r := newTestRouter(handler.NewEmbedHandler(&stubRunner{}, embedder, stubCounter{}, nil))

	w := serve(r, http.MethodPost, "/api/v1/embed/query", []byte(`{"text":"water"}`))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestStats(t *testing.T) {
	runner := &stubRunner{summary: &service.RunSummary{Processed: 1, Done: 1}}
	r := newTestRouter(handler.NewEmbedHandler(runner, &stubEmbedder{}, stubCounter{}, nil))

	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/embed/run", nil).Code)

	w := serve(r, http.MethodGet, "/api/v1/embed/jobs/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 4, resp.Jobs[domain.JobStatusQueued])
	assert.EqualValues(t, 1, resp.Jobs[domain.JobStatusProcessing])
	assert.Equal(t, "success", resp.LastRunStatus)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, 1, resp.LastRun.Done)
	assert.Zero(t, resp.Running)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(handler.NewEmbedHandler(&stubRunner{}, &stubEmbedder{}, stubCounter{}, nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/embed/run", nil)
	req.Header.Set("Origin", "https://example.org")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
