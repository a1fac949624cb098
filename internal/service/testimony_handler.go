package service

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/repository"
)

// TestimonyHandler embeds a testimony as a single row keyed by its id.
type TestimonyHandler struct {
	sources    SourceReader
	store      EmbeddingStore
	embedder   Embedder
	mirror     VectorMirror
	minContent int
}

// NewTestimonyHandler creates a testimony handler. mirror may be nil.
func NewTestimonyHandler(sources SourceReader, store EmbeddingStore, embedder Embedder, mirror VectorMirror, cfg *config.WorkerConfig) *TestimonyHandler {
	return &TestimonyHandler{
		sources:    sources,
		store:      store,
		embedder:   embedder,
		mirror:     mirror,
		minContent: cfg.MinContentLength,
	}
}

// Handle builds the testimony content and upserts its embedding.
func (h *TestimonyHandler) Handle(ctx context.Context, testimonyID string) error {
	testimony, err := h.sources.GetTestimony(ctx, testimonyID)
	if err != nil {
		return loadError("testimony", testimonyID, err)
	}

	content := BuildTestimonyContent(testimony)
	if content == "" || runeLen(content) < h.minContent {
		logger.CtxInfo(ctx, "Testimony content too short, skipped: testimony_id=%s length=%d", testimonyID, runeLen(content))
		return nil
	}

	vector, err := h.embedder.EmbedOne(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed testimony %s: %w", testimonyID, err)
	}

	row := &domain.TestimonyEmbedding{
		TestimonyID: testimony.ID,
		BillID:      testimony.BillID,
		Content:     content,
		Embedding:   pgvector.NewVector(vector),
	}
	if err := h.store.UpsertTestimonyEmbedding(ctx, row); err != nil {
		return fmt.Errorf("failed to store embedding of testimony %s: %w", testimonyID, err)
	}

	mirrorPoint(ctx, h.mirror, &repository.MirrorPoint{
		Table:    row.TableName(),
		SourceID: testimony.ID,
		Content:  content,
		Vector:   vector,
	})
	return nil
}
