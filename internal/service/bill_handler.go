package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/repository"
	"github.com/timmy/civicembed/internal/storage"
)

const (
	// chunkEmbedWindow is how many pending chunks go into one EmbedMany call.
	// Rows are written after each window, so a failure loses at most one window.
	chunkEmbedWindow = 32

	// maxFullTextBytes bounds a full text read from object storage.
	maxFullTextBytes = 16 << 20
)

// BillHandler embeds a bill as one summary row plus dense chunk rows.
type BillHandler struct {
	sources  SourceReader
	store    EmbeddingStore
	embedder Embedder
	texts    storage.ObjectStorage
	mirror   VectorMirror

	chunkSize     int
	chunkOverlap  int
	minContent    int
	fallbackChars int
	maxTextBytes  int64
}

// NewBillHandler creates a bill handler. texts and mirror may be nil.
func NewBillHandler(
	sources SourceReader,
	store EmbeddingStore,
	embedder Embedder,
	texts storage.ObjectStorage,
	mirror VectorMirror,
	cfg *config.WorkerConfig,
) *BillHandler {
	return &BillHandler{
		sources:       sources,
		store:         store,
		embedder:      embedder,
		texts:         texts,
		mirror:        mirror,
		chunkSize:     cfg.ChunkSize,
		chunkOverlap:  cfg.ChunkOverlap,
		minContent:    cfg.MinContentLength,
		fallbackChars: cfg.SummaryFallbackChars,
		maxTextBytes:  maxFullTextBytes,
	}
}

// Handle embeds the summary of the bill and every chunk not stored yet.
// Re-running it leaves one summary row and never duplicates a chunk.
func (h *BillHandler) Handle(ctx context.Context, billID string) error {
	bill, err := h.sources.GetBill(ctx, billID)
	if err != nil {
		return loadError("bill", billID, err)
	}

	fullText, err := h.resolveFullText(ctx, bill)
	if err != nil {
		return err
	}

	if err := h.embedSummary(ctx, bill, fullText); err != nil {
		return err
	}
	return h.embedChunks(ctx, bill, fullText)
}

// resolveFullText prefers the inlined text and falls back to object storage.
func (h *BillHandler) resolveFullText(ctx context.Context, bill *domain.Bill) (string, error) {
	if text := strings.TrimSpace(deref(bill.FullText)); text != "" {
		return text, nil
	}

	key := strings.TrimSpace(deref(bill.FullTextKey))
	if key == "" {
		return "", nil
	}
	if h.texts == nil {
		logger.CtxWarn(ctx, "Bill full text is in object storage but storage is disabled: bill_id=%s key=%s", bill.ID, key)
		return "", nil
	}

	text, err := storage.ReadText(ctx, h.texts, key, h.maxTextBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read full text of bill %s: %w", bill.ID, err)
	}
	return strings.TrimSpace(text), nil
}

func (h *BillHandler) embedSummary(ctx context.Context, bill *domain.Bill, fullText string) error {
	content := BuildBillSummary(bill, fullText, h.fallbackChars)
	if content == "" || runeLen(content) < h.minContent {
		logger.CtxWarn(ctx, "Bill summary too short, skipped: bill_id=%s length=%d", bill.ID, runeLen(content))
		return nil
	}

	vector, err := h.embedder.EmbedOne(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed summary of bill %s: %w", bill.ID, err)
	}

	existing, err := h.store.FindBillSummary(ctx, bill.ID)
	switch {
	case err == nil:
		if err := h.updateSummary(ctx, bill.ID, existing.ID, content, vector); err != nil {
			return err
		}
	case errors.Is(err, repository.ErrNotFound):
		row := &domain.BillEmbedding{
			BillID:     bill.ID,
			Kind:       domain.BillEmbeddingSummary,
			Content:    content,
			Embedding:  pgvector.NewVector(vector),
			Session:    bill.Session,
			BillNumber: bill.Number,
		}
		if err := h.store.InsertBillEmbedding(ctx, row); err != nil {
			if !repository.IsUniqueViolation(err) {
				return fmt.Errorf("failed to insert summary of bill %s: %w", bill.ID, err)
			}
			// Another invocation inserted the summary first; overwrite its row.
			logger.CtxDebug(ctx, "Bill summary inserted concurrently, updating instead: bill_id=%s", bill.ID)
			existing, err := h.store.FindBillSummary(ctx, bill.ID)
			if err != nil {
				return fmt.Errorf("failed to look up summary of bill %s: %w", bill.ID, err)
			}
			if err := h.updateSummary(ctx, bill.ID, existing.ID, content, vector); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("failed to look up summary of bill %s: %w", bill.ID, err)
	}

	mirrorPoint(ctx, h.mirror, &repository.MirrorPoint{
		Table:    domain.BillEmbedding{}.TableName(),
		SourceID: bill.ID,
		Kind:     string(domain.BillEmbeddingSummary),
		Content:  content,
		Vector:   vector,
	})
	return nil
}

func (h *BillHandler) updateSummary(ctx context.Context, billID, rowID, content string, vector []float32) error {
	if err := h.store.UpdateBillSummary(ctx, rowID, content, vector); err != nil {
		return fmt.Errorf("failed to update summary of bill %s: %w", billID, err)
	}
	return nil
}

type pendingChunk struct {
	index int
	text  string
}

func (h *BillHandler) embedChunks(ctx context.Context, bill *domain.Bill, fullText string) error {
	if runeLen(fullText) <= h.chunkSize+h.chunkOverlap {
		logger.CtxDebug(ctx, "Bill text fits in one window, chunking skipped: bill_id=%s length=%d", bill.ID, runeLen(fullText))
		return nil
	}

	stored, err := h.store.ListBillChunkIndices(ctx, bill.ID)
	if err != nil {
		return fmt.Errorf("failed to list chunks of bill %s: %w", bill.ID, err)
	}

	chunks := Chunk(fullText, h.chunkSize, h.chunkOverlap)
	pending := make([]pendingChunk, 0, len(chunks))
	var skippedExisting, skippedShort, inserted int
	for i, text := range chunks {
		if _, ok := stored[i]; ok {
			skippedExisting++
			continue
		}
		if runeLen(text) < h.minContent {
			skippedShort++
			continue
		}
		pending = append(pending, pendingChunk{index: i, text: text})
	}

	for start := 0; start < len(pending); start += chunkEmbedWindow {
		end := start + chunkEmbedWindow
		if end > len(pending) {
			end = len(pending)
		}
		window := pending[start:end]

		texts := make([]string, len(window))
		for i, p := range window {
			texts[i] = p.text
		}
		vectors, err := h.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks of bill %s: %w", bill.ID, err)
		}

		for i, p := range window {
			index := p.index
			row := &domain.BillEmbedding{
				BillID:     bill.ID,
				Kind:       domain.BillEmbeddingChunk,
				ChunkIndex: &index,
				Content:    p.text,
				Embedding:  pgvector.NewVector(vectors[i]),
				Session:    bill.Session,
				BillNumber: bill.Number,
			}
			if err := h.store.InsertBillEmbedding(ctx, row); err != nil {
				if repository.IsUniqueViolation(err) {
					// Another invocation stored the same chunk in the meantime.
					skippedExisting++
					continue
				}
				return fmt.Errorf("failed to insert chunk %d of bill %s: %w", index, bill.ID, err)
			}
			inserted++

			mirrorPoint(ctx, h.mirror, &repository.MirrorPoint{
				Table:      domain.BillEmbedding{}.TableName(),
				SourceID:   bill.ID,
				Kind:       string(domain.BillEmbeddingChunk),
				ChunkIndex: &index,
				Content:    p.text,
				Vector:     vectors[i],
			})
		}
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"bill_id":          bill.ID,
		"total":            len(chunks),
		"inserted":         inserted,
		"skipped_existing": skippedExisting,
		"skipped_short":    skippedShort,
	}).Info("Bill chunks embedded")
	return nil
}
