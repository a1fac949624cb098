package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/repository"
	"github.com/timmy/civicembed/internal/storage"
	"gorm.io/gorm"
)

var longBillText = strings.Repeat("abcdefghij", 500)

func seedBill(t *testing.T, db *gorm.DB, bill *domain.Bill) {
	t.Helper()
	require.NoError(t, db.Create(bill).Error)
}

func newTestBillHandler(db *gorm.DB, embedder Embedder) *BillHandler {
	return NewBillHandler(
		repository.NewSourceRepository(db),
		repository.NewEmbeddingRepository(db),
		embedder,
		nil,
		nil,
		testWorkerConfig(),
	)
}

func TestBillHandlerEmbedsSummaryAndChunks(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:         "hb-101",
		Session:    "2024",
		Number:     "HB 101",
		ShortTitle: strPtr("Clean Water Act"),
		Summary:    strPtr("Funds wells across the state."),
		FullText:   strPtr(longBillText),
	})

	embedder := &fakeEmbedder{}
	require.NoError(t, newTestBillHandler(db, embedder).Handle(context.Background(), "hb-101"))

	var summary domain.BillEmbedding
	require.NoError(t, db.First(&summary, "bill_id = ? AND kind = ?", "hb-101", domain.BillEmbeddingSummary).Error)
	assert.Nil(t, summary.ChunkIndex)
	assert.Equal(t, "Clean Water Act\n\nFunds wells across the state.", summary.Content)
	assert.Equal(t, "HB 101", summary.BillNumber)
	assert.Len(t, summary.Embedding.Slice(), testDims)

	var chunks []domain.BillEmbedding
	require.NoError(t, db.Where("bill_id = ? AND kind = ?", "hb-101", domain.BillEmbeddingChunk).
		Order("chunk_index ASC").Find(&chunks).Error)
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		require.NotNil(t, c.ChunkIndex)
		assert.Equal(t, i, *c.ChunkIndex)
	}
	assert.Equal(t, longBillText[:1400], chunks[0].Content)

	require.Equal(t, 2, embedder.callCount())
	assert.Len(t, embedder.calls[1], 4)
}

func TestBillHandlerIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:       "hb-102",
		Title:    strPtr("An act relating to water rights"),
		Summary:  strPtr("Clarifies water rights."),
		FullText: strPtr(longBillText),
	})

	embedder := &fakeEmbedder{}
	handler := newTestBillHandler(db, embedder)
	require.NoError(t, handler.Handle(context.Background(), "hb-102"))

	var first domain.BillEmbedding
	require.NoError(t, db.First(&first, "bill_id = ? AND kind = ?", "hb-102", domain.BillEmbeddingSummary).Error)

	require.NoError(t, handler.Handle(context.Background(), "hb-102"))

	assert.EqualValues(t, 1, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ? AND kind = ?", "hb-102", domain.BillEmbeddingSummary))
	assert.EqualValues(t, 4, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ? AND kind = ?", "hb-102", domain.BillEmbeddingChunk))

	var second domain.BillEmbedding
	require.NoError(t, db.First(&second, "bill_id = ? AND kind = ?", "hb-102", domain.BillEmbeddingSummary).Error)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Content, second.Content)

	// The second run re-embeds the summary only.
	assert.Equal(t, 3, embedder.callCount())
}

func TestBillHandlerResumesAfterPartialFailure(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:       "hb-103",
		Title:    strPtr("An act relating to schools"),
		FullText: strPtr(longBillText),
	})

	embedder := &fakeEmbedder{fail: func(texts []string) error {
		if len(texts) > 1 {
			return errors.New("upstream unavailable")
		}
		return nil
	}}
	handler := newTestBillHandler(db, embedder)

	err := handler.Handle(context.Background(), "hb-103")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.EqualValues(t, 1, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ?", "hb-103"))

	embedder.fail = nil
	require.NoError(t, handler.Handle(context.Background(), "hb-103"))
	assert.EqualValues(t, 1, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ? AND kind = ?", "hb-103", domain.BillEmbeddingSummary))
	assert.EqualValues(t, 4, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ? AND kind = ?", "hb-103", domain.BillEmbeddingChunk))
}

func TestBillHandlerSkipsChunkingForShortText(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:       "hb-104",
		Title:    strPtr("An act relating to parks"),
		FullText: strPtr(strings.Repeat("x", 1600)),
	})

	embedder := &fakeEmbedder{}
	require.NoError(t, newTestBillHandler(db, embedder).Handle(context.Background(), "hb-104"))

	assert.EqualValues(t, 1, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ?", "hb-104"))
	assert.Equal(t, 1, embedder.callCount())
}

func TestBillHandlerSkipsShortSummary(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{ID: "hb-105", Title: strPtr("Tax")})

	embedder := &fakeEmbedder{}
	require.NoError(t, newTestBillHandler(db, embedder).Handle(context.Background(), "hb-105"))

	assert.Zero(t, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ?", "hb-105"))
	assert.Zero(t, embedder.callCount())
}

func TestBillHandlerMissingBill(t *testing.T) {
	db := newTestDB(t)
	err := newTestBillHandler(db, &fakeEmbedder{}).Handle(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestBillHandlerReadsFullTextFromStorage(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:          "hb-106",
		Title:       strPtr("An act relating to roads"),
		FullTextKey: strPtr("2024/hb-106.txt"),
	})
	seedBill(t, db, &domain.Bill{
		ID:          "hb-107",
		Title:       strPtr("An act relating to bridges"),
		FullTextKey: strPtr("2024/missing.txt"),
	})

	texts := fakeObjectStorage{"2024/hb-106.txt": longBillText}
	handler := NewBillHandler(
		repository.NewSourceRepository(db),
		repository.NewEmbeddingRepository(db),
		&fakeEmbedder{},
		texts,
		nil,
		testWorkerConfig(),
	)

	require.NoError(t, handler.Handle(context.Background(), "hb-106"))
	assert.EqualValues(t, 4, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ? AND kind = ?", "hb-106", domain.BillEmbeddingChunk))

	err := handler.Handle(context.Background(), "hb-107")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such key")
}

func TestBillHandlerMirrorsStoredRows(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:       "hb-108",
		Title:    strPtr("An act relating to ferries"),
		FullText: strPtr(longBillText),
	})

	mirror := &fakeMirror{err: errors.New("qdrant down")}
	handler := NewBillHandler(
		repository.NewSourceRepository(db),
		repository.NewEmbeddingRepository(db),
		&fakeEmbedder{},
		nil,
		mirror,
		testWorkerConfig(),
	)

	require.NoError(t, handler.Handle(context.Background(), "hb-108"), "mirror failures do not fail the job")
	require.Len(t, mirror.points, 5)
	assert.Equal(t, "summary", mirror.points[0].Kind)
	assert.Nil(t, mirror.points[0].ChunkIndex)
	require.NotNil(t, mirror.points[4].ChunkIndex)
	assert.Equal(t, 3, *mirror.points[4].ChunkIndex)
	assert.Equal(t, "bill_embeddings", mirror.points[4].Table)
}

// racingStore reports no stored chunks, as if another invocation inserted them
// after the lookup.
type racingStore struct {
	*repository.EmbeddingRepository
}

func (racingStore) ListBillChunkIndices(context.Context, string) (map[int]struct{}, error) {
	return map[int]struct{}{}, nil
}

func TestBillHandlerTreatsDuplicateChunkAsDone(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:       "hb-109",
		Title:    strPtr("An act relating to harbors"),
		FullText: strPtr(longBillText),
	})

	require.NoError(t, newTestBillHandler(db, &fakeEmbedder{}).Handle(context.Background(), "hb-109"))

	racing := NewBillHandler(
		repository.NewSourceRepository(db),
		racingStore{repository.NewEmbeddingRepository(db)},
		&fakeEmbedder{},
		nil,
		nil,
		testWorkerConfig(),
	)
	require.NoError(t, racing.Handle(context.Background(), "hb-109"))
	assert.EqualValues(t, 4, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ? AND kind = ?", "hb-109", domain.BillEmbeddingChunk))
}

// lateSummaryStore misses the summary on its first lookup, the way a run does
// when another run inserts the summary between its lookup and its insert.
type lateSummaryStore struct {
	*repository.EmbeddingRepository
	lookups int
}

func (s *lateSummaryStore) FindBillSummary(ctx context.Context, billID string) (*domain.BillEmbedding, error) {
	s.lookups++
	if s.lookups == 1 {
		return nil, repository.ErrNotFound
	}
	return s.EmbeddingRepository.FindBillSummary(ctx, billID)
}

func TestBillHandlerUpdatesSummaryInsertedConcurrently(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:      "hb-110",
		Title:   strPtr("An act relating to ferries"),
		Summary: strPtr("Adds a ferry route to the islands."),
	})

	repo := repository.NewEmbeddingRepository(db)
	require.NoError(t, repo.InsertBillEmbedding(context.Background(), &domain.BillEmbedding{
		BillID:    "hb-110",
		Kind:      domain.BillEmbeddingSummary,
		Content:   "written by the other run",
		Embedding: pgvector.NewVector([]float32{9, 9, 9, 9}),
	}))

	store := &lateSummaryStore{EmbeddingRepository: repo}
	handler := NewBillHandler(repository.NewSourceRepository(db), store, &fakeEmbedder{}, nil, nil, testWorkerConfig())
	require.NoError(t, handler.Handle(context.Background(), "hb-110"))

	assert.Equal(t, 2, store.lookups)
	assert.EqualValues(t, 1, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ? AND kind = ?", "hb-110", domain.BillEmbeddingSummary))

	summary, err := repo.FindBillSummary(context.Background(), "hb-110")
	require.NoError(t, err)
	assert.Equal(t, "An act relating to ferries\n\nAdds a ferry route to the islands.", summary.Content)
}

func TestBillHandlerRejectsOversizedStoredText(t *testing.T) {
	db := newTestDB(t)
	seedBill(t, db, &domain.Bill{
		ID:          "hb-111",
		Title:       strPtr("An act relating to tunnels"),
		FullTextKey: strPtr("2024/hb-111.txt"),
	})

	handler := NewBillHandler(
		repository.NewSourceRepository(db),
		repository.NewEmbeddingRepository(db),
		&fakeEmbedder{},
		fakeObjectStorage{"2024/hb-111.txt": longBillText},
		nil,
		testWorkerConfig(),
	)
	handler.maxTextBytes = 1000

	err := handler.Handle(context.Background(), "hb-111")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrObjectTooLarge)
	assert.Zero(t, countRows(t, db, &domain.BillEmbedding{}, "bill_id = ?", "hb-111"))
}
