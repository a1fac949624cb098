package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/repository"
	"gorm.io/gorm"
)

const testDims = 4

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "civicembed.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testWorkerConfig() *config.WorkerConfig {
	return &config.WorkerConfig{
		MaxJobs:              100,
		FetchLimit:           25,
		ChunkSize:            1400,
		ChunkOverlap:         200,
		MinContentLength:     20,
		TargetCategory:       "individual",
		ErrorMaxLength:       500,
		SummaryFallbackChars: 1800,
		ProfileSampleSize:    200,
	}
}

// fakeEmbedder returns [rune length, 1, 0, 0] for every text.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	fail  func(texts []string) error
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.fail != nil {
		if err := f.fail(texts); err != nil {
			return nil, err
		}
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(runeLen(text)), 1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMirror struct {
	points []*repository.MirrorPoint
	err    error
}

func (m *fakeMirror) Mirror(_ context.Context, point *repository.MirrorPoint) error {
	m.points = append(m.points, point)
	return m.err
}

type fakeObjectStorage map[string]string

func (s fakeObjectStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	text, ok := s[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	return io.NopCloser(bytes.NewBufferString(text)), nil
}

func seedJob(t *testing.T, db *gorm.DB, id string, d domain.JobDomain, sourceID string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&domain.EmbedJob{
		ID:        id,
		Domain:    d,
		SourceID:  sourceID,
		Status:    domain.JobStatusQueued,
		CreatedAt: createdAt,
	}).Error)
}

func loadJob(t *testing.T, db *gorm.DB, id string) domain.EmbedJob {
	t.Helper()
	var job domain.EmbedJob
	require.NoError(t, db.First(&job, "id = ?", id).Error)
	return job
}

func seedContributions(t *testing.T, db *gorm.DB, donorID string, categories ...string) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, category := range categories {
		require.NoError(t, db.Create(&domain.Contribution{
			ID:          fmt.Sprintf("%s-c%d", donorID, i),
			DonorID:     donorID,
			Category:    category,
			Employer:    strPtr("Acme"),
			Occupation:  strPtr("Engineer"),
			AmountCents: 10000,
			ReceivedAt:  base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
