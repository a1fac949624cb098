package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/repository"
)

// JobHandler embeds the source record a job points at.
// A nil error means the job is done, including when the record was skipped.
type JobHandler interface {
	Handle(ctx context.Context, sourceID string) error
}

// SourceReader reads the records handlers build content from.
type SourceReader interface {
	GetBill(ctx context.Context, id string) (*domain.Bill, error)
	GetTestimony(ctx context.Context, id string) (*domain.Testimony, error)
	GetDonor(ctx context.Context, id string) (*domain.Donor, error)
	CountContributions(ctx context.Context, donorID, category string) (total, matching int64, err error)
	SampleProfiles(ctx context.Context, donorID string, limit int) ([]domain.DonorProfile, error)
}

// EmbeddingStore writes vectors into the per-domain embedding tables.
type EmbeddingStore interface {
	FindBillSummary(ctx context.Context, billID string) (*domain.BillEmbedding, error)
	UpdateBillSummary(ctx context.Context, id, content string, vector []float32) error
	InsertBillEmbedding(ctx context.Context, row *domain.BillEmbedding) error
	ListBillChunkIndices(ctx context.Context, billID string) (map[int]struct{}, error)
	UpsertTestimonyEmbedding(ctx context.Context, row *domain.TestimonyEmbedding) error
	UpsertDonorEmbedding(ctx context.Context, row *domain.DonorEmbedding) error
}

// VectorMirror receives a copy of every stored embedding row.
type VectorMirror interface {
	Mirror(ctx context.Context, point *repository.MirrorPoint) error
}

// loadError maps a repository lookup failure onto ErrRecordNotFound when the
// record is missing.
func loadError(kind, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, kind, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

// mirrorPoint forwards a stored row to the mirror. Mirror failures are logged,
// never returned: the relational row is the source of truth.
func mirrorPoint(ctx context.Context, mirror VectorMirror, point *repository.MirrorPoint) {
	if mirror == nil {
		return
	}
	if err := mirror.Mirror(ctx, point); err != nil {
		logger.FromContext(ctx).WithFields(logger.Fields{
			"table":     point.Table,
			"source_id": point.SourceID,
			"kind":      point.Kind,
		}).WithError(err).Warn("Failed to mirror embedding")
	}
}
