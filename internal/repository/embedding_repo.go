package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/timmy/civicembed/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingRepository writes vectors into the per-domain embedding tables.
// Every write touches a single row; idempotence comes from the unique keys.
type EmbeddingRepository struct {
	db *gorm.DB
}

// NewEmbeddingRepository creates a new EmbeddingRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *EmbeddingRepository: repository instance bound to db.
func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// FindBillSummary returns the summary row of a bill, or ErrNotFound.
func (r *EmbeddingRepository) FindBillSummary(ctx context.Context, billID string) (*domain.BillEmbedding, error) {
	var row domain.BillEmbedding
	if err := r.db.WithContext(ctx).
		Where("bill_id = ? AND kind = ? AND chunk_index IS NULL", billID, domain.BillEmbeddingSummary).
		First(&row).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &row, nil
}

// UpdateBillSummary replaces content and vector of an existing summary row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: summary row ID.
//   - content: text that was embedded.
//   - vector: embedding of content.
// Returns:
//   - error: ErrNotFound if the row vanished, non-nil if the update fails.
func (r *EmbeddingRepository) UpdateBillSummary(ctx context.Context, id, content string, vector []float32) error {
	result := r.db.WithContext(ctx).Model(&domain.BillEmbedding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"embedding": pgvector.NewVector(vector),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("bill embedding %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertBillEmbedding inserts a summary or chunk row. A conflict on
// (bill_id, kind, chunk_index) surfaces as an error IsUniqueViolation accepts.
func (r *EmbeddingRepository) InsertBillEmbedding(ctx context.Context, row *domain.BillEmbedding) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// ListBillChunkIndices returns the chunk indices already stored for a bill.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - billID: bill identifier.
// Returns:
//   - map[int]struct{}: set of stored chunk indices.
//   - error: non-nil if the query fails.
func (r *EmbeddingRepository) ListBillChunkIndices(ctx context.Context, billID string) (map[int]struct{}, error) {
	var indices []int
	if err := r.db.WithContext(ctx).Model(&domain.BillEmbedding{}).
		Where("bill_id = ? AND kind = ? AND chunk_index IS NOT NULL", billID, domain.BillEmbeddingChunk).
		Pluck("chunk_index", &indices).Error; err != nil {
		return nil, err
	}

	set := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		set[idx] = struct{}{}
	}
	return set, nil
}

// UpsertTestimonyEmbedding inserts or replaces the single row of a testimony.
func (r *EmbeddingRepository) UpsertTestimonyEmbedding(ctx context.Context, row *domain.TestimonyEmbedding) error {
	row.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "testimony_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"bill_id", "content", "embedding", "updated_at"}),
	}).Create(row).Error
}

// UpsertDonorEmbedding inserts or replaces the single row of a donor.
func (r *EmbeddingRepository) UpsertDonorEmbedding(ctx context.Context, row *domain.DonorEmbedding) error {
	row.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "donor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "content", "embedding", "updated_at"}),
	}).Create(row).Error
}
