package repository

import (
	"context"

	"github.com/timmy/civicembed/internal/domain"
	"gorm.io/gorm"
)

// JobRepository reads and transitions rows of the embed job queue.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// FetchQueued returns up to limit queued jobs, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of jobs to return.
// Returns:
//   - []domain.EmbedJob: queued jobs ordered by created_at.
//   - error: non-nil if the query fails.
func (r *JobRepository) FetchQueued(ctx context.Context, limit int) ([]domain.EmbedJob, error) {
	var jobs []domain.EmbedJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusQueued).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim moves a job from queued to processing. It returns false when the job is
// no longer queued, which happens when an overlapping invocation claimed it first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - bool: true if this call performed the transition.
//   - error: non-nil if the update fails.
func (r *JobRepository) Claim(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.EmbedJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status": domain.JobStatusProcessing,
			"error":  nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkDone records a successful job.
func (r *JobRepository) MarkDone(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.EmbedJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": domain.JobStatusDone,
			"error":  nil,
		}).Error
}

// MarkError records a failed job and the (already truncated) error message.
func (r *JobRepository) MarkError(ctx context.Context, id string, message string) error {
	return r.db.WithContext(ctx).Model(&domain.EmbedJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": domain.JobStatusError,
			"error":  message,
		}).Error
}

// CountByStatus returns the number of jobs in each status. Statuses without
// jobs are reported as zero.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - map[domain.JobStatus]int64: job count keyed by status.
//   - error: non-nil if the query fails.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.EmbedJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := map[domain.JobStatus]int64{
		domain.JobStatusQueued:     0,
		domain.JobStatusProcessing: 0,
		domain.JobStatusDone:       0,
		domain.JobStatusError:      0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
