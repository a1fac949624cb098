package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/domain"
	"github.com/timmy/civicembed/internal/logger"
)

// JobQueue is the job table as seen by the runner.
type JobQueue interface {
	FetchQueued(ctx context.Context, limit int) ([]domain.EmbedJob, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkDone(ctx context.Context, id string) error
	MarkError(ctx context.Context, id string, message string) error
}

// RunSummary is the result of one runner invocation.
type RunSummary struct {
	Processed  int   `json:"processed"`
	Done       int   `json:"done"`
	Errored    int   `json:"errored"`
	DurationMs int64 `json:"duration_ms"`
}

// BatchRunner drains queued jobs one at a time and dispatches them by domain.
type BatchRunner struct {
	jobs       JobQueue
	bills      JobHandler
	testimony  JobHandler
	donors     JobHandler
	maxJobs    int
	fetchLimit int
	maxError   int
}

// NewBatchRunner creates a runner over the given queue and domain handlers.
func NewBatchRunner(jobs JobQueue, bills, testimony, donors JobHandler, cfg *config.WorkerConfig) *BatchRunner {
	return &BatchRunner{
		jobs:       jobs,
		bills:      bills,
		testimony:  testimony,
		donors:     donors,
		maxJobs:    cfg.MaxJobs,
		fetchLimit: cfg.FetchLimit,
		maxError:   cfg.ErrorMaxLength,
	}
}

// Run processes queued jobs, oldest first, until the queue is exhausted or
// the per-invocation cap is reached. A failing job is marked error and the
// run continues; only job store failures end the run early, in which case the
// partial summary is returned together with the error.
//
// Canceling ctx stops the run before the next claim. A job already claimed
// runs to completion and gets its final status regardless.
func (r *BatchRunner) Run(ctx context.Context) (*RunSummary, error) {
	ctx = logger.SetInvocationID(ctx, uuid.New().String())
	start := time.Now()
	summary := &RunSummary{}

	defer func() {
		summary.DurationMs = time.Since(start).Milliseconds()
	}()

	logger.FromContext(ctx).WithFields(logger.Fields{
		"max_jobs":    r.maxJobs,
		"fetch_limit": r.fetchLimit,
	}).Info("Starting embed run")

	for summary.Processed < r.maxJobs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		limit := r.maxJobs - summary.Processed
		if limit > r.fetchLimit {
			limit = r.fetchLimit
		}

		jobs, err := r.jobs.FetchQueued(ctx, limit)
		if err != nil {
			return summary, fmt.Errorf("failed to fetch queued jobs: %w", err)
		}

		for i := range jobs {
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			job := &jobs[i]
			claimed, err := r.jobs.Claim(ctx, job.ID)
			if err != nil {
				return summary, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
			}
			if !claimed {
				logger.CtxDebug(ctx, "Job already claimed by another run: job_id=%s", job.ID)
				continue
			}

			jobCtx := context.WithoutCancel(ctx)
			summary.Processed++
			if err := r.runJob(jobCtx, job); err != nil {
				summary.Errored++
				if markErr := r.jobs.MarkError(jobCtx, job.ID, truncateText(err.Error(), r.maxError)); markErr != nil {
					return summary, fmt.Errorf("failed to mark job %s as error: %w", job.ID, markErr)
				}
				continue
			}

			summary.Done++
			if err := r.jobs.MarkDone(jobCtx, job.ID); err != nil {
				return summary, fmt.Errorf("failed to mark job %s as done: %w", job.ID, err)
			}
		}

		if len(jobs) < limit {
			break
		}
	}

	logger.With(logger.Fields{
		"processed": summary.Processed,
		"done":      summary.Done,
		"errored":   summary.Errored,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Embed run completed")

	return summary, nil
}

// runJob dispatches one claimed job. A panicking handler fails only its job.
func (r *BatchRunner) runJob(ctx context.Context, job *domain.EmbedJob) (err error) {
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldDomain:   string(job.Domain),
		logger.FieldSourceID: job.SourceID,
	})
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
		entry := logger.With(logger.Fields{}).WithDuration(time.Since(start).Milliseconds())
		if err != nil {
			entry.Error(ctx, "Job failed: %v", err)
			return
		}
		entry.Info(ctx, "Job done")
	}()

	handler, err := r.handlerFor(job.Domain)
	if err != nil {
		return err
	}
	return handler.Handle(ctx, job.SourceID)
}

func (r *BatchRunner) handlerFor(d domain.JobDomain) (JobHandler, error) {
	var handler JobHandler
	switch d {
	case domain.DomainBill:
		handler = r.bills
	case domain.DomainTestimony:
		handler = r.testimony
	case domain.DomainDonor:
		handler = r.donors
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDomain, d)
	}
	if handler == nil {
		return nil, fmt.Errorf("no handler registered for domain %q", d)
	}
	return handler, nil
}
