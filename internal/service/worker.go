package service

import (
	"context"
	"fmt"

	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/repository"
	"github.com/timmy/civicembed/internal/storage"
	"gorm.io/gorm"
)

// Worker bundles a batch runner with the clients it owns.
type Worker struct {
	Runner   *BatchRunner
	Embedder *EmbeddingClient
	Jobs     *repository.JobRepository

	closers []func() error
}

// NewWorker wires repositories, the embedding client, the optional Qdrant
// mirror and the optional bill text bucket into a runner.
// A bad embedding configuration is reported as a *ConfigError.
func NewWorker(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Worker, error) {
	embedder, err := NewEmbeddingClient(&cfg.Embedding)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		Embedder: embedder,
		Jobs:     repository.NewJobRepository(db),
	}

	var mirror VectorMirror
	if cfg.Qdrant.Enabled {
		qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Qdrant repository: %w", err)
		}
		w.closers = append(w.closers, qdrantRepo.Close)

		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to ensure Qdrant collection: %w", err)
		}
		mirror = qdrantRepo
		logger.CtxInfo(ctx, "Qdrant mirror enabled: collection=%s", cfg.Qdrant.Collection)
	}

	var texts storage.ObjectStorage
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := objectStorage.CheckBucket(ctx); err != nil {
			w.Close()
			return nil, err
		}
		texts = objectStorage
		logger.CtxInfo(ctx, "Bill text storage enabled: bucket=%s", cfg.Storage.Bucket)
	}

	sources := repository.NewSourceRepository(db)
	embeddings := repository.NewEmbeddingRepository(db)

	w.Runner = NewBatchRunner(
		w.Jobs,
		NewBillHandler(sources, embeddings, embedder, texts, mirror, &cfg.Worker),
		NewTestimonyHandler(sources, embeddings, embedder, mirror, &cfg.Worker),
		NewDonorHandler(sources, embeddings, embedder, mirror, &cfg.Worker),
		&cfg.Worker,
	)
	return w, nil
}

// Close releases the clients owned by the worker.
func (w *Worker) Close() {
	for _, closeFn := range w.closers {
		if err := closeFn(); err != nil {
			logger.Warn("Failed to close worker client: %v", err)
		}
	}
	w.closers = nil
}
