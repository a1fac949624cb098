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

// majorityShare is the share of contributions that must fall in the target
// category, strictly exceeded, before a donor is embedded.
const majorityShare = 0.5

// DonorHandler embeds a donor from the contributions filed under it.
type DonorHandler struct {
	sources        SourceReader
	store          EmbeddingStore
	embedder       Embedder
	mirror         VectorMirror
	targetCategory string
	sampleSize     int
	minContent     int
}

// NewDonorHandler creates a donor handler. mirror may be nil.
func NewDonorHandler(sources SourceReader, store EmbeddingStore, embedder Embedder, mirror VectorMirror, cfg *config.WorkerConfig) *DonorHandler {
	return &DonorHandler{
		sources:        sources,
		store:          store,
		embedder:       embedder,
		mirror:         mirror,
		targetCategory: cfg.TargetCategory,
		sampleSize:     cfg.ProfileSampleSize,
		minContent:     cfg.MinContentLength,
	}
}

// Handle embeds the donor when most of its contributions are in the target
// category. Donors without contributions or without a majority are skipped.
func (h *DonorHandler) Handle(ctx context.Context, donorID string) error {
	total, matching, err := h.sources.CountContributions(ctx, donorID, h.targetCategory)
	if err != nil {
		return fmt.Errorf("failed to count contributions of donor %s: %w", donorID, err)
	}
	if total == 0 {
		logger.CtxInfo(ctx, "Donor has no contributions, skipped: donor_id=%s", donorID)
		return nil
	}
	if float64(matching)/float64(total) <= majorityShare {
		logger.CtxInfo(ctx, "Donor is not mostly %s, skipped: donor_id=%s matching=%d total=%d",
			h.targetCategory, donorID, matching, total)
		return nil
	}

	donor, err := h.sources.GetDonor(ctx, donorID)
	if err != nil {
		return loadError("donor", donorID, err)
	}

	profiles, err := h.sources.SampleProfiles(ctx, donorID, h.sampleSize)
	if err != nil {
		return fmt.Errorf("failed to sample contributions of donor %s: %w", donorID, err)
	}
	employers := make([]string, 0, len(profiles))
	occupations := make([]string, 0, len(profiles))
	for _, p := range profiles {
		employers = append(employers, p.Employer)
		occupations = append(occupations, p.Occupation)
	}
	employer, occupation := SelectDonorDisplayParts(employers, occupations)

	content := BuildDonorContent(donor.Name, employer, occupation)
	if content == "" || runeLen(content) < h.minContent {
		logger.CtxInfo(ctx, "Donor content too short, skipped: donor_id=%s length=%d", donorID, runeLen(content))
		return nil
	}

	vector, err := h.embedder.EmbedOne(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed donor %s: %w", donorID, err)
	}

	row := &domain.DonorEmbedding{
		DonorID:   donor.ID,
		Name:      donor.Name,
		Content:   content,
		Embedding: pgvector.NewVector(vector),
	}
	if err := h.store.UpsertDonorEmbedding(ctx, row); err != nil {
		return fmt.Errorf("failed to store embedding of donor %s: %w", donorID, err)
	}

	mirrorPoint(ctx, h.mirror, &repository.MirrorPoint{
		Table:    row.TableName(),
		SourceID: donor.ID,
		Content:  content,
		Vector:   vector,
	})
	return nil
}
