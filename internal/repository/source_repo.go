package repository

import (
	"context"

	"github.com/timmy/civicembed/internal/domain"
	"gorm.io/gorm"
)

// SourceRepository reads the source records the embedding handlers turn into
// content: bills, testimonies, donors and their contributions. It never writes.
type SourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository creates a new SourceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SourceRepository: repository instance bound to db.
func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// GetBill retrieves a bill by ID.
// Returns ErrNotFound when the bill does not exist.
func (r *SourceRepository) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	var bill domain.Bill
	if err := r.db.WithContext(ctx).First(&bill, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &bill, nil
}

// GetTestimony retrieves a testimony by ID.
// Returns ErrNotFound when the testimony does not exist.
func (r *SourceRepository) GetTestimony(ctx context.Context, id string) (*domain.Testimony, error) {
	var testimony domain.Testimony
	if err := r.db.WithContext(ctx).First(&testimony, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &testimony, nil
}

// GetDonor retrieves a donor by ID.
// Returns ErrNotFound when the donor does not exist.
func (r *SourceRepository) GetDonor(ctx context.Context, id string) (*domain.Donor, error) {
	var donor domain.Donor
	if err := r.db.WithContext(ctx).First(&donor, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &donor, nil
}

// CountContributions returns how many contributions a donor has in total and
// how many of them fall in the given category.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - donorID: grouping key.
//   - category: target category counted in matching.
// Returns:
//   - total: number of contributions for the donor.
//   - matching: number of contributions in category.
//   - err: non-nil if a query fails.
func (r *SourceRepository) CountContributions(ctx context.Context, donorID, category string) (total, matching int64, err error) {
	base := r.db.WithContext(ctx).Model(&domain.Contribution{}).Where("donor_id = ?", donorID)

	if err = base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, nil
	}
	if err = base.Session(&gorm.Session{}).Where("category = ?", category).Count(&matching).Error; err != nil {
		return 0, 0, err
	}
	return total, matching, nil
}

// SampleProfiles returns the employer/occupation pairs of up to limit
// contributions of a donor, most recent first. Missing values come back empty.
func (r *SourceRepository) SampleProfiles(ctx context.Context, donorID string, limit int) ([]domain.DonorProfile, error) {
	var rows []domain.Contribution
	if err := r.db.WithContext(ctx).
		Select("employer", "occupation").
		Where("donor_id = ?", donorID).
		Order("received_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	profiles := make([]domain.DonorProfile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, domain.DonorProfile{
			Employer:   deref(row.Employer),
			Occupation: deref(row.Occupation),
		})
	}
	return profiles, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
