package domain

import "time"

// Donor is a campaign contributor. Its embedding is derived from the
// contributions filed under its id rather than from a single row.
type Donor struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Donor.
func (Donor) TableName() string {
	return "donors"
}

// Contribution is a single reported contribution made by a donor.
type Contribution struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	DonorID     string    `gorm:"type:text;not null;index" json:"donor_id"`
	Category    string    `gorm:"type:text;index" json:"category"`
	Employer    *string   `json:"employer,omitempty"`
	Occupation  *string   `json:"occupation,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	ReceivedAt  time.Time `json:"received_at"`
}

// TableName returns the database table name for Contribution.
func (Contribution) TableName() string {
	return "contributions"
}

// DonorProfile is the sampled employer/occupation pair of one contribution.
type DonorProfile struct {
	Employer   string
	Occupation string
}
