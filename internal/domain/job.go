package domain

import "time"

// JobStatus represents the status of an embed job.
// Values include JobStatusQueued, JobStatusProcessing, JobStatusDone, and JobStatusError.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// JobDomain identifies the kind of source record a job points at.
type JobDomain string

const (
	// DomainBill is the long-document domain: bills are chunked.
	DomainBill JobDomain = "bill"
	// DomainTestimony is the single-document domain.
	DomainTestimony JobDomain = "testimony"
	// DomainDonor is the aggregate domain guarded by the majority rule.
	DomainDonor JobDomain = "donor"
)

// EmbedJob is one queued request to (re)compute the embedding of a source record.
// Jobs are created by database triggers outside this service; the worker only moves
// them from queued to processing and then to done or error.
type EmbedJob struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Domain    JobDomain `gorm:"type:text;not null" json:"domain"`
	SourceID  string    `gorm:"type:text;not null" json:"source_id"`
	Status    JobStatus `gorm:"type:text;not null;default:queued;index:idx_embed_jobs_status_created,priority:1" json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_embed_jobs_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for EmbedJob.
func (EmbedJob) TableName() string {
	return "embed_jobs"
}
