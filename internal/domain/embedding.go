package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// BillEmbeddingKind distinguishes the whole-document row from chunk rows.
type BillEmbeddingKind string

const (
	BillEmbeddingSummary BillEmbeddingKind = "summary"
	BillEmbeddingChunk   BillEmbeddingKind = "chunk"
)

// BillEmbedding stores one vector for a bill. ChunkIndex is nil for the summary
// row and a dense 0-based index for chunk rows. NULL chunk indexes never collide
// in idx_bill_embeddings_chunk, so idx_bill_embeddings_summary keeps the summary
// row unique per bill.
type BillEmbedding struct {
	ID         string            `gorm:"type:text;primaryKey" json:"id"`
	BillID     string            `gorm:"type:text;not null;uniqueIndex:idx_bill_embeddings_chunk,priority:1;uniqueIndex:idx_bill_embeddings_summary,where:chunk_index IS NULL" json:"bill_id"`
	Kind       BillEmbeddingKind `gorm:"type:text;not null;uniqueIndex:idx_bill_embeddings_chunk,priority:2" json:"kind"`
	ChunkIndex *int              `gorm:"uniqueIndex:idx_bill_embeddings_chunk,priority:3" json:"chunk_index"`
	Content    string            `gorm:"type:text;not null" json:"content"`
	Embedding  pgvector.Vector   `gorm:"type:vector;not null" json:"-"`
	Session    string            `gorm:"type:text" json:"session"`
	BillNumber string            `gorm:"type:text" json:"bill_number"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TableName returns the database table name for BillEmbedding.
func (BillEmbedding) TableName() string {
	return "bill_embeddings"
}

// TestimonyEmbedding holds the single vector of a testimony.
type TestimonyEmbedding struct {
	TestimonyID string          `gorm:"type:text;primaryKey" json:"testimony_id"`
	BillID      string          `gorm:"type:text;index" json:"bill_id"`
	Content     string          `gorm:"type:text;not null" json:"content"`
	Embedding   pgvector.Vector `gorm:"type:vector;not null" json:"-"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName returns the database table name for TestimonyEmbedding.
func (TestimonyEmbedding) TableName() string {
	return "testimony_embeddings"
}

// DonorEmbedding holds the single vector of a donor aggregate.
type DonorEmbedding struct {
	DonorID   string          `gorm:"type:text;primaryKey" json:"donor_id"`
	Name      string          `gorm:"type:text" json:"name"`
	Content   string          `gorm:"type:text;not null" json:"content"`
	Embedding pgvector.Vector `gorm:"type:vector;not null" json:"-"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName returns the database table name for DonorEmbedding.
func (DonorEmbedding) TableName() string {
	return "donor_embeddings"
}
