package domain

import "time"

// Bill is a legislative bill. It is the long-document source: its text is split
// into overlapping chunks and embedded alongside a whole-document summary.
type Bill struct {
	ID         string  `gorm:"type:text;primaryKey" json:"id"`
	Session    string  `gorm:"type:text;index" json:"session"`
	Number     string  `gorm:"type:text" json:"number"`
	Title      *string `json:"title,omitempty"`
	ShortTitle *string `json:"short_title,omitempty"`
	Summary    *string `json:"summary,omitempty"`
	FullText   *string `json:"full_text,omitempty"`

	// FullTextKey points at the full text in object storage when it is not inlined.
	FullTextKey *string   `json:"full_text_key,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Bill.
func (Bill) TableName() string {
	return "bills"
}

// Testimony is a witness statement filed against a bill.
type Testimony struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	BillID       string    `gorm:"type:text;index" json:"bill_id"`
	WitnessName  *string   `json:"witness_name,omitempty"`
	Representing *string   `json:"representing,omitempty"`
	Position     *string   `json:"position,omitempty"`
	Comment      *string   `json:"comment,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Testimony.
func (Testimony) TableName() string {
	return "testimonies"
}
