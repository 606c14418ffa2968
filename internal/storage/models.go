// Package storage provides database access for documents, jobs, pages and
// sentences. Repositories use raw SQL with positional placeholders so the
// same statements run against both SQLite (development) and Postgres
// (production).
package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/cmoscardi/textbook-tts/internal/sentence"
)

// JobStatus is the lifecycle state of a pipeline job. The set is closed;
// repositories reject writes carrying any other value.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Document is a source PDF registered by the calling system. The pipeline
// reads StoragePath and writes the parsed text fields; everything else is
// owned by the caller.
type Document struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OwnerID     uuid.UUID  `json:"owner_id" db:"owner_id"`
	Name        string     `json:"name" db:"name"`
	StoragePath string     `json:"storage_path" db:"storage_path"`
	ParsedText  *string    `json:"parsed_text,omitempty" db:"parsed_text"`
	RawMarkdown *string    `json:"raw_markdown,omitempty" db:"raw_markdown"`
	ParsedAt    *time.Time `json:"parsed_at,omitempty" db:"parsed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// ParseJob tracks one run of the parse stage for a document.
type ParseJob struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DocumentID   uuid.UUID `json:"document_id" db:"document_id"`
	Status       JobStatus `json:"status" db:"status"`
	Progress     int       `json:"progress" db:"progress"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ConvertJob tracks one run of the convert stage for a document.
// OutputPath is set on completion with the uploaded artifact's object path.
type ConvertJob struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DocumentID   uuid.UUID `json:"document_id" db:"document_id"`
	Status       JobStatus `json:"status" db:"status"`
	Progress     int       `json:"progress" db:"progress"`
	OutputPath   *string   `json:"output_path,omitempty" db:"output_path"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Page is one recognized page of a document. PageNumber is zero-indexed;
// Text holds the page's markdown before normalization.
type Page struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	PageNumber int       `json:"page_number" db:"page_number"`
	Width      float64   `json:"width" db:"width"`
	Height     float64   `json:"height" db:"height"`
	Text       string    `json:"text" db:"text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Sentence is one aggregated sentence with the polygons it draws from.
// SequenceNumber orders sentences across the whole document.
type Sentence struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	PageID         uuid.UUID          `json:"page_id" db:"page_id"`
	DocumentID     uuid.UUID          `json:"document_id" db:"document_id"`
	Text           string             `json:"text" db:"text"`
	SequenceNumber int                `json:"sequence_number" db:"sequence_number"`
	Regions        []sentence.Polygon `json:"regions" db:"regions"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}
