package core

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

const (
	StatusValidated BatchStatus = "validated"
	StatusImported  BatchStatus = "imported"
	StatusFailed    BatchStatus = "failed"
)

// ImportBatch is the ledger entry for one upload attempt.
type ImportBatch struct {
	ID              uuid.UUID   `json:"batch_id"`
	Concept         string      `json:"concept"`
	SourceFilename  string      `json:"source_filename"`
	SourceHash      string      `json:"source_hash"`
	SourceObjectKey string      `json:"source_object_key,omitempty"`
	Token           string      `json:"-"`
	TotalRows       int         `json:"total_rows"`
	ValidRows       int         `json:"valid_rows"`
	ErrorRows       int         `json:"error_rows"`
	InsertedRows    int         `json:"inserted_rows"`
	Status          BatchStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	ValidatedAt     time.Time   `json:"validated_at"`
	CommittedAt     *time.Time  `json:"committed_at,omitempty"`
	SupersededAt    *time.Time  `json:"superseded_at,omitempty"`
}

// FieldError is one entry of a staged row's error list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportRow is the staged snapshot of one spreadsheet data row.
// Rows are written once at validation time and never updated.
type ImportRow struct {
	BatchID   uuid.UUID         `json:"batch_id"`
	RowNumber int               `json:"row_number"`
	Data      map[string]string `json:"data"`
	IsValid   bool              `json:"is_valid"`
	Errors    []FieldError      `json:"errors"`
}

// CatalogEntry is a read-only reference catalog record, e.g. a category.
type CatalogEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Lead is a committed record together with its provenance.
type Lead struct {
	Name            string
	Type            string
	CategoryID      int64
	Phone           string
	Email           string
	Address         string
	Web             string
	Contact         string
	City            string
	Notes           string
	ImportBatchID   uuid.UUID
	ImportRowNumber int
}

// BatchFinalization carries the outcome of a commit into the ledger.
type BatchFinalization struct {
	Concept      string
	InsertedRows int
	ErrorRows    int
	Status       BatchStatus
	CommittedAt  time.Time
}
