package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type ImportBatch struct {
	ID              uuid.UUID
	Concept         string
	SourceFilename  string
	SourceHash      string
	SourceObjectKey pgtype.Text
	Token           string
	TotalRows       int32
	ValidRows       int32
	ErrorRows       int32
	InsertedRows    int32
	Status          string
	CreatedAt       time.Time
	ValidatedAt     time.Time
	CommittedAt     pgtype.Timestamptz
	SupersededAt    pgtype.Timestamptz
}

type ImportRow struct {
	BatchID   uuid.UUID
	RowNumber int32
	Data      []byte
	IsValid   bool
	Errors    []byte
}

type Category struct {
	ID   int64
	Name string
}

type AuditLog struct {
	ID           uuid.UUID
	Action       string
	Severity     string
	BatchID      pgtype.UUID
	RowsAffected int32
	IpAddress    pgtype.Text
	UserAgent    pgtype.Text
	Reason       pgtype.Text
	Details      []byte
	CreatedAt    time.Time
}
