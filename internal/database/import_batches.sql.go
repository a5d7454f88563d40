package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const importBatchColumns = `id, concept, source_filename, source_hash, source_object_key, token,
    total_rows, valid_rows, error_rows, inserted_rows, status,
    created_at, validated_at, committed_at, superseded_at`

func scanImportBatch(row interface{ Scan(...any) error }) (ImportBatch, error) {
	var i ImportBatch
	err := row.Scan(
		&i.ID,
		&i.Concept,
		&i.SourceFilename,
		&i.SourceHash,
		&i.SourceObjectKey,
		&i.Token,
		&i.TotalRows,
		&i.ValidRows,
		&i.ErrorRows,
		&i.InsertedRows,
		&i.Status,
		&i.CreatedAt,
		&i.ValidatedAt,
		&i.CommittedAt,
		&i.SupersededAt,
	)
	return i, err
}

const insertImportBatch = `-- name: InsertImportBatch :exec
INSERT INTO import_batches (
    id, concept, source_filename, source_hash, source_object_key, token,
    total_rows, valid_rows, error_rows, status, validated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'validated', $10)
`

type InsertImportBatchParams struct {
	ID              uuid.UUID
	Concept         string
	SourceFilename  string
	SourceHash      string
	SourceObjectKey pgtype.Text
	Token           string
	TotalRows       int32
	ValidRows       int32
	ErrorRows       int32
	ValidatedAt     time.Time
}

func (q *Queries) InsertImportBatch(ctx context.Context, arg InsertImportBatchParams) error {
	_, err := q.db.Exec(ctx, insertImportBatch,
		arg.ID,
		arg.Concept,
		arg.SourceFilename,
		arg.SourceHash,
		arg.SourceObjectKey,
		arg.Token,
		arg.TotalRows,
		arg.ValidRows,
		arg.ErrorRows,
		arg.ValidatedAt,
	)
	return err
}

const supersedeImportBatches = `-- name: SupersedeImportBatches :execrows
UPDATE import_batches
SET superseded_at = $3
WHERE source_hash = $1
  AND id <> $2
  AND status = 'validated'
  AND superseded_at IS NULL
`

type SupersedeImportBatchesParams struct {
	SourceHash   string
	KeepID       uuid.UUID
	SupersededAt time.Time
}

func (q *Queries) SupersedeImportBatches(ctx context.Context, arg SupersedeImportBatchesParams) (int64, error) {
	result, err := q.db.Exec(ctx, supersedeImportBatches, arg.SourceHash, arg.KeepID, arg.SupersededAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getImportBatch = `-- name: GetImportBatch :one
SELECT ` + importBatchColumns + `
FROM import_batches
WHERE id = $1
`

func (q *Queries) GetImportBatch(ctx context.Context, id uuid.UUID) (ImportBatch, error) {
	return scanImportBatch(q.db.QueryRow(ctx, getImportBatch, id))
}

const getImportBatchByToken = `-- name: GetImportBatchByToken :one
SELECT ` + importBatchColumns + `
FROM import_batches
WHERE token = $1
`

func (q *Queries) GetImportBatchByToken(ctx context.Context, token string) (ImportBatch, error) {
	return scanImportBatch(q.db.QueryRow(ctx, getImportBatchByToken, token))
}

const finalizeImportBatch = `-- name: FinalizeImportBatch :execrows
UPDATE import_batches
SET concept = CASE WHEN $2::text = '' THEN concept ELSE $2::text END,
    inserted_rows = $3,
    error_rows = $4,
    status = $5,
    committed_at = $6
WHERE id = $1
  AND status = 'validated'
`

type FinalizeImportBatchParams struct {
	ID           uuid.UUID
	Concept      string
	InsertedRows int32
	ErrorRows    int32
	Status       string
	CommittedAt  time.Time
}

func (q *Queries) FinalizeImportBatch(ctx context.Context, arg FinalizeImportBatchParams) (int64, error) {
	result, err := q.db.Exec(ctx, finalizeImportBatch,
		arg.ID,
		arg.Concept,
		arg.InsertedRows,
		arg.ErrorRows,
		arg.Status,
		arg.CommittedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
