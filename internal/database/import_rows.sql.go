package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const insertImportRow = `-- name: InsertImportRow :exec
INSERT INTO import_rows (batch_id, row_number, data, is_valid, errors)
VALUES ($1, $2, $3, $4, $5)
`

type InsertImportRowParams struct {
	BatchID   uuid.UUID
	RowNumber int32
	Data      []byte
	IsValid   bool
	Errors    []byte
}

// InsertImportRows queues one insert per row and sends them as a single batch.
// The first failing statement is reported with its row number.
func (q *Queries) InsertImportRows(ctx context.Context, rows []InsertImportRowParams) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertImportRow, r.BatchID, r.RowNumber, r.Data, r.IsValid, r.Errors)
	}

	br := q.db.SendBatch(ctx, batch)
	for _, r := range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("row %d: %w", r.RowNumber, err)
		}
	}
	return br.Close()
}

const listImportRows = `-- name: ListImportRows :many
SELECT batch_id, row_number, data, is_valid, errors
FROM import_rows
WHERE batch_id = $1
ORDER BY row_number
`

func (q *Queries) ListImportRows(ctx context.Context, batchID uuid.UUID) ([]ImportRow, error) {
	rows, err := q.db.Query(ctx, listImportRows, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ImportRow
	for rows.Next() {
		var i ImportRow
		if err := rows.Scan(&i.BatchID, &i.RowNumber, &i.Data, &i.IsValid, &i.Errors); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
