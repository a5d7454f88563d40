package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	db "github.com/JonMunkholm/leadimport/internal/database"
)

// PostgresStore implements the ledger, catalog, lead and audit stores on a
// pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Stores returns the store set for NewService, without an archive.
func (s *PostgresStore) Stores() Stores {
	return Stores{Ledger: s, Catalog: s, Leads: s, Audit: s}
}

func (s *PostgresStore) SaveValidation(ctx context.Context, batch ImportBatch, chunks [][]ImportRow) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := db.New(tx)

		err := q.InsertImportBatch(ctx, db.InsertImportBatchParams{
			ID:              batch.ID,
			Concept:         batch.Concept,
			SourceFilename:  batch.SourceFilename,
			SourceHash:      batch.SourceHash,
			SourceObjectKey: toPgText(batch.SourceObjectKey),
			Token:           batch.Token,
			TotalRows:       int32(batch.TotalRows),
			ValidRows:       int32(batch.ValidRows),
			ErrorRows:       int32(batch.ErrorRows),
			ValidatedAt:     batch.ValidatedAt,
		})
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		if _, err := q.SupersedeImportBatches(ctx, db.SupersedeImportBatchesParams{
			SourceHash:   batch.SourceHash,
			KeepID:       batch.ID,
			SupersededAt: batch.ValidatedAt,
		}); err != nil {
			return fmt.Errorf("supersede earlier validations: %w", err)
		}

		for i, chunk := range chunks {
			params, err := importRowParams(chunk)
			if err != nil {
				return err
			}
			if err := q.InsertImportRows(ctx, params); err != nil {
				return &ChunkError{Index: i, FirstRow: chunk[0].RowNumber, LastRow: chunk[len(chunk)-1].RowNumber, Err: err}
			}
		}
		return nil
	})
}

func importRowParams(rows []ImportRow) ([]db.InsertImportRowParams, error) {
	params := make([]db.InsertImportRowParams, len(rows))
	for i, r := range rows {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", r.RowNumber, err)
		}
		errs := r.Errors
		if errs == nil {
			errs = []FieldError{}
		}
		errJSON, err := json.Marshal(errs)
		if err != nil {
			return nil, fmt.Errorf("encode row %d errors: %w", r.RowNumber, err)
		}
		params[i] = db.InsertImportRowParams{
			BatchID:   r.BatchID,
			RowNumber: int32(r.RowNumber),
			Data:      data,
			IsValid:   r.IsValid,
			Errors:    errJSON,
		}
	}
	return params, nil
}

func (s *PostgresStore) BatchByToken(ctx context.Context, token string) (ImportBatch, error) {
	row, err := db.New(s.pool).GetImportBatchByToken(ctx, token)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportBatch{}, ErrBatchNotFound
	}
	if err != nil {
		return ImportBatch{}, err
	}
	return batchFromDB(row), nil
}

func (s *PostgresStore) Batch(ctx context.Context, id uuid.UUID) (ImportBatch, error) {
	row, err := db.New(s.pool).GetImportBatch(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportBatch{}, ErrBatchNotFound
	}
	if err != nil {
		return ImportBatch{}, err
	}
	return batchFromDB(row), nil
}

func (s *PostgresStore) Rows(ctx context.Context, id uuid.UUID) ([]ImportRow, error) {
	rows, err := db.New(s.pool).ListImportRows(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]ImportRow, len(rows))
	for i, r := range rows {
		out[i] = ImportRow{BatchID: r.BatchID, RowNumber: int(r.RowNumber), IsValid: r.IsValid}
		if err := json.Unmarshal(r.Data, &out[i].Data); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", r.RowNumber, err)
		}
		if err := json.Unmarshal(r.Errors, &out[i].Errors); err != nil {
			return nil, fmt.Errorf("decode row %d errors: %w", r.RowNumber, err)
		}
	}
	return out, nil
}

func (s *PostgresStore) FinalizeBatch(ctx context.Context, id uuid.UUID, f BatchFinalization) error {
	n, err := db.New(s.pool).FinalizeImportBatch(ctx, db.FinalizeImportBatchParams{
		ID:           id,
		Concept:      f.Concept,
		InsertedRows: int32(f.InsertedRows),
		ErrorRows:    int32(f.ErrorRows),
		Status:       string(f.Status),
		CommittedAt:  f.CommittedAt,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (s *PostgresStore) Categories(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := db.New(s.pool).ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CatalogEntry, len(rows))
	for i, r := range rows {
		out[i] = CatalogEntry{ID: r.ID, Name: r.Name}
	}
	return out, nil
}

// InsertLeads writes one chunk in its own transaction with COPY.
func (s *PostgresStore) InsertLeads(ctx context.Context, leads []Lead) (int64, error) {
	params := make([]db.InsertLeadParams, len(leads))
	for i, l := range leads {
		params[i] = db.InsertLeadParams{
			Name:            l.Name,
			Type:            l.Type,
			CategoryID:      l.CategoryID,
			Phone:           l.Phone,
			Email:           l.Email,
			Address:         l.Address,
			Web:             l.Web,
			Contact:         l.Contact,
			City:            l.City,
			Notes:           l.Notes,
			ImportBatchID:   l.ImportBatchID,
			ImportRowNumber: int32(l.ImportRowNumber),
		}
	}

	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		n, err = db.New(tx).CopyLeads(ctx, params)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) InsertAudit(ctx context.Context, e AuditEntry) error {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}

	_, err := db.New(s.pool).InsertAuditLog(ctx, db.InsertAuditLogParams{
		Action:       string(e.Action),
		Severity:     string(e.Severity),
		BatchID:      toPgUUID(e.BatchID),
		RowsAffected: int32(e.RowsAffected),
		IpAddress:    toPgText(e.IPAddress),
		UserAgent:    toPgText(e.UserAgent),
		Reason:       toPgText(e.Reason),
		Details:      details,
	})
	return err
}

func batchFromDB(r db.ImportBatch) ImportBatch {
	return ImportBatch{
		ID:              r.ID,
		Concept:         r.Concept,
		SourceFilename:  r.SourceFilename,
		SourceHash:      r.SourceHash,
		SourceObjectKey: r.SourceObjectKey.String,
		Token:           r.Token,
		TotalRows:       int(r.TotalRows),
		ValidRows:       int(r.ValidRows),
		ErrorRows:       int(r.ErrorRows),
		InsertedRows:    int(r.InsertedRows),
		Status:          BatchStatus(r.Status),
		CreatedAt:       r.CreatedAt,
		ValidatedAt:     r.ValidatedAt,
		CommittedAt:     fromPgTime(r.CommittedAt),
		SupersededAt:    fromPgTime(r.SupersededAt),
	}
}

func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func fromPgTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
