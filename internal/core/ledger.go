package core

// ledger.go records every validation attempt and its staged rows.
//
// A validation is written as one unit: the batch header, the supersession
// of older validations of the same file, and every staged row in fixed-size
// chunks. Any chunk failure discards the whole record.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/leadimport/internal/logging"
)

// LedgerStore persists import batches and their staged rows.
type LedgerStore interface {
	// SaveValidation atomically inserts batch, marks older validated
	// batches with the same SourceHash as superseded, and writes chunks.
	SaveValidation(ctx context.Context, batch ImportBatch, chunks [][]ImportRow) error
	BatchByToken(ctx context.Context, token string) (ImportBatch, error)
	Batch(ctx context.Context, id uuid.UUID) (ImportBatch, error)
	Rows(ctx context.Context, id uuid.UUID) ([]ImportRow, error)
	// FinalizeBatch returns ErrBatchNotFound when no validated batch has id.
	FinalizeBatch(ctx context.Context, id uuid.UUID, f BatchFinalization) error
}

// ChunkError identifies the staged-row chunk a store failed to write.
type ChunkError struct {
	Index    int
	FirstRow int
	LastRow  int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("ledger chunk %d (rows %d-%d): %v", e.Index, e.FirstRow, e.LastRow, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// ValidationRecord is everything the ledger keeps about one validation.
type ValidationRecord struct {
	BatchID         uuid.UUID
	Concept         string
	Filename        string
	SourceHash      string
	SourceObjectKey string
	Token           string
	ValidatedAt     time.Time
	Rows            []ImportRow
}

type Ledger struct {
	store     LedgerStore
	chunkSize int
	now       func() time.Time
}

func NewLedger(store LedgerStore, chunkSize int, now func() time.Time) *Ledger {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, chunkSize: chunkSize, now: now}
}

// RecordValidation persists rec and returns the stored batch. Failures are
// returned as *SystemError; nothing of the record is kept in that case.
func (l *Ledger) RecordValidation(ctx context.Context, rec ValidationRecord) (ImportBatch, error) {
	if rec.BatchID == uuid.Nil {
		rec.BatchID = uuid.New()
	}

	batch := ImportBatch{
		ID:              rec.BatchID,
		Concept:         rec.Concept,
		SourceFilename:  rec.Filename,
		SourceHash:      rec.SourceHash,
		SourceObjectKey: rec.SourceObjectKey,
		Token:           rec.Token,
		TotalRows:       len(rec.Rows),
		Status:          StatusValidated,
		CreatedAt:       l.now(),
		ValidatedAt:     rec.ValidatedAt,
	}
	for i := range rec.Rows {
		rec.Rows[i].BatchID = batch.ID
		if rec.Rows[i].IsValid {
			batch.ValidRows++
		}
	}
	batch.ErrorRows = batch.TotalRows - batch.ValidRows

	chunks := slices.Collect(slices.Chunk(rec.Rows, l.chunkSize))

	log := logging.WithFields(ctx, "batch_id", batch.ID, "filename", rec.Filename)
	if err := l.store.SaveValidation(ctx, batch, chunks); err != nil {
		var chunkErr *ChunkError
		if errors.As(err, &chunkErr) {
			log.Error("ledger chunk write failed, validation record discarded",
				"chunk", chunkErr.Index,
				"first_row", chunkErr.FirstRow,
				"last_row", chunkErr.LastRow,
				"error", chunkErr.Err,
			)
		} else {
			log.Error("ledger write failed", "error", err)
		}
		return ImportBatch{}, &SystemError{Op: "record validation", Err: err}
	}

	log.Info("validation recorded",
		slog.Int("total_rows", batch.TotalRows),
		slog.Int("valid_rows", batch.ValidRows),
		slog.Int("chunks", len(chunks)),
	)
	return batch, nil
}

// LookupToken returns the batch a token was issued for, provided it can
// still be committed.
func (l *Ledger) LookupToken(ctx context.Context, token string, ttl time.Duration) (ImportBatch, error) {
	if token == "" {
		return ImportBatch{}, &InvalidTokenError{Reason: TokenMissing}
	}

	batch, err := l.store.BatchByToken(ctx, token)
	if errors.Is(err, ErrBatchNotFound) {
		return ImportBatch{}, &InvalidTokenError{Reason: TokenUnknown}
	}
	if err != nil {
		return ImportBatch{}, &SystemError{Op: "look up validation token", Err: err}
	}

	switch {
	case batch.SupersededAt != nil:
		return ImportBatch{}, &InvalidTokenError{Reason: TokenSuperseded}
	case batch.Status != StatusValidated:
		return ImportBatch{}, &InvalidTokenError{Reason: TokenConsumed}
	case ttl > 0 && l.now().Sub(batch.ValidatedAt) > ttl:
		return ImportBatch{}, &InvalidTokenError{Reason: TokenExpired}
	}
	return batch, nil
}

// Finalize closes a batch after commit: imported when anything was
// inserted, failed otherwise.
func (l *Ledger) Finalize(ctx context.Context, id uuid.UUID, concept string, inserted, errorRows int) (BatchFinalization, error) {
	f := BatchFinalization{
		Concept:      concept,
		InsertedRows: inserted,
		ErrorRows:    errorRows,
		Status:       StatusFailed,
		CommittedAt:  l.now(),
	}
	if inserted > 0 {
		f.Status = StatusImported
	}

	if err := l.store.FinalizeBatch(ctx, id, f); err != nil {
		return f, &SystemError{Op: "finalize ledger", Err: err}
	}
	return f, nil
}

// Batch returns a ledger entry by id.
func (l *Ledger) Batch(ctx context.Context, id uuid.UUID) (ImportBatch, error) {
	return l.store.Batch(ctx, id)
}

// Rows returns the staged rows of a batch ordered by row number.
func (l *Ledger) Rows(ctx context.Context, id uuid.UUID) ([]ImportRow, error) {
	return l.store.Rows(ctx, id)
}

// FieldErrors converts row errors to the staged-row error list.
func FieldErrors(errs []RowError) []FieldError {
	out := make([]FieldError, len(errs))
	for i, e := range errs {
		out[i] = FieldError{Field: e.Field, Message: e.Message}
	}
	return out
}
