package core

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/leadimport/internal/config"
	"github.com/JonMunkholm/leadimport/internal/logging"
)

// SourceArchive keeps a copy of each uploaded file.
type SourceArchive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Stores groups the persistence collaborators. Audit and Archive are optional.
type Stores struct {
	Ledger  LedgerStore
	Catalog CatalogStore
	Leads   LeadStore
	Audit   AuditStore
	Archive SourceArchive
}

// Options tunes the pipeline.
type Options struct {
	LedgerChunkSize int
	CommitChunkSize int
	CommitWorkers   int
	TokenTTL        time.Duration
	PreviewLimit    int
	LeadTypes       []string
	MaxConcurrent   int
	MaxWait         time.Duration
	Now             func() time.Time
}

// OptionsFromConfig reads pipeline options from application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LedgerChunkSize: cfg.Import.LedgerChunkSize,
		CommitChunkSize: cfg.Import.CommitChunkSize,
		CommitWorkers:   cfg.Import.CommitWorkers,
		TokenTTL:        cfg.Import.TokenTTL,
		PreviewLimit:    cfg.Import.PreviewLimit,
		LeadTypes:       cfg.Import.LeadTypes,
		MaxConcurrent:   cfg.Upload.MaxConcurrent,
		MaxWait:         cfg.Upload.MaxWaitTime,
	}
}

func (o *Options) applyDefaults() {
	if o.LedgerChunkSize <= 0 {
		o.LedgerChunkSize = 500
	}
	if o.CommitChunkSize <= 0 {
		o.CommitChunkSize = 200
	}
	if o.CommitWorkers <= 0 {
		o.CommitWorkers = 4
	}
	if o.TokenTTL <= 0 {
		o.TokenTTL = 24 * time.Hour
	}
	if o.PreviewLimit < 0 {
		o.PreviewLimit = 0
	}
	if len(o.LeadTypes) == 0 {
		o.LeadTypes = []string{"lead", "member", "company", "partner"}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service runs the lead import pipeline: validate a spreadsheet into the
// ledger, then commit a reviewed row set against the validation token.
type Service struct {
	opts       Options
	fields     []string
	headers    *HeaderResolver
	validator  *RowValidator
	categories *ReferenceResolver
	ledger     *Ledger
	leads      LeadStore
	audit      AuditStore
	archive    SourceArchive
	limiter    *ImportLimiter
	committing sync.Map // token -> struct{}
}

func NewService(stores Stores, opts Options) (*Service, error) {
	if stores.Ledger == nil || stores.Catalog == nil || stores.Leads == nil {
		return nil, errors.New("core: ledger, catalog and lead stores are required")
	}
	opts.applyDefaults()

	return &Service{
		opts:       opts,
		fields:     LeadFields,
		headers:    NewLeadHeaderResolver(),
		validator:  NewRowValidator(LeadFieldSpecs(opts.LeadTypes)),
		categories: NewReferenceResolver(FieldCategory, stores.Catalog),
		ledger:     NewLedger(stores.Ledger, opts.LedgerChunkSize, opts.Now),
		leads:      stores.Leads,
		audit:      stores.Audit,
		archive:    stores.Archive,
		limiter:    NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
	}, nil
}

// ValidateRequest is one uploaded file.
type ValidateRequest struct {
	Filename    string
	ContentType string
	Concept     string
	Data        []byte
}

// ValidationReport is the response to a validation. OK is true iff there
// are no row errors and no missing references.
type ValidationReport struct {
	OK                bool             `json:"ok"`
	BatchID           string           `json:"batch_id,omitempty"`
	TotalRows         int              `json:"total_rows"`
	ValidRows         int              `json:"valid_rows"`
	RowErrors         []RowError       `json:"row_errors"`
	Warnings          []Warning        `json:"warnings,omitempty"`
	MissingReferences []string         `json:"missing_references"`
	Preview           []map[string]any `json:"preview,omitempty"`
	Token             string           `json:"token"`
	Filename          string           `json:"filename"`
}

// Validate parses, checks and stages an uploaded spreadsheet. FormatError
// is returned when the file cannot be used at all. A ledger failure is
// reported inside the report as a row -1 error; the batch id is then absent
// and the token cannot be committed.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*ValidationReport, error) {
	if err := s.limiter.Acquire(ctx, OpValidate); err != nil {
		return nil, err
	}
	defer s.limiter.Release(OpValidate)

	log := logging.WithFields(ctx, "filename", req.Filename)

	wb, err := ParseWorkbook(req.Data, req.ContentType, req.Filename)
	if err != nil {
		return nil, err
	}
	mapping, err := s.headers.Resolve(wb.Headers)
	if err != nil {
		return nil, err
	}

	validatedAt := s.opts.Now()
	report := &ValidationReport{
		TotalRows:         len(wb.Rows),
		RowErrors:         []RowError{},
		MissingReferences: []string{},
		Token:             NewValidationToken(req.Data, validatedAt),
		Filename:          req.Filename,
	}

	for _, w := range wb.Warnings {
		report.Warnings = append(report.Warnings, Warning{Row: w.Row, Kind: WarningEncoding, Message: w.Message()})
	}

	refs := NewReferenceSet()
	dupes := newDuplicateDetector()
	rows := make([]ImportRow, len(wb.Rows))
	errsByRow := make(map[int][]RowError)
	for i, sr := range wb.Rows {
		fields := mapping.Extract(sr.Values, s.fields)
		rows[i] = ImportRow{RowNumber: sr.Number, Data: fields}

		if res := s.validator.ValidateRow(sr.Number, fields, refs); !res.Valid {
			errsByRow[sr.Number] = res.Errors
		}
		if w := dupes.Check(sr.Number, fields); w != nil {
			report.Warnings = append(report.Warnings, *w)
		}
	}

	refReport, err := s.categories.Resolve(ctx, refs)
	if err != nil {
		return nil, &SystemError{Op: "resolve categories", Err: err}
	}
	for _, e := range refReport.RowErrors {
		errsByRow[e.Row] = append(errsByRow[e.Row], e)
	}
	report.MissingReferences = append(report.MissingReferences, refReport.Missing...)

	for i := range rows {
		errs := errsByRow[rows[i].RowNumber]
		rows[i].Errors = FieldErrors(errs)
		rows[i].IsValid = len(errs) == 0
		if rows[i].IsValid {
			report.ValidRows++
		}
		report.RowErrors = append(report.RowErrors, errs...)
	}
	SortRowErrors(report.RowErrors)
	report.Preview = s.preview(rows)

	batchID := uuid.New()
	objectKey, archiveWarning := s.archiveSource(ctx, batchID, req)
	if archiveWarning != nil {
		report.Warnings = append(report.Warnings, *archiveWarning)
	}

	batch, err := s.ledger.RecordValidation(ctx, ValidationRecord{
		BatchID:         batchID,
		Concept:         req.Concept,
		Filename:        req.Filename,
		SourceHash:      SourceHash(req.Data),
		SourceObjectKey: objectKey,
		Token:           report.Token,
		ValidatedAt:     validatedAt,
		Rows:            rows,
	})
	if err != nil {
		var sysErr *SystemError
		if !errors.As(err, &sysErr) {
			return nil, err
		}
		report.RowErrors = append([]RowError{sysErr.RowError()}, report.RowErrors...)
	} else {
		report.BatchID = batch.ID.String()
	}

	report.OK = len(report.RowErrors) == 0 && len(report.MissingReferences) == 0

	log.Info("validation finished",
		slog.String("batch_id", report.BatchID),
		slog.String("format", wb.Format),
		slog.Int("total_rows", report.TotalRows),
		slog.Int("valid_rows", report.ValidRows),
		slog.Int("row_errors", len(report.RowErrors)),
		slog.Int("missing_references", len(report.MissingReferences)),
	)
	s.logAudit(ctx, AuditEntry{
		Action:       ActionValidate,
		BatchID:      batch.ID,
		RowsAffected: report.TotalRows,
		Reason:       req.Concept,
		Details: map[string]any{
			"filename":   req.Filename,
			"valid_rows": report.ValidRows,
			"error_rows": report.TotalRows - report.ValidRows,
			"missing":    report.MissingReferences,
		},
	}, !report.OK)

	return report, nil
}

// preview returns the first PreviewLimit rows as canonical row objects,
// ready to be edited and posted back to commit.
func (s *Service) preview(rows []ImportRow) []map[string]any {
	n := min(len(rows), s.opts.PreviewLimit)
	out := make([]map[string]any, 0, n)
	for _, r := range rows[:n] {
		obj := make(map[string]any, len(r.Data)+1)
		for k, v := range r.Data {
			obj[k] = v
		}
		obj["row_number"] = r.RowNumber
		out = append(out, obj)
	}
	return out
}

// archiveSource stores the uploaded bytes under imports/<batch>/<file>.
// Archiving never blocks validation; a failure becomes a warning.
func (s *Service) archiveSource(ctx context.Context, batchID uuid.UUID, req ValidateRequest) (string, *Warning) {
	if s.archive == nil {
		return "", nil
	}
	name := path.Base(strings.ReplaceAll(req.Filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	key := fmt.Sprintf("imports/%s/%s", batchID, name)

	if err := s.archive.Put(ctx, key, req.Data, req.ContentType); err != nil {
		logging.WithFields(ctx, "batch_id", batchID, "key", key).Warn("source archive failed", "error", err)
		return "", &Warning{Row: 0, Kind: WarningArchive, Message: "original file could not be archived"}
	}
	return key, nil
}

// NewValidationToken fingerprints a file's bytes together with the moment
// it was validated, so re-validating the same file yields a new token.
func NewValidationToken(data []byte, at time.Time) string {
	h := sha256.New()
	h.Write(data)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))
	h.Write(ts[:])
	return hex.EncodeToString(h.Sum(nil))
}

// SourceHash identifies file content independently of when it was validated.
func SourceHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Batch returns a ledger entry.
func (s *Service) Batch(ctx context.Context, id uuid.UUID) (ImportBatch, error) {
	return s.ledger.Batch(ctx, id)
}

// BatchRows returns the staged rows of a batch.
func (s *Service) BatchRows(ctx context.Context, id uuid.UUID) ([]ImportRow, error) {
	if _, err := s.ledger.Batch(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.Rows(ctx, id)
}

// WaitForImports blocks until in-flight validations and commits finish.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}
