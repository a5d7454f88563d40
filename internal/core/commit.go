package core

// commit.go writes a caller-supplied row set into the leads table.
//
// The token ties the commit to the batch recorded at validation. Rows are
// re-validated and their categories re-resolved, since the catalog may have
// changed since validation. Accepted rows are written in fixed-size chunks,
// each in its own transaction, by a bounded pool of workers. A failed chunk
// does not undo the others and does not stop chunks still waiting to run.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/leadimport/internal/logging"
)

// LeadStore writes leads. Each InsertLeads call is one transaction.
type LeadStore interface {
	InsertLeads(ctx context.Context, leads []Lead) (int64, error)
}

// CommitRequest is the body of a commit call.
type CommitRequest struct {
	Token    string      `json:"token"`
	Concept  string      `json:"concept"`
	Filename string      `json:"filename"`
	Rows     []CommitRow `json:"rows"`
}

// CommitRow is one canonical row object. RowNumber is the spreadsheet row
// it came from; when absent the row's position in the request is used.
type CommitRow struct {
	RowNumber int
	Fields    map[string]string
}

// UnmarshalJSON accepts a flat object of canonical fields plus an optional
// "row_number". Numbers and booleans are kept as their literal text.
func (r *CommitRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	r.Fields = make(map[string]string, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "row_number" || key == "row" {
			n, err := rowNumberValue(value)
			if err != nil {
				return err
			}
			r.RowNumber = n
			continue
		}
		switch v := value.(type) {
		case nil:
			r.Fields[key] = ""
		case string:
			r.Fields[key] = v
		case json.Number:
			r.Fields[key] = v.String()
		case bool:
			r.Fields[key] = fmt.Sprint(v)
		default:
			return fmt.Errorf("field %q must be a scalar value", key)
		}
	}
	return nil
}

func (r CommitRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.RowNumber > 0 {
		out["row_number"] = r.RowNumber
	}
	return json.Marshal(out)
}

func rowNumberValue(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("row_number must be an integer: %w", err)
		}
		return int(i), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return 0, fmt.Errorf("row_number must be an integer")
		}
		return i, nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("row_number must be an integer")
}

// RequestError reports a structurally invalid request.
type RequestError struct {
	Field string
}

func (e *RequestError) Error() string {
	return e.Field + " is required"
}

// Check reports the first missing required part of the request.
func (r CommitRequest) Check() error {
	switch {
	case strings.TrimSpace(r.Token) == "":
		return &RequestError{Field: "token"}
	case strings.TrimSpace(r.Concept) == "":
		return &RequestError{Field: "concept"}
	case len(r.Rows) == 0:
		return &RequestError{Field: "rows"}
	}
	return nil
}

// CommitResult is the outcome of a commit. Errors are sorted by row, with
// pipeline failures (row -1) first.
type CommitResult struct {
	BatchID  uuid.UUID   `json:"batch_id"`
	Inserted int         `json:"inserted"`
	Failed   int         `json:"failed"`
	Errors   []RowError  `json:"errors"`
	Status   BatchStatus `json:"status"`
}

// Commit validates the token, then writes every acceptable row. Rejected
// rows and failed chunks are reported in the result, not as an error; the
// returned error is reserved for request, token and infrastructure failures
// that happen before any row is written.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}

	// The mark is held before the lookup so a commit that finishes while
	// this one waits is seen as consumed, never as still validated.
	token := strings.TrimSpace(req.Token)
	if _, busy := s.committing.LoadOrStore(token, struct{}{}); busy {
		return nil, &InvalidTokenError{Reason: TokenInFlight}
	}
	defer s.committing.Delete(token)

	batch, err := s.ledger.LookupToken(ctx, token, s.opts.TokenTTL)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx, OpCommit); err != nil {
		return nil, err
	}
	defer s.limiter.Release(OpCommit)

	log := logging.WithFields(ctx, "batch_id", batch.ID, "filename", req.Filename)
	if req.Filename != "" && req.Filename != batch.SourceFilename {
		log.Warn("commit filename differs from validated file", "validated_filename", batch.SourceFilename)
	}

	leads, rowErrors, rejected, err := s.prepareLeads(ctx, batch.ID, req.Rows)
	if err != nil {
		return nil, err
	}

	written := s.writeLeads(ctx, log, leads)

	result := &CommitResult{
		BatchID:  batch.ID,
		Inserted: written.inserted,
		Failed:   rejected + written.failed,
		Errors:   make([]RowError, 0, len(rowErrors)+len(written.errors)),
	}
	result.Errors = append(result.Errors, rowErrors...)
	result.Errors = append(result.Errors, written.errors...)

	fin, err := s.ledger.Finalize(context.WithoutCancel(ctx), batch.ID, req.Concept, result.Inserted, result.Failed)
	result.Status = fin.Status
	if err != nil {
		log.Error("ledger finalization failed", "error", err)
		if sysErr, ok := err.(*SystemError); ok {
			result.Errors = append(result.Errors, sysErr.RowError())
		}
	}
	SortRowErrors(result.Errors)

	log.Info("commit finished",
		slog.Int("inserted", result.Inserted),
		slog.Int("failed", result.Failed),
		slog.String("status", string(result.Status)),
	)
	s.logAudit(ctx, AuditEntry{
		Action:       ActionCommit,
		BatchID:      batch.ID,
		RowsAffected: result.Inserted,
		Reason:       req.Concept,
		Details: map[string]any{
			"filename":  req.Filename,
			"submitted": len(req.Rows),
			"failed":    result.Failed,
			"status":    result.Status,
		},
	}, result.Failed > 0)

	return result, nil
}

// prepareLeads validates and resolves the submitted rows. It returns the
// leads to write, the errors of rejected rows and how many rows were rejected.
func (s *Service) prepareLeads(ctx context.Context, batchID uuid.UUID, rows []CommitRow) ([]Lead, []RowError, int, error) {
	type candidate struct {
		number int
		fields map[string]string
	}

	var (
		rowErrors  []RowError
		candidates []candidate
		rejected   int
	)
	refs := NewReferenceSet()
	seen := make(map[int]bool, len(rows))

	for i, row := range rows {
		number := row.RowNumber
		if number <= 0 {
			number = i + 1
		}
		if seen[number] {
			rowErrors = append(rowErrors, RowError{Row: number, Field: "row_number", Message: fmt.Sprintf("row %d was submitted more than once", number)})
			rejected++
			continue
		}
		seen[number] = true

		fields := make(map[string]string, len(s.fields))
		for _, f := range s.fields {
			fields[f] = CleanCell(row.Fields[f])
		}

		res := s.validator.ValidateRow(number, fields, nil)
		if !res.Valid {
			rowErrors = append(rowErrors, res.Errors...)
			rejected++
			continue
		}
		refs.Add(FieldCategory, fields[FieldCategory], number)
		candidates = append(candidates, candidate{number: number, fields: fields})
	}

	report, err := s.categories.Resolve(ctx, refs)
	if err != nil {
		return nil, nil, 0, &SystemError{Op: "resolve categories", Err: err}
	}

	unresolved := make(map[int]bool, len(report.RowErrors))
	for _, e := range report.RowErrors {
		unresolved[e.Row] = true
	}
	rowErrors = append(rowErrors, report.RowErrors...)
	rejected += len(unresolved)

	leads := make([]Lead, 0, len(candidates)-len(unresolved))
	for _, c := range candidates {
		if unresolved[c.number] {
			continue
		}
		entry, _ := report.Entry(c.fields[FieldCategory])
		leads = append(leads, Lead{
			Name:            c.fields[FieldName],
			Type:            CanonicalEnum(c.fields[FieldType], s.opts.LeadTypes),
			CategoryID:      entry.ID,
			Phone:           c.fields[FieldPhone],
			Email:           c.fields[FieldEmail],
			Address:         c.fields[FieldAddress],
			Web:             c.fields[FieldWeb],
			Contact:         c.fields[FieldContact],
			City:            c.fields[FieldCity],
			Notes:           c.fields[FieldNotes],
			ImportBatchID:   batchID,
			ImportRowNumber: c.number,
		})
	}
	return leads, rowErrors, rejected, nil
}

type writeOutcome struct {
	inserted int
	failed   int
	errors   []RowError
}

type chunkFailure struct {
	index    int
	firstRow int
	lastRow  int
	size     int
	err      error
}

// writeLeads runs one transaction per chunk on at most CommitWorkers
// goroutines. Failures are collected and merged in chunk order once every
// worker has finished. Chunks not yet started when ctx ends are reported
// as failed without being attempted.
func (s *Service) writeLeads(ctx context.Context, log *slog.Logger, leads []Lead) writeOutcome {
	var (
		inserted atomic.Int64
		mu       sync.Mutex
		failures []chunkFailure
	)

	g := new(errgroup.Group)
	g.SetLimit(s.opts.CommitWorkers)

	for i, chunk := range slices.Collect(slices.Chunk(leads, s.opts.CommitChunkSize)) {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				var n int64
				n, err = s.leads.InsertLeads(ctx, chunk)
				inserted.Add(n)
			}
			if err == nil {
				return nil
			}

			f := chunkFailure{
				index:    i,
				firstRow: chunk[0].ImportRowNumber,
				lastRow:  chunk[len(chunk)-1].ImportRowNumber,
				size:     len(chunk),
				err:      err,
			}
			log.Error("commit chunk failed",
				"chunk", f.index,
				"first_row", f.firstRow,
				"last_row", f.lastRow,
				"error", err,
			)
			mu.Lock()
			failures = append(failures, f)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(a, b int) bool { return failures[a].index < failures[b].index })

	out := writeOutcome{inserted: int(inserted.Load())}
	for _, f := range failures {
		out.failed += f.size
		sysErr := &SystemError{
			Op:  fmt.Sprintf("rows %d-%d not imported (chunk %d)", f.firstRow, f.lastRow, f.index+1),
			Err: f.err,
		}
		out.errors = append(out.errors, sysErr.RowError())
	}
	return out
}

// SortRowErrors orders errors by row number, keeping the original order
// within a row.
func SortRowErrors(errs []RowError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
}
