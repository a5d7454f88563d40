package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/leadimport/internal/core"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartMemory caps how much of a multipart form is held in memory.
const multipartMemory = 8 << 20

// commitResponse wraps a commit outcome. Rejected rows are data, so a
// fully rejected commit is still a 200 with inserted=0.
type commitResponse struct {
	Data  *core.CommitResult `json:"data,omitempty"`
	Error string             `json:"error,omitempty"`
}

// handleValidate parses and stages an uploaded spreadsheet.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(min(s.cfg.Upload.MaxFileSize, multipartMemory)); err != nil {
		if isTooLarge(err) {
			respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(withRequestMetadata(r.Context(), r), s.cfg.Upload.Timeout)
	defer cancel()

	report, err := s.service.Validate(ctx, core.ValidateRequest{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Concept:     r.FormValue("concept"),
		Data:        data,
	})
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

// handleCommit writes a reviewed row set against a validation token.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	var req core.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(withRequestMetadata(r.Context(), r), s.cfg.Upload.Timeout)
	defer cancel()

	result, err := s.service.Commit(ctx, req)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, r, http.StatusOK, commitResponse{Data: result})
}

// handleTemplate serves the blank import workbook.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.WriteTemplate(&buf); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeAttachment(w, "lead-import-template.xlsx", buf.Bytes())
}

// handleBatch returns a ledger entry.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	batch, err := s.service.Batch(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, batch)
}

// handleBatchRows returns the rows staged at validation.
func (s *Server) handleBatchRows(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	rows, err := s.service.BatchRows(r.Context(), id)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if rows == nil {
		rows = []core.ImportRow{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"batch_id": id, "rows": rows})
}

// handleErrorReport exports the staged row errors as a workbook.
func (s *Server) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.service.WriteErrorReport(r.Context(), id, &buf); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeAttachment(w, fmt.Sprintf("import-%s-errors.xlsx", id), buf.Bytes())
}

func batchIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, errBadBatchID, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// isTooLarge reports a MaxBytesReader rejection. Some multipart errors
// flatten the cause to text, hence the message check.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func writeAttachment(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
