package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// SystemRow is the row number used for pipeline-level failures.
	SystemRow = -1
	// SystemField is the field name used for pipeline-level failures.
	SystemField = "system"
)

// ErrBatchNotFound is returned by ledger stores when no batch matches.
var ErrBatchNotFound = errors.New("import batch not found")

// RowError is a row-scoped problem. Row errors are collected, never thrown.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FormatError is a whole-file failure: the file could not be read as a
// table, or required columns are missing.
type FormatError struct {
	Reason  string
	Missing []string
	Err     error
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required columns: " + strings.Join(e.Missing, ", ")
	}
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// Token rejection reasons.
const (
	TokenMissing    = "token is required"
	TokenUnknown    = "no validation matches this token"
	TokenExpired    = "validation token has expired"
	TokenSuperseded = "file was re-validated; use the newest token"
	TokenConsumed   = "batch was already committed"
	TokenInFlight   = "a commit for this batch is already in progress"
)

// InvalidTokenError rejects a commit before any row is processed.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return "invalid validation token: " + e.Reason
}

// SystemError is an infrastructure failure during ledger or lead writes.
// It is reported to callers as a RowError with Row = -1.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// RowError renders the failure for inclusion in a row error list.
func (e *SystemError) RowError() RowError {
	return RowError{Row: SystemRow, Field: SystemField, Message: e.Error()}
}

// EncodingWarning flags a row whose bytes were not valid UTF-8.
// The affected cells were recovered as Windows-1252.
type EncodingWarning struct {
	Row     int
	Columns []string
}

func (w EncodingWarning) Message() string {
	return fmt.Sprintf("invalid UTF-8 in %s; text was decoded as Windows-1252, check accents",
		strings.Join(w.Columns, ", "))
}

// Warning kinds surfaced on a validation report.
const (
	WarningEncoding  = "encoding"
	WarningDuplicate = "duplicate"
	WarningArchive   = "archive"
)

// Warning is a non-blocking note attached to a batch, never to a row's errors.
type Warning struct {
	Row     int    `json:"row"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
