package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error", nil, ""},
		{"missing columns", &FormatError{Reason: "missing required columns", Missing: []string{"email", "phone"}}, "VAL001"},
		{"empty file", &FormatError{Reason: "file is empty"}, "FILE005"},
		{"no data rows", &FormatError{Reason: "file contains no data rows"}, "FILE005"},
		{"legacy xls", &FormatError{Reason: "legacy .xls workbooks are not supported, save the file as .xlsx or .csv"}, "FILE002"},
		{"malformed csv", &FormatError{Reason: "malformed CSV", Err: errors.New(`bare " in non-quoted field`)}, "FILE003"},
		{"unknown token", &InvalidTokenError{Reason: TokenUnknown}, "IMP001"},
		{"expired token", &InvalidTokenError{Reason: TokenExpired}, "IMP002"},
		{"superseded token", &InvalidTokenError{Reason: TokenSuperseded}, "IMP003"},
		{"consumed token", &InvalidTokenError{Reason: TokenConsumed}, "IMP004"},
		{"in flight", &InvalidTokenError{Reason: TokenInFlight}, "IMP005"},
		{"request error", &RequestError{Field: "concept"}, "IMP006"},
		{"batch not found", fmt.Errorf("load batch: %w", ErrBatchNotFound), "IMP007"},
		{"bad batch id", errors.New("invalid batch id"), "REQ003"},
		{"bad json", errors.New("invalid request body: unexpected EOF"), "REQ004"},
		{"too many imports", ErrTooManyImports, "RATE002"},
		{"wrapped cancel", fmt.Errorf("validate: %w", context.Canceled), "REQ001"},
		{"duplicate key", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "DB003"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestMapError_MissingColumnsNamesFields(t *testing.T) {
	msg := MapError(&FormatError{Reason: "missing required columns", Missing: []string{"category", "email"}})
	if !strings.Contains(msg.Message, "category, email") {
		t.Errorf("Message = %q, want it to list the missing columns", msg.Message)
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
	got := FormatUserError(ErrTooManyImports)
	if !strings.Contains(got, "RATE002") {
		t.Errorf("FormatUserError = %q, want code RATE002", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if IsUserFacing(errors.New("panic in goroutine")) {
		t.Error("generic error should not be user facing")
	}
	if !IsUserFacing(&InvalidTokenError{Reason: TokenExpired}) {
		t.Error("expired token should be user facing")
	}
}
