package core

// error_messages.go maps technical errors to messages safe to show callers,
// each with a support code. Codes by family:
//
//	FILE001 file too large          FILE002 unsupported or unreadable file
//	FILE003 malformed CSV           FILE004 no file in the upload
//	FILE005 empty file / no rows    VAL001  missing required columns
//	IMP001  unknown token           IMP002  expired token
//	IMP003  superseded token        IMP004  batch already committed
//	IMP005  commit in progress      IMP006  incomplete commit request
//	DB001   duplicate row           DB002   foreign key violation
//	DB003   database unreachable    DB004   deadlock
//	IMP007  batch not found
//	REQ001  request cancelled       REQ002  request timed out
//	REQ003  malformed batch id      REQ004  malformed request body
//	RATE001 rate limited            RATE002 import slots exhausted
//	ERR000  anything else; the technical error is only in the logs
//
// Patterns are matched case-insensitively with strings.Contains, first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Files
	{"file too large", UserMessage{"The file exceeds the maximum upload size", "Split the file into smaller parts", "FILE001"}},
	{"request body too large", UserMessage{"The file exceeds the maximum upload size", "Split the file into smaller parts", "FILE001"}},
	{"legacy .xls", UserMessage{"Legacy .xls workbooks are not supported", "Save the file as .xlsx or .csv and upload it again", "FILE002"}},
	{"not a valid workbook", UserMessage{"The file is not a valid .xlsx workbook", "Re-export the file from your spreadsheet program", "FILE002"}},
	{"not a readable xlsx", UserMessage{"The file is not a valid .xlsx workbook", "Re-export the file from your spreadsheet program", "FILE002"}},
	{"unsupported file format", UserMessage{"Unsupported file format", "Upload an .xlsx or .csv file", "FILE002"}},
	{"malformed csv", UserMessage{"The CSV file could not be read", "Check quoting and delimiters, then upload again", "FILE003"}},
	{"no file provided", UserMessage{"No file was uploaded", "Attach a spreadsheet in the file field", "FILE004"}},
	{"file is empty", UserMessage{"The uploaded file is empty", "Upload a spreadsheet with a header row and data rows", "FILE005"}},
	{"no header row", UserMessage{"The file has no header row", "Put column names in the first row", "FILE005"}},
	{"no data rows", UserMessage{"The file has no data rows", "Add at least one row below the header", "FILE005"}},

	// Validation tokens
	{"no validation matches", UserMessage{"This import was never validated", "Validate the file again before committing", "IMP001"}},
	{"has expired", UserMessage{"The validation has expired", "Validate the file again before committing", "IMP002"}},
	{"re-validated", UserMessage{"A newer validation of this file exists", "Commit using the most recent validation", "IMP003"}},
	{"already committed", UserMessage{"This import was already committed", "Check the batch status before importing again", "IMP004"}},
	{"already in progress", UserMessage{"This import is already being committed", "Wait for the running commit to finish", "IMP005"}},
	{"token is required", UserMessage{"The commit has no validation token", "Send the token returned by validation", "IMP006"}},
	{"import batch not found", UserMessage{"No import batch has this id", "Check the batch_id returned by validation", "IMP007"}},

	// Database
	{"duplicate key", UserMessage{"Some rows were already imported", "Review the batch before committing again", "DB001"}},
	{"violates foreign key", UserMessage{"A referenced record no longer exists", "Validate the file again", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB003"}},
	{"deadlock", UserMessage{"The database was busy with conflicting operations", "Please try again", "DB004"}},

	// Requests
	{"context canceled", UserMessage{"The request was cancelled", "Please try again", "REQ001"}},
	{"deadline exceeded", UserMessage{"The request timed out", "Try a smaller file or try again later", "REQ002"}},
	{"invalid batch id", UserMessage{"The batch id is not valid", "Use the batch_id returned by validation", "REQ003"}},
	{"invalid request body", UserMessage{"The request body is not valid JSON", "Send {token, concept, filename, rows}", "REQ004"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
	{"too many concurrent imports", UserMessage{"Too many imports are running", "Please wait a moment and try again", "RATE002"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error into a message for callers. Column and request
// problems carry their own specifics in the message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var formatErr *FormatError
	if errors.As(err, &formatErr) && len(formatErr.Missing) > 0 {
		return UserMessage{
			Message: formatErr.Error(),
			Action:  "Rename or add the columns, or download the import template",
			Code:    "VAL001",
		}
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return UserMessage{
			Message: reqErr.Error(),
			Action:  "Send token, concept and at least one row",
			Code:    "IMP006",
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders MapError as a single line.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
