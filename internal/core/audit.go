package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/JonMunkholm/leadimport/internal/logging"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionValidate AuditAction = "import_validate"
	ActionCommit   AuditAction = "import_commit"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	Action       AuditAction
	Severity     AuditSeverity
	BatchID      uuid.UUID
	RowsAffected int
	IPAddress    string
	UserAgent    string
	Reason       string
	Details      map[string]any
}

// AuditStore persists audit entries.
type AuditStore interface {
	InsertAudit(ctx context.Context, e AuditEntry) error
}

// determineSeverity rates an entry: commits that wrote rows are high,
// commits that wrote nothing and validations with errors are medium.
func determineSeverity(action AuditAction, rowsAffected int, hadErrors bool) AuditSeverity {
	switch {
	case action == ActionCommit && rowsAffected > 0:
		return SeverityHigh
	case action == ActionCommit, hadErrors:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// logAudit writes an entry, enriched with request metadata from ctx. The
// write survives request cancellation; failures are logged, not returned.
func (s *Service) logAudit(ctx context.Context, e AuditEntry, hadErrors bool) {
	if s.audit == nil {
		return
	}
	e.Severity = determineSeverity(e.Action, e.RowsAffected, hadErrors)
	e.IPAddress = ipAddressFrom(ctx)
	e.UserAgent = userAgentFrom(ctx)

	if err := s.audit.InsertAudit(context.WithoutCancel(ctx), e); err != nil {
		logging.FromContext(ctx).Warn("audit log write failed",
			"action", e.Action,
			"batch_id", e.BatchID,
			"error", err,
		)
	}
}
