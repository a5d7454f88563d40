package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO audit_log (action, severity, batch_id, rows_affected, ip_address, user_agent, reason, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, action, severity, batch_id, rows_affected, ip_address, user_agent, reason, details, created_at
`

type InsertAuditLogParams struct {
	Action       string
	Severity     string
	BatchID      pgtype.UUID
	RowsAffected int32
	IpAddress    pgtype.Text
	UserAgent    pgtype.Text
	Reason       pgtype.Text
	Details      []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error) {
	row := q.db.QueryRow(ctx, insertAuditLog,
		arg.Action,
		arg.Severity,
		arg.BatchID,
		arg.RowsAffected,
		arg.IpAddress,
		arg.UserAgent,
		arg.Reason,
		arg.Details,
	)
	var i AuditLog
	err := row.Scan(
		&i.ID,
		&i.Action,
		&i.Severity,
		&i.BatchID,
		&i.RowsAffected,
		&i.IpAddress,
		&i.UserAgent,
		&i.Reason,
		&i.Details,
		&i.CreatedAt,
	)
	return i, err
}
