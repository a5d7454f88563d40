package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var leadColumns = []string{
	"name", "type", "category_id", "phone", "email", "address",
	"web", "contact", "city", "notes",
	"import_batch_id", "import_row_number",
}

type InsertLeadParams struct {
	Name            string
	Type            string
	CategoryID      int64
	Phone           string
	Email           string
	Address         string
	Web             string
	Contact         string
	City            string
	Notes           string
	ImportBatchID   uuid.UUID
	ImportRowNumber int32
}

// CopyLeads bulk-loads leads with the COPY protocol.
func (q *Queries) CopyLeads(ctx context.Context, leads []InsertLeadParams) (int64, error) {
	return q.db.CopyFrom(ctx, pgx.Identifier{"leads"}, leadColumns,
		pgx.CopyFromSlice(len(leads), func(i int) ([]any, error) {
			l := leads[i]
			return []any{
				l.Name, l.Type, l.CategoryID, l.Phone, l.Email, l.Address,
				l.Web, l.Contact, l.City, l.Notes,
				l.ImportBatchID, l.ImportRowNumber,
			}, nil
		}),
	)
}
