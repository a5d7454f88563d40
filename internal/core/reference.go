package core

import (
	"context"
	"fmt"
)

// CatalogStore reads a reference catalog. Implementations must answer with
// a single query per call.
type CatalogStore interface {
	Categories(ctx context.Context) ([]CatalogEntry, error)
}

// ReferenceReport is the outcome of resolving one field's distinct values.
type ReferenceReport struct {
	Field     string
	Resolved  map[string]CatalogEntry // folded value -> entry
	Missing   []string
	RowErrors []RowError
}

// Entry returns the catalog entry for value, if it resolved.
func (r ReferenceReport) Entry(value string) (CatalogEntry, bool) {
	e, ok := r.Resolved[FoldValue(value)]
	return e, ok
}

// ReferenceResolver checks referential values of one field against a catalog.
type ReferenceResolver struct {
	field   string
	catalog CatalogStore
}

func NewReferenceResolver(field string, catalog CatalogStore) *ReferenceResolver {
	return &ReferenceResolver{field: field, catalog: catalog}
}

// Field is the canonical field this resolver checks.
func (r *ReferenceResolver) Field() string { return r.field }

// Resolve looks up every distinct value in set with one catalog read. Each
// unmatched value yields one RowError per row that used it.
func (r *ReferenceResolver) Resolve(ctx context.Context, set *ReferenceSet) (ReferenceReport, error) {
	report := ReferenceReport{Field: r.field, Resolved: make(map[string]CatalogEntry)}
	if set == nil || set.Len(r.field) == 0 {
		return report, nil
	}

	index, err := r.index(ctx)
	if err != nil {
		return report, err
	}

	for _, value := range set.Values(r.field) {
		key := FoldValue(value)
		if entry, ok := index[key]; ok {
			report.Resolved[key] = entry
			continue
		}
		report.Missing = append(report.Missing, value)
		for _, row := range set.Rows(r.field, value) {
			report.RowErrors = append(report.RowErrors, RowError{
				Row:     row,
				Field:   r.field,
				Message: fmt.Sprintf("%q not found", value),
			})
		}
	}
	return report, nil
}

// index loads the catalog keyed by folded name. On a folded-name collision
// the first entry returned by the store wins.
func (r *ReferenceResolver) index(ctx context.Context) (map[string]CatalogEntry, error) {
	entries, err := r.catalog.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s catalog: %w", r.field, err)
	}
	index := make(map[string]CatalogEntry, len(entries))
	for _, e := range entries {
		key := FoldValue(e.Name)
		if _, dup := index[key]; !dup {
			index[key] = e
		}
	}
	return index, nil
}
