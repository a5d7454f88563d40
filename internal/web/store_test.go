package web

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/leadimport/internal/core"
)

// fakeStore backs handler tests with every store the service needs.
type fakeStore struct {
	mu         sync.Mutex
	batches    map[uuid.UUID]core.ImportBatch
	rows       map[uuid.UUID][]core.ImportRow
	categories []core.CatalogEntry
	leads      []core.Lead
	audit      []core.AuditEntry
}

func newFakeStore(categories ...string) *fakeStore {
	s := &fakeStore{
		batches: make(map[uuid.UUID]core.ImportBatch),
		rows:    make(map[uuid.UUID][]core.ImportRow),
	}
	for i, name := range categories {
		s.categories = append(s.categories, core.CatalogEntry{ID: int64(i + 1), Name: name})
	}
	return s
}

func (s *fakeStore) Stores() core.Stores {
	return core.Stores{Ledger: s, Catalog: s, Leads: s, Audit: s}
}

func (s *fakeStore) SaveValidation(ctx context.Context, batch core.ImportBatch, chunks [][]core.ImportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.batches {
		if b.SourceHash == batch.SourceHash && b.Status == core.StatusValidated && b.SupersededAt == nil {
			at := batch.ValidatedAt
			b.SupersededAt = &at
			s.batches[id] = b
		}
	}
	s.batches[batch.ID] = batch
	s.rows[batch.ID] = slices.Concat(chunks...)
	return nil
}

func (s *fakeStore) BatchByToken(ctx context.Context, token string) (core.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.Token == token {
			return b, nil
		}
	}
	return core.ImportBatch{}, core.ErrBatchNotFound
}

func (s *fakeStore) Batch(ctx context.Context, id uuid.UUID) (core.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return core.ImportBatch{}, core.ErrBatchNotFound
	}
	return b, nil
}

func (s *fakeStore) Rows(ctx context.Context, id uuid.UUID) ([]core.ImportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows[id]), nil
}

func (s *fakeStore) FinalizeBatch(ctx context.Context, id uuid.UUID, f core.BatchFinalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok || b.Status != core.StatusValidated {
		return core.ErrBatchNotFound
	}
	if f.Concept != "" {
		b.Concept = f.Concept
	}
	b.InsertedRows = f.InsertedRows
	b.ErrorRows = f.ErrorRows
	b.Status = f.Status
	at := f.CommittedAt
	b.CommittedAt = &at
	s.batches[id] = b
	return nil
}

func (s *fakeStore) Categories(ctx context.Context) ([]core.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories), nil
}

func (s *fakeStore) InsertLeads(ctx context.Context, leads []core.Lead) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, leads...)
	return int64(len(leads)), nil
}

func (s *fakeStore) InsertAudit(ctx context.Context, e core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *fakeStore) Leads() []core.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.leads)
}

func (s *fakeStore) AuditEntries() []core.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}
