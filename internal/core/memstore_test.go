package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore implements every store the service needs in memory. It keeps
// the atomicity rules of PostgresStore and lets tests inject failures.
type MemoryStore struct {
	mu         sync.Mutex
	batches    map[uuid.UUID]ImportBatch
	rows       map[uuid.UUID][]ImportRow
	categories []CatalogEntry
	leads      []Lead
	audit      []AuditEntry
	leadKeys   map[string]bool

	// FailRowChunk, when set, is consulted before each staged-row chunk.
	FailRowChunk func(index int) error
	// FailLeadChunk, when set, is consulted before each lead chunk.
	FailLeadChunk func(leads []Lead) error
	// FailCategories, when set, is returned by Categories.
	FailCategories error
}

func NewMemoryStore(categories ...string) *MemoryStore {
	s := &MemoryStore{
		batches:  make(map[uuid.UUID]ImportBatch),
		rows:     make(map[uuid.UUID][]ImportRow),
		leadKeys: make(map[string]bool),
	}
	for _, name := range categories {
		s.AddCategory(name)
	}
	return s
}

// Stores returns the store set for NewService, without an archive.
func (s *MemoryStore) Stores() Stores {
	return Stores{Ledger: s, Catalog: s, Leads: s, Audit: s}
}

// AddCategory appends a catalog entry and returns its id.
func (s *MemoryStore) AddCategory(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.categories) + 1)
	s.categories = append(s.categories, CatalogEntry{ID: id, Name: name})
	return id
}

// RemoveCategory deletes every entry with the given name.
func (s *MemoryStore) RemoveCategory(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = slices.DeleteFunc(s.categories, func(e CatalogEntry) bool { return e.Name == name })
}

func (s *MemoryStore) SaveValidation(ctx context.Context, batch ImportBatch, chunks [][]ImportRow) error {
	staged := make([]ImportRow, 0, batch.TotalRows)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.FailRowChunk != nil {
			if err := s.FailRowChunk(i); err != nil {
				return &ChunkError{Index: i, FirstRow: chunk[0].RowNumber, LastRow: chunk[len(chunk)-1].RowNumber, Err: err}
			}
		}
		staged = append(staged, chunk...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.batches {
		if b.Token == batch.Token {
			return fmt.Errorf("duplicate token")
		}
	}
	for id, b := range s.batches {
		if b.SourceHash == batch.SourceHash && b.Status == StatusValidated && b.SupersededAt == nil {
			at := batch.ValidatedAt
			b.SupersededAt = &at
			s.batches[id] = b
		}
	}
	s.batches[batch.ID] = batch
	s.rows[batch.ID] = staged
	return nil
}

func (s *MemoryStore) BatchByToken(ctx context.Context, token string) (ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.Token == token {
			return b, nil
		}
	}
	return ImportBatch{}, ErrBatchNotFound
}

func (s *MemoryStore) Batch(ctx context.Context, id uuid.UUID) (ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return ImportBatch{}, ErrBatchNotFound
	}
	return b, nil
}

func (s *MemoryStore) Rows(ctx context.Context, id uuid.UUID) ([]ImportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows[id]), nil
}

func (s *MemoryStore) FinalizeBatch(ctx context.Context, id uuid.UUID, f BatchFinalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok || b.Status != StatusValidated {
		return ErrBatchNotFound
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

func (s *MemoryStore) Categories(ctx context.Context) ([]CatalogEntry, error) {
	if s.FailCategories != nil {
		return nil, s.FailCategories
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories), nil
}

// InsertLeads applies a chunk all-or-nothing, rejecting a second lead for
// the same batch row like the leads table's unique constraint.
func (s *MemoryStore) InsertLeads(ctx context.Context, leads []Lead) (int64, error) {
	if s.FailLeadChunk != nil {
		if err := s.FailLeadChunk(leads); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]bool, len(leads))
	for _, l := range leads {
		key := fmt.Sprintf("%s/%d", l.ImportBatchID, l.ImportRowNumber)
		if s.leadKeys[key] || keys[key] {
			return 0, fmt.Errorf("duplicate key value violates unique constraint on row %d", l.ImportRowNumber)
		}
		keys[key] = true
	}
	maps.Copy(s.leadKeys, keys)
	s.leads = append(s.leads, leads...)
	return int64(len(leads)), nil
}

func (s *MemoryStore) InsertAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// Leads returns a snapshot of committed leads.
func (s *MemoryStore) Leads() []Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.leads)
}

// AuditEntries returns a snapshot of the audit log.
func (s *MemoryStore) AuditEntries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit)
}

// MemoryArchive keeps archived files in a map.
type MemoryArchive struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Err     error
}

func (a *MemoryArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if a.Err != nil {
		return a.Err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Objects == nil {
		a.Objects = make(map[string][]byte)
	}
	a.Objects[key] = slices.Clone(data)
	return nil
}
