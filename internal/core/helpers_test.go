package core

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// ============================================================================
// Test fixtures
// ============================================================================

const leadHeader = "name,type,category,phone,email,address"

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func xlsxFile(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	return buf.Bytes()
}

// steppingClock returns a time that advances by one second on every call.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, store *MemoryStore, clock *steppingClock, mutate ...func(*Options)) *Service {
	t.Helper()
	opts := Options{
		LedgerChunkSize: 2,
		CommitChunkSize: 2,
		CommitWorkers:   2,
		TokenTTL:        time.Hour,
		PreviewLimit:    10,
		MaxConcurrent:   4,
		MaxWait:         time.Second,
		Now:             clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	svc, err := NewService(store.Stores(), opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func leadRow(number int, name, category, email string) CommitRow {
	return CommitRow{
		RowNumber: number,
		Fields: map[string]string{
			FieldName:     name,
			FieldType:     "lead",
			FieldCategory: category,
			FieldPhone:    "600000000",
			FieldEmail:    email,
			FieldAddress:  "Calle Mayor 1",
		},
	}
}

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse batch id %q: %v", s, err)
	}
	return id
}
