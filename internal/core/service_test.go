package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
)

// exampleCSV has one valid row, one row without email and one row with an
// unknown category.
var exampleCSV = csvFile(
	leadHeader,
	"Acme,lead,Transporte,600111222,info@acme.es,Calle Mayor 1",
	"Beta,member,Transporte,600333444,,Calle Luna 2",
	"Gamma,partner,Legal,600555666,hola@gamma.es,Plaza Sol 3",
)

func validLeadsCSV(n int) []byte {
	lines := []string{leadHeader}
	for i := 1; i <= n; i++ {
		lines = append(lines, fmt.Sprintf("Lead %d,lead,Transporte,60000000%d,lead%d@example.es,Calle %d", i, i, i, i))
	}
	return csvFile(lines...)
}

func validate(t *testing.T, svc *Service, data []byte) *ValidationReport {
	t.Helper()
	report, err := svc.Validate(context.Background(), ValidateRequest{
		Filename:    "leads.csv",
		ContentType: "text/csv",
		Concept:     "feria 2026",
		Data:        data,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return report
}

// previewRows turns preview objects back into commit rows the way a client
// would, through JSON.
func previewRows(t *testing.T, report *ValidationReport) []CommitRow {
	t.Helper()
	raw, err := json.Marshal(report.Preview)
	if err != nil {
		t.Fatal(err)
	}
	var rows []CommitRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestValidate_Example(t *testing.T) {
	store := NewMemoryStore("Transporte", "Agroindustria")
	svc := newTestService(t, store, newSteppingClock())

	report := validate(t, svc, exampleCSV)

	if report.OK {
		t.Error("OK should be false")
	}
	if report.TotalRows != 3 || report.ValidRows != 1 {
		t.Errorf("total/valid = %d/%d, want 3/1", report.TotalRows, report.ValidRows)
	}
	want := []RowError{
		{Row: 2, Field: FieldEmail, Message: "email is required"},
		{Row: 3, Field: FieldCategory, Message: `"Legal" not found`},
	}
	if !slices.Equal(report.RowErrors, want) {
		t.Errorf("RowErrors = %+v, want %+v", report.RowErrors, want)
	}
	if !slices.Equal(report.MissingReferences, []string{"Legal"}) {
		t.Errorf("MissingReferences = %v", report.MissingReferences)
	}
	if report.Token == "" || report.BatchID == "" {
		t.Errorf("token %q batch %q should both be set", report.Token, report.BatchID)
	}
	if len(report.Preview) != 3 || report.Preview[0]["row_number"] != 1 {
		t.Errorf("preview = %v", report.Preview)
	}

	rows, err := store.Rows(context.Background(), mustParseUUID(t, report.BatchID))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || !rows[0].IsValid || rows[1].IsValid || rows[2].IsValid {
		t.Errorf("staged rows = %+v", rows)
	}
	if rows[2].Errors[0].Field != FieldCategory {
		t.Errorf("row 3 staged errors = %+v", rows[2].Errors)
	}
}

func TestValidate_ThenCommitValidRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Transporte")
	svc := newTestService(t, store, newSteppingClock())

	report := validate(t, svc, exampleCSV)
	rows := previewRows(t, report)

	result, err := svc.Commit(ctx, CommitRequest{
		Token:    report.Token,
		Concept:  "feria 2026",
		Filename: "leads.csv",
		Rows:     rows[:1],
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if result.Inserted != 1 || result.Failed != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want 1 inserted, 0 failed, no errors", result)
	}
	if result.Errors == nil {
		t.Error("Errors should be an empty list, not nil")
	}
	if result.Status != StatusImported {
		t.Errorf("Status = %s, want imported", result.Status)
	}

	batch, _ := svc.Batch(ctx, result.BatchID)
	if batch.ID.String() != report.BatchID || batch.Status != StatusImported || batch.InsertedRows != 1 {
		t.Errorf("batch = %+v", batch)
	}

	leads := store.Leads()
	if len(leads) != 1 {
		t.Fatalf("stored %d leads, want 1", len(leads))
	}
	l := leads[0]
	if l.Name != "Acme" || l.CategoryID != 1 || l.ImportRowNumber != 1 || l.ImportBatchID != batch.ID {
		t.Errorf("lead = %+v", l)
	}
}

func TestValidate_SameFileTwiceYieldsDistinctTokens(t *testing.T) {
	store := NewMemoryStore("Transporte")
	svc := newTestService(t, store, newSteppingClock())

	first := validate(t, svc, exampleCSV)
	second := validate(t, svc, exampleCSV)

	if first.Token == second.Token {
		t.Fatal("re-validation must mint a new token")
	}
	if first.BatchID == second.BatchID {
		t.Fatal("re-validation must create a new batch")
	}
}

func TestValidate_LedgerFailure(t *testing.T) {
	store := NewMemoryStore("Transporte")
	store.FailRowChunk = func(index int) error {
		if index == 1 {
			return errors.New("connection reset")
		}
		return nil
	}
	svc := newTestService(t, store, newSteppingClock())

	report := validate(t, svc, validLeadsCSV(3))

	if report.OK {
		t.Error("OK should be false when the ledger write fails")
	}
	if report.BatchID != "" {
		t.Errorf("BatchID = %q, want empty", report.BatchID)
	}
	if len(report.RowErrors) != 1 {
		t.Fatalf("RowErrors = %+v", report.RowErrors)
	}
	sys := report.RowErrors[0]
	if sys.Row != SystemRow || sys.Field != SystemField || !strings.Contains(sys.Message, "connection reset") {
		t.Errorf("system error = %+v", sys)
	}
	if report.ValidRows != 3 {
		t.Errorf("ValidRows = %d, want 3", report.ValidRows)
	}

	_, err := svc.Commit(context.Background(), CommitRequest{
		Token:   report.Token,
		Concept: "x",
		Rows:    []CommitRow{leadRow(1, "Lead 1", "Transporte", "lead1@example.es")},
	})
	var tokErr *InvalidTokenError
	if !errors.As(err, &tokErr) || tokErr.Reason != TokenUnknown {
		t.Errorf("commit err = %v, want unknown token", err)
	}
}

func TestValidate_FormatErrors(t *testing.T) {
	store := NewMemoryStore("Transporte")
	svc := newTestService(t, store, newSteppingClock())

	_, err := svc.Validate(context.Background(), ValidateRequest{
		Filename: "leads.csv",
		Data:     csvFile("nombre,correo", "Acme,a@b.es"),
	})
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
	want := []string{FieldType, FieldCategory, FieldPhone, FieldAddress}
	if !slices.Equal(fe.Missing, want) {
		t.Errorf("Missing = %v, want %v", fe.Missing, want)
	}
	if len(store.AuditEntries()) != 0 {
		t.Error("rejected files should not be audited as validations")
	}
}

func TestValidate_Warnings(t *testing.T) {
	store := NewMemoryStore("Transporte")
	svc := newTestService(t, store, newSteppingClock())

	report := validate(t, svc, csvFile(
		leadHeader,
		"Pe\xf1a SL,lead,Transporte,600,pena@example.es,Calle 1",
		"PEÑA SL,lead,Transporte,601,PENA@example.es,Calle 2",
	))

	if !report.OK {
		t.Errorf("warnings must not block: %+v", report.RowErrors)
	}
	kinds := make(map[string]int)
	for _, w := range report.Warnings {
		kinds[w.Kind] = w.Row
	}
	if kinds[WarningEncoding] != 1 {
		t.Errorf("encoding warning row = %d, want 1 (%+v)", kinds[WarningEncoding], report.Warnings)
	}
	if kinds[WarningDuplicate] != 2 {
		t.Errorf("duplicate warning row = %d, want 2 (%+v)", kinds[WarningDuplicate], report.Warnings)
	}
	if report.Preview[0][FieldName] != "Peña SL" {
		t.Errorf("recovered name = %v", report.Preview[0][FieldName])
	}
}

func TestValidate_PreviewLimit(t *testing.T) {
	store := NewMemoryStore("Transporte")
	svc := newTestService(t, store, newSteppingClock(), func(o *Options) { o.PreviewLimit = 2 })

	report := validate(t, svc, validLeadsCSV(5))
	if len(report.Preview) != 2 {
		t.Errorf("preview has %d rows, want 2", len(report.Preview))
	}
	if !report.OK || report.ValidRows != 5 {
		t.Errorf("report = %+v", report)
	}
}

func TestValidate_ArchivesSource(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Transporte")
	archive := &MemoryArchive{}
	stores := store.Stores()
	stores.Archive = archive

	clock := newSteppingClock()
	svc, err := NewService(stores, Options{Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}

	data := validLeadsCSV(1)
	report, err := svc.Validate(ctx, ValidateRequest{Filename: `C:\exports\leads.csv`, ContentType: "text/csv", Data: data})
	if err != nil {
		t.Fatal(err)
	}

	key := "imports/" + report.BatchID + "/leads.csv"
	if string(archive.Objects[key]) != string(data) {
		t.Errorf("archive keys = %v, want %s", len(archive.Objects), key)
	}
	batch, _ := svc.Batch(ctx, mustParseUUID(t, report.BatchID))
	if batch.SourceObjectKey != key {
		t.Errorf("SourceObjectKey = %q, want %q", batch.SourceObjectKey, key)
	}

	archive.Err = errors.New("bucket unreachable")
	report, err = svc.Validate(ctx, ValidateRequest{Filename: "leads.csv", Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if report.BatchID == "" || !report.OK {
		t.Errorf("archive failure must not block validation: %+v", report)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Kind != WarningArchive {
		t.Errorf("warnings = %+v", report.Warnings)
	}
}

func TestValidate_Audit(t *testing.T) {
	store := NewMemoryStore("Transporte")
	svc := newTestService(t, store, newSteppingClock())

	ctx := WithRequestMetadata(context.Background(), "10.0.0.7", "curl/8.0")
	report, err := svc.Validate(ctx, ValidateRequest{Filename: "leads.csv", Data: exampleCSV})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Commit(ctx, CommitRequest{Token: report.Token, Concept: "c", Rows: previewRows(t, report)[:1]}); err != nil {
		t.Fatal(err)
	}

	entries := store.AuditEntries()
	if len(entries) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(entries))
	}
	v, c := entries[0], entries[1]
	if v.Action != ActionValidate || v.Severity != SeverityMedium || v.RowsAffected != 3 {
		t.Errorf("validate entry = %+v", v)
	}
	if v.IPAddress != "10.0.0.7" || v.UserAgent != "curl/8.0" {
		t.Errorf("request metadata = %q %q", v.IPAddress, v.UserAgent)
	}
	if c.Action != ActionCommit || c.Severity != SeverityHigh || c.RowsAffected != 1 {
		t.Errorf("commit entry = %+v", c)
	}
	if c.BatchID.String() != report.BatchID {
		t.Errorf("commit audit batch = %s", c.BatchID)
	}
}

func TestNewService_RequiresStores(t *testing.T) {
	if _, err := NewService(Stores{}, Options{}); err == nil {
		t.Error("expected error without stores")
	}
}
