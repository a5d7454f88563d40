package core

import "testing"

func TestDuplicateDetector(t *testing.T) {
	d := newDuplicateDetector()

	rows := []map[string]string{
		{FieldName: "Acme", FieldEmail: "info@acme.es"},
		{FieldName: "Beta", FieldEmail: "info@acme.es"},
		{FieldName: "  ACME ", FieldEmail: "INFO@acme.es"},
		{FieldName: "Acme", FieldEmail: ""},
		{FieldName: "Ácme", FieldEmail: "info@acme.es"},
	}

	var warnings []*Warning
	for i, f := range rows {
		warnings = append(warnings, d.Check(i+1, f))
	}

	if warnings[0] != nil || warnings[1] != nil || warnings[3] != nil {
		t.Errorf("unexpected warnings: %+v %+v %+v", warnings[0], warnings[1], warnings[3])
	}
	for _, i := range []int{2, 4} {
		w := warnings[i]
		if w == nil {
			t.Fatalf("row %d: expected duplicate warning", i+1)
		}
		if w.Row != i+1 || w.Kind != WarningDuplicate || w.Message != "same name and email as row 1" {
			t.Errorf("row %d warning = %+v", i+1, w)
		}
	}
}
