package core

import "testing"

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Acme  ", "Acme"},
		{" Acme ", "Acme"},
		{`="0034600123456"`, "0034600123456"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{`"`, `"`},
		{"", ""},
		{"in \"the\" middle", "in \"the\" middle"},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.in); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFoldValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Agroindustria", "agroindustria"},
		{"  Agro  Industría ", "agro industria"},
		{"CONSTRUCCIÓN", "construccion"},
		{"Ñandú", "nandu"},
		{"Legal", "legal"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FoldValue(tt.in); got != tt.want {
			t.Errorf("FoldValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sitio_Web", "sitio web"},
		{"E-mail", "e mail"},
		{"Teléfono", "telefono"},
		{"tipo.de.lead", "tipo de lead"},
		{"  Razón   Social ", "razon social"},
		{"Phone/Mobile", "phone mobile"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
