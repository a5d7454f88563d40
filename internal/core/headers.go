package core

import "slices"

// Canonical lead fields, in report order.
const (
	FieldName     = "name"
	FieldType     = "type"
	FieldCategory = "category"
	FieldPhone    = "phone"
	FieldEmail    = "email"
	FieldAddress  = "address"
	FieldWeb      = "web"
	FieldContact  = "contact"
	FieldCity     = "city"
	FieldNotes    = "notes"
)

// LeadFields lists every canonical field a lead import understands.
var LeadFields = []string{
	FieldName, FieldType, FieldCategory, FieldPhone, FieldEmail, FieldAddress,
	FieldWeb, FieldContact, FieldCity, FieldNotes,
}

// LeadRequiredFields must each be matched by some column header.
var LeadRequiredFields = []string{
	FieldName, FieldType, FieldCategory, FieldPhone, FieldEmail, FieldAddress,
}

// FieldSynonyms maps a canonical field to the header spellings accepted
// for it. Spellings are compared after NormalizeKey, and the canonical
// name itself is always accepted.
type FieldSynonyms map[string][]string

// LeadSynonyms covers the Spanish and English headers seen in member and
// prospect exports.
var LeadSynonyms = FieldSynonyms{
	FieldName:     {"nombre", "company", "empresa", "razon social", "business name", "company name"},
	FieldType:     {"tipo", "lead type", "tipo de lead", "tipo de registro"},
	FieldCategory: {"categoria", "sector", "rubro", "industry", "industria"},
	FieldPhone:    {"telefono", "tel", "movil", "celular", "mobile", "phone number"},
	FieldEmail:    {"e-mail", "correo", "correo electronico", "mail", "email address"},
	FieldAddress:  {"direccion", "domicilio", "street address"},
	FieldWeb:      {"website", "sitio web", "sitio_web", "url", "pagina web"},
	FieldContact:  {"contacto", "contact name", "persona de contacto"},
	FieldCity:     {"ciudad", "localidad", "municipio", "town"},
	FieldNotes:    {"notas", "observaciones", "comments", "comentarios"},
}

// HeaderMapping maps a canonical field to the literal header that supplies it.
type HeaderMapping map[string]string

// HeaderResolver matches literal headers to canonical fields through a
// static synonym table built once at construction.
type HeaderResolver struct {
	fields   []string
	required []string
	lookup   map[string]string
}

// NewHeaderResolver builds a resolver. When two fields claim the same
// spelling the one listed first in fields keeps it.
func NewHeaderResolver(fields []string, synonyms FieldSynonyms, required []string) *HeaderResolver {
	lookup := make(map[string]string)
	for _, field := range fields {
		for _, spelling := range append([]string{field}, synonyms[field]...) {
			key := NormalizeKey(spelling)
			if _, taken := lookup[key]; !taken {
				lookup[key] = field
			}
		}
	}
	return &HeaderResolver{fields: fields, required: required, lookup: lookup}
}

// NewLeadHeaderResolver returns the resolver for lead imports.
func NewLeadHeaderResolver() *HeaderResolver {
	return NewHeaderResolver(LeadFields, LeadSynonyms, LeadRequiredFields)
}

// Resolve maps headers left to right; the first header matching a field
// wins. All required fields without a header are reported in one FormatError.
func (r *HeaderResolver) Resolve(headers []string) (HeaderMapping, error) {
	mapping := make(HeaderMapping, len(r.fields))
	for _, h := range headers {
		field, ok := r.lookup[NormalizeKey(h)]
		if !ok {
			continue
		}
		if _, done := mapping[field]; !done {
			mapping[field] = h
		}
	}

	var missing []string
	for _, field := range r.required {
		if _, ok := mapping[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &FormatError{Reason: "missing required columns", Missing: missing}
	}
	return mapping, nil
}

// Fields returns the canonical fields the resolver knows, in order.
func (r *HeaderResolver) Fields() []string {
	return slices.Clone(r.fields)
}

// Extract builds the canonical view of one row. Fields without a mapped
// header are present with an empty value.
func (m HeaderMapping) Extract(values map[string]string, fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		if header, ok := m[field]; ok {
			out[field] = CleanCell(values[header])
		} else {
			out[field] = ""
		}
	}
	return out
}
