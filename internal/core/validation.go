package core

// validation.go provides row-level validation for canonical lead rows.
//
// Every rule runs independently so a row reports all of its problems at
// once. Fields flagged Referential are only presence-checked here; their
// distinct values are gathered into a ReferenceSet and resolved against the
// catalog in one query afterwards.

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldKind selects the format rule applied to a non-empty value.
type FieldKind int

const (
	KindText FieldKind = iota
	KindEnum
	KindEmail
)

// FieldSpec describes validation for one canonical field.
type FieldSpec struct {
	Name        string
	Kind        FieldKind
	Required    bool
	EnumValues  []string
	Referential bool
}

// LeadFieldSpecs returns the rules for lead rows with the given allowed types.
func LeadFieldSpecs(leadTypes []string) []FieldSpec {
	return []FieldSpec{
		{Name: FieldName, Kind: KindText, Required: true},
		{Name: FieldType, Kind: KindEnum, Required: true, EnumValues: leadTypes},
		{Name: FieldCategory, Kind: KindText, Required: true, Referential: true},
		{Name: FieldPhone, Kind: KindText, Required: true},
		{Name: FieldEmail, Kind: KindEmail, Required: true},
		{Name: FieldAddress, Kind: KindText, Required: true},
		{Name: FieldWeb, Kind: KindText},
		{Name: FieldContact, Kind: KindText},
		{Name: FieldCity, Kind: KindText},
		{Name: FieldNotes, Kind: KindText},
	}
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@.]+(\.[^\s@.]+)*\.[A-Za-z]{2,}$`)

// ValidationResult is the outcome for one row before reference checks.
type ValidationResult struct {
	Valid  bool
	Errors []RowError
}

// RowValidator applies field rules to canonical rows.
type RowValidator struct {
	specs []FieldSpec
}

func NewRowValidator(specs []FieldSpec) *RowValidator {
	return &RowValidator{specs: specs}
}

// ValidateRow checks one row. Non-empty referential values are added to
// refs when refs is not nil.
func (v *RowValidator) ValidateRow(rowNumber int, fields map[string]string, refs *ReferenceSet) ValidationResult {
	result := ValidationResult{Valid: true}

	for _, spec := range v.specs {
		value := strings.TrimSpace(fields[spec.Name])

		if value == "" {
			if spec.Required {
				result.Errors = append(result.Errors, RowError{
					Row:     rowNumber,
					Field:   spec.Name,
					Message: spec.Name + " is required",
				})
			}
			continue
		}

		if err := ValidateCell(value, spec); err != nil {
			result.Errors = append(result.Errors, RowError{
				Row:     rowNumber,
				Field:   spec.Name,
				Message: err.Error(),
			})
		}

		if spec.Referential && refs != nil {
			refs.Add(spec.Name, value, rowNumber)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ReferentialFields lists the fields resolved against a catalog.
func (v *RowValidator) ReferentialFields() []string {
	var out []string
	for _, spec := range v.specs {
		if spec.Referential {
			out = append(out, spec.Name)
		}
	}
	return out
}

// ValidateCell checks a non-empty value against its field's format rule.
func ValidateCell(value string, spec FieldSpec) error {
	switch spec.Kind {
	case KindEnum:
		if CanonicalEnum(value, spec.EnumValues) == "" {
			return fmt.Errorf("invalid %s %q (allowed: %s)", spec.Name, value, strings.Join(spec.EnumValues, ", "))
		}
	case KindEmail:
		if !emailPattern.MatchString(value) {
			return fmt.Errorf("invalid email %q", value)
		}
	}
	return nil
}

// CanonicalEnum returns the allowed spelling matching value case-insensitively,
// or "" when value is not allowed.
func CanonicalEnum(value string, allowed []string) string {
	value = strings.TrimSpace(value)
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return a
		}
	}
	return ""
}

// referenceUse tracks one distinct referential value and the rows using it.
type referenceUse struct {
	display string
	rows    []int
}

// ReferenceSet aggregates distinct referential values per field, keyed by
// their folded form, preserving first-seen order.
type ReferenceSet struct {
	fields map[string]map[string]*referenceUse
	order  map[string][]string
}

func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{
		fields: make(map[string]map[string]*referenceUse),
		order:  make(map[string][]string),
	}
}

// Add records that row used value for field.
func (s *ReferenceSet) Add(field, value string, row int) {
	key := FoldValue(value)
	if key == "" {
		return
	}
	uses, ok := s.fields[field]
	if !ok {
		uses = make(map[string]*referenceUse)
		s.fields[field] = uses
	}
	use, ok := uses[key]
	if !ok {
		use = &referenceUse{display: strings.TrimSpace(value)}
		uses[key] = use
		s.order[field] = append(s.order[field], key)
	}
	use.rows = append(use.rows, row)
}

// Values returns the distinct values for field as first written.
func (s *ReferenceSet) Values(field string) []string {
	keys := s.order[field]
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.fields[field][k].display
	}
	return out
}

// Rows returns the rows that used value for field.
func (s *ReferenceSet) Rows(field, value string) []int {
	if use, ok := s.fields[field][FoldValue(value)]; ok {
		return use.rows
	}
	return nil
}

// Len is the number of distinct values recorded for field.
func (s *ReferenceSet) Len(field string) int {
	return len(s.order[field])
}
