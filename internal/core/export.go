package core

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	templateSheet = "leads"
	errorsSheet   = "errors"
)

// templateSample is the example row written under the template headers.
var templateSample = map[string]string{
	FieldName:     "Acme Logistics",
	FieldType:     "lead",
	FieldCategory: "Transport",
	FieldPhone:    "+34 600 000 000",
	FieldEmail:    "info@acme.example",
	FieldAddress:  "Calle Mayor 1",
	FieldWeb:      "https://acme.example",
	FieldContact:  "Ana Pérez",
	FieldCity:     "Madrid",
	FieldNotes:    "",
}

// WriteTemplate writes an .xlsx with the canonical headers and a sample row.
func (s *Service) WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, field := range s.fields {
		header, _ := excelize.CoordinatesToCellName(i+1, 1)
		sample, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(templateSheet, header, field); err != nil {
			return err
		}
		if err := f.SetCellStyle(templateSheet, header, header, headerStyle); err != nil {
			return err
		}
		if err := f.SetCellValue(templateSheet, sample, templateSample[field]); err != nil {
			return err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(s.fields))
	if err := f.SetColWidth(templateSheet, "A", last, 22); err != nil {
		return err
	}

	return f.Write(w)
}

// WriteErrorReport writes the staged rows of a batch that failed validation,
// one line per error, followed by the row's data.
func (s *Service) WriteErrorReport(ctx context.Context, id uuid.UUID, w io.Writer) error {
	rows, err := s.BatchRows(ctx, id)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", errorsSheet); err != nil {
		return err
	}

	headers := append([]string{"row", "field", "message"}, s.fields...)
	if err := f.SetSheetRow(errorsSheet, "A1", &headers); err != nil {
		return err
	}

	line := 2
	for _, r := range rows {
		if r.IsValid {
			continue
		}
		for _, e := range r.Errors {
			values := make([]any, 0, len(headers))
			values = append(values, r.RowNumber, e.Field, e.Message)
			for _, field := range s.fields {
				values = append(values, r.Data[field])
			}
			cell, _ := excelize.CoordinatesToCellName(1, line)
			if err := f.SetSheetRow(errorsSheet, cell, &values); err != nil {
				return fmt.Errorf("write error line %d: %w", line, err)
			}
			line++
		}
	}

	return f.Write(w)
}
