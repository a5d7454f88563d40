package core

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Supported workbook formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Workbook is a parsed spreadsheet: the literal header row plus every data
// row in file order.
type Workbook struct {
	Format   string
	Headers  []string
	Rows     []SheetRow
	Warnings []EncodingWarning
}

// SheetRow is one data row keyed by literal header. Every header has a key;
// blank cells map to "".
type SheetRow struct {
	Number int
	Values map[string]string
}

// DetectFormat decides how to read data, trusting the file's magic bytes
// over its declared content type and extension.
func DetectFormat(data []byte, contentType, filename string) (string, error) {
	if len(data) == 0 {
		return "", &FormatError{Reason: "file is empty"}
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX, nil
	}
	if bytes.HasPrefix(data, oleMagic) {
		return "", &FormatError{Reason: "legacy .xls workbooks are not supported, save the file as .xlsx or .csv"}
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".xlsx" || ext == ".xlsm" || strings.Contains(mediaType, "spreadsheetml") {
		return "", &FormatError{Reason: "file is declared as xlsx but is not a valid workbook"}
	}

	if looksBinary(data) {
		return "", &FormatError{Reason: "unsupported file format, upload .xlsx or .csv"}
	}
	return FormatCSV, nil
}

// looksBinary reports NUL bytes in the leading sample. UTF-16 text is
// exempt because it is recognised by its byte order mark.
func looksBinary(data []byte) bool {
	if bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF}) {
		return false
	}
	sample := data
	if len(sample) > sniffBytes {
		sample = sample[:sniffBytes]
	}
	return bytes.IndexByte(sample, 0) >= 0
}

// ParseWorkbook reads an uploaded spreadsheet. The first row is the header;
// data rows are numbered from 1 by position, and fully blank rows are
// skipped without renumbering the rows after them.
func ParseWorkbook(data []byte, contentType, filename string) (*Workbook, error) {
	format, err := DetectFormat(data, contentType, filename)
	if err != nil {
		return nil, err
	}

	var src rowSource
	switch format {
	case FormatXLSX:
		src, err = newXLSXSource(bytes.NewReader(data))
	default:
		src, err = newCSVSource(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	defer src.Close()

	wb := &Workbook{Format: format}

	header, err := src.Next()
	if errors.Is(err, io.EOF) || (err == nil && isEmptyRow(header)) {
		return nil, &FormatError{Reason: "file has no header row"}
	}
	if err != nil {
		return nil, err
	}
	wb.Headers = make([]string, len(header))
	for i, h := range header {
		h, _ = recoverText(h)
		wb.Headers[i] = strings.TrimSpace(h)
	}

	position := 0
	for {
		record, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		position++
		if isEmptyRow(record) {
			continue
		}

		row, warning := buildRow(position, wb.Headers, record)
		wb.Rows = append(wb.Rows, row)
		if warning != nil {
			wb.Warnings = append(wb.Warnings, *warning)
		}
	}

	if len(wb.Rows) == 0 {
		return nil, &FormatError{Reason: "file contains no data rows"}
	}
	return wb, nil
}

// buildRow maps a record onto the headers. Missing trailing cells become
// "", cells beyond the header are dropped, and a repeated header keeps its
// first column.
func buildRow(number int, headers, record []string) (SheetRow, *EncodingWarning) {
	values := make(map[string]string, len(headers))
	var recovered []string

	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, seen := values[h]; seen {
			continue
		}
		cell := ""
		if i < len(record) {
			var fixed bool
			cell, fixed = recoverText(record[i])
			if fixed {
				recovered = append(recovered, h)
			}
		}
		values[h] = cell
	}

	row := SheetRow{Number: number, Values: values}
	if len(recovered) == 0 {
		return row, nil
	}
	return row, &EncodingWarning{Row: number, Columns: recovered}
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
