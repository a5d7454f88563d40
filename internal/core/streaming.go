package core

// streaming.go holds the row sources behind ParseWorkbook.
//
// Both sources hand out one record at a time so the parser never builds an
// intermediate copy of the whole sheet:
//
//   - csvSource: BOM-stripped, delimiter-sniffed encoding/csv reader
//   - xlsxSource: excelize row iterator over the first worksheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sniffBytes is how much of the file is inspected to pick a delimiter.
const sniffBytes = 16 * 1024

// candidateDelimiters in tie-break order.
var candidateDelimiters = []byte{',', ';', '\t', '|'}

// rowSource yields raw records until io.EOF.
type rowSource interface {
	Next() ([]string, error)
	Close() error
}

type csvSource struct {
	r         *csv.Reader
	delimiter rune
}

// newCSVSource prepares a CSV reader over r. UTF-16 input (detected by its
// BOM) is transcoded to UTF-8 first; a UTF-8 BOM is dropped.
func newCSVSource(r io.Reader) (*csvSource, error) {
	br := bufio.NewReaderSize(r, sniffBytes)

	head, _ := br.Peek(2)
	if bytes.Equal(head, []byte{0xFF, 0xFE}) || bytes.Equal(head, []byte{0xFE, 0xFF}) {
		utf16 := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
		br = bufio.NewReaderSize(transform.NewReader(br, utf16.NewDecoder()), sniffBytes)
	}

	if err := skipBOM(br); err != nil {
		return nil, err
	}

	delim := sniffDelimiter(br)
	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	return &csvSource{r: reader, delimiter: delim}, nil
}

func (s *csvSource) Next() ([]string, error) {
	record, err := s.r.Read()
	if err != nil && err != io.EOF {
		return nil, &FormatError{Reason: "malformed CSV", Err: err}
	}
	return record, err
}

func (s *csvSource) Close() error { return nil }

// skipBOM discards a leading UTF-8 byte order mark.
func skipBOM(br *bufio.Reader) error {
	head, err := br.Peek(len(utf8BOM))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return err
	}
	if bytes.Equal(head, utf8BOM) {
		_, err = br.Discard(len(utf8BOM))
		return err
	}
	return nil
}

// sniffDelimiter counts candidate delimiters outside quotes on the first
// line and returns the most frequent one, defaulting to a comma.
func sniffDelimiter(br *bufio.Reader) rune {
	sample, _ := br.Peek(sniffBytes)

	counts := make(map[byte]int, len(candidateDelimiters))
	inQuotes := false
	for _, b := range sample {
		if b == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if b == '\n' || b == '\r' {
			break
		}
		counts[b]++
	}

	best := byte(',')
	bestCount := 0
	for _, c := range candidateDelimiters {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return rune(best)
}

type xlsxSource struct {
	file *excelize.File
	rows *excelize.Rows
}

// newXLSXSource opens the first worksheet of an OOXML workbook.
func newXLSXSource(r io.Reader) (*xlsxSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Reason: "file is not a readable xlsx workbook", Err: err}
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, &FormatError{Reason: "workbook has no worksheets"}
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, &FormatError{Reason: fmt.Sprintf("cannot read worksheet %q", sheets[0]), Err: err}
	}
	return &xlsxSource{file: f, rows: rows}, nil
}

func (s *xlsxSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, &FormatError{Reason: "cannot read worksheet rows", Err: err}
		}
		return nil, io.EOF
	}
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, &FormatError{Reason: "cannot read worksheet cells", Err: err}
	}
	return cols, nil
}

func (s *xlsxSource) Close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}

// recoverText returns s unchanged when it is valid UTF-8. Otherwise each
// invalid byte is decoded as Windows-1252 while valid runes are kept, and
// the second result reports that recovery happened.
func recoverText(s string) (string, bool) {
	if utf8.ValidString(s) {
		return s, false
	}

	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			out = append(out, charmap.Windows1252.DecodeByte(s[i]))
			i++
			continue
		}
		out = append(out, r)
		i += size
	}
	return string(out), true
}
