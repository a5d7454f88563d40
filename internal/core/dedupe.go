package core

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// duplicateDetector flags rows whose name and email repeat an earlier row
// of the same file.
type duplicateDetector struct {
	seen map[uint64]fingerprint
}

type fingerprint struct {
	key string
	row int
}

func newDuplicateDetector() *duplicateDetector {
	return &duplicateDetector{seen: make(map[uint64]fingerprint)}
}

// Check returns a warning when fields matches a previously checked row.
// Rows missing either name or email are never reported.
func (d *duplicateDetector) Check(row int, fields map[string]string) *Warning {
	name := FoldValue(fields[FieldName])
	email := strings.ToLower(strings.TrimSpace(fields[FieldEmail]))
	if name == "" || email == "" {
		return nil
	}

	key := name + "\x1f" + email
	sum := xxhash.Sum64String(key)

	if prev, ok := d.seen[sum]; ok && prev.key == key {
		return &Warning{
			Row:     row,
			Kind:    WarningDuplicate,
			Message: fmt.Sprintf("same name and email as row %d", prev.row),
		}
	}
	if _, ok := d.seen[sum]; !ok {
		d.seen[sum] = fingerprint{key: key, row: row}
	}
	return nil
}
