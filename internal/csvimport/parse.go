package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyFile     = errors.New("csv file has no header row")
	ErrMissingColumn = errors.New("csv file is missing a required column")
)

const utf8BOM = "\ufeff"

// Parse reads a delimited export with a header row. Keys of each Row.Raw are the
// header cells as written; blank lines are skipped and ragged rows tolerated.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	cols := resolveColumns(header)
	if cols.name == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnName)
	}
	if cols.quantity == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, ColumnQuantity)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", len(rows)+2, err)
		}
		if blank(rec) {
			continue
		}
		raw := make(map[string]string, len(header))
		for i, col := range header {
			if _, dup := raw[col]; dup {
				continue
			}
			if i < len(rec) {
				raw[col] = rec[i]
			} else {
				raw[col] = ""
			}
		}
		rows = append(rows, newRow(raw, cols))
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
