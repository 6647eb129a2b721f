// Package csvparser turns an uploaded recipient CSV into loosely-typed
// rows. Header casing is preserved as-is; the engine normalizes field
// names downstream.
package csvparser

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// ParseRows parses a CSV from r. The CSV must contain a header row with an
// "email" column (case-insensitive). Each data row becomes a header->value
// map. maxRows limits how many data rows are parsed (excluding header).
func ParseRows(r io.Reader, maxRows int) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("csv header row is empty")
	}

	hasEmail := false
	normalized := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		normalized[i] = h
		if strings.EqualFold(h, "email") {
			hasEmail = true
		}
	}
	if !hasEmail {
		return nil, errors.New("csv must contain an email column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	rows := make([]map[string]string, 0)
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(headers) {
			// skip malformed row
			continue
		}

		row := make(map[string]string, len(headers))
		empty := true
		for i, v := range record {
			key := normalized[i]
			if key == "" {
				continue
			}
			v = strings.TrimSpace(v)
			if v != "" {
				empty = false
			}
			row[key] = v
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return rows, nil
}
