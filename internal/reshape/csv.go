package reshape

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes rows as CSV. The first row supplies the columns, so the
// header row produced by Tabulate becomes the CSV header line. Strings are
// written verbatim, other values as JSON, missing cells as empty.
func WriteCSV(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	columns := rows[0].Keys
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			v, ok := row.Get(col)
			if !ok {
				record[i] = ""
				continue
			}
			cell, err := cellText(v)
			if err != nil {
				return fmt.Errorf("encode column %s: %w", col, err)
			}
			record[i] = cell
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cellText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := marshalValue(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
