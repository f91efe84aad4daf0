package reshape

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/rsclarke/hookrelay/internal/models"
)

// Row is a FlatRecord with a fixed key order. It encodes to a JSON object
// whose keys appear in that order.
type Row struct {
	Keys   []string
	Values map[string]any
}

// Get returns the value stored under key.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// MarshalJSON encodes r as an object in key order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(r.Values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// SortRecord orders rec as the mandatory keys first, in MandatoryKeys
// order and defaulted to "Not found" when missing, followed by the
// remaining keys in lexical order.
func SortRecord(rec FlatRecord) Row {
	row := Row{
		Keys:   make([]string, 0, len(rec)+len(MandatoryKeys)),
		Values: make(map[string]any, len(rec)+len(MandatoryKeys)),
	}
	for _, k := range MandatoryKeys {
		v, ok := rec[k]
		if !ok {
			v = "Not found"
		}
		row.Keys = append(row.Keys, k)
		row.Values[k] = v
	}
	rest := make([]string, 0, len(rec))
	for k := range rec {
		if !isMandatory(k) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	for _, k := range rest {
		row.Keys = append(row.Keys, k)
		row.Values[k] = rec[k]
	}
	return row
}

// HeaderRecord maps every key found across recs to itself.
func HeaderRecord(recs []FlatRecord) FlatRecord {
	header := FlatRecord{}
	for _, rec := range recs {
		for k := range rec {
			header[k] = k
		}
	}
	return header
}

// Tabulate flattens records and returns them header-first, each sorted.
// Record order is preserved. No records produce no rows.
func Tabulate(records []models.LogRecord) []Row {
	if len(records) == 0 {
		return nil
	}
	flat := make([]FlatRecord, len(records))
	for i, rec := range records {
		flat[i] = Flatten(rec)
	}
	rows := make([]Row, 0, len(flat)+1)
	rows = append(rows, SortRecord(HeaderRecord(flat)))
	for _, rec := range flat {
		rows = append(rows, SortRecord(rec))
	}
	return rows
}

func isMandatory(key string) bool {
	return slices.Contains(MandatoryKeys, key)
}
