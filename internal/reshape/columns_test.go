package reshape

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/rsclarke/hookrelay/internal/models"
)

func TestSortRecordMandatoryFirst(t *testing.T) {
	rec := FlatRecord{
		"zeta":      1,
		"body_json": "{}",
		"alpha":     2,
		"id":        int64(3),
		"eventName": "x",
	}

	row := SortRecord(rec)

	if !slices.Equal(row.Keys[:len(MandatoryKeys)], MandatoryKeys) {
		t.Fatalf("mandatory prefix = %v", row.Keys[:len(MandatoryKeys)])
	}
	if !slices.Equal(row.Keys[len(MandatoryKeys):], []string{"alpha", "zeta"}) {
		t.Errorf("remaining keys = %v", row.Keys[len(MandatoryKeys):])
	}
	if v, _ := row.Get("ip"); v != "Not found" {
		t.Errorf("absent mandatory key = %#v, want Not found", v)
	}
}

func TestTabulateEmpty(t *testing.T) {
	if rows := Tabulate(nil); len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestTabulateHeaderRow(t *testing.T) {
	records := []models.LogRecord{
		{ID: 2, Body: `{"eventName":"document_downloaded","docId":"D"}`},
		{ID: 1, Body: `{"eventName":"ticket_updated"}`, QueryParams: `{"x":"y"}`},
		{ID: 7, Body: `not json`},
	}

	rows := Tabulate(records)
	if len(rows) != len(records)+1 {
		t.Fatalf("expected %d rows, got %d", len(records)+1, len(rows))
	}

	header := rows[0]
	union := map[string]bool{}
	for _, rec := range records {
		for k := range Flatten(rec) {
			union[k] = true
		}
	}
	if len(header.Keys) != len(union) {
		t.Errorf("header has %d keys, union has %d", len(header.Keys), len(union))
	}
	for _, k := range header.Keys {
		if !union[k] {
			t.Errorf("header key %q not in union", k)
		}
		if v, _ := header.Get(k); v != k {
			t.Errorf("header[%q] = %#v", k, v)
		}
	}

	wantIDs := []int64{2, 1, 7}
	for i, row := range rows[1:] {
		if v, _ := row.Get("id"); v != wantIDs[i] {
			t.Errorf("row %d id = %#v, want %d", i, v, wantIDs[i])
		}
		if !slices.Equal(row.Keys[:len(MandatoryKeys)], MandatoryKeys) {
			t.Errorf("row %d mandatory prefix = %v", i, row.Keys[:len(MandatoryKeys)])
		}
		rest := row.Keys[len(MandatoryKeys):]
		if !slices.IsSorted(rest) {
			t.Errorf("row %d remaining keys not sorted: %v", i, rest)
		}
	}
}

func TestRowMarshalJSONKeepsOrder(t *testing.T) {
	row := SortRecord(FlatRecord{"b": "x", "a": []any{json.Number("1")}, "id": int64(1)})

	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(b)
	if !strings.HasPrefix(s, `{"id":1,"ip":"Not found",`) {
		t.Errorf("unexpected prefix: %s", s)
	}
	if !strings.HasSuffix(s, `"a":[1],"b":"x"}`) {
		t.Errorf("unexpected suffix: %s", s)
	}

	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
}
