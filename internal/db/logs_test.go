package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rsclarke/hookrelay/internal/models"
)

func setupLogStore(t *testing.T) *LogStore {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "logs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return NewLogStore(database)
}

func insertN(t *testing.T, s *LogStore, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		rec := &models.LogRecord{HTTPMethod: "POST", Body: `{"n":1}`}
		id, err := s.Insert(context.Background(), rec)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestInsertAssignsIDAndTimestamp(t *testing.T) {
	s := setupLogStore(t)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.FixedZone("X", 3600)) }

	rec := &models.LogRecord{HTTPMethod: "POST", Headers: `{"a":"b"}`, Body: "raw text"}
	id, err := s.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == 0 || rec.ID != id {
		t.Errorf("expected ID assigned onto record, got id=%d rec.ID=%d", id, rec.ID)
	}
	if rec.Timestamp != "2024-03-01T11:30:45.123456Z" {
		t.Errorf("unexpected timestamp %q", rec.Timestamp)
	}

	got, err := s.Scan(context.Background(), LogFilter{})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Body != "raw text" || got[0].PathParams != "{}" || got[0].Payload != "" {
		t.Errorf("unexpected stored record: %+v", got[0])
	}
}

func TestIDsStrictlyIncreasingAcrossDelete(t *testing.T) {
	s := setupLogStore(t)
	ids := insertN(t, s, 3)
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not increasing: %v", ids)
		}
	}

	n, err := s.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 deleted, got %d", n)
	}

	next := insertN(t, s, 1)
	if next[0] <= ids[len(ids)-1] {
		t.Errorf("id reused after delete: %d <= %d", next[0], ids[len(ids)-1])
	}
}

func TestScanFilters(t *testing.T) {
	s := setupLogStore(t)
	ids := insertN(t, s, 10)

	tests := []struct {
		name   string
		filter LogFilter
		want   []int64
	}{
		{"all ascending", LogFilter{}, ids},
		{"after id", LogFilter{AfterID: ids[7]}, ids[8:]},
		{"before id descending", LogFilter{BeforeID: ids[3], Order: Desc}, []int64{ids[2], ids[1], ids[0]}},
		{"inclusive id range", LogFilter{MinID: ids[2], MaxID: ids[4]}, ids[2:5]},
		{"limit offset", LogFilter{Limit: 2, Offset: 3}, ids[3:5]},
		{"offset only", LogFilter{Offset: 8}, ids[8:]},
		{"last two", LogFilter{Order: Desc, Limit: 2}, []int64{ids[9], ids[8]}},
		{"empty window", LogFilter{MinID: ids[9] + 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Scan(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d records, got %d", len(tt.want), len(got))
			}
			for i, r := range got {
				if r.ID != tt.want[i] {
					t.Errorf("record %d: expected id %d, got %d", i, tt.want[i], r.ID)
				}
			}
		})
	}
}

func TestScanTimestampWindow(t *testing.T) {
	s := setupLogStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return at }
		insertN(t, s, 1)
	}

	got, err := s.Scan(context.Background(), LogFilter{
		From: base.Add(time.Hour).Format(TimestampLayout),
		To:   base.Add(3 * time.Hour).Format(TimestampLayout),
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records in window, got %d", len(got))
	}
	for _, r := range got {
		if !strings.HasSuffix(r.Timestamp, "Z") {
			t.Errorf("timestamp missing Z suffix: %q", r.Timestamp)
		}
	}
}

func TestCount(t *testing.T) {
	s := setupLogStore(t)
	insertN(t, s, 4)

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4, got %d", n)
	}
}
