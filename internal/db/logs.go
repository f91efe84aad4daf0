package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rsclarke/hookrelay/internal/models"
)

// TimestampLayout is the fixed-width UTC layout written to logs.timestamp.
// Its width never varies, so lexical comparison matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Order selects the id ordering of a scan.
type Order string

// Scan orderings.
const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// LogFilter narrows a Scan. Zero values disable the corresponding bound.
type LogFilter struct {
	AfterID  int64
	BeforeID int64
	MinID    int64
	MaxID    int64
	From     string
	To       string
	Order    Order
	Limit    int
	Offset   int
}

// LogStore is the append-only record store backed by the logs table.
type LogStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLogStore returns a LogStore over an opened database.
func NewLogStore(d *sql.DB) *LogStore {
	return &LogStore{db: d, now: time.Now}
}

// Insert writes rec and assigns its ID and Timestamp before returning.
func (s *LogStore) Insert(ctx context.Context, rec *models.LogRecord) (int64, error) {
	ts := s.now().UTC().Format(TimestampLayout)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (timestamp, http_method, headers, body, path_params, query_params, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, rec.HTTPMethod, orEmptyObject(rec.Headers), rec.Body,
		orEmptyObject(rec.PathParams), orEmptyObject(rec.QueryParams), rec.Payload,
	)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	rec.ID = id
	rec.Timestamp = ts
	return id, nil
}

// Scan returns the records matching f in id order.
func (s *LogStore) Scan(ctx context.Context, f LogFilter) ([]models.LogRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, f.AfterID)
	}
	if f.BeforeID > 0 {
		where = append(where, "id < ?")
		args = append(args, f.BeforeID)
	}
	if f.MinID > 0 {
		where = append(where, "id >= ?")
		args = append(args, f.MinID)
	}
	if f.MaxID > 0 {
		where = append(where, "id <= ?")
		args = append(args, f.MaxID)
	}
	if f.From != "" {
		where = append(where, "timestamp >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "timestamp <= ?")
		args = append(args, f.To)
	}

	var q strings.Builder
	q.WriteString("SELECT id, timestamp, http_method, headers, body, path_params, query_params, payload FROM logs")
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	if f.Order == Desc {
		q.WriteString(" ORDER BY id DESC")
	} else {
		q.WriteString(" ORDER BY id ASC")
	}
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		q.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("scan logs: %w", err)
	}
	defer rows.Close()

	var logs []models.LogRecord
	for rows.Next() {
		var r models.LogRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.HTTPMethod, &r.Headers, &r.Body,
			&r.PathParams, &r.QueryParams, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		logs = append(logs, r)
	}
	return logs, rows.Err()
}

// DeleteAll removes every record and returns how many were removed.
// AUTOINCREMENT keeps ids from being reused afterwards.
func (s *LogStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM logs")
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored records.
func (s *LogStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return n, nil
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
