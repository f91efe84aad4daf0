// Package server implements the capture listener and the read API.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/api"
	"github.com/rsclarke/hookrelay/internal/db"
	"github.com/rsclarke/hookrelay/internal/metrics"
	"github.com/rsclarke/hookrelay/internal/models"
	"github.com/rsclarke/hookrelay/internal/plugins"
	"github.com/rsclarke/hookrelay/internal/reshape"
)

// PageSize is the fixed page size of the pages endpoint and the cap on
// every count parameter.
const PageSize = 1000

const defaultCount = 100

// APIServer serves stored logs as reshaped rows.
type APIServer struct {
	Logs     *db.LogStore
	Plugins  plugins.PluginRegistry
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/logs", s.handleList)
	mux.HandleFunc("POST /v1/logs", s.handleCreate)
	mux.HandleFunc("DELETE /v1/logs", s.handleDelete)
	mux.HandleFunc("GET /v1/logs/pages/{page}", s.handlePage)
	mux.HandleFunc("GET /v1/logs/last", s.handleLast)
	mux.HandleFunc("GET /v1/logs/after/{id}", s.handleAfter)
	mux.HandleFunc("GET /v1/logs/before/{id}", s.handleBefore)
	mux.HandleFunc("GET /v1/logs/range", s.handleRange)
	mux.HandleFunc("GET /v1/logs/ids", s.handleIDs)
	mux.HandleFunc("GET /v1/logs/export", s.handleExport)
	mux.HandleFunc("GET /v1/plugins", s.handlePlugins)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return Recover(s.Logger, gzhttp.GzipHandler(mux))
}

func (s *APIServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, err := intParam(q, "skip", 0, 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, err := countParam(q, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.serveRows(w, r, db.LogFilter{Order: db.Asc, Limit: limit, Offset: skip})
}

func (s *APIServer) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "page must be a positive integer"})
		return
	}
	order, err := orderParam(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	// No stored page starts past the largest representable offset.
	if page > math.MaxInt/PageSize {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "logs not found"})
		return
	}
	s.serveRows(w, r, db.LogFilter{Order: order, Limit: PageSize, Offset: (page - 1) * PageSize})
}

func (s *APIServer) handleLast(w http.ResponseWriter, r *http.Request) {
	count, err := countParam(r.URL.Query(), "count")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.serveRows(w, r, db.LogFilter{Order: db.Desc, Limit: count})
}

func (s *APIServer) handleAfter(w http.ResponseWriter, r *http.Request) {
	id, count, err := anchorParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.serveRows(w, r, db.LogFilter{AfterID: id, Order: db.Asc, Limit: count})
}

func (s *APIServer) handleBefore(w http.ResponseWriter, r *http.Request) {
	id, count, err := anchorParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	// A zero BeforeID means unbounded; ids start at 1, so nothing precedes it.
	if id < 1 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "logs not found"})
		return
	}
	s.serveRows(w, r, db.LogFilter{BeforeID: id, Order: db.Desc, Limit: count})
}

func (s *APIServer) handleRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := rangeFilter(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit, err := intParam(q, "limit", PageSize, 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	f.Limit = min(limit, PageSize)
	s.serveRows(w, r, f)
}

func (s *APIServer) handleIDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minID, err := requiredID(q, "min_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	maxID, err := requiredID(q, "max_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if minID > maxID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "min_id must not exceed max_id"})
		return
	}
	s.serveRows(w, r, db.LogFilter{MinID: minID, MaxID: maxID, Order: db.Asc, Limit: PageSize})
}

func (s *APIServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := rangeFilter(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if f.MinID, err = optionalID(q, "min_id"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if f.MaxID, err = optionalID(q, "max_id"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if f.Limit, err = intParam(q, "limit", 0, 0); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, ok := s.loadRows(w, r, f)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := reshape.WriteCSV(&buf, rows); err != nil {
		s.Logger.Error("csv export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to encode csv"})
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="logs.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *APIServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateLogRequest
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	// Ensure no trailing data
	if dec.Decode(&struct{}{}) != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unexpected trailing data"})
		return
	}
	if req.HTTPMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "httpMethod required"})
		return
	}

	rec := &models.LogRecord{
		HTTPMethod:  req.HTTPMethod,
		Headers:     req.Headers,
		Body:        req.Body,
		PathParams:  req.PathParams,
		QueryParams: req.QueryParams,
		Payload:     req.Payload,
	}
	if _, err := s.Logs.Insert(r.Context(), rec); err != nil {
		s.Logger.Error("create log failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create log"})
		return
	}

	writeJSON(w, http.StatusOK, api.LogResponse{
		ID:          rec.ID,
		Timestamp:   rec.Timestamp,
		HTTPMethod:  rec.HTTPMethod,
		Headers:     rec.Headers,
		Body:        rec.Body,
		PathParams:  rec.PathParams,
		QueryParams: rec.QueryParams,
		Payload:     rec.Payload,
	})
}

func (s *APIServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.Logs.DeleteAll(r.Context())
	if err != nil {
		s.Logger.Error("delete logs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete logs"})
		return
	}
	if s.Metrics != nil {
		s.Metrics.API.Deleted.Add(float64(n))
	}
	writeJSON(w, http.StatusOK, api.DeleteLogsResponse{Deleted: n})
}

func (s *APIServer) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	resp := api.ListPluginsResponse{Plugins: make([]api.PluginInfo, 0)}
	if s.Plugins != nil {
		for _, p := range s.Plugins.ListPlugins() {
			resp.Plugins = append(resp.Plugins, api.PluginInfo{
				ID:      p.ID,
				Type:    string(p.Type),
				Enabled: p.Enabled,
				Config:  p.Config,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) serveRows(w http.ResponseWriter, r *http.Request, f db.LogFilter) {
	rows, ok := s.loadRows(w, r, f)
	if !ok {
		return
	}
	if s.Metrics != nil {
		s.Metrics.API.RowsServed.Add(float64(len(rows)))
	}
	writeJSON(w, http.StatusOK, rows)
}

// loadRows scans f and tabulates the result. It writes the error response
// itself and reports false when there is nothing to serve.
func (s *APIServer) loadRows(w http.ResponseWriter, r *http.Request, f db.LogFilter) ([]reshape.Row, bool) {
	recs, err := s.Logs.Scan(r.Context(), f)
	if err != nil {
		s.Logger.Error("scan logs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return nil, false
	}
	if len(recs) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "logs not found"})
		return nil, false
	}
	return reshape.Tabulate(recs), true
}

func intParam(q url.Values, name string, def, minimum int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("%s must be an integer >= %d", name, minimum)
	}
	return n, nil
}

// countParam reads a positive count, defaulting to 100 and capped at PageSize.
func countParam(q url.Values, name string) (int, error) {
	n, err := intParam(q, name, defaultCount, 1)
	if err != nil {
		return 0, err
	}
	return min(n, PageSize), nil
}

func orderParam(q url.Values) (db.Order, error) {
	switch v := q.Get("order"); v {
	case "", "asc":
		return db.Asc, nil
	case "desc":
		return db.Desc, nil
	default:
		return "", fmt.Errorf("order must be asc or desc, got %q", v)
	}
}

func anchorParams(r *http.Request) (int64, int, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		return 0, 0, fmt.Errorf("id must be a non-negative integer")
	}
	count, err := countParam(r.URL.Query(), "count")
	if err != nil {
		return 0, 0, err
	}
	return id, count, nil
}

func requiredID(q url.Values, name string) (int64, error) {
	if q.Get(name) == "" {
		return 0, fmt.Errorf("%s required", name)
	}
	return optionalID(q, name)
}

func optionalID(q url.Values, name string) (int64, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

// rangeFilter reads from, to and after_id. Timestamps are RFC 3339 and
// are normalized to the stored layout so they compare as text.
func rangeFilter(q url.Values) (db.LogFilter, error) {
	f := db.LogFilter{Order: db.Asc}
	var err error
	if f.From, err = timestampParam(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = timestampParam(q, "to"); err != nil {
		return f, err
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return f, fmt.Errorf("from must not be after to")
	}
	if f.AfterID, err = optionalID(q, "after_id"); err != nil {
		return f, err
	}
	return f, nil
}

func timestampParam(q url.Values, name string) (string, error) {
	v := q.Get(name)
	if v == "" {
		return "", nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return "", fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return t.UTC().Format(db.TimestampLayout), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
