package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/events"
	"github.com/rsclarke/hookrelay/internal/logging"
	"github.com/rsclarke/hookrelay/internal/metrics"
	"github.com/rsclarke/hookrelay/internal/plugins"
)

// DefaultMaxBodyBytes bounds captured bodies when CaptureServer.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// TruncatedHeader marks a stored record whose body was cut at the size
// limit. Its value is the limit in bytes.
const TruncatedHeader = "x-hookrelay-truncated"

// CaptureServer records every inbound request, on any method and path,
// and answers with whatever the plugin pipeline decides.
type CaptureServer struct {
	Pipeline     *plugins.Pipeline
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	MaxBodyBytes int64

	parser fastjson.ParserPool
}

func (s *CaptureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.recordTruncated(r, body, limit)
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	draft := s.newDraft(r, body)
	e := &events.HTTPEvent{
		Event: events.Event{Draft: draft},
		Req:   r,
		Resp:  &events.HTTPResponsePlan{},
	}

	if err := s.Pipeline.ProcessHTTP(r.Context(), e); err != nil {
		if s.Metrics != nil {
			s.Metrics.Capture.StoreFailures.Inc()
		}
		s.Logger.Error("capture failed",
			logging.RequestID(draft.RequestID),
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if s.Metrics != nil {
		s.Metrics.Capture.Requests.WithLabelValues(strconv.FormatBool(e.Relayed)).Inc()
		s.Metrics.Capture.BodyBytes.Observe(float64(len(body)))
	}
	s.Logger.Info("request captured",
		logging.RequestID(draft.RequestID),
		logging.LogID(e.LogID),
		logging.Method(r.Method),
		logging.Path(r.URL.Path),
		logging.RemoteIP(draft.RemoteIP),
		logging.EventName(draft.EventName),
		zap.Bool("relayed", e.Relayed))

	writePlan(w, e.Resp)
}

// recordTruncated stores an oversized request with the body prefix that was
// read and a TruncatedHeader marker. It is never relayed.
func (s *CaptureServer) recordTruncated(r *http.Request, prefix []byte, limit int64) {
	draft := s.newDraft(r, prefix)
	draft.Headers[TruncatedHeader] = strconv.FormatInt(limit, 10)

	e := &events.Event{Draft: draft}
	if err := s.Pipeline.Record(r.Context(), e); err != nil {
		if s.Metrics != nil {
			s.Metrics.Capture.StoreFailures.Inc()
		}
		s.Logger.Error("capture of oversized request failed",
			logging.RequestID(draft.RequestID),
			zap.Error(err))
		return
	}
	s.Logger.Warn("request body truncated",
		logging.RequestID(draft.RequestID),
		logging.LogID(e.LogID),
		logging.Method(r.Method),
		logging.Path(r.URL.Path),
		zap.Int64("limit", limit))
}

func (s *CaptureServer) newDraft(r *http.Request, body []byte) *events.CaptureDraft {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteIP = r.RemoteAddr
	}

	headers := make(map[string]string, len(r.Header)+1)
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	if r.Host != "" {
		headers["host"] = r.Host
	}

	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	return &events.CaptureDraft{
		RequestID:   uuid.NewString(),
		Method:      r.Method,
		RemoteIP:    remoteIP,
		Headers:     headers,
		Body:        s.compact(body),
		PathParams:  mustJSON(map[string]string{"path": strings.TrimPrefix(r.URL.Path, "/")}),
		QueryParams: mustJSON(query),
	}
}

// compact returns JSON bodies with insignificant whitespace removed and
// anything else as raw text.
func (s *CaptureServer) compact(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return string(body)
	}
	return string(v.MarshalTo(nil))
}

func writePlan(w http.ResponseWriter, plan *events.HTTPResponsePlan) {
	for k, v := range plan.Headers {
		w.Header().Set(k, v)
	}
	status := plan.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(plan.Body)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Recover turns a panic in next into a logged 500.
func Recover(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic serving request",
					logging.Method(r.Method),
					logging.Path(r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
