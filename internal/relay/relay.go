// Package relay forwards selected webhooks to upstream endpoints and
// records each round trip.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/logging"
	"github.com/rsclarke/hookrelay/internal/metrics"
	"github.com/rsclarke/hookrelay/internal/models"
)

var triggers = map[string]struct{}{
	"ticket_created":         {},
	"ticket_updated":         {},
	"ticket_comment_created": {},
	"ticket_comment_updated": {},
}

// ShouldRelay reports whether events named eventName are forwarded.
func ShouldRelay(eventName string) bool {
	_, ok := triggers[eventName]
	return ok
}

// Defaults applied by New to an empty Config field.
const (
	DefaultPathTemplate = "/script/{eventName}"
	DefaultEventSuffix  = "_relayed"
	DefaultOriginName   = "hookrelay"
)

// Config describes where and how events are relayed.
type Config struct {
	// Upstreams are base URLs, tried in order.
	Upstreams []string
	// PathTemplate is appended to each upstream; {eventName} is replaced
	// with the original event name.
	PathTemplate string
	// EventSuffix is appended to eventName in the forwarded body.
	EventSuffix string
	// OriginName is sent as x-origin-domain on forwarded requests.
	OriginName string
}

// Gate bounds the number of relay attempts in flight.
// *semaphore.Weighted satisfies it.
type Gate interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}

// Recorder persists relay snapshots.
type Recorder interface {
	Insert(ctx context.Context, rec *models.LogRecord) (int64, error)
}

// Inbound is the captured request being relayed.
type Inbound struct {
	RequestID   string
	Method      string
	Headers     map[string]string
	Body        map[string]any
	PathParams  string
	QueryParams string
}

// Relayer forwards inbound events to every configured upstream.
type Relayer struct {
	cfg       Config
	gate      Gate
	transport Transport
	store     Recorder
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates a Relayer. The gate is shared by every caller of the
// returned Relayer and bounds concurrent upstream calls process-wide.
func New(cfg Config, gate Gate, transport Transport, store Recorder, logger *zap.Logger, m *metrics.Metrics) *Relayer {
	if cfg.PathTemplate == "" {
		cfg.PathTemplate = DefaultPathTemplate
	}
	if cfg.EventSuffix == "" {
		cfg.EventSuffix = DefaultEventSuffix
	}
	if cfg.OriginName == "" {
		cfg.OriginName = DefaultOriginName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relayer{
		cfg:       cfg,
		gate:      gate,
		transport: transport,
		store:     store,
		logger:    logger,
		metrics:   m,
	}
}

// Upstreams returns the configured upstream base URLs.
func (r *Relayer) Upstreams() []string {
	return r.cfg.Upstreams
}

// Relay sends in to each upstream in order and returns one response data
// object per upstream. A non-2xx answer is returned as data. A transport
// failure aborts the remaining upstreams and is returned as a
// *TransportError. Cancelling ctx does not interrupt a relay in progress.
func (r *Relayer) Relay(ctx context.Context, in Inbound) ([]map[string]any, error) {
	ctx = context.WithoutCancel(ctx)

	original, _ := in.Body["eventName"].(string)
	body := maps.Clone(in.Body)
	if body == nil {
		body = map[string]any{}
	}
	body["eventName"] = original + r.cfg.EventSuffix

	headers := outboundHeaders(in.Headers, r.cfg.OriginName)
	path := strings.ReplaceAll(r.cfg.PathTemplate, "{eventName}", url.PathEscape(original))

	results := make([]map[string]any, 0, len(r.cfg.Upstreams))
	for _, upstream := range r.cfg.Upstreams {
		req := Request{
			Method:  in.Method,
			URL:     strings.TrimRight(upstream, "/") + path,
			Headers: headers,
			Body:    body,
		}
		data, err := r.attempt(ctx, in, req)
		if err != nil {
			return nil, err
		}
		results = append(results, data)
	}
	return results, nil
}

// attempt performs one upstream call while holding a gate slot. The slot is
// released however the attempt ends.
func (r *Relayer) attempt(ctx context.Context, in Inbound, req Request) (map[string]any, error) {
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire relay slot: %w", err)
	}
	defer r.gate.Release(1)
	r.observeInFlight(1)
	defer r.observeInFlight(-1)

	log := r.logger.With(logging.RequestID(in.RequestID), logging.URL(req.URL))

	r.snapshot(ctx, log, &models.LogRecord{
		HTTPMethod:  req.Method,
		Headers:     mustJSON(req.Headers),
		Body:        mustJSON(req.Body),
		PathParams:  in.PathParams,
		QueryParams: in.QueryParams,
	})

	start := time.Now()
	resp, err := r.transport.Send(ctx, req)
	r.observeDuration(time.Since(start))
	if err != nil {
		r.countAttempt(metrics.OutcomeTransportError)
		log.Error("relay transport failed", zap.Error(err))
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{URL: req.URL, Err: err}
		}
		return nil, err
	}

	data := responseData(req, resp)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		r.countAttempt(metrics.OutcomeSuccess)
	} else {
		r.countAttempt(metrics.OutcomeUpstreamError)
		log.Warn("upstream returned error status", logging.Status(resp.StatusCode))
	}

	respHeaders := maps.Clone(resp.Headers)
	if respHeaders == nil {
		respHeaders = map[string]string{}
	}
	respHeaders["x-origin-domain"] = "res <- " + hostOf(req.URL)

	r.snapshot(ctx, log, &models.LogRecord{
		HTTPMethod:  req.Method,
		Headers:     mustJSON(respHeaders),
		Body:        mustJSON(data),
		PathParams:  in.PathParams,
		QueryParams: in.QueryParams,
	})

	log.Info("relayed", logging.Status(resp.StatusCode))
	return data, nil
}

// snapshot persists rec. Failures are logged only.
func (r *Relayer) snapshot(ctx context.Context, log *zap.Logger, rec *models.LogRecord) {
	if r.store == nil {
		return
	}
	if _, err := r.store.Insert(ctx, rec); err != nil {
		if r.metrics != nil {
			r.metrics.Relay.SnapshotFailures.Inc()
		}
		log.Warn("relay snapshot not stored", zap.Error(err))
	}
}

func responseData(req Request, resp *Response) map[string]any {
	var data map[string]any
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data = decodeUpstreamBody(resp.Body)
	} else {
		data = map[string]any{
			"payload": map[string]any{
				"textError": "data:text/html," + string(resp.Body),
				"request": map[string]any{
					"method":  req.Method,
					"url":     req.URL,
					"headers": req.Headers,
					"json":    req.Body,
				},
			},
		}
	}
	data["status_code"] = resp.StatusCode
	eventName, _ := req.Body["eventName"].(string)
	data["eventName"] = eventName + "_response"
	return data
}

// decodeUpstreamBody returns the upstream JSON object, wrapping anything
// else under "body".
func decodeUpstreamBody(b []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal(b, &v); err == nil {
		return map[string]any{"body": v}
	}
	return map[string]any{"body": string(b)}
}

func outboundHeaders(in map[string]string, origin string) map[string]string {
	out := make(map[string]string, len(in)+2)
	for k, v := range in {
		switch lk := strings.ToLower(k); lk {
		case "content-length", "host":
			continue
		default:
			out[lk] = v
		}
	}
	out["x-forwarded-for"] = "0.0.0.0"
	out["x-origin-domain"] = origin
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (r *Relayer) countAttempt(outcome string) {
	if r.metrics != nil {
		r.metrics.Relay.Attempts.WithLabelValues(outcome).Inc()
	}
}

func (r *Relayer) observeDuration(d time.Duration) {
	if r.metrics != nil {
		r.metrics.Relay.Duration.Observe(d.Seconds())
	}
}

func (r *Relayer) observeInFlight(delta float64) {
	if r.metrics != nil {
		r.metrics.Relay.InFlight.Add(delta)
	}
}
