// Package forward implements the feature plugin that relays qualifying
// captures to the configured upstreams and answers with their responses.
package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/events"
	"github.com/rsclarke/hookrelay/internal/logging"
	"github.com/rsclarke/hookrelay/internal/plugins"
	"github.com/rsclarke/hookrelay/internal/relay"
)

// Relayer is the part of *relay.Relayer the plugin drives.
type Relayer interface {
	Relay(ctx context.Context, in relay.Inbound) ([]map[string]any, error)
	Upstreams() []string
}

// Plugin relays captures whose top-level eventName is a relay trigger.
type Plugin struct {
	relayer Relayer
	logger  *zap.Logger
}

// New creates a new forward Plugin.
func New(relayer Relayer) *Plugin {
	return &Plugin{relayer: relayer, logger: zap.NewNop()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "forward" }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("forward")
	return nil
}

// Config reports the upstreams events are relayed to.
func (p *Plugin) Config() map[string]any {
	return map[string]any{"upstreams": p.relayer.Upstreams()}
}

// OnHTTPResponse relays the capture when it qualifies. The response is the
// JSON array of upstream response data, or a 500 naming the upstream that
// could not be reached.
func (p *Plugin) OnHTTPResponse(ctx context.Context, e *events.HTTPEvent) error {
	if e.Resp == nil || e.Resp.Handled || len(p.relayer.Upstreams()) == 0 {
		return nil
	}

	body, ok := decodeObject(e.Draft.Body)
	if !ok {
		return nil
	}
	eventName, _ := body["eventName"].(string)
	if !relay.ShouldRelay(eventName) {
		return nil
	}

	e.Relayed = true
	results, err := p.relayer.Relay(ctx, relay.Inbound{
		RequestID:   e.Draft.RequestID,
		Method:      e.Draft.Method,
		Headers:     e.Draft.Headers,
		Body:        body,
		PathParams:  e.Draft.PathParams,
		QueryParams: e.Draft.QueryParams,
	})
	if err != nil {
		p.logger.Error("relay failed",
			logging.RequestID(e.Draft.RequestID),
			logging.EventName(eventName),
			zap.Error(err))
		respondJSON(e.Resp, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil
	}

	respondJSON(e.Resp, http.StatusOK, results)
	return nil
}

func respondJSON(resp *events.HTTPResponsePlan, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"encode response"}`)
	}
	resp.Status = status
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers["Content-Type"] = "application/json"
	resp.Body = b
	resp.Handled = true
}

func decodeObject(body string) (map[string]any, bool) {
	if body == "" {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
