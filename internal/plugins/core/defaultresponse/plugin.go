// Package defaultresponse implements the core plugin that acknowledges captures no other plugin answered.
package defaultresponse

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/events"
	"github.com/rsclarke/hookrelay/internal/plugins"
)

// Prefix starts every acknowledgement body.
const Prefix = "Request received:"

// Plugin echoes the captured body back with a 200 when nothing else handled the request.
type Plugin struct {
	logger *zap.Logger
}

// New creates a new defaultresponse Plugin.
func New() *Plugin {
	return &Plugin{logger: zap.NewNop()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "defaultresponse" }

// IsCore marks defaultresponse as core infrastructure.
func (p *Plugin) IsCore() bool { return true }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("defaultresponse")
	return nil
}

// Priority returns a high value so this plugin runs last.
func (p *Plugin) Priority() int { return 999 }

// OnHTTPResponse sets a 200 acknowledgement if not already handled.
// An empty body is echoed as {}.
func (p *Plugin) OnHTTPResponse(_ context.Context, e *events.HTTPEvent) error {
	if e.Resp == nil || e.Resp.Handled {
		return nil
	}
	body := "{}"
	if e.Draft != nil && e.Draft.Body != "" {
		body = e.Draft.Body
	}
	e.Resp.Status = http.StatusOK
	if e.Resp.Headers == nil {
		e.Resp.Headers = map[string]string{}
	}
	e.Resp.Headers["Content-Type"] = "text/plain; charset=utf-8"
	e.Resp.Body = []byte(Prefix + body)
	e.Resp.Handled = true
	return nil
}
