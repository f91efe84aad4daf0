// Package classify implements the core plugin that names captured events.
package classify

import (
	"context"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/events"
	"github.com/rsclarke/hookrelay/internal/plugins"
	"github.com/rsclarke/hookrelay/internal/reshape"
)

// Plugin sniffs eventName from the captured body without a full decode.
// It resolves the same name reshape.Classify does.
type Plugin struct {
	parser fastjson.ParserPool
	logger *zap.Logger
}

// New creates a new classify Plugin.
func New() *Plugin {
	return &Plugin{logger: zap.NewNop()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "classify" }

// IsCore marks classify as core infrastructure.
func (p *Plugin) IsCore() bool { return true }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("classify")
	return nil
}

// OnPreStore sets Draft.EventName.
func (p *Plugin) OnPreStore(_ context.Context, e *events.Event) error {
	e.Draft.EventName = p.eventName(e.Draft.Body)
	return nil
}

func (p *Plugin) eventName(body string) string {
	notFound := reshape.NotFound("eventName")
	if body == "" {
		return notFound
	}

	parser := p.parser.Get()
	defer p.parser.Put(parser)

	v, err := parser.Parse(body)
	if err != nil || v.Type() != fastjson.TypeObject {
		return notFound
	}
	if name, ok := present(v.Get("eventName")); ok {
		return name
	}
	if name, ok := present(v.Get("body", "eventName")); ok {
		return name
	}
	return notFound
}

// present renders v as a string, treating null and empty values as absent.
func present(v *fastjson.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	switch v.Type() {
	case fastjson.TypeNull:
		return "", false
	case fastjson.TypeString:
		s := string(v.GetStringBytes())
		return s, s != ""
	case fastjson.TypeObject:
		o, _ := v.Object()
		if o.Len() == 0 {
			return "", false
		}
	case fastjson.TypeArray:
		a, _ := v.Array()
		if len(a) == 0 {
			return "", false
		}
	}
	return v.String(), true
}
