// Package plugins defines the plugin interfaces and capability hooks for the capture pipeline.
package plugins

import (
	"context"

	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/events"
	"github.com/rsclarke/hookrelay/internal/metrics"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	ID() string
	Init(ctx InitContext) error
}

// InitContext provides access to shared resources during plugin initialization.
type InitContext struct {
	Logger  *zap.Logger
	Store   Store
	Metrics *metrics.Metrics
}

// Store provides storage operations for plugins.
type Store interface {
	CreateLog(ctx context.Context, draft *events.CaptureDraft) (int64, error)
}

// PreStoreHook is called after the draft is built, before persistence.
type PreStoreHook interface {
	OnPreStore(ctx context.Context, e *events.Event) error
}

// PostStoreHook is called after the capture is persisted.
type PostStoreHook interface {
	OnPostStore(ctx context.Context, e *events.Event) error
}

// HTTPResponseHook is called before writing the HTTP response.
type HTTPResponseHook interface {
	OnHTTPResponse(ctx context.Context, e *events.HTTPEvent) error
}

// PluginType indicates whether a plugin is core infrastructure or a feature plugin.
type PluginType string

// Plugin type constants.
const (
	PluginTypeCore    PluginType = "core"
	PluginTypeFeature PluginType = "feature"
)

// CorePlugin is an optional interface that core plugins can implement.
type CorePlugin interface {
	IsCore() bool
}

// ConfigurablePlugin is an optional interface for plugins that expose their configuration.
type ConfigurablePlugin interface {
	Config() map[string]any
}

// PluginInfo contains metadata about a registered plugin.
type PluginInfo struct {
	ID      string         `json:"id"`
	Type    PluginType     `json:"type"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config,omitempty"`
}

// PluginRegistry provides read access to registered plugins.
type PluginRegistry interface {
	ListPlugins() []PluginInfo
}
