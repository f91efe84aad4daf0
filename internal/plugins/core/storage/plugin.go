// Package storage implements the storage core plugin that persists captures to SQLite.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/db"
	"github.com/rsclarke/hookrelay/internal/events"
	"github.com/rsclarke/hookrelay/internal/logging"
	"github.com/rsclarke/hookrelay/internal/models"
	"github.com/rsclarke/hookrelay/internal/plugins"
)

// Plugin is the storage core plugin. It is also the pipeline's Store.
type Plugin struct {
	logs   *db.LogStore
	logger *zap.Logger
}

// New creates a new storage Plugin backed by logs.
func New(logs *db.LogStore) *Plugin {
	return &Plugin{logs: logs, logger: zap.NewNop()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "storage" }

// IsCore marks storage as core infrastructure.
func (p *Plugin) IsCore() bool { return true }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("storage")
	return nil
}

// CreateLog persists a capture draft as a log record and returns its ID.
func (p *Plugin) CreateLog(ctx context.Context, draft *events.CaptureDraft) (int64, error) {
	headers := draft.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return 0, fmt.Errorf("marshal headers: %w", err)
	}

	rec := &models.LogRecord{
		HTTPMethod:  draft.Method,
		Headers:     string(headerJSON),
		Body:        draft.Body,
		PathParams:  draft.PathParams,
		QueryParams: draft.QueryParams,
	}
	id, err := p.logs.Insert(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("create log: %w", err)
	}
	return id, nil
}

// OnPostStore records the stored capture.
func (p *Plugin) OnPostStore(_ context.Context, e *events.Event) error {
	if e.LogID == 0 {
		return nil
	}
	p.logger.Debug("capture stored",
		logging.LogID(e.LogID),
		logging.RequestID(e.Draft.RequestID),
		logging.EventName(e.Draft.EventName))
	return nil
}
