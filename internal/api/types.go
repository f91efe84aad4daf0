// Package api defines the request and response bodies of the read API.
package api

// CreateLogRequest is the body of POST /v1/logs. Text fields are stored
// verbatim.
type CreateLogRequest struct {
	HTTPMethod  string `json:"httpMethod"`
	Headers     string `json:"headers"`
	Body        string `json:"body"`
	PathParams  string `json:"pathParams"`
	QueryParams string `json:"queryParams"`
	Payload     string `json:"payload,omitempty"`
}

// LogResponse is a stored record as returned by POST /v1/logs.
type LogResponse struct {
	ID          int64  `json:"id"`
	Timestamp   string `json:"timestamp"`
	HTTPMethod  string `json:"httpMethod"`
	Headers     string `json:"headers"`
	Body        string `json:"body"`
	PathParams  string `json:"pathParams"`
	QueryParams string `json:"queryParams"`
	Payload     string `json:"payload,omitempty"`
}

type DeleteLogsResponse struct {
	Deleted int64 `json:"deleted"`
}

type PluginInfo struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config,omitempty"`
}

type ListPluginsResponse struct {
	Plugins []PluginInfo `json:"plugins"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
