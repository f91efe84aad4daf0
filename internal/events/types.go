// Package events defines the core types passed through the capture pipeline.
package events

// CaptureDraft is a captured request before it is stored.
type CaptureDraft struct {
	RequestID string
	Method    string
	RemoteIP  string
	// Headers holds lower-cased names and the first value of each.
	Headers map[string]string
	// Body is the compacted JSON body, or the raw text when it is not JSON.
	Body        string
	PathParams  string
	QueryParams string
	// EventName is filled in by PreStore hooks; empty when unknown.
	EventName string
	Drop      bool
}

// HTTPResponsePlan describes the HTTP response to be sent.
type HTTPResponsePlan struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Handled bool
}
