package events

import "net/http"

// Event wraps a capture draft with its assigned log ID after storage.
type Event struct {
	Draft *CaptureDraft
	LogID int64
}

// HTTPEvent extends Event with the originating request and the planned response.
type HTTPEvent struct {
	Event
	Req  *http.Request
	Resp *HTTPResponsePlan
	// Relayed is set once the event has been forwarded upstream.
	Relayed bool
}
