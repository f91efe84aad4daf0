package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is one outbound relay call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    map[string]any
}

// Response is what an upstream answered.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Transport sends relay requests. Implementations return a
// *TransportError when no response was obtained.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// TransportError reports a relay call that produced no upstream response.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// maxResponseBytes caps how much of an upstream body is kept.
const maxResponseBytes = 4 << 20

// HTTPTransport sends relay requests over net/http.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns an HTTPTransport whose calls time out after
// timeout. A zero timeout leaves calls unbounded.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: timeout}}
}

// Send encodes req.Body as JSON and performs the call.
func (t *HTTPTransport) Send(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: fmt.Errorf("encode body: %w", err)}
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: err}
	}
	for k, v := range req.Headers {
		switch strings.ToLower(k) {
		case "content-length", "host", "accept-encoding", "transfer-encoding", "connection":
			continue
		}
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: fmt.Errorf("read response: %w", err)}
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	return &Response{StatusCode: resp.StatusCode, Headers: headers, Body: body}, nil
}
