package forward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/rsclarke/hookrelay/internal/events"
	"github.com/rsclarke/hookrelay/internal/plugins"
	"github.com/rsclarke/hookrelay/internal/relay"
)

type mockRelayer struct {
	upstreams []string
	results   []map[string]any
	err       error
	calls     []relay.Inbound
}

func (m *mockRelayer) Relay(_ context.Context, in relay.Inbound) ([]map[string]any, error) {
	m.calls = append(m.calls, in)
	return m.results, m.err
}

func (m *mockRelayer) Upstreams() []string { return m.upstreams }

func newEvent(body string) *events.HTTPEvent {
	return &events.HTTPEvent{
		Event: events.Event{
			Draft: &events.CaptureDraft{
				RequestID: "req-1",
				Method:    "POST",
				Headers:   map[string]string{"x-forwarded-for": "1.2.3.4"},
				Body:      body,
			},
		},
		Resp: &events.HTTPResponsePlan{},
	}
}

func TestPluginMetadata(t *testing.T) {
	p := New(&mockRelayer{upstreams: []string{"https://a.example.com"}})
	if got := p.ID(); got != "forward" {
		t.Errorf("ID() = %q, want forward", got)
	}
	if err := p.Init(plugins.InitContext{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	ups, ok := p.Config()["upstreams"].([]string)
	if !ok || len(ups) != 1 {
		t.Errorf("Config() = %v", p.Config())
	}
}

func TestOnHTTPResponseSkipsNonQualifying(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not a trigger", `{"eventName":"ticket_deleted"}`},
		{"nested only", `{"body":{"eventName":"ticket_created"}}`},
		{"array", `[{"eventName":"ticket_created"}]`},
		{"raw text", `eventName=ticket_created`},
		{"empty", ``},
		{"non-string name", `{"eventName":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRelayer{upstreams: []string{"https://a.example.com"}}
			p := New(r)
			e := newEvent(tt.body)

			if err := p.OnHTTPResponse(context.Background(), e); err != nil {
				t.Fatalf("OnHTTPResponse failed: %v", err)
			}
			if len(r.calls) != 0 {
				t.Errorf("expected no relay, got %d calls", len(r.calls))
			}
			if e.Resp.Handled || e.Relayed {
				t.Error("expected response to be left for other plugins")
			}
		})
	}
}

func TestOnHTTPResponseSkipsWithoutUpstreams(t *testing.T) {
	r := &mockRelayer{}
	p := New(r)
	e := newEvent(`{"eventName":"ticket_created"}`)

	_ = p.OnHTTPResponse(context.Background(), e)
	if len(r.calls) != 0 || e.Resp.Handled {
		t.Error("expected no relay without upstreams")
	}
}

func TestOnHTTPResponseRelays(t *testing.T) {
	r := &mockRelayer{
		upstreams: []string{"https://a.example.com"},
		results: []map[string]any{
			{"status_code": 200, "eventName": "ticket_created_relayed_response"},
		},
	}
	p := New(r)
	e := newEvent(`{"eventName":"ticket_created","payload":{"ticketId":12}}`)

	if err := p.OnHTTPResponse(context.Background(), e); err != nil {
		t.Fatalf("OnHTTPResponse failed: %v", err)
	}

	if len(r.calls) != 1 {
		t.Fatalf("expected 1 relay call, got %d", len(r.calls))
	}
	in := r.calls[0]
	if in.RequestID != "req-1" || in.Method != "POST" || in.Headers["x-forwarded-for"] != "1.2.3.4" {
		t.Errorf("unexpected inbound: %+v", in)
	}
	if in.Body["eventName"] != "ticket_created" {
		t.Errorf("inbound body = %v", in.Body)
	}
	payload, _ := in.Body["payload"].(map[string]any)
	if n, _ := payload["ticketId"].(json.Number); n.String() != "12" {
		t.Errorf("numbers should stay json.Number, got %T", payload["ticketId"])
	}

	if !e.Relayed || !e.Resp.Handled || e.Resp.Status != http.StatusOK {
		t.Errorf("unexpected response plan: %+v relayed=%v", e.Resp, e.Relayed)
	}
	var got []map[string]any
	if err := json.Unmarshal(e.Resp.Body, &got); err != nil {
		t.Fatalf("response is not a JSON array: %s", e.Resp.Body)
	}
	if len(got) != 1 || got[0]["eventName"] != "ticket_created_relayed_response" {
		t.Errorf("response = %s", e.Resp.Body)
	}
	if e.Resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q", e.Resp.Headers["Content-Type"])
	}
}

func TestOnHTTPResponseTransportError(t *testing.T) {
	r := &mockRelayer{
		upstreams: []string{"https://down.example.com"},
		err: &relay.TransportError{
			URL: "https://down.example.com/script/ticket_updated",
			Err: errors.New("connection refused"),
		},
	}
	p := New(r)
	e := newEvent(`{"eventName":"ticket_updated"}`)

	if err := p.OnHTTPResponse(context.Background(), e); err != nil {
		t.Fatalf("OnHTTPResponse failed: %v", err)
	}

	if e.Resp.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", e.Resp.Status)
	}
	var body map[string]string
	if err := json.Unmarshal(e.Resp.Body, &body); err != nil {
		t.Fatalf("error body not JSON: %s", e.Resp.Body)
	}
	if !strings.Contains(body["error"], "https://down.example.com/script/ticket_updated") {
		t.Errorf("error should name the failed URL, got %q", body["error"])
	}
}

func TestOnHTTPResponseRespectsHandled(t *testing.T) {
	r := &mockRelayer{upstreams: []string{"https://a.example.com"}}
	p := New(r)
	e := newEvent(`{"eventName":"ticket_created"}`)
	e.Resp.Handled = true

	_ = p.OnHTTPResponse(context.Background(), e)
	if len(r.calls) != 0 {
		t.Error("expected no relay when already handled")
	}
}
