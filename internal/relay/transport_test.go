package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransportSend(t *testing.T) {
	var (
		gotMethod  string
		gotPath    string
		gotHeaders http.Header
		gotBody    map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5 * time.Second)
	resp, err := tr.Send(context.Background(), Request{
		Method: "PUT",
		URL:    srv.URL + "/script/ticket_created",
		Headers: map[string]string{
			"x-origin-domain": "hookrelay",
			"accept-encoding": "br",
			"host":            "elsewhere",
		},
		Body: map[string]any{"eventName": "ticket_created_relayed"},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotMethod != "PUT" || gotPath != "/script/ticket_created" {
		t.Errorf("upstream saw %s %s", gotMethod, gotPath)
	}
	if gotHeaders.Get("X-Origin-Domain") != "hookrelay" {
		t.Errorf("x-origin-domain not forwarded: %v", gotHeaders)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("content-type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotBody["eventName"] != "ticket_created_relayed" {
		t.Errorf("body = %v", gotBody)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Headers["x-upstream"] != "yes" {
		t.Errorf("response headers = %v", resp.Headers)
	}
	if string(resp.Body) != `{"id":"abc"}` {
		t.Errorf("response body = %s", resp.Body)
	}
}

func TestHTTPTransportConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/script/x"
	srv.Close()

	_, err := NewHTTPTransport(time.Second).Send(context.Background(), Request{Method: "POST", URL: url})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.URL != url {
		t.Errorf("URL = %q, want %q", te.URL, url)
	}
}

func TestHTTPTransportTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPTransport(50*time.Millisecond).Send(context.Background(), Request{Method: "POST", URL: srv.URL})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError on timeout, got %v", err)
	}
}
