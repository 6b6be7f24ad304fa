package callprovider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ivr-billing/internal/config"
)

func TestGetCall(t *testing.T) {
	started := time.Unix(1700000000, 0).UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls/call-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer auth")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"call_id":      "call-1",
			"queue_status": "started",
			"started_at":   started.Format(time.RFC3339),
			"call_length":  300,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(config.CallProviderConfig{BaseURL: srv.URL, APIKey: "key"})
	info, err := c.GetCall(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if info.QueueStatus != StatusStarted || info.CallLengthSeconds != 300 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.StartedAt == nil || !info.StartedAt.Equal(started) {
		t.Fatalf("unexpected start: %v", info.StartedAt)
	}
}

func TestGetCall_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(config.CallProviderConfig{BaseURL: srv.URL})
	if _, err := c.GetCall(context.Background(), "nope"); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
}

func TestStopCall(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(config.CallProviderConfig{BaseURL: srv.URL})
	if err := c.StopCall(context.Background(), "call-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if gotPath != "POST /calls/call-1/stop" {
		t.Fatalf("unexpected request: %s", gotPath)
	}
}

func TestStatusTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusNew:        false,
		StatusQueued:     false,
		StatusStarted:    false,
		StatusComplete:   true,
		StatusTerminated: true,
	} {
		if s.Terminal() != want {
			t.Fatalf("Terminal(%s) = %v, want %v", s, s.Terminal(), want)
		}
	}
}
