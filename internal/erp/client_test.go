package erp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		URL:            srv.URL,
		APIKey:         "key",
		APISecret:      "secret",
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})
}

func TestClient_GetSendsAuthAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token key:secret" {
			t.Errorf("expected token auth header, got %q", got)
		}
		if r.URL.Path != "/api/resource/Sales Order/SO-0001" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("fields") != `["name"]` {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"name": "SO-0001"}})
	})

	q := url.Values{"fields": {`["name"]`}}
	res, err := c.Get(context.Background(), ResourcePath("Sales Order", "SO-0001"), q)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := res["data"].(map[string]any)
	if data["name"] != "SO-0001" {
		t.Errorf("expected name SO-0001, got %v", data["name"])
	}
}

func TestClient_RetriesGetOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"message": "ok"}`))
	})

	res, err := c.Get(context.Background(), "/api/method/ping", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res["message"] != "ok" {
		t.Errorf("expected message ok, got %v", res["message"])
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Get(context.Background(), "/api/method/ping", nil)
	if KindOf(err) != KindServer {
		t.Fatalf("expected server error, got %v (%s)", err, KindOf(err))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClient_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"exc_type": "DoesNotExistError", "exception": "Customer CUST-9 not found"}`))
	})

	_, err := c.Get(context.Background(), ResourcePath("Customer", "CUST-9"), nil)
	if !IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClient_PostNotRetriedUnlessOptedIn(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := c.Post(context.Background(), ResourcePath("ToDo"), map[string]any{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("plain POST should not be retried, got %d attempts", calls.Load())
	}

	calls.Store(0)
	if _, err := c.Call(context.Background(), "frappe.client.submit", map[string]any{}, true); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("opted-in POST should be retried, got %d attempts", calls.Load())
	}
}

func TestClient_ServerMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusExpectationFailed)
		w.Write([]byte(`{"exc_type": "MandatoryError", "_server_messages": "[\"{\\\"message\\\": \\\"Customer Name is mandatory\\\"}\"]"}`))
	})

	_, err := c.Post(context.Background(), ResourcePath("Customer"), map[string]any{})
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != KindValidation {
		t.Errorf("expected validation, got %s", e.Kind)
	}
	if e.Message != "Customer Name is mandatory" {
		t.Errorf("unexpected message %q", e.Message)
	}
	if e.Status != http.StatusExpectationFailed {
		t.Errorf("expected status 417, got %d", e.Status)
	}
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(Options{URL: addr, MaxRetries: 1})
	_, err := c.Get(context.Background(), "/api/method/ping", nil)
	if KindOf(err) != KindConnection {
		t.Fatalf("expected connection error, got %v (%s)", err, KindOf(err))
	}
}

func TestClient_CanceledContextStopsRetries(t *testing.T) {
	var calls atomic.Int32
	c := NewClient(Options{MaxRetries: 5, RetryBaseDelay: time.Hour})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c.baseURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, "/", nil); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt before the deadline, got %d", calls.Load())
	}
}

func TestResourcePath(t *testing.T) {
	if got := ResourcePath("Sales Invoice"); got != "/api/resource/Sales%20Invoice" {
		t.Errorf("unexpected path %q", got)
	}
	if got := ResourcePath("Item", "A/B"); got != "/api/resource/Item/A%2FB" {
		t.Errorf("unexpected path %q", got)
	}
}

func TestClient_AuthInfo(t *testing.T) {
	c := NewClient(Options{URL: "http://erp", APIKey: "0123456789", APISecret: "s"})
	info := c.AuthInfo()
	if info["api_key_prefix"] != "01234567..." {
		t.Errorf("unexpected prefix %v", info["api_key_prefix"])
	}
	if info["api_secret_configured"] != true {
		t.Error("expected secret configured")
	}
}
