package tools

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
)

// erpCall is a request received by the fake ERP server.
type erpCall struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   map[string]any
}

// fakeERP is a scripted ERPNext REST server keyed by "METHOD /path".
type fakeERP struct {
	mu     sync.Mutex
	routes map[string]func(call erpCall) (int, any)
	calls  []erpCall
}

func newFakeERP(t *testing.T) (*fakeERP, *erp.Client) {
	t.Helper()
	f := &fakeERP{routes: make(map[string]func(erpCall) (int, any))}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	client := erp.NewClient(erp.Options{
		URL:            srv.URL,
		APIKey:         "key",
		APISecret:      "secret",
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	})
	return f, client
}

func (f *fakeERP) handle(route string, fn func(call erpCall) (int, any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = fn
}

func (f *fakeERP) reply(route string, body any) {
	f.handle(route, func(erpCall) (int, any) { return http.StatusOK, body })
}

func (f *fakeERP) serve(w http.ResponseWriter, r *http.Request) {
	call := erpCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()}
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &call.Body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	fn := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if fn == nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"exc_type": "DoesNotExistError", "message": "not found"})
		return
	}
	status, body := fn(call)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (f *fakeERP) Calls() []erpCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]erpCall(nil), f.calls...)
}

// newERPRegistry returns a registry holding the full ERP catalog against a fake server.
func newERPRegistry(t *testing.T) (*fakeERP, *ToolRegistry) {
	t.Helper()
	f, client := newFakeERP(t)
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)
	r := NewToolRegistry(bus)
	if err := RegisterERPTools(r, client, 2, nil); err != nil {
		t.Fatalf("RegisterERPTools: %v", err)
	}
	return f, r
}
