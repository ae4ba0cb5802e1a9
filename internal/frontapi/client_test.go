package frontapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingGuard struct {
	mu      sync.Mutex
	deny    bool
	calls   []string
	failed  int
	success int
}

func (g *recordingGuard) Allow(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.deny
}

func (g *recordingGuard) RecordCall(ctx context.Context, endpoint string, d time.Duration, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, endpoint)
	if err != nil {
		g.failed++
	} else {
		g.success++
	}
}

func newTestClient(serverURL string, guard Guard) *Client {
	return NewClient(Config{
		BaseURL:    serverURL,
		Token:      "tok_123",
		PageLimit:  2,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}, guard, zap.NewNop())
}

func TestGetJSONSendsAuthHeaders(t *testing.T) {
	var auth, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		fmt.Fprint(w, `{"id":"cnv_1","subject":"hello","status":"assigned","custom_field":"x"}`)
	}))
	defer server.Close()

	guard := &recordingGuard{}
	conv, err := newTestClient(server.URL, guard).GetConversation(context.Background(), "cnv_1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if auth != "Bearer tok_123" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
	if accept != "application/json" {
		t.Fatalf("expected json accept header, got %q", accept)
	}
	if conv.Subject != "hello" || conv.Extra["custom_field"] != "x" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if _, ok := conv.Extra["subject"]; ok {
		t.Fatalf("expected modelled fields excluded from extra, got %v", conv.Extra)
	}
	if len(guard.calls) != 1 || guard.calls[0] != "/conversations/:id" {
		t.Fatalf("expected one recorded call with normalized endpoint, got %v", guard.calls)
	}
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"cnv_1"}`)
	}))
	defer server.Close()

	guard := &recordingGuard{}
	if _, err := newTestClient(server.URL, guard).GetConversation(context.Background(), "cnv_1"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if guard.failed != 2 || guard.success != 1 {
		t.Fatalf("expected every attempt recorded, got failed=%d success=%d", guard.failed, guard.success)
	}
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"not found"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, nil).GetConversation(context.Background(), "cnv_missing")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestGetJSONSkipsCallWhenCircuitOpen(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, &recordingGuard{deny: true}).GetConversation(context.Background(), "cnv_1")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no request while circuit open, got %d", calls)
	}
}

func TestEndpointLabel(t *testing.T) {
	cases := map[string]string{
		"https://api2.frontapp.com/conversations/cnv_abc/messages?limit=100": "/conversations/:id/messages",
		"/tags":                     "/tags",
		"/conversations/cnv_1":      "/conversations/:id",
		"http://x/contacts?page=ab": "/contacts",
	}
	for in, want := range cases {
		if got := EndpointLabel(in); got != want {
			t.Fatalf("EndpointLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
