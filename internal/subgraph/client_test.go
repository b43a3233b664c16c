package subgraph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientRetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":{"_meta":{"block":{"number":42}}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 3, time.Millisecond)
	var resp metaResponse
	if err := client.Query(context.Background(), metaQuery, nil, &resp); err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.Meta == nil || resp.Meta.Block.Number != 42 {
		t.Fatalf("unexpected meta: %+v", resp.Meta)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 2, time.Millisecond)
	var resp metaResponse
	if err := client.Query(context.Background(), metaQuery, nil, &resp); err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bad query`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 3, time.Millisecond)
	var resp metaResponse
	err := client.Query(context.Background(), metaQuery, nil, &resp)
	if err == nil || !strings.Contains(err.Error(), "HTTP 400") {
		t.Fatalf("expected HTTP 400 error, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestClientSurfacesGraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"indexing_error"},{"message":"store error"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 1, time.Millisecond)
	var resp metaResponse
	err := client.Query(context.Background(), metaQuery, nil, &resp)
	if err == nil || !strings.Contains(err.Error(), "indexing_error; store error") {
		t.Fatalf("expected joined graphql errors, got %v", err)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return context.DeadlineExceeded
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestClientRejectsOversizedResponse(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{"data":{"_meta":{"block":{"number":` + strings.Repeat("1", 256) + `}}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 2, time.Millisecond)
	client.maxBody = 64
	var resp metaResponse
	err := client.Query(context.Background(), metaQuery, nil, &resp)
	if err == nil || !strings.Contains(err.Error(), "exceeds 64 bytes") {
		t.Fatalf("expected size error, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("oversized responses are not retried, attempts = %d", got)
	}
}
