package remote

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"product-catalog/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, testLogger(), WithRetryDelay(time.Millisecond))
}

func TestFetchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "application/json" {
			t.Errorf("unexpected Accept header %q", accept)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":1,"title":"Bag","price":109.95,"description":"fits 15 inch laptops","category":"men's clothing","image":"https://i/1.jpg","rating":{"rate":3.9,"count":120}},
			{"id":2,"title":"Shirt","price":22.3,"description":"slim fit casual","category":"men's clothing","image":"https://i/2.jpg","rating":{"rate":4.1,"count":259}}
		]`))
	}))
	defer srv.Close()

	list, err := newTestClient(srv.URL).FetchProducts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 products, got %d", len(list))
	}
	if list[0].ID != 1 || list[0].Rating.Count != 120 {
		t.Fatalf("decoded product mismatch: %+v", list[0])
	}
}

func TestFetchProducts_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"title":"Bag","price":10,"description":"d","category":"c","image":"https://i/1.jpg","rating":{"rate":1,"count":1}}]`))
	}))
	defer srv.Close()

	list, err := newTestClient(srv.URL).FetchProducts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("want 1 product, got %d", len(list))
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("want 3 attempts, got %d", got)
	}
}

func TestFetchProducts_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchProducts(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != defaultAttempts {
		t.Fatalf("want %d attempts, got %d", defaultAttempts, got)
	}
}

func TestFetchProducts_ContextCancelStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger(), WithRetryDelay(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchProducts(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline error, got %v", err)
	}
}

func TestFetchProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/7" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":7,"title":"Ring","price":9.99,"description":"d","category":"jewelery","image":"https://i/7.jpg","rating":{"rate":3,"count":400}}`))
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL).FetchProduct(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 7 || p.Category != "jewelery" {
		t.Fatalf("decoded product mismatch: %+v", p)
	}
}

func TestFetchProduct_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchProduct(context.Background(), 999)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("404 should not be retried, got %d attempts", got)
	}
}
