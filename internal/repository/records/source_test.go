package records

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "secret"}, zap.NewNop())
}

func TestFetch(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/records/wiki/1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","title":"Clear cookies"}`))
	})

	rec, err := src.Fetch(context.Background(), "wiki", "1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rec["title"] != "Clear cookies" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestFetch_MissingRecord(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec, err := src.Fetch(context.Background(), "wiki", "gone")
	if err != nil {
		t.Fatalf("404 should not error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %v", rec)
	}
}

func TestFetch_ServerError(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := src.Fetch(context.Background(), "wiki", "1"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestIDs(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/records/wiki/ids" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ids":["1","2","3"]}`))
	})

	ids, err := src.IDs(context.Background(), "wiki")
	if err != nil {
		t.Fatalf("IDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != "1" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestFetchMany(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "1,2,3" {
			t.Errorf("ids = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"id":"1"},{"id":"3"}]}`))
	})

	recs, err := src.FetchMany(context.Background(), "wiki", []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("FetchMany: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected the 2 existing records, got %d", len(recs))
	}
}
