package websearch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

func newTestSearcher(t *testing.T, handler http.HandlerFunc) *Searcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), "test-key", "engine-1", zerolog.Nop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRequiresEngineID(t *testing.T) {
	if _, err := New(context.Background(), "k", "", zerolog.Nop()); err == nil {
		t.Error("expected error without engine id")
	}
}

func TestSearchPages(t *testing.T) {
	var starts []string
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customsearch/v1" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("q") != "capital of France" || q.Get("cx") != "engine-1" {
			t.Errorf("query params = %v", q)
		}
		start := q.Get("start")
		starts = append(starts, start)

		items := []map[string]any{}
		if start != "30" {
			items = append(items, map[string]any{
				"kind":    "customsearch#result",
				"title":   "Paris " + start,
				"link":    "https://example.com/" + start,
				"snippet": "Paris is the capital, of France",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"kind": "customsearch#search", "items": items})
	})

	items, err := s.SearchPages(context.Background(), "capital of France", 3)
	if err != nil {
		t.Fatalf("SearchPages: %v", err)
	}
	if fmt.Sprint(starts) != "[10 20 30]" {
		t.Errorf("starts = %v, want [10 20 30]", starts)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[1].Title != "Paris 20" {
		t.Errorf("items[1].Title = %q", items[1].Title)
	}
}

func TestSearchError(t *testing.T) {
	s := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	})
	if _, err := s.SearchPages(context.Background(), "x", 2); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web", "search_results.csv")
	items := []*customsearch.Result{
		{Kind: "customsearch#result", Title: "Paris", Link: "https://example.com", Snippet: "capital, of France"},
		nil,
		{Title: "Lyon", Pagemap: []byte(`{"metatags":[{"og:title":"Lyon"}]}`)},
	}

	if err := WriteCSV(path, items); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	if records[0][1] != "title" || len(records[0]) != len(Columns) {
		t.Errorf("header = %v", records[0])
	}
	if records[1][5] != "capital, of France" {
		t.Errorf("snippet = %q", records[1][5])
	}
	if records[2][len(Columns)-1] != `{"metatags":[{"og:title":"Lyon"}]}` {
		t.Errorf("pagemap = %q", records[2][len(Columns)-1])
	}
}
