// Package websearch queries Google Programmable Search and saves the
// results as CSV.
package websearch

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// PageSize is the number of results the API returns per page.
const PageSize = 10

// Searcher runs queries against one search engine.
type Searcher struct {
	svc      *customsearch.Service
	engineID string
	log      zerolog.Logger
}

// New returns a searcher authenticated with apiKey. Extra options are
// appended after the key.
func New(ctx context.Context, apiKey, engineID string, logger zerolog.Logger, opts ...option.ClientOption) (*Searcher, error) {
	if engineID == "" {
		return nil, fmt.Errorf("search engine id is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}
	return &Searcher{
		svc:      svc,
		engineID: engineID,
		log:      logger.With().Str("component", "websearch").Logger(),
	}, nil
}

// Search returns one page of results starting at the 1-based index start.
func (s *Searcher) Search(ctx context.Context, query string, start int64) ([]*customsearch.Result, error) {
	call := s.svc.Cse.List().
		Q(query).
		Cx(s.engineID).
		Context(ctx)
	if start > 0 {
		call = call.Start(start)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	s.log.Debug().Str("query", query).Int64("start", start).Int("items", len(resp.Items)).Msg("search page")
	return resp.Items, nil
}

// SearchPages fetches pages 1..pages with start = i*PageSize and
// concatenates their items. It stops early at an empty page.
func (s *Searcher) SearchPages(ctx context.Context, query string, pages int) ([]*customsearch.Result, error) {
	var all []*customsearch.Result
	for i := 1; i <= pages; i++ {
		items, err := s.Search(ctx, query, int64(i*PageSize))
		if err != nil {
			return all, err
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
	}
	return all, nil
}

// Columns is the CSV header written by WriteCSV.
var Columns = []string{
	"kind", "title", "htmlTitle", "link", "displayLink", "snippet",
	"htmlSnippet", "formattedUrl", "htmlFormattedUrl", "cacheId", "mime",
	"fileFormat", "pagemap",
}

func row(r *customsearch.Result) []string {
	return []string{
		r.Kind, r.Title, r.HtmlTitle, r.Link, r.DisplayLink, r.Snippet,
		r.HtmlSnippet, r.FormattedUrl, r.HtmlFormattedUrl, r.CacheId, r.Mime,
		r.FileFormat, strings.TrimSpace(string(r.Pagemap)),
	}
}

// WriteCSV writes items to path with a header row, creating parent
// directories as needed.
func WriteCSV(path string, items []*customsearch.Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return err
	}
	for _, it := range items {
		if it == nil {
			continue
		}
		if err := w.Write(row(it)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
