// Package index is the email vector index: new emails are embedded and
// stored in SQLite, queries return the nearest documents by cosine
// similarity.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/db"
	"github.com/daviddao/mailagent/internal/dedup"
	"github.com/daviddao/mailagent/internal/llm"
	"github.com/daviddao/mailagent/internal/types"
)

// embedBatchSize caps how many texts go into one embeddings request.
const embedBatchSize = 64

// Index combines the document store, an embedder and a dedup filter.
type Index struct {
	store    *db.DB
	embedder llm.Embedder
	filter   dedup.Filter
	log      zerolog.Logger
}

// New returns an index over store. A nil filter indexes every email passed
// to Update.
func New(store *db.DB, embedder llm.Embedder, filter dedup.Filter, logger zerolog.Logger) *Index {
	return &Index{
		store:    store,
		embedder: embedder,
		filter:   filter,
		log:      logger.With().Str("component", "index").Logger(),
	}
}

// Exists reports whether the index holds at least one document.
func (ix *Index) Exists() bool {
	return ix.store.DocumentCount() > 0
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return ix.store.DocumentCount()
}

// Update indexes the emails that the dedup filter has not seen yet and
// returns how many documents were added. Emails are marked as seen only once
// their documents are stored, so a failed embed is retried on the next call.
func (ix *Index) Update(ctx context.Context, emails []*types.Email) (int, error) {
	fresh := emails
	if ix.filter != nil {
		var err error
		fresh, err = ix.filter.Unseen(ctx, emails)
		if err != nil {
			return 0, fmt.Errorf("dedup filter: %w", err)
		}
	}

	var batch []*types.Email
	var empty []string
	for _, e := range fresh {
		switch {
		case e == nil:
		case strings.TrimSpace(e.Content) == "":
			empty = append(empty, e.ID)
		default:
			batch = append(batch, e)
		}
	}

	var added int
	var addErr error
	if len(batch) > 0 {
		added, addErr = ix.add(ctx, batch)
	}

	if ix.filter != nil {
		done := empty
		for _, e := range batch[:added] {
			done = append(done, e.ID)
		}
		if err := ix.filter.Mark(ctx, done); err != nil {
			return added, errors.Join(addErr, fmt.Errorf("dedup mark: %w", err))
		}
	}
	if addErr != nil {
		return added, addErr
	}

	if len(batch) == 0 {
		ix.log.Info().Msg("no email content to index")
		return 0, nil
	}
	ix.log.Info().Int("added", added).Int("total", ix.Len()).Msg("index updated")
	return added, nil
}

// Rebuild drops every document and indexes emails again, bypassing the
// dedup filter.
func (ix *Index) Rebuild(ctx context.Context, emails []*types.Email) (int, error) {
	if err := ix.store.ClearDocuments(); err != nil {
		return 0, fmt.Errorf("clear index: %w", err)
	}
	if len(emails) == 0 {
		return 0, nil
	}
	return ix.add(ctx, emails)
}

func (ix *Index) add(ctx context.Context, emails []*types.Email) (int, error) {
	added := 0
	for start := 0; start < len(emails); start += embedBatchSize {
		end := min(start+embedBatchSize, len(emails))
		chunk := emails[start:end]

		texts := make([]string, len(chunk))
		for i, e := range chunk {
			texts[i] = e.String()
		}

		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return added, fmt.Errorf("embed emails: %w", err)
		}

		for i, e := range chunk {
			doc := &types.Document{
				ID:        e.ID,
				EmailID:   e.ID,
				Content:   texts[i],
				Embedding: vecs[i],
			}
			if err := ix.store.AddDocument(doc); err != nil {
				return added, err
			}
			added++
		}
	}
	return added, nil
}

// Search returns the k documents most similar to query, best first. An
// empty index yields no hits and no error.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]types.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	docs, err := ix.store.Documents()
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q := vecs[0]

	hits := make([]types.Hit, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != len(q) {
			ix.log.Warn().Str("id", d.ID).Int("dims", len(d.Embedding)).Int("want", len(q)).
				Msg("embedding dimension mismatch, skipping")
			continue
		}
		hits = append(hits, types.Hit{Document: *d, Score: Cosine(q, d.Embedding)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// TopK returns the contents of the k best matches joined by blank lines.
func (ix *Index) TopK(ctx context.Context, query string, k int) (string, error) {
	hits, err := ix.Search(ctx, query, k)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Content
	}
	return strings.Join(parts, "\n\n"), nil
}

// Cosine returns the cosine similarity of two equal-length vectors, or 0
// when either has zero norm.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
