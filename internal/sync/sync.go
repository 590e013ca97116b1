// Package sync runs the ingest pipeline: list matching Gmail messages,
// save their IDs, parse them into email samples, cache those in SQLite and
// feed new ones to the vector index.
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailagent/internal/db"
	"github.com/daviddao/mailagent/internal/gmail"
	"github.com/daviddao/mailagent/internal/types"
)

// Indexer receives parsed emails. *index.Index satisfies it.
type Indexer interface {
	Update(ctx context.Context, emails []*types.Email) (int, error)
}

// Options controls a pipeline run.
type Options struct {
	Query      string
	MaxResults int64
	// RefsPath is where the listed message IDs are saved.
	RefsPath string
	// SkipCached avoids refetching messages already in the database.
	SkipCached bool
}

// Syncer wires the Gmail service, the database and an optional index.
type Syncer struct {
	svc   *gm.Service
	store *db.DB
	index Indexer
	log   zerolog.Logger
}

// New returns a syncer. index may be nil to skip indexing.
func New(svc *gm.Service, store *db.DB, index Indexer, logger zerolog.Logger) *Syncer {
	return &Syncer{
		svc:   svc,
		store: store,
		index: index,
		log:   logger.With().Str("component", "sync").Logger(),
	}
}

// Fetch lists message IDs for query and saves them to refsPath. An empty
// listing leaves the saved file untouched.
func (s *Syncer) Fetch(ctx context.Context, query string, maxResults int64, refsPath string) ([]types.MessageRef, error) {
	refs, err := gmail.ListMessages(ctx, s.svc, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		s.log.Info().Str("query", query).Msg("no emails found")
		return nil, nil
	}
	if refsPath != "" {
		if err := gmail.SaveRefs(refsPath, refs); err != nil {
			return refs, fmt.Errorf("save message ids: %w", err)
		}
	}
	s.log.Info().Str("query", query).Int("listed", len(refs)).Str("path", refsPath).Msg("fetched message ids")
	return refs, nil
}

// Parse turns refs into email samples and caches them. With skipCached,
// messages already stored are read from the database instead of Gmail.
// It returns the samples and how many were newly stored.
func (s *Syncer) Parse(ctx context.Context, refs []types.MessageRef, skipCached bool) ([]*types.Email, int, error) {
	var cached []*types.Email
	toFetch := refs
	if skipCached {
		toFetch = nil
		for _, ref := range refs {
			if !s.store.EmailExists(ref.ID) {
				toFetch = append(toFetch, ref)
				continue
			}
			e, err := s.store.GetEmail(ref.ID)
			if err != nil {
				s.log.Warn().Err(err).Str("id", ref.ID).Msg("read cached email, refetching")
				toFetch = append(toFetch, ref)
				continue
			}
			cached = append(cached, e)
		}
	}

	parsed, err := gmail.Parse(ctx, s.svc, toFetch, s.log)
	if err != nil {
		return nil, 0, err
	}

	stored := 0
	for _, e := range parsed {
		inserted, err := s.store.InsertEmail(e)
		if err != nil {
			s.log.Warn().Err(err).Str("id", e.ID).Msg("cache email")
			continue
		}
		if inserted {
			stored++
		}
	}

	s.log.Info().
		Int("refs", len(refs)).
		Int("cached", len(cached)).
		Int("parsed", len(parsed)).
		Int("stored", stored).
		Msg("parsed emails")
	return append(cached, parsed...), stored, nil
}

// Run executes fetch, parse and index in order. Failures after listing are
// reported in the result as well as returned.
func (s *Syncer) Run(ctx context.Context, opts Options) (*types.IngestResult, []*types.Email, error) {
	result := &types.IngestResult{}

	refs, err := s.Fetch(ctx, opts.Query, opts.MaxResults, opts.RefsPath)
	if err != nil {
		result.Error = err.Error()
		return result, nil, err
	}
	result.Listed = len(refs)
	if len(refs) == 0 {
		return result, nil, nil
	}

	emails, stored, err := s.Parse(ctx, refs, opts.SkipCached)
	if err != nil {
		result.Error = err.Error()
		return result, nil, err
	}
	result.Parsed = len(emails)
	result.New = stored
	result.Skipped = len(emails) - stored

	if s.index != nil {
		indexed, err := s.index.Update(ctx, emails)
		result.Indexed = indexed
		if err != nil {
			result.Error = err.Error()
			return result, emails, fmt.Errorf("index emails: %w", err)
		}
	}
	return result, emails, nil
}
