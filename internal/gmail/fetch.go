// Package gmail lists and parses Gmail messages with google.golang.org/api/gmail/v1.
package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailagent/internal/types"
)

// maxPageSize is the largest page the messages.list endpoint accepts.
const maxPageSize = 500

// ListMessages returns up to maxResults message references matching query.
// Pages are over-requested (three times what is still missing) and the
// result is trimmed to exactly maxResults.
func ListMessages(ctx context.Context, svc *gm.Service, query string, maxResults int64) ([]types.MessageRef, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	var refs []types.MessageRef
	pageToken := ""

	for int64(len(refs)) < maxResults {
		remaining := maxResults - int64(len(refs))
		batch := min(remaining*3, maxPageSize)

		call := svc.Users.Messages.List("me").
			Q(query).
			MaxResults(batch).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		if len(resp.Messages) == 0 {
			break
		}

		for _, m := range resp.Messages {
			refs = append(refs, types.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if int64(len(refs)) > maxResults {
		refs = refs[:maxResults]
	}
	return refs, nil
}

// SaveRefs writes message references as an indented JSON array.
func SaveRefs(path string, refs []types.MessageRef) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	data, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadRefs reads message references saved by SaveRefs.
func LoadRefs(path string) ([]types.MessageRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message ids: %w", err)
	}
	var refs []types.MessageRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return refs, nil
}
