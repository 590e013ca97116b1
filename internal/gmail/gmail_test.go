package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/daviddao/mailagent/internal/types"
)

func testLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func newTestService(t *testing.T, handler http.Handler) *gm.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gm.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("gmail.NewService: %v", err)
	}
	return svc
}

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestListMessagesPaginatesAndTrims(t *testing.T) {
	var sizes []string
	var queries []string
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages" {
			http.NotFound(w, r)
			return
		}
		sizes = append(sizes, r.URL.Query().Get("maxResults"))
		queries = append(queries, r.URL.Query().Get("q"))

		var msgs []map[string]string
		next := ""
		if r.URL.Query().Get("pageToken") == "" {
			for i := 0; i < 4; i++ {
				msgs = append(msgs, map[string]string{"id": fmt.Sprintf("a%d", i), "threadId": "t"})
			}
			next = "page-2"
		} else {
			for i := 0; i < 3; i++ {
				msgs = append(msgs, map[string]string{"id": fmt.Sprintf("b%d", i), "threadId": "t"})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"messages": msgs, "nextPageToken": next})
	}))

	refs, err := ListMessages(context.Background(), svc, "from:*@example.edu", 5)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(refs) != 5 {
		t.Fatalf("len(refs) = %d, want 5", len(refs))
	}
	if refs[4].ID != "b0" {
		t.Errorf("refs[4].ID = %q, want b0", refs[4].ID)
	}
	if len(sizes) != 2 || sizes[0] != "15" || sizes[1] != "3" {
		t.Errorf("requested page sizes = %v, want [15 3]", sizes)
	}
	if queries[0] != "from:*@example.edu" {
		t.Errorf("q = %q", queries[0])
	}
}

func TestListMessagesStopsOnEmptyPage(t *testing.T) {
	calls := 0
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"resultSizeEstimate": 0})
	}))

	refs, err := ListMessages(context.Background(), svc, "", 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("len(refs) = %d, want 0", len(refs))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestListMessagesCapsPageSize(t *testing.T) {
	var size string
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size = r.URL.Query().Get("maxResults")
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "1", "threadId": "1"}},
		})
	}))

	if _, err := ListMessages(context.Background(), svc, "", 400); err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if size != "500" {
		t.Errorf("maxResults = %s, want 500", size)
	}
}

func TestListMessagesAPIError(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"insufficient scope"}}`))
	}))

	if _, err := ListMessages(context.Background(), svc, "", 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestRefsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "emails_id_threading.json")
	refs := []types.MessageRef{{ID: "1", ThreadID: "t1"}, {ID: "2", ThreadID: "t2"}}

	if err := SaveRefs(path, refs); err != nil {
		t.Fatalf("SaveRefs: %v", err)
	}

	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `"threadId": "t1"`) {
		t.Errorf("saved file uses unexpected shape:\n%s", raw)
	}

	loaded, err := LoadRefs(path)
	if err != nil {
		t.Fatalf("LoadRefs: %v", err)
	}
	if len(loaded) != 2 || loaded[1] != refs[1] {
		t.Errorf("loaded = %+v, want %+v", loaded, refs)
	}
}

func TestParseSkipsFailuresAndEmptyBodies(t *testing.T) {
	messages := map[string]any{
		"m1": map[string]any{
			"id":       "m1",
			"threadId": "t1",
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "From", "value": "prof@example.edu"},
					{"name": "To", "value": "me@example.edu"},
					{"name": "Subject", "value": "Office hours"},
					{"name": "Date", "value": "Mon, 2 Feb 2026 10:00:00 -0500"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/html", "body": map[string]any{"data": b64("<p>html</p>")}},
					{"mimeType": "text/plain", "body": map[string]any{"data": b64("  Moved to 3pm.\r\n\r\n\nRoom 301.  ")}},
				},
			},
		},
		"m2": map[string]any{
			"id":       "m2",
			"threadId": "t2",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"headers":  []map[string]string{{"name": "Subject", "value": "attachment only"}},
				"parts": []map[string]any{
					{"mimeType": "application/pdf", "filename": "a.pdf", "body": map[string]any{"attachmentId": "x"}},
				},
			},
		},
	}

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
		msg, ok := messages[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		json.NewEncoder(w).Encode(msg)
	}))

	refs := []types.MessageRef{{ID: "m1", ThreadID: "t1"}, {ID: "missing", ThreadID: "tx"}, {ID: "m2", ThreadID: "t2"}}
	emails, err := Parse(context.Background(), svc, refs, testLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(emails) != 1 {
		t.Fatalf("len(emails) = %d, want 1", len(emails))
	}

	e := emails[0]
	if e.Sender != "prof@example.edu" || e.Receiver != "me@example.edu" {
		t.Errorf("sender/receiver = %q/%q", e.Sender, e.Receiver)
	}
	if e.Subject != "Office hours" {
		t.Errorf("subject = %q", e.Subject)
	}
	if e.Content != "Moved to 3pm.\nRoom 301." {
		t.Errorf("content = %q", e.Content)
	}
	if e.WordCount != 5 {
		t.Errorf("word count = %d, want 5", e.WordCount)
	}
}

func TestParseMessageHTMLFallback(t *testing.T) {
	msg := &gm.Message{
		Id:       "h1",
		ThreadId: "th",
		Payload: &gm.MessagePart{
			MimeType: "text/html",
			Headers:  []*gm.MessagePartHeader{{Name: "Subject", Value: "News"}},
			Body:     &gm.MessagePartBody{Data: b64("<h1>Weekly</h1><p>Seminar on <b>Friday</b></p>")},
		},
	}

	e := ParseMessage(msg)
	if e == nil {
		t.Fatal("expected email, got nil")
	}
	if strings.Contains(e.Content, "<p>") {
		t.Errorf("content still has HTML: %q", e.Content)
	}
	if !strings.Contains(e.Content, "Weekly") || !strings.Contains(e.Content, "Friday") {
		t.Errorf("content = %q, want converted text", e.Content)
	}
}

func TestDecodeBase64URLPadding(t *testing.T) {
	for _, in := range []string{"aGk", "aGk=", base64.URLEncoding.EncodeToString([]byte("hi"))} {
		got, err := decodeBase64URL(in)
		if err != nil {
			t.Fatalf("decodeBase64URL(%q): %v", in, err)
		}
		if got != "hi" {
			t.Errorf("decodeBase64URL(%q) = %q, want hi", in, got)
		}
	}
}

func TestNormalizeContent(t *testing.T) {
	got := NormalizeContent("\n a\r\n\r\nb\rc \n")
	if got != "a\nb\nc" {
		t.Errorf("NormalizeContent = %q, want %q", got, "a\nb\nc")
	}
}
