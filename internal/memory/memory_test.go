package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/db"
	"github.com/daviddao/mailagent/internal/llm"
)

type fakeLLM struct {
	prompts []string
	reply   string
	err     error
}

func (f *fakeLLM) Complete(_ context.Context, req llm.CompleteRequest) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"日本語です", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSaveWithinLimitKeepsTurns(t *testing.T) {
	f := &fakeLLM{reply: "summary"}
	m := New(f, 100, zerolog.Nop())

	if err := m.Save(context.Background(), "hello", "hi there"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	msgs := m.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != llm.RoleUser || msgs[1].Role != llm.RoleAssistant {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if len(f.prompts) != 0 {
		t.Error("summarizer should not run under the limit")
	}
}

func TestSaveOverLimitSummarizes(t *testing.T) {
	f := &fakeLLM{reply: "The human asked about seminars."}
	m := New(f, 10, zerolog.Nop())
	ctx := context.Background()

	// Each turn is 5+5 = 10 tokens.
	long := strings.Repeat("x", 20)
	if err := m.Save(ctx, long, long); err != nil {
		t.Fatal(err)
	}
	if len(f.prompts) != 0 {
		t.Fatal("first turn fits exactly, no summary expected")
	}
	if err := m.Save(ctx, "when is the seminar?", "friday"); err != nil {
		t.Fatal(err)
	}

	if len(f.prompts) != 1 {
		t.Fatalf("summarizer calls = %d, want 1", len(f.prompts))
	}
	if !strings.Contains(f.prompts[0], "Human: "+long) {
		t.Errorf("summary prompt missing pruned turn:\n%s", f.prompts[0])
	}
	if m.Summary() != "The human asked about seminars." {
		t.Errorf("summary = %q", m.Summary())
	}

	buf := m.Buffer()
	if len(buf) != 1 || buf[0].Human != "when is the seminar?" {
		t.Errorf("buffer = %+v", buf)
	}

	msgs := m.Messages()
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != m.Summary() {
		t.Errorf("first message = %+v, want summary", msgs[0])
	}
}

func TestSummarizeErrorKeepsBuffer(t *testing.T) {
	f := &fakeLLM{err: errors.New("boom")}
	m := New(f, 1, zerolog.Nop())

	if err := m.Save(context.Background(), "a long question", "a long answer"); err == nil {
		t.Fatal("expected summarize error")
	}
	if len(m.Buffer()) != 1 {
		t.Errorf("buffer = %+v, want the turn kept", m.Buffer())
	}
	if m.Summary() != "" {
		t.Errorf("summary = %q, want empty", m.Summary())
	}
}

func TestOpenRestoresSession(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "mail.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	f := &fakeLLM{reply: "earlier: greetings"}
	ctx := context.Background()

	m, err := Open(store, "sess-1", f, 10, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.Save(ctx, strings.Repeat("a", 20), strings.Repeat("b", 20))
	m.Save(ctx, "q2", "a2")

	again, err := Open(store, "sess-1", f, 10, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again.Summary() != "earlier: greetings" {
		t.Errorf("restored summary = %q", again.Summary())
	}
	buf := again.Buffer()
	if len(buf) != 1 || buf[0].Human != "q2" || buf[0].Seq != 2 {
		t.Errorf("restored buffer = %+v", buf)
	}

	if err := again.Save(ctx, "q3", "a3"); err != nil {
		t.Fatal(err)
	}
	sess, _ := store.GetSession("sess-1")
	if sess.Turns != 3 {
		t.Errorf("persisted turns = %d, want 3", sess.Turns)
	}
}
