package dedup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/types"
)

func emails(ids ...string) []*types.Email {
	out := make([]*types.Email, len(ids))
	for i, id := range ids {
		out[i] = types.NewEmail(id, "t-"+id, "s", "f", "", "", "content "+id)
	}
	return out
}

func ids(es []*types.Email) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// exerciseFilter runs the behaviour shared by every backend.
func exerciseFilter(t *testing.T, f Filter) {
	t.Helper()
	ctx := context.Background()

	got, err := f.FilterNew(ctx, emails("a", "b", "a", "c"))
	if err != nil {
		t.Fatalf("FilterNew: %v", err)
	}
	if want := []string{"a", "b", "c"}; !equal(ids(got), want) {
		t.Errorf("first batch = %v, want %v", ids(got), want)
	}

	got, err = f.FilterNew(ctx, emails("c", "d", "b"))
	if err != nil {
		t.Fatalf("FilterNew: %v", err)
	}
	if want := []string{"d"}; !equal(ids(got), want) {
		t.Errorf("second batch = %v, want %v", ids(got), want)
	}

	got, err = f.FilterNew(ctx, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("empty batch = %v, %v", ids(got), err)
	}

	seen, err := f.Seen(ctx, "d")
	if err != nil || !seen {
		t.Errorf("Seen(d) = %v, %v; want true", seen, err)
	}
	seen, _ = f.Seen(ctx, "zzz")
	if seen {
		t.Error("Seen(zzz) = true")
	}

	n, err := f.Count(ctx)
	if err != nil || n != 4 {
		t.Errorf("Count = %d, %v; want 4", n, err)
	}

	got, err = f.Unseen(ctx, emails("a", "e", "f", "e"))
	if err != nil {
		t.Fatalf("Unseen: %v", err)
	}
	if want := []string{"e", "f"}; !equal(ids(got), want) {
		t.Errorf("Unseen = %v, want %v", ids(got), want)
	}
	if seen, _ := f.Seen(ctx, "e"); seen {
		t.Error("Unseen must not mark ids")
	}

	if err := f.Mark(ctx, []string{"e"}); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := f.Mark(ctx, nil); err != nil {
		t.Fatalf("Mark(nil): %v", err)
	}
	got, _ = f.Unseen(ctx, emails("e", "f"))
	if want := []string{"f"}; !equal(ids(got), want) {
		t.Errorf("Unseen after Mark = %v, want %v", ids(got), want)
	}
	if n, _ := f.Count(ctx); n != 5 {
		t.Errorf("Count after Mark = %d, want 5", n)
	}
}

func TestJSONFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "email_saved.json")
	f := NewJSONFilter(path, zerolog.Nop())
	exerciseFilter(t, f)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved ids: %v", err)
	}
	var saved struct {
		ID []string `json:"id"`
	}
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if want := []string{"a", "b", "c", "d", "e"}; !equal(saved.ID, want) {
		t.Errorf("saved ids = %v, want %v", saved.ID, want)
	}
}

func TestJSONFilterFirstRunRecordsBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email_saved.json")

	first := NewJSONFilter(path, zerolog.Nop())
	got, err := first.FilterNew(context.Background(), emails("x", "y"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("first run new = %v, want all", ids(got))
	}

	// A fresh process sees the first batch as already ingested.
	second := NewJSONFilter(path, zerolog.Nop())
	got, err = second.FilterNew(context.Background(), emails("x", "y", "z"))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"z"}; !equal(ids(got), want) {
		t.Errorf("second run new = %v, want %v", ids(got), want)
	}
}

func TestJSONFilterCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email_saved.json")
	os.WriteFile(path, []byte("{not json"), 0o644)

	f := NewJSONFilter(path, zerolog.Nop())
	if _, err := f.FilterNew(context.Background(), emails("a")); err == nil {
		t.Error("expected parse error")
	}
}

func TestJSONFilterFailedWriteKeepsIDsUnseen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "email_saved.json")
	f := NewJSONFilter(path, zerolog.Nop())
	if _, err := f.Unseen(ctx, emails("a")); err != nil {
		t.Fatal(err)
	}

	// A directory in place of the file makes every write fail.
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := f.Mark(ctx, []string{"a"}); err == nil {
		t.Fatal("expected write error")
	}
	if _, err := f.FilterNew(ctx, emails("b")); err == nil {
		t.Fatal("expected write error from FilterNew")
	}

	for _, id := range []string{"a", "b"} {
		if seen, _ := f.Seen(ctx, id); seen {
			t.Errorf("Seen(%s) = true after a failed write", id)
		}
	}
	if n, _ := f.Count(ctx); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestRedisFilter(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer m.Close()

	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	f := NewRedisFilterWithClient(rdb, "", zerolog.Nop())
	defer f.Close()

	exerciseFilter(t, f)

	members, err := m.Members(DefaultRedisKey)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 5 {
		t.Errorf("redis set = %v, want 5 members", members)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{ConfigDir: dir}

	f, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	jf, ok := f.(*JSONFilter)
	if !ok {
		t.Fatalf("default backend = %T, want *JSONFilter", f)
	}
	if jf.Path() != filepath.Join(dir, config.DedupFile) {
		t.Errorf("path = %q", jf.Path())
	}

	cfg.Dedup.Backend = BackendRedis
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for redis backend without url")
	}

	m, _ := miniredis.Run()
	defer m.Close()
	cfg.Dedup.RedisURL = "redis://" + m.Addr()
	f, err = New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New(redis): %v", err)
	}
	defer f.Close()
	if _, ok := f.(*RedisFilter); !ok {
		t.Errorf("backend = %T, want *RedisFilter", f)
	}

	cfg.Dedup.Backend = "postgres"
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
