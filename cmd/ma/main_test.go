package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daviddao/mailagent/internal/config"
)

func TestEnsureGitignore(t *testing.T) {
	root := t.TempDir()
	cfg = config.Config{ConfigDir: "config"}
	path := filepath.Join(root, ".gitignore")
	os.WriteFile(path, []byte("node_modules"), 0o644)

	ensureGitignore(root)
	ensureGitignore(root)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.HasPrefix(got, "node_modules\n") {
		t.Errorf("existing entry not newline-terminated:\n%s", got)
	}
	if strings.Count(got, ".mailagent/") != 1 {
		t.Errorf(".mailagent/ should appear once:\n%s", got)
	}
	if strings.Count(got, "config/token.json") != 1 {
		t.Errorf("token entry should appear once:\n%s", got)
	}
}

func TestJoinNonEmpty(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "", ""},
		{"rules", "", "rules"},
		{"", "extra", "extra"},
		{"rules", "extra", "rules\n\nextra"},
	}
	for _, tt := range tests {
		if got := joinNonEmpty(tt.a, tt.b); got != tt.want {
			t.Errorf("joinNonEmpty(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
