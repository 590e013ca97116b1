package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/daviddao/mailagent/internal/types"
)

var (
	// ErrEmptyFile is returned when a JSON config file has no content.
	ErrEmptyFile = errors.New("file is empty")
	// ErrInvalidJSON is returned when a config file does not parse as JSON.
	ErrInvalidJSON = errors.New("not a valid JSON file")
)

// ReadJSON decodes the JSON file name from the config directory into v.
func (c Config) ReadJSON(name string, v any) error {
	path := c.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist: %w", path, err)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrInvalidJSON, err)
	}
	return nil
}

// LoadRules reads rules_agents.json. A missing file yields no rules.
func (c Config) LoadRules() ([]types.Rule, error) {
	var rules []types.Rule
	err := c.ReadJSON(RulesFile, &rules)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// SystemPrompt joins the content of every system rule with blank lines.
func SystemPrompt(rules []types.Rule) string {
	var parts []string
	for _, r := range rules {
		if r.Role == "system" {
			parts = append(parts, r.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
