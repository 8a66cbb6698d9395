// Package testcase defines the adversarial input unit consumed by the runner
// and the file loaders that feed it.
package testcase

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TestCase is one adversarial input unit. Cases are immutable once created;
// the runner treats them as read-only input.
type TestCase struct {
	ID               string            `json:"id"`
	Category         string            `json:"category"`
	Subcategory      string            `json:"subcategory,omitempty"`
	Name             string            `json:"name,omitempty"`
	Payload          string            `json:"payload"`
	ExpectedBehavior string            `json:"expected_behavior,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value, or "" when absent.
func (tc TestCase) Meta(key string) string {
	if tc.Metadata == nil {
		return ""
	}
	return tc.Metadata[key]
}

// Validate checks the fields the generator boundary requires.
func (tc TestCase) Validate() error {
	if strings.TrimSpace(tc.ID) == "" {
		return fmt.Errorf("test case id is required")
	}
	if strings.TrimSpace(tc.Category) == "" {
		return fmt.Errorf("test case %s: category is required", tc.ID)
	}
	if tc.Payload == "" {
		return fmt.Errorf("test case %s: payload is required", tc.ID)
	}
	return nil
}

// Load reads test cases from a file. Supported formats: a JSON array of
// cases, or JSON Lines with one case per line. IDs must be unique within the
// batch.
func Load(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test cases: %w", err)
	}
	cases, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Parse decodes a JSON array or JSONL document into validated test cases.
func Parse(data []byte) ([]TestCase, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("no test cases found")
	}

	var cases []TestCase
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &cases); err != nil {
			return nil, fmt.Errorf("parse test case array: %w", err)
		}
	} else {
		for i, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var tc TestCase
			if err := json.Unmarshal([]byte(line), &tc); err != nil {
				return nil, fmt.Errorf("parse test case line %d: %w", i+1, err)
			}
			cases = append(cases, tc)
		}
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("no test cases found")
	}

	seen := make(map[string]int, len(cases))
	for i, tc := range cases {
		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		if prev, ok := seen[tc.ID]; ok {
			return nil, fmt.Errorf("duplicate test case id %q at index %d (also index %d)", tc.ID, i, prev)
		}
		seen[tc.ID] = i
	}
	return cases, nil
}

// Save writes cases as an indented JSON array.
func Save(path string, cases []TestCase) error {
	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
