package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// KnowledgeLimit caps the knowledge base embedded in generator prompts, in characters.
const KnowledgeLimit = 22000

// LoadKnowledge reads the positions knowledge base. A missing file yields an
// empty string so the interview can still run on the built-in prompt.
func LoadKnowledge(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read knowledge %s: %w", path, err)
	}
	return trimRunes(strings.TrimSpace(string(data)), KnowledgeLimit), nil
}

func trimRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
