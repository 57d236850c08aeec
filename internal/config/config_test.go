package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 24, cfg.Flow.MaxQuestionsTotal)
	assert.Equal(t, 1, cfg.Flow.MaxFollowupsPerStep)
	assert.InDelta(t, 0.78, cfg.Flow.ConfidenceStop, 1e-9)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, "data/sessions", cfg.Storage.DataDir)
	assert.Equal(t, "positions-ai-1.0", cfg.App.Version)
	assert.Equal(t, "MASTER_PASSWORD", cfg.Auth.PasswordEnv)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"app": {"title": "Diag", "version": "v9"},
		"flow": {"max_questions_total": 30, "confidence_stop": 0.8},
		"storage": {"backend": "sqlite", "sqlite_path": "/tmp/x.db"},
		"ai": {"models": {"question": "gemini-q"}},
		"master": {"password_env": "REVIEW_PASS"}
	}`)
	t.Setenv("MAX_QUESTIONS_TOTAL", "12")
	t.Setenv("REVIEW_PASS", "secret")
	t.Setenv("CACHE_TTL", "90m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Diag", cfg.App.Title)
	assert.Equal(t, "v9", cfg.App.Version)
	assert.Equal(t, 12, cfg.Flow.MaxQuestionsTotal, "env wins over file")
	assert.InDelta(t, 0.8, cfg.Flow.ConfidenceStop, 1e-9)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "gemini-q", cfg.AI.Models.Question)
	assert.Equal(t, "secret", cfg.Auth.MasterPassword)
	assert.True(t, cfg.ReviewerEnabled())
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non numeric budget", map[string]string{"MAX_QUESTIONS_TOTAL": "lots"}},
		{"zero budget", map[string]string{"MAX_QUESTIONS_TOTAL": "0"}},
		{"threshold above one", map[string]string{"CONFIDENCE_STOP": "1.5"}},
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "tape"}},
		{"bad duration", map[string]string{"SUBJECT_TOKEN_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeFile(t, "config.json", "{"))
	require.Error(t, err)
}

func TestResolveModel(t *testing.T) {
	ai := DefaultAIConfig()
	assert.Equal(t, "gemini-2.5-pro", ai.ResolveModel("", "gemini-2.5-pro"))
	assert.Equal(t, "gemini-2.5-pro", ai.ResolveModel("  ", "gemini-2.5-pro"))
	assert.Equal(t, "gemini-2.5-pro", ai.ResolveModel("gpt-5.1", "gemini-2.5-pro"))
	assert.Equal(t, "gemini-2.0-flash", ai.ResolveModel(" gemini-2.0-flash ", "gemini-2.5-pro"))
}

func TestLoadKnowledge(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		kb, err := LoadKnowledge(filepath.Join(t.TempDir(), "none.md"))
		require.NoError(t, err)
		assert.Empty(t, kb)
	})

	t.Run("trimmed to limit", func(t *testing.T) {
		path := writeFile(t, "positions.md", strings.Repeat("ж", KnowledgeLimit+50))
		kb, err := LoadKnowledge(path)
		require.NoError(t, err)
		assert.Equal(t, KnowledgeLimit, len([]rune(kb)))
	})

	t.Run("short file kept", func(t *testing.T) {
		kb, err := LoadKnowledge(writeFile(t, "positions.md", "\n# Positions\n"))
		require.NoError(t, err)
		assert.Equal(t, "# Positions", kb)
	})
}
