package config

import (
	"os"
	"strings"
	"time"
)

// GeminiModels defines which Gemini models to use for different tasks
type GeminiModels struct {
	// Question drives the per-step question generation (needs to be fast)
	Question string `json:"question"`

	// Report is for the reviewer narrative report (deep analysis, not blocking the subject)
	Report string `json:"report"`
}

// AIConfig holds all AI-related configuration
type AIConfig struct {
	APIKey      string       `json:"-"` // Never serialize
	Models      GeminiModels `json:"models"`
	TimeoutMS   int          `json:"timeoutMs"`
	MaxAttempts int          `json:"maxAttempts"`
}

// DefaultAIConfig returns the default AI configuration
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Models: GeminiModels{
			Question: getEnvOrDefault("GEMINI_MODEL_QUESTION", "gemini-2.5-flash"),
			Report:   getEnvOrDefault("GEMINI_MODEL_REPORT", "gemini-2.5-pro"),
		},
		TimeoutMS:   20000,
		MaxAttempts: 2,
	}
}

// IsEnabled returns true if the AI API is configured
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// Timeout is the per-call deadline.
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ResolveModel maps a requested model name onto one the service can call.
// Blank names and non-Gemini families fall back to fallback.
func (c *AIConfig) ResolveModel(requested, fallback string) string {
	m := strings.TrimSpace(requested)
	if m == "" || !strings.HasPrefix(strings.ToLower(m), "gemini") {
		return fallback
	}
	return m
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
