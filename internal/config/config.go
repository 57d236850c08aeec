package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendS3     = "s3"
)

type AppConfig struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// FlowConfig bounds one interview
type FlowConfig struct {
	MaxQuestionsTotal   int     `json:"max_questions_total"`
	MaxFollowupsPerStep int     `json:"max_followups_per_step"` // echoed to the question generator
	ConfidenceStop      float64 `json:"confidence_stop"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

// StorageConfig selects the durable session store
type StorageConfig struct {
	Backend       string   `json:"backend"` // file | sqlite | mongo | s3
	DataDir       string   `json:"data_dir"`
	SQLitePath    string   `json:"sqlite_path"`
	MongoURI      string   `json:"mongo_uri"`
	MongoDatabase string   `json:"mongo_database"`
	S3            S3Config `json:"s3"`
}

// CacheConfig holds active interviews. An empty RedisAddr selects the in-process LRU.
type CacheConfig struct {
	RedisAddr string        `json:"redis_addr"`
	TTL       time.Duration `json:"-"`
	LRUSize   int           `json:"lru_size"`
}

type AuthConfig struct {
	PasswordEnv    string        `json:"password_env"`
	MasterPassword string        `json:"-"`
	JWTSecret      string        `json:"-"`
	ReviewerTTL    time.Duration `json:"-"`
	SubjectTTL     time.Duration `json:"-"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json | text
}

type Config struct {
	App            AppConfig
	HTTPPort       string
	AllowedOrigins []string
	Flow           FlowConfig
	Storage        StorageConfig
	Cache          CacheConfig
	Auth           AuthConfig
	AI             *AIConfig
	KnowledgePath  string
	Log            LogConfig
}

// fileConfig mirrors the optional config.json
type fileConfig struct {
	App     *AppConfig     `json:"app"`
	Flow    *FlowConfig    `json:"flow"`
	Storage *StorageConfig `json:"storage"`
	Cache   *CacheConfig   `json:"cache"`
	AI      *struct {
		Models    *GeminiModels `json:"models"`
		TimeoutMS int           `json:"timeout_ms"`
	} `json:"ai"`
	Master *struct {
		PasswordEnv string `json:"password_env"`
	} `json:"master"`
	Log *LogConfig `json:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		App:            AppConfig{Title: "NEO positions diagnostics", Version: "positions-ai-1.0"},
		HTTPPort:       "8080",
		AllowedOrigins: []string{"*"},
		Flow:           FlowConfig{MaxQuestionsTotal: 24, MaxFollowupsPerStep: 1, ConfidenceStop: 0.78},
		Storage: StorageConfig{
			Backend:       BackendFile,
			DataDir:       "data/sessions",
			SQLitePath:    "data/sessions.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "neodiag",
			S3:            S3Config{Region: "us-east-1", Bucket: "neodiag-sessions", Prefix: "sessions"},
		},
		Cache: CacheConfig{TTL: 24 * time.Hour, LRUSize: 1024},
		Auth: AuthConfig{
			PasswordEnv: "MASTER_PASSWORD",
			ReviewerTTL: 12 * time.Hour,
			SubjectTTL:  24 * time.Hour,
		},
		AI:            DefaultAIConfig(),
		KnowledgePath: "knowledge/positions.md",
		Log:           LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads .env, then the optional JSON file at path, then environment
// overrides. A missing config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if fc.App != nil {
		c.App.Title = firstNonEmpty(fc.App.Title, c.App.Title)
		c.App.Version = firstNonEmpty(fc.App.Version, c.App.Version)
	}
	if fc.Flow != nil {
		if fc.Flow.MaxQuestionsTotal != 0 {
			c.Flow.MaxQuestionsTotal = fc.Flow.MaxQuestionsTotal
		}
		if fc.Flow.MaxFollowupsPerStep != 0 {
			c.Flow.MaxFollowupsPerStep = fc.Flow.MaxFollowupsPerStep
		}
		if fc.Flow.ConfidenceStop != 0 {
			c.Flow.ConfidenceStop = fc.Flow.ConfidenceStop
		}
	}
	if fc.Storage != nil {
		c.Storage.Backend = firstNonEmpty(fc.Storage.Backend, c.Storage.Backend)
		c.Storage.DataDir = firstNonEmpty(fc.Storage.DataDir, c.Storage.DataDir)
		c.Storage.SQLitePath = firstNonEmpty(fc.Storage.SQLitePath, c.Storage.SQLitePath)
		c.Storage.MongoURI = firstNonEmpty(fc.Storage.MongoURI, c.Storage.MongoURI)
		c.Storage.MongoDatabase = firstNonEmpty(fc.Storage.MongoDatabase, c.Storage.MongoDatabase)
		c.Storage.S3.Endpoint = firstNonEmpty(fc.Storage.S3.Endpoint, c.Storage.S3.Endpoint)
		c.Storage.S3.Region = firstNonEmpty(fc.Storage.S3.Region, c.Storage.S3.Region)
		c.Storage.S3.Bucket = firstNonEmpty(fc.Storage.S3.Bucket, c.Storage.S3.Bucket)
		c.Storage.S3.Prefix = firstNonEmpty(fc.Storage.S3.Prefix, c.Storage.S3.Prefix)
		c.Storage.S3.UseSSL = c.Storage.S3.UseSSL || fc.Storage.S3.UseSSL
	}
	if fc.Cache != nil {
		c.Cache.RedisAddr = firstNonEmpty(fc.Cache.RedisAddr, c.Cache.RedisAddr)
		if fc.Cache.LRUSize > 0 {
			c.Cache.LRUSize = fc.Cache.LRUSize
		}
	}
	if fc.AI != nil {
		if fc.AI.Models != nil {
			c.AI.Models.Question = firstNonEmpty(fc.AI.Models.Question, c.AI.Models.Question)
			c.AI.Models.Report = firstNonEmpty(fc.AI.Models.Report, c.AI.Models.Report)
		}
		if fc.AI.TimeoutMS > 0 {
			c.AI.TimeoutMS = fc.AI.TimeoutMS
		}
	}
	if fc.Master != nil {
		c.Auth.PasswordEnv = firstNonEmpty(fc.Master.PasswordEnv, c.Auth.PasswordEnv)
	}
	if fc.Log != nil {
		c.Log.Level = firstNonEmpty(fc.Log.Level, c.Log.Level)
		c.Log.Format = firstNonEmpty(fc.Log.Format, c.Log.Format)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	c.App.Version = getEnv("APP_VERSION", c.App.Version)

	var err error
	if c.Flow.MaxQuestionsTotal, err = getEnvInt("MAX_QUESTIONS_TOTAL", c.Flow.MaxQuestionsTotal); err != nil {
		return err
	}
	if c.Flow.MaxFollowupsPerStep, err = getEnvInt("MAX_FOLLOWUPS_PER_STEP", c.Flow.MaxFollowupsPerStep); err != nil {
		return err
	}
	if c.Flow.ConfidenceStop, err = getEnvFloat("CONFIDENCE_STOP", c.Flow.ConfidenceStop); err != nil {
		return err
	}

	c.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", c.Storage.Backend))
	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MongoURI = getEnv("MONGO_URI", c.Storage.MongoURI)
	c.Storage.MongoDatabase = getEnv("MONGO_DATABASE", c.Storage.MongoDatabase)
	c.Storage.S3.Endpoint = getEnv("S3_ENDPOINT", c.Storage.S3.Endpoint)
	c.Storage.S3.Region = getEnv("S3_REGION", c.Storage.S3.Region)
	c.Storage.S3.Bucket = getEnv("S3_BUCKET", c.Storage.S3.Bucket)
	c.Storage.S3.Prefix = getEnv("S3_PREFIX", c.Storage.S3.Prefix)
	c.Storage.S3.AccessKey = firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("MINIO_ROOT_USER"))
	c.Storage.S3.SecretKey = firstNonEmpty(os.Getenv("S3_SECRET_KEY"), os.Getenv("MINIO_ROOT_PASSWORD"))
	if c.Storage.S3.UseSSL, err = getEnvBool("S3_USE_SSL", c.Storage.S3.UseSSL); err != nil {
		return err
	}

	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	if c.Cache.LRUSize, err = getEnvInt("CACHE_LRU_SIZE", c.Cache.LRUSize); err != nil {
		return err
	}
	if c.Cache.TTL, err = getEnvDuration("CACHE_TTL", c.Cache.TTL); err != nil {
		return err
	}

	c.Auth.MasterPassword = os.Getenv(c.Auth.PasswordEnv)
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	if c.Auth.ReviewerTTL, err = getEnvDuration("REVIEWER_TOKEN_TTL", c.Auth.ReviewerTTL); err != nil {
		return err
	}
	if c.Auth.SubjectTTL, err = getEnvDuration("SUBJECT_TOKEN_TTL", c.Auth.SubjectTTL); err != nil {
		return err
	}

	c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	c.AI.Models.Question = getEnv("GEMINI_MODEL_QUESTION", c.AI.Models.Question)
	c.AI.Models.Report = getEnv("GEMINI_MODEL_REPORT", c.AI.Models.Report)
	if c.AI.TimeoutMS, err = getEnvInt("AI_TIMEOUT_MS", c.AI.TimeoutMS); err != nil {
		return err
	}
	if c.AI.MaxAttempts, err = getEnvInt("AI_MAX_ATTEMPTS", c.AI.MaxAttempts); err != nil {
		return err
	}

	c.KnowledgePath = getEnv("KNOWLEDGE_PATH", c.KnowledgePath)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate rejects settings the interview engine cannot run with.
func (c *Config) Validate() error {
	if c.Flow.MaxQuestionsTotal <= 0 {
		return fmt.Errorf("max_questions_total must be positive, got %d", c.Flow.MaxQuestionsTotal)
	}
	if c.Flow.ConfidenceStop <= 0 || c.Flow.ConfidenceStop > 1 {
		return fmt.Errorf("confidence_stop must be in (0,1], got %v", c.Flow.ConfidenceStop)
	}
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMongo, BackendS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.AI.TimeoutMS <= 0 {
		return fmt.Errorf("ai timeout must be positive, got %dms", c.AI.TimeoutMS)
	}
	return nil
}

// ReviewerEnabled reports whether a reviewer password is configured.
func (c *Config) ReviewerEnabled() bool {
	return c.Auth.MasterPassword != ""
}

// SlogLevel maps Log.Level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := cast.ToDurationE(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
