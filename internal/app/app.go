package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neodiag/internal/cache"
	"neodiag/internal/config"
	"neodiag/internal/metrics"
	"neodiag/internal/repository"
)

// App holds the long-lived dependencies shared by the server and the seeder.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	SessionRepo  repository.SessionRepo
	SessionCache cache.SessionCache

	closers []func(context.Context) error
}

// NewLogger builds the process logger from the log section of cfg.
func NewLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// New connects the configured session store and cache. Callers must Close
// the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}

	repo, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.SessionRepo = repo

	sessionCache, err := a.openCache(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.SessionCache = sessionCache

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.SessionRepo, error) {
	st := a.Config.Storage
	opt := repository.WithLogger(a.Logger)

	switch st.Backend {
	case config.BackendFile:
		a.Logger.Info("session store", "backend", st.Backend, "dir", st.DataDir)
		return repository.NewFileSessionRepo(st.DataDir, opt)

	case config.BackendSQLite:
		repo, err := repository.NewSQLiteSessionRepo(st.SQLitePath, opt)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return repo.Close() })
		a.Logger.Info("session store", "backend", st.Backend, "path", st.SQLitePath)
		return repo, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(st.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, client.Disconnect)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		a.Logger.Info("session store", "backend", st.Backend, "database", st.MongoDatabase)
		return repository.NewMongoSessionRepo(client.Database(st.MongoDatabase), opt), nil

	case config.BackendS3:
		repo, err := repository.NewS3SessionRepo(repository.S3Config{
			Endpoint:  st.S3.Endpoint,
			Region:    st.S3.Region,
			AccessKey: st.S3.AccessKey,
			SecretKey: st.S3.SecretKey,
			Bucket:    st.S3.Bucket,
			Prefix:    st.S3.Prefix,
			UseSSL:    st.S3.UseSSL,
		}, opt)
		if err != nil {
			return nil, err
		}
		a.Logger.Info("session store", "backend", st.Backend, "bucket", st.S3.Bucket)
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", st.Backend)
	}
}

func (a *App) openCache(ctx context.Context) (cache.SessionCache, error) {
	cc := a.Config.Cache
	if cc.RedisAddr == "" {
		a.Logger.Info("session cache", "backend", "memory", "size", cc.LRUSize)
		return cache.NewMemorySessionCache(cc.LRUSize)
	}

	addr := strings.TrimPrefix(cc.RedisAddr, "redis://")
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	a.Logger.Info("session cache", "backend", "redis", "addr", addr, "ttl", cc.TTL)
	return cache.NewRedisSessionCache(rdb, cc.TTL), nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("failed to close dependency", "error", err)
		}
	}
	a.closers = nil
}
