package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"quizsync/internal/app"
	"quizsync/internal/config"
	"quizsync/internal/connectivity"
	"quizsync/internal/infra/file"
	"quizsync/internal/infra/jsonbin"
	"quizsync/internal/infra/memory"
	pgstore "quizsync/internal/infra/postgres"
	redisstore "quizsync/internal/infra/redis"
	"quizsync/internal/logger"
	"quizsync/internal/metrics"
)

// stack holds every component built from the config file.
type stack struct {
	cfg        config.Config
	log        *zap.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	redis      *redis.Client
	pool       *pgxpool.Pool
	db         *bun.DB
	local      app.LocalStore
	remote     app.RemoteStore
	probeURL   string
	monitor    *connectivity.Monitor
	reconciler *app.Reconciler
	questions  app.QuestionRepository
	sessions   app.SessionRepository
	identities *app.IdentityStore
}

func loadStack(ctx context.Context, configPath string) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return buildStack(ctx, cfg)
}

func buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	s := &stack{cfg: cfg, log: logger.New(cfg.Log.Level, cfg.Log.File)}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = metrics.New(s.registry)

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.local = redisstore.NewKVStore(s.redis, redisstore.DefaultPrefix)
	} else {
		s.log.Warn("redis not configured, local results live in memory only")
		s.local = memory.NewKVStore()
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pool = pool
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		s.db = bun.NewDB(sqldb, pgdialect.New())
	}

	remote, err := s.remoteStore()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.remote = remote

	s.monitor = connectivity.NewMonitor(s.remote != nil, cfg.Remote.Offline, s.log.Named("connectivity"))
	s.reconciler = app.NewReconciler(s.local, s.remote, s.monitor, app.ReconcilerConfig{
		SchoolID: cfg.Remote.SchoolID,
		BinID:    cfg.Remote.BinID,
	}, s.log.Named("reconciler"), s.metrics)
	s.identities = app.NewIdentityStore(s.local)

	s.questions = s.questionRepository()
	if s.redis != nil {
		s.sessions = redisstore.NewSessionStore(s.redis, redisstore.DefaultPrefix, config.TTLDuration(cfg.Redis.TTL, time.Minute))
	} else {
		s.sessions = memory.NewSessionStore()
	}
	return s, nil
}

func (s *stack) remoteStore() (app.RemoteStore, error) {
	rc := s.cfg.Remote
	switch rc.Kind {
	case "", "jsonbin":
		if rc.APIKey == "" {
			s.log.Warn("remote store not configured, results stay local", zap.String("reason", "remote.api_key is empty"))
			return nil, nil
		}
		client := jsonbin.New(jsonbin.Config{
			BaseURL: rc.URL,
			APIKey:  rc.APIKey,
			BinName: rc.BinName,
			Timeout: config.TTLDuration(rc.Timeout, 10*time.Second),
		})
		s.probeURL = rc.URL
		if s.probeURL == "" {
			s.probeURL = jsonbin.DefaultBaseURL
		}
		return client, nil
	case "postgres":
		if s.db == nil {
			return nil, fmt.Errorf("remote kind postgres needs postgres.url")
		}
		return pgstore.NewBinStore(s.db), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q", rc.Kind)
	}
}

func (s *stack) questionRepository() app.QuestionRepository {
	var primary memory.QuestionLoader = memory.SampleLoader{}
	switch {
	case s.pool != nil:
		primary = pgstore.NewQuestionLoader(s.pool)
	case s.cfg.Quiz.QuestionsDir != "":
		primary = file.NewQuestionLoader(s.cfg.Quiz.QuestionsDir)
	}
	loader := memory.NewFallbackLoader(primary, memory.SampleLoader{}, s.log.Named("questions"))

	ttl := config.TTLDuration(s.cfg.Quiz.TTL, 10*time.Minute)
	if s.redis != nil {
		return redisstore.NewQuestionCache(s.redis, loader, redisstore.DefaultPrefix, ttl)
	}
	return memory.NewQuestionRepository(loader, ttl)
}

func (s *stack) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
