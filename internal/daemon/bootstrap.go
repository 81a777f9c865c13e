package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/config"
	"github.com/gamecodelab/gamecode/internal/leaderboard"
	"github.com/gamecodelab/gamecode/internal/llm"
	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/project"
	"github.com/gamecodelab/gamecode/internal/queue"
	"github.com/gamecodelab/gamecode/internal/sandbox"
	"github.com/gamecodelab/gamecode/internal/storage/local"
	"github.com/gamecodelab/gamecode/internal/storage/postgres"
	"github.com/gamecodelab/gamecode/internal/storage/sqlite"
	"github.com/gamecodelab/gamecode/internal/tutor"
)

// Runtime owns the backends opened by Bootstrap
type Runtime struct {
	closers []namedCloser
	logger  *slog.Logger
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// NewRuntime returns an empty runtime for callers that open backends
// without Bootstrap
func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{logger: logger}
}

func (rt *Runtime) add(name string, close func(context.Context) error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: close})
}

// Close releases backends in reverse order of opening
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for _, c := range slices.Backward(rt.closers) {
		if err := c.close(ctx); err != nil {
			rt.logger.Warn("failed to close backend", "backend", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Bootstrap opens every backend named by cfg and builds the server.
// Optional backends that cannot be reached are logged and skipped.
func Bootstrap(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (*Server, *Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := NewRuntime(logger)
	components := map[string]string{}

	profileStore, projectStore, err := OpenStores(ctx, cfg, rt)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	components["storage"] = cfg.Storage.Driver

	drafts, err := local.NewDraftStore(cfg.Storage.DraftsPath)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, fmt.Errorf("open draft store: %w", err)
	}

	courses, err := OpenCatalog(cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	components["courses"] = "builtin"
	if cfg.Courses.Dir != "" {
		components["courses"] = cfg.Courses.Dir
	}

	var board *leaderboard.Board
	if cfg.Redis.Enabled {
		client, err := leaderboard.Connect(ctx, leaderboard.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("leaderboard disabled, redis unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			rt.add("redis", func(context.Context) error { return client.Close() })
			board = leaderboard.New(client, cfg.Redis.Cohort, logger)
			components["leaderboard"] = "redis"
		}
	}

	var publishers profile.Publishers
	boardFed := false
	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL, logger)
		if err != nil {
			logger.Warn("event queue disabled, rabbitmq unavailable", "error", err)
		} else {
			rt.add("rabbitmq", func(context.Context) error { return conn.Close() })
			publishers = append(publishers, queue.NewProducer(conn, logger))
			components["events"] = "rabbitmq"

			if board != nil {
				consumer := queue.NewConsumer(conn, board, queue.ConsumerConfig{
					Workers: cfg.Queue.Workers,
					Logger:  logger,
				})
				if err := consumer.Start(ctx); err != nil {
					logger.Warn("leaderboard consumer not started", "error", err)
				} else {
					rt.add("consumer", func(context.Context) error { consumer.Stop(); return nil })
					boardFed = true
				}
			}
		}
	}
	if board != nil && !boardFed {
		publishers = append(publishers, board)
	}

	profiles := profile.NewService(profileStore, profile.Config{
		TrialDuration: cfg.TrialDuration(),
		Publisher:     publishers,
		Logger:        logger,
	})
	projects := project.NewService(projectStore, logger)

	registry := llm.NewRegistry()
	SetupLLMProviders(cfg, registry, logger)

	var t *tutor.Tutor
	if p, err := registry.Default(); err == nil {
		rcfg := llm.DefaultResilientConfig()
		rcfg.Logger = logger
		resilient := llm.NewResilientProvider(p, rcfg)
		rt.add("llm", func(context.Context) error { return resilient.Close() })
		t = tutor.New(tutor.Config{Provider: resilient, Logger: logger})
		components["tutor"] = p.Name()
	} else {
		logger.Warn("tutor disabled", "error", err)
	}

	var checker preview.ScriptChecker
	if sc := cfg.Preview.SyntaxCheck; sc.Enabled {
		backend, err := sandbox.NewDockerBackend(ctx)
		if err != nil {
			logger.Warn("script pre-check disabled, docker unavailable", "error", err)
		} else {
			c := sandbox.NewChecker(backend, sandbox.Config{
				Image:      sc.Image,
				MemoryMB:   sc.MemoryMB,
				CPULimit:   sc.CPULimit,
				NetworkOff: true,
				Timeout:    time.Duration(sc.TimeoutSeconds) * time.Second,
			}, logger)
			rt.add("sandbox", c.Close)
			checker = c
			components["syntax_check"] = "docker"
		}
	}

	var reader Leaderboard
	if board != nil {
		reader = board
	}

	srv, err := NewServer(ServerConfig{
		Config:      cfg,
		Profiles:    profiles,
		Projects:    projects,
		Drafts:      drafts,
		Catalog:     courses,
		Tutor:       t,
		LLMRegistry: registry,
		Leaderboard: reader,
		Checker:     checker,
		Logger:      logger,
		Components:  components,
	})
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	return srv, rt, nil
}

// OpenCatalog loads the course catalog from the configured directory or
// the built-in courses
func OpenCatalog(cfg *config.LocalConfig) (*catalog.Registry, error) {
	fsys := catalog.Builtin()
	if cfg.Courses.Dir != "" {
		fsys = os.DirFS(cfg.Courses.Dir)
	}
	registry := catalog.NewRegistry(catalog.NewLoader(fsys))
	if err := registry.Load(); err != nil {
		return nil, err
	}
	return registry, nil
}

// OpenStores opens the configured learner and project stores
func OpenStores(ctx context.Context, cfg *config.LocalConfig, rt *Runtime) (profile.Store, project.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.Open(ctx, postgres.DefaultConfig(cfg.Storage.PostgresURL))
		if err != nil {
			return nil, nil, err
		}
		rt.add("postgres", func(context.Context) error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, nil, err
		}
		return postgres.NewLearnerStore(pool), postgres.NewProjectStore(pool), nil

	default:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		rt.add("sqlite", func(context.Context) error { return db.Close() })
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlite.NewLearnerStore(db), sqlite.NewProjectStore(db), nil
	}
}

// SetupLLMProviders registers every enabled provider that has a key
func SetupLLMProviders(cfg *config.LocalConfig, registry *llm.Registry, logger *slog.Logger) {
	for name, pc := range cfg.LLM.Providers {
		if !pc.Enabled {
			continue
		}
		if pc.APIKey == "" {
			logger.Debug("LLM provider enabled but no API key set", "name", name)
			continue
		}

		var p llm.Provider
		switch name {
		case "deepseek":
			baseURL := pc.URL
			if baseURL == "" {
				baseURL = llm.DeepSeekBaseURL
			}
			model := pc.Model
			if model == "" {
				model = llm.DeepSeekModel
			}
			p = llm.NewChatProvider(llm.ChatConfig{Name: name, APIKey: pc.APIKey, BaseURL: baseURL, Model: model})
		case "openai":
			p = llm.NewChatProvider(llm.ChatConfig{Name: name, APIKey: pc.APIKey, BaseURL: pc.URL, Model: pc.Model})
		default:
			if pc.URL == "" {
				logger.Warn("skipping LLM provider without url", "name", name)
				continue
			}
			p = llm.NewChatProvider(llm.ChatConfig{Name: name, APIKey: pc.APIKey, BaseURL: pc.URL, Model: pc.Model})
		}

		registry.Register(name, p)
		logger.Info("registered LLM provider", "name", name, "model", pc.Model)
	}

	if d := cfg.LLM.DefaultProvider; d != "" && d != "auto" {
		if err := registry.SetDefault(d); err != nil {
			logger.Warn("default LLM provider not available", "name", d, "error", err)
		}
	}
}
