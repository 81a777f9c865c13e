package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gamecodelab/gamecode/internal/config"
	"github.com/gamecodelab/gamecode/internal/daemon"
	"github.com/gamecodelab/gamecode/internal/llm"
	mcpserver "github.com/gamecodelab/gamecode/internal/mcp"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/tutor"
)

// cmdMCP starts the MCP server on stdio for editor agents
func cmdMCP() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := config.EnsureDir(); err != nil {
		return fmt.Errorf("ensure gamecode dir: %w", err)
	}

	// stdout carries the protocol, so logs go to stderr only
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := daemon.NewRuntime(logger)
	defer rt.Close(context.Background())

	registry := llm.NewRegistry()
	daemon.SetupLLMProviders(cfg, registry, logger)

	var t *tutor.Tutor
	if p, err := registry.Default(); err == nil {
		rcfg := llm.DefaultResilientConfig()
		rcfg.Logger = logger
		resilient := llm.NewResilientProvider(p, rcfg)
		defer resilient.Close()
		t = tutor.New(tutor.Config{Provider: resilient, Logger: logger})
	}

	var profiles *profile.Service
	if store, _, err := daemon.OpenStores(ctx, cfg, rt); err != nil {
		logger.Warn("learner tools disabled", "error", err)
	} else {
		profiles = profile.NewService(store, profile.Config{
			TrialDuration: cfg.TrialDuration(),
			Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	}

	courses, err := daemon.OpenCatalog(cfg)
	if err != nil {
		logger.Warn("lesson tool disabled", "error", err)
	}

	srv := mcpserver.NewServer(mcpserver.Config{
		Tutor:    t,
		Profiles: profiles,
		Courses:  courses,
	})
	return srv.ServeStdio(ctx)
}
