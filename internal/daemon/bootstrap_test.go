package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gamecodelab/gamecode/internal/config"
	"github.com/gamecodelab/gamecode/internal/llm"
)

func localTestConfig(t *testing.T) *config.LocalConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultLocalConfig()
	cfg.Storage.SQLitePath = filepath.Join(dir, "gamecode.db")
	cfg.Storage.DraftsPath = filepath.Join(dir, "drafts")
	for _, p := range cfg.LLM.Providers {
		p.APIKey = ""
	}
	return cfg
}

func TestBootstrap_SQLiteOnly(t *testing.T) {
	ctx := context.Background()
	cfg := localTestConfig(t)

	srv, rt, err := Bootstrap(ctx, cfg, discard)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	defer rt.Close(ctx)

	if srv.tutor != nil {
		t.Error("tutor should be disabled without API keys")
	}
	if srv.board != nil {
		t.Error("leaderboard should be disabled without redis")
	}
	if srv.components["storage"] != "sqlite" {
		t.Errorf("storage component = %q; want sqlite", srv.components["storage"])
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/tutor/hint", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("tutor status = %d; want 503", w.Code)
	}
}

func TestBootstrap_WithProvider(t *testing.T) {
	ctx := context.Background()
	cfg := localTestConfig(t)
	cfg.LLM.Providers["deepseek"].APIKey = "sk-test"

	srv, rt, err := Bootstrap(ctx, cfg, discard)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	defer rt.Close(ctx)

	if srv.tutor == nil {
		t.Fatal("tutor should be enabled with a deepseek key")
	}
	if srv.components["tutor"] != "deepseek" {
		t.Errorf("tutor component = %q; want deepseek", srv.components["tutor"])
	}
}

func TestSetupLLMProviders(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	cfg.LLM.Providers["deepseek"].APIKey = "sk-a"
	cfg.LLM.Providers["openai"].APIKey = "sk-b" // disabled
	cfg.LLM.Providers["local"] = &config.ProviderConfig{Enabled: true, APIKey: "sk-c"}
	cfg.LLM.Providers["ollama"] = &config.ProviderConfig{Enabled: true, APIKey: "sk-d", URL: "http://localhost:11434/v1"}
	cfg.LLM.DefaultProvider = "ollama"

	registry := llm.NewRegistry()
	SetupLLMProviders(cfg, registry, discard)

	if got, want := registry.List(), []string{"deepseek", "ollama"}; !slices.Equal(got, want) {
		t.Errorf("providers = %v; want %v", got, want)
	}
	p, err := registry.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("default = %s; want ollama", p.Name())
	}

	cfg.LLM.DefaultProvider = "missing"
	registry = llm.NewRegistry()
	SetupLLMProviders(cfg, registry, discard)
	if registry.DefaultName() != "" {
		t.Errorf("DefaultName() = %q; want empty when the default is unavailable", registry.DefaultName())
	}
}

func TestRuntime_CloseReverseOrder(t *testing.T) {
	var order []string
	rt := &Runtime{logger: discard}
	rt.add("first", func(context.Context) error { order = append(order, "first"); return nil })
	rt.add("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("stuck")
	})

	err := rt.Close(context.Background())
	if err == nil {
		t.Fatal("Close() should report the failing backend")
	}
	if !slices.Equal(order, []string{"second", "first"}) {
		t.Errorf("close order = %v; want [second first]", order)
	}
	if err := rt.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v; want nil", err)
	}
}
