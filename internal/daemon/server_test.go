package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/config"
	"github.com/gamecodelab/gamecode/internal/leaderboard"
	"github.com/gamecodelab/gamecode/internal/llm"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/project"
	"github.com/gamecodelab/gamecode/internal/storage/local"
	"github.com/gamecodelab/gamecode/internal/storage/sqlite"
	"github.com/gamecodelab/gamecode/internal/tutor"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeProvider answers every completion with a fixed reply
type fakeProvider struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.content}, nil
}

func (p *fakeProvider) reply(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.content = content
}

// fakeBoard serves a fixed ranking
type fakeBoard struct {
	entries []leaderboard.Entry
}

func (b *fakeBoard) Page(ctx context.Context, page, size int) (*leaderboard.Page, error) {
	if page < 1 || size < 1 {
		return nil, leaderboard.ErrInvalidPage
	}
	return &leaderboard.Page{
		Entries:    b.entries,
		Total:      int64(len(b.entries)),
		Page:       page,
		PageSize:   size,
		TotalPages: 1,
	}, nil
}

func (b *fakeBoard) Rank(ctx context.Context, learnerID string) (*leaderboard.Entry, error) {
	for _, e := range b.entries {
		if e.LearnerID == learnerID {
			return &e, nil
		}
	}
	return nil, leaderboard.ErrNotRanked
}

type testEnv struct {
	srv      *Server
	cfg      *config.LocalConfig
	provider *fakeProvider
	drafts   *local.DraftStore
	profiles *profile.Service
}

type envOption func(*config.LocalConfig, *ServerConfig)

func withoutTutor() envOption {
	return func(_ *config.LocalConfig, sc *ServerConfig) { sc.Tutor = nil }
}

func withoutCatalog() envOption {
	return func(_ *config.LocalConfig, sc *ServerConfig) { sc.Catalog = nil }
}

func withBoard(b Leaderboard) envOption {
	return func(_ *config.LocalConfig, sc *ServerConfig) { sc.Leaderboard = b }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultLocalConfig()
	cfg.Daemon.Port = 0
	cfg.Preview.DebounceMS = 20

	db, err := sqlite.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	drafts, err := local.NewDraftStore(filepath.Join(dir, "drafts"))
	if err != nil {
		t.Fatalf("NewDraftStore() error = %v", err)
	}

	courses := catalog.NewRegistry(catalog.NewLoader(catalog.Builtin()))
	if err := courses.Load(); err != nil {
		t.Fatalf("catalog Load() error = %v", err)
	}

	provider := &fakeProvider{content: "This heading is styled red."}
	profiles := profile.NewService(sqlite.NewLearnerStore(db), profile.Config{Logger: discard})
	sc := ServerConfig{
		Config:   cfg,
		Profiles: profiles,
		Projects: project.NewService(sqlite.NewProjectStore(db), discard),
		Drafts:   drafts,
		Catalog:  courses,
		Tutor:    tutor.New(tutor.Config{Provider: provider, Logger: discard}),
		Logger:   discard,
	}
	for _, opt := range opts {
		opt(cfg, &sc)
	}

	srv, err := NewServer(sc)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(srv.hub.closeAll)

	return &testEnv{srv: srv, cfg: cfg, provider: provider, drafts: drafts, profiles: profiles}
}

// do sends a request through the full middleware chain. headers are
// key, value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

// doRaw sends an unencoded body
func (e *testEnv) doRaw(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) createLearner(t *testing.T, username string, role profile.Role) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/learners", profile.CreateRequest{Username: username, Role: role})
	if w.Code != http.StatusCreated {
		t.Fatalf("create learner status = %d; want 201: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Profile profile.Profile `json:"profile"`
	}
	decode(t, w, &resp)
	return resp.Profile.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d; want %d: %s", w.Code, want, strings.TrimSpace(w.Body.String()))
	}
}

func TestNewServer_RequiresServices(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() without config should fail")
	}
	if _, err := NewServer(ServerConfig{Config: config.DefaultLocalConfig()}); err == nil {
		t.Error("NewServer() without services should fail")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/health", nil)
	expectStatus(t, w, http.StatusOK)

	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v; want healthy", resp["status"])
	}
	if w.Header().Get(CorrelationIDHeader) == "" {
		t.Error("response should carry a correlation id")
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/status", nil)
	expectStatus(t, w, http.StatusOK)

	var resp map[string]any
	decode(t, w, &resp)
	if resp["version"] != Version {
		t.Errorf("version = %v; want %s", resp["version"], Version)
	}
	if resp["tutor"] != true {
		t.Errorf("tutor = %v; want true", resp["tutor"])
	}
	if resp["leaderboard"] != false {
		t.Errorf("leaderboard = %v; want false", resp["leaderboard"])
	}
}

func TestProgressionEndpoint(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		xp        string
		wantLevel int
		wantInto  int
		wantTitle string
	}{
		{"0", 1, 0, "Novice"},
		{"-100", 1, 0, "Novice"},
		{"100", 2, 0, "Apprentice"},
		{"300", 2, 200, "Apprentice"},
		{"1000000", 10, 1000000 - 16500, "Web Wizard"},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, "/v1/progression?xp="+tt.xp, nil)
		expectStatus(t, w, http.StatusOK)

		var resp struct {
			Progression struct {
				Level       int `json:"level"`
				XPIntoLevel int `json:"xp_into_level"`
			} `json:"progression"`
			Title string `json:"title"`
		}
		decode(t, w, &resp)
		if resp.Progression.Level != tt.wantLevel || resp.Title != tt.wantTitle {
			t.Errorf("xp=%s: level = %d, title = %q; want %d, %q",
				tt.xp, resp.Progression.Level, resp.Title, tt.wantLevel, tt.wantTitle)
		}
		if resp.Progression.XPIntoLevel != tt.wantInto {
			t.Errorf("xp=%s: xp_into_level = %d; want %d", tt.xp, resp.Progression.XPIntoLevel, tt.wantInto)
		}
	}

	w := env.do(t, http.MethodGet, "/v1/progression?xp=lots", nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestAchievementCatalogEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/achievements", nil)
	expectStatus(t, w, http.StatusOK)

	var resp struct {
		Achievements []map[string]any `json:"achievements"`
	}
	decode(t, w, &resp)
	if len(resp.Achievements) == 0 {
		t.Error("catalog should not be empty")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{profile.ErrNotFound, http.StatusNotFound},
		{project.ErrNotFound, http.StatusNotFound},
		{local.ErrNotFound, http.StatusNotFound},
		{errSessionNotFound, http.StatusNotFound},
		{profile.ErrAlreadyExists, http.StatusConflict},
		{profile.ErrTrialExpired, http.StatusForbidden},
		{project.ErrNotPublic, http.StatusForbidden},
		{tutor.ErrCodeTooLong, http.StatusRequestEntityTooLarge},
		{tutor.ErrMissingField, http.StatusBadRequest},
		{llm.ErrInvalidRole, http.StatusBadRequest},
		{llm.ErrRateLimited, http.StatusTooManyRequests},
		{llm.ErrNoDefaultProvider, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		wrapped := errors.Join(errors.New("context"), tt.err)
		if got := statusFor(wrapped); got != tt.want {
			t.Errorf("statusFor(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}
