package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/llm"
	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/storage/sqlite"
	"github.com/gamecodelab/gamecode/internal/tutor"
)

// mockProvider answers every completion with a fixed reply
type mockProvider struct {
	content string
}

func (m *mockProvider) Name() string {
	return "mock"
}

func (m *mockProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: m.content}, nil
}

// setupTestServer creates a test MCP server backed by a temp sqlite store
func setupTestServer(t *testing.T, reply string) (*Server, *profile.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "mcp.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	profiles := profile.NewService(sqlite.NewLearnerStore(db), profile.Config{Logger: logger})
	courses := catalog.NewRegistry(catalog.NewLoader(catalog.Builtin()))
	if err := courses.Load(); err != nil {
		t.Fatalf("catalog Load() error = %v", err)
	}
	srv := NewServer(Config{
		Tutor:    tutor.New(tutor.Config{Provider: &mockProvider{content: reply}, Logger: logger}),
		Profiles: profiles,
		Courses:  courses,
	})
	return srv, profiles
}

func TestNewServer(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	if srv.GetMCPServer() == nil {
		t.Fatal("expected non-nil underlying MCP server")
	}

	// nil services must not panic
	if NewServer(Config{}) == nil {
		t.Fatal("expected non-nil server even with nil config")
	}
}

func TestHandleLevel(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	out, err := srv.handleLevel(context.Background(), LevelInput{XP: 450})
	if err != nil {
		t.Fatalf("handleLevel() error = %v", err)
	}
	if out.Level != 3 || out.Title != "Trainee" {
		t.Errorf("level = %d %q; want 3 Trainee", out.Level, out.Title)
	}
	if out.XPIntoLevel != 50 || out.XPToNextLevel != 600 {
		t.Errorf("progress = %d/%d; want 50/600", out.XPIntoLevel, out.XPToNextLevel)
	}
	if out.MaxLevel {
		t.Error("MaxLevel = true; want false")
	}
}

func TestHandlePreview(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	out, err := srv.handlePreview(context.Background(), PreviewInput{Markup: "<h1>Hi</h1>", Style: "h1{color:red}"})
	if err != nil {
		t.Fatalf("handlePreview() error = %v", err)
	}
	if !strings.Contains(out.HTML, "<h1>Hi</h1>") {
		t.Error("preview should contain the markup")
	}
	if out.CSP != "sandbox "+out.Sandbox {
		t.Errorf("CSP = %q; want sandbox tokens", out.CSP)
	}

	_, err = srv.handlePreview(context.Background(), PreviewInput{Script: strings.Repeat("a", preview.MaxSourceLength+1)})
	if !errors.Is(err, preview.ErrSourceTooLong) {
		t.Errorf("handlePreview() error = %v; want ErrSourceTooLong", err)
	}
}

func TestHandleGrade(t *testing.T) {
	srv, _ := setupTestServer(t, "Nice.\nScore: 85\n1. Indent nested tags")

	out, err := srv.handleGrade(context.Background(), GradeInput{Code: "<ul><li>a</li></ul>", Language: "html", Requirements: "a list"})
	if err != nil {
		t.Fatalf("handleGrade() error = %v", err)
	}
	if out.Score != 85 || !out.Scored {
		t.Errorf("score = %d, scored = %v; want 85, true", out.Score, out.Scored)
	}
	if len(out.Suggestions) != 1 {
		t.Errorf("suggestions = %v; want 1", out.Suggestions)
	}
}

func TestHandleExplain_MissingField(t *testing.T) {
	srv, _ := setupTestServer(t, "explained")

	_, err := srv.handleExplain(context.Background(), CodeInput{Language: "css"})
	if !errors.Is(err, tutor.ErrMissingField) {
		t.Errorf("handleExplain() error = %v; want ErrMissingField", err)
	}

	out, err := srv.handleHint(context.Background(), HintInput{Task: "center it", Language: "css"})
	if err != nil {
		t.Fatalf("handleHint() error = %v", err)
	}
	if out.Content != "explained" {
		t.Errorf("hint = %q", out.Content)
	}
}

func TestTutorTools_Unavailable(t *testing.T) {
	srv := NewServer(Config{})
	ctx := context.Background()

	if _, err := srv.handleExplain(ctx, CodeInput{Code: "p{}", Language: "css"}); !errors.Is(err, ErrTutorUnavailable) {
		t.Errorf("handleExplain() error = %v; want ErrTutorUnavailable", err)
	}
	if _, err := srv.handleGrade(ctx, GradeInput{}); !errors.Is(err, ErrTutorUnavailable) {
		t.Errorf("handleGrade() error = %v; want ErrTutorUnavailable", err)
	}
	if _, err := srv.handleLearner(ctx, LearnerInput{LearnerID: "x"}); err == nil {
		t.Error("handleLearner() without profiles should fail")
	}
}

func TestHandleLearner(t *testing.T) {
	srv, profiles := setupTestServer(t, "")
	ctx := context.Background()

	p, err := profiles.Create(ctx, profile.CreateRequest{Username: "ada", Role: profile.RoleStudent})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := profiles.UnlockAchievement(ctx, p.ID, "hello_world"); err != nil {
		t.Fatalf("UnlockAchievement() error = %v", err)
	}

	out, err := srv.handleLearner(ctx, LearnerInput{LearnerID: p.ID})
	if err != nil {
		t.Fatalf("handleLearner() error = %v", err)
	}
	if out.Username != "ada" || out.Role != "student" {
		t.Errorf("learner = %q %q", out.Username, out.Role)
	}
	if len(out.Achievements) != 1 || out.Achievements[0] != "hello_world" {
		t.Errorf("achievements = %v; want [hello_world]", out.Achievements)
	}
	if out.XP <= 0 {
		t.Errorf("XP = %d; want the achievement reward", out.XP)
	}

	if _, err := srv.handleLearner(ctx, LearnerInput{LearnerID: "nobody"}); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("handleLearner() error = %v; want ErrNotFound", err)
	}
}

func TestHandleLesson(t *testing.T) {
	srv, _ := setupTestServer(t, "")
	ctx := context.Background()

	out, err := srv.handleLesson(ctx, LessonInput{LessonID: "html-basics.lists"})
	if err != nil {
		t.Fatalf("handleLesson() error = %v", err)
	}
	if out.Title != "Lists" || out.Checked {
		t.Errorf("out = %+v; want unchecked Lists lesson", out)
	}

	out, err = srv.handleLesson(ctx, LessonInput{LessonID: "html-basics.lists", Markup: "<ul><li>milk</li></ul>"})
	if err != nil {
		t.Fatalf("handleLesson() error = %v", err)
	}
	if !out.Checked || out.Passed || len(out.Failures) != 1 {
		t.Errorf("out = %+v; want one failure for the missing <ol>", out)
	}

	if _, err := srv.handleLesson(ctx, LessonInput{LessonID: "nope.nope"}); !errors.Is(err, catalog.ErrLessonNotFound) {
		t.Errorf("handleLesson(missing) error = %v; want ErrLessonNotFound", err)
	}
	if _, err := NewServer(Config{}).handleLesson(ctx, LessonInput{LessonID: "x"}); err == nil {
		t.Error("handleLesson() without catalog should fail")
	}
}
