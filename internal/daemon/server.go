// Package daemon serves the GameCode HTTP API: learner progression,
// live preview sessions, the AI tutor and the community feed.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamecodelab/gamecode/internal/appreciation"
	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/config"
	"github.com/gamecodelab/gamecode/internal/leaderboard"
	"github.com/gamecodelab/gamecode/internal/llm"
	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/progression"
	"github.com/gamecodelab/gamecode/internal/project"
	"github.com/gamecodelab/gamecode/internal/storage/local"
	"github.com/gamecodelab/gamecode/internal/tutor"
)

// Version is reported by the status endpoint
const Version = "0.1.0"

// maxBodyBytes bounds request bodies; three fragments at the length limit
// in multi-byte runes fit comfortably
const maxBodyBytes = 4 << 20

// Leaderboard is the read side of the XP leaderboard
type Leaderboard interface {
	Page(ctx context.Context, page, size int) (*leaderboard.Page, error)
	Rank(ctx context.Context, learnerID string) (*leaderboard.Entry, error)
}

// Server represents the GameCode daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux
	logger *slog.Logger

	profiles    *profile.Service
	projects    *project.Service
	drafts      *local.DraftStore
	catalog     *catalog.Registry
	tutor       *tutor.Tutor
	llmRegistry *llm.Registry
	board       Leaderboard
	hub         *previewHub
	upgrader    *websocket.Upgrader
	limiter     *RateLimiter
	cheers      *appreciation.Service
	components  map[string]string

	cancel context.CancelFunc
}

// ServerConfig holds the wired services of a server. Catalog, Tutor,
// Leaderboard and Checker are optional.
type ServerConfig struct {
	Config      *config.LocalConfig
	Profiles    *profile.Service
	Projects    *project.Service
	Drafts      *local.DraftStore
	Catalog     *catalog.Registry
	Tutor       *tutor.Tutor
	LLMRegistry *llm.Registry
	Leaderboard Leaderboard
	Checker     preview.ScriptChecker
	Clock       preview.Clock
	Logger      *slog.Logger
	// Components names the backends in use, reported by /v1/status
	Components map[string]string
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("server config is required")
	}
	if cfg.Profiles == nil || cfg.Projects == nil {
		return nil, errors.New("profile and project services are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LLMRegistry == nil {
		cfg.LLMRegistry = llm.NewRegistry()
	}

	s := &Server{
		cfg:         cfg.Config,
		router:      http.NewServeMux(),
		logger:      cfg.Logger,
		profiles:    cfg.Profiles,
		projects:    cfg.Projects,
		drafts:      cfg.Drafts,
		catalog:     cfg.Catalog,
		tutor:       cfg.Tutor,
		llmRegistry: cfg.LLMRegistry,
		board:       cfg.Leaderboard,
		limiter:     NewRateLimiter(time.Hour),
		upgrader:    newUpgrader(cfg.Config.Daemon.Bind, cfg.Config.Daemon.AllowedOrigins),
		cheers:      appreciation.NewService(),
		components:  cfg.Components,
	}
	s.hub = newPreviewHub(preview.Config{
		Debounce: cfg.Config.Debounce(),
		Clock:    cfg.Clock,
		Checker:  cfg.Checker,
		Logger:   cfg.Logger,
	}, cfg.Config.PreviewIdleTimeout(), s.recordPreviewRun, cfg.Logger)

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := recoveryMiddleware(s.logger)(correlationIDMiddleware(loggingMiddleware(s.logger)(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Tutor calls take up to 30s
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Progression
	s.router.HandleFunc("GET /v1/progression", s.handleProgression)
	s.router.HandleFunc("GET /v1/achievements", s.handleAchievementCatalog)

	// Courses
	s.router.HandleFunc("GET /v1/courses", s.handleListCourses)
	s.router.HandleFunc("GET /v1/courses/{id}", s.handleGetCourse)
	s.router.HandleFunc("GET /v1/lessons/{id}", s.handleGetLesson)
	s.router.HandleFunc("GET /v1/lessons/{id}/next", s.handleNextLesson)
	s.router.HandleFunc("POST /v1/lessons/{id}/check", s.handleCheckLesson)

	// Learners
	s.router.HandleFunc("POST /v1/learners", s.handleCreateLearner)
	s.router.HandleFunc("GET /v1/learners/{id}", s.handleGetLearner)
	s.router.HandleFunc("DELETE /v1/learners/{id}", s.handleDeleteGuest)
	s.router.HandleFunc("POST /v1/learners/{id}/lessons", s.handleCompleteLesson)
	s.router.HandleFunc("GET /v1/learners/{id}/lessons", s.handleListLessons)
	s.router.HandleFunc("POST /v1/learners/{id}/projects", s.handleCompleteProject)
	s.router.HandleFunc("GET /v1/learners/{id}/projects", s.handleLearnerProjects)
	s.router.HandleFunc("POST /v1/learners/{id}/login", s.handleDailyLogin)
	s.router.HandleFunc("POST /v1/learners/{id}/help", s.handleHelpOthers)
	s.router.HandleFunc("GET /v1/learners/{id}/achievements", s.handleListAchievements)
	s.router.HandleFunc("POST /v1/learners/{id}/achievements", s.handleUnlockAchievement)
	s.router.HandleFunc("GET /v1/learners/{id}/trial", s.handleTrial)
	s.router.HandleFunc("POST /v1/learners/{id}/migrate", s.handleMigrateGuest)
	s.router.HandleFunc("GET /v1/learners/{id}/rank", s.handleRank)

	// Editor drafts
	s.router.HandleFunc("GET /v1/learners/{id}/drafts", s.handleListDrafts)
	s.router.HandleFunc("GET /v1/learners/{id}/drafts/{lesson}", s.handleGetDraft)
	s.router.HandleFunc("PUT /v1/learners/{id}/drafts/{lesson}", s.handleSaveDraft)
	s.router.HandleFunc("DELETE /v1/learners/{id}/drafts/{lesson}", s.handleDeleteDraft)

	// Preview
	s.router.HandleFunc("POST /v1/preview/documents", s.handleAssemble)
	s.router.HandleFunc("POST /v1/preview/sessions", s.handleCreatePreviewSession)
	s.router.HandleFunc("GET /v1/preview/sessions/{id}", s.handleGetPreviewSession)
	s.router.HandleFunc("DELETE /v1/preview/sessions/{id}", s.handleClosePreviewSession)
	s.router.HandleFunc("GET /v1/preview/sessions/{id}/frame", s.handlePreviewFrame)
	s.router.HandleFunc("GET /v1/preview/sessions/{id}/ws", s.handlePreviewSocket)

	// Tutor, rate limited per role
	limit := tutorRateLimit(s.limiter, s.cfg.RateLimit, s.logger)
	s.router.Handle("POST /v1/tutor/explain", limit(http.HandlerFunc(s.handleExplain)))
	s.router.Handle("POST /v1/tutor/grade", limit(http.HandlerFunc(s.handleGrade)))
	s.router.Handle("POST /v1/tutor/diagnose", limit(http.HandlerFunc(s.handleDiagnose)))
	s.router.Handle("POST /v1/tutor/hint", limit(http.HandlerFunc(s.handleHint)))
	s.router.Handle("POST /v1/tutor/exercise", limit(http.HandlerFunc(s.handleExercise)))
	s.router.Handle("POST /v1/tutor/chat", limit(http.HandlerFunc(s.handleChat)))

	// Community
	s.router.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	s.router.HandleFunc("POST /v1/projects", s.handleSaveProject)
	s.router.HandleFunc("GET /v1/projects", s.handleListProjects)
	s.router.HandleFunc("GET /v1/projects/{id}", s.handleGetProject)
	s.router.HandleFunc("GET /v1/projects/{id}/document", s.handleProjectDocument)
	s.router.HandleFunc("POST /v1/projects/{id}/like", s.handleLikeProject)
	s.router.HandleFunc("DELETE /v1/projects/{id}/like", s.handleLikeProject)
}

// Handler returns the full middleware chain, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.limiter.Run(ctx, 10*time.Minute)
	go s.hub.run(ctx, time.Minute)

	s.logger.Info("starting gamecode daemon",
		"addr", s.server.Addr,
		"llm_providers", s.llmRegistry.List(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes preview sessions
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()

	return s.server.Shutdown(ctx)
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":          "running",
		"version":         Version,
		"llm_providers":   s.llmRegistry.List(),
		"tutor":           s.tutor != nil,
		"courses":         s.catalog != nil,
		"leaderboard":     s.board != nil,
		"preview_session": s.hub.count(),
		"components":      s.components,
	})
}

func (s *Server) handleProgression(w http.ResponseWriter, r *http.Request) {
	xp, err := strconv.Atoi(r.URL.Query().Get("xp"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "xp must be an integer", err)
		return
	}

	p := progression.Resolve(xp)
	jsonResponse(w, http.StatusOK, map[string]any{
		"xp":          max(xp, 0),
		"progression": p,
		"title":       progression.Title(p.Level),
		"max_level":   p.IsMaxLevel(),
	})
}

func (s *Server) handleAchievementCatalog(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"achievements": progression.Achievements(),
	})
}

// Helper functions

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	jsonResponse(w, status, response)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, profile.ErrNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, local.ErrNotFound),
		errors.Is(err, leaderboard.ErrNotRanked),
		errors.Is(err, errSessionNotFound),
		errors.Is(err, catalog.ErrCourseNotFound),
		errors.Is(err, catalog.ErrLessonNotFound),
		errors.Is(err, progression.ErrUnknownAchievement):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrAlreadyExists),
		errors.Is(err, profile.ErrAlreadyUnlocked):
		return http.StatusConflict
	case errors.Is(err, profile.ErrTrialExpired),
		errors.Is(err, project.ErrNotOwner),
		errors.Is(err, project.ErrNotPublic):
		return http.StatusForbidden
	case errors.Is(err, preview.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, preview.ErrSourceTooLong),
		errors.Is(err, tutor.ErrCodeTooLong):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, profile.ErrInvalidRole),
		errors.Is(err, profile.ErrNotGuest),
		errors.Is(err, profile.ErrInvalidScore),
		errors.Is(err, profile.ErrInvalidCompletion),
		errors.Is(err, profile.ErrUsernameRequired),
		errors.Is(err, progression.ErrUnknownDifficulty),
		errors.Is(err, project.ErrTitleMissing),
		errors.Is(err, project.ErrTitleTooLong),
		errors.Is(err, project.ErrInvalidSort),
		errors.Is(err, project.ErrInvalidMeta),
		errors.Is(err, local.ErrInvalidKey),
		errors.Is(err, leaderboard.ErrInvalidPage),
		errors.Is(err, tutor.ErrMissingField),
		errors.Is(err, llm.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrNoDefaultProvider),
		errors.Is(err, llm.ErrProviderNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail writes err with the status its kind maps to
func fail(w http.ResponseWriter, message string, err error) {
	jsonError(w, statusFor(err), message, err)
}
