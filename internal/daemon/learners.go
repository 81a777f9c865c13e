package daemon

import (
	"errors"
	"net/http"
	"time"

	"github.com/gamecodelab/gamecode/internal/appreciation"
	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/progression"
	"github.com/gamecodelab/gamecode/internal/storage/local"
)

func (s *Server) handleCreateLearner(w http.ResponseWriter, r *http.Request) {
	var req profile.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.profiles.Create(r.Context(), req)
	if err != nil {
		fail(w, "failed to create learner", err)
		return
	}
	jsonResponse(w, http.StatusCreated, learnerView(p))
}

func (s *Server) handleGetLearner(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "learner not found", err)
		return
	}
	jsonResponse(w, http.StatusOK, learnerView(p))
}

func (s *Server) handleDeleteGuest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.profiles.DeleteGuest(r.Context(), id); err != nil {
		fail(w, "failed to delete guest", err)
		return
	}
	if s.drafts != nil {
		if err := s.drafts.DeleteLearner(id); err != nil {
			s.logger.Warn("failed to delete guest drafts", "learner_id", id, "error", err)
		}
	}
	s.cheers.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req profile.LessonCompletion
	if !decodeJSON(w, r, &req) {
		return
	}

	// Catalog lessons are authoritative for level and difficulty
	if l, ok := s.catalogLesson(req.LessonID); ok {
		req.CourseLevel = l.CourseLevel
		req.Difficulty = l.Difficulty
		req.LevelComplete = l.Last
	}

	id := r.PathValue("id")
	award, err := s.profiles.CompleteLesson(r.Context(), id, req)
	if err != nil {
		fail(w, "failed to complete lesson", err)
		return
	}
	if s.drafts != nil {
		if err := s.drafts.Delete(id, req.LessonID); err != nil && !errors.Is(err, local.ErrNotFound) {
			s.logger.Warn("failed to clear lesson draft", "learner_id", id, "lesson_id", req.LessonID, "error", err)
		}
	}
	jsonResponse(w, http.StatusOK, s.awardView(award))
}

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := s.profiles.Lessons(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "failed to list lessons", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"lessons": nonNil(lessons)})
}

func (s *Server) handleCompleteProject(w http.ResponseWriter, r *http.Request) {
	award, err := s.profiles.CompleteProject(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "failed to complete project", err)
		return
	}
	jsonResponse(w, http.StatusOK, s.awardView(award))
}

func (s *Server) handleLearnerProjects(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.profiles.Get(r.Context(), id); err != nil {
		fail(w, "learner not found", err)
		return
	}
	projects, err := s.projects.ByOwner(r.Context(), id)
	if err != nil {
		fail(w, "failed to list projects", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"projects": nonNil(projects)})
}

func (s *Server) handleDailyLogin(w http.ResponseWriter, r *http.Request) {
	award, err := s.profiles.DailyLogin(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "failed to record login", err)
		return
	}
	jsonResponse(w, http.StatusOK, s.awardView(award))
}

func (s *Server) handleHelpOthers(w http.ResponseWriter, r *http.Request) {
	award, err := s.profiles.HelpOthers(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "failed to record help", err)
		return
	}
	jsonResponse(w, http.StatusOK, s.awardView(award))
}

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	unlocked, err := s.profiles.Achievements(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "failed to list achievements", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"achievements": nonNil(unlocked)})
}

func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	award, err := s.profiles.UnlockAchievement(r.Context(), r.PathValue("id"), req.Code)
	if err != nil {
		fail(w, "failed to unlock achievement", err)
		return
	}
	jsonResponse(w, http.StatusOK, s.awardView(award))
}

func (s *Server) handleTrial(w http.ResponseWriter, r *http.Request) {
	status, err := s.profiles.TrialStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "learner not found", err)
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

func (s *Server) handleMigrateGuest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		jsonError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	guestID := r.PathValue("id")
	p, err := s.profiles.MigrateGuest(r.Context(), guestID, req.UserID)
	if err != nil {
		fail(w, "failed to migrate guest", err)
		return
	}
	if s.drafts != nil {
		if err := s.drafts.Move(guestID, req.UserID); err != nil {
			s.logger.Warn("failed to move guest drafts", "guest_id", guestID, "user_id", req.UserID, "error", err)
		}
	}
	jsonResponse(w, http.StatusOK, learnerView(p))
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		jsonError(w, http.StatusServiceUnavailable, "leaderboard not configured", nil)
		return
	}
	entry, err := s.board.Rank(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, "learner not ranked", err)
		return
	}
	jsonResponse(w, http.StatusOK, entry)
}

// Drafts

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	if !s.requireDrafts(w) {
		return
	}
	drafts, err := s.drafts.List(r.PathValue("id"))
	if err != nil {
		fail(w, "failed to list drafts", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"drafts": nonNil(drafts)})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	if !s.requireDrafts(w) {
		return
	}
	d, err := s.drafts.Load(r.PathValue("id"), r.PathValue("lesson"))
	if err != nil {
		fail(w, "draft not found", err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	if !s.requireDrafts(w) {
		return
	}
	var src preview.Source
	if !decodeJSON(w, r, &src) {
		return
	}

	id := r.PathValue("id")
	if _, err := s.profiles.Get(r.Context(), id); err != nil {
		fail(w, "learner not found", err)
		return
	}

	d := &local.Draft{
		LearnerID: id,
		LessonID:  r.PathValue("lesson"),
		Source:    src,
		SavedAt:   time.Now().UTC(),
	}
	if err := s.drafts.Save(d); err != nil {
		fail(w, "failed to save draft", err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if !s.requireDrafts(w) {
		return
	}
	if err := s.drafts.Delete(r.PathValue("id"), r.PathValue("lesson")); err != nil {
		fail(w, "failed to delete draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireDrafts(w http.ResponseWriter) bool {
	if s.drafts == nil {
		jsonError(w, http.StatusServiceUnavailable, "draft storage not configured", nil)
		return false
	}
	return true
}

// awardView attaches a celebration message when the award earns one
type awardView struct {
	*profile.Award
	Message *appreciation.Message `json:"message,omitempty"`
}

func (s *Server) awardView(a *profile.Award) awardView {
	return awardView{Award: a, Message: s.cheers.CheckAward(a)}
}

// learnerView adds derived progression facts to a profile
func learnerView(p *profile.Profile) map[string]any {
	prog := p.Progression()
	return map[string]any{
		"profile":     p,
		"progression": prog,
		"title":       progression.Title(prog.Level),
	}
}

// nonNil keeps empty lists as [] in JSON
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
