package daemon

import (
	"net/http"
	"strconv"

	"github.com/gamecodelab/gamecode/internal/leaderboard"
	"github.com/gamecodelab/gamecode/internal/project"
)

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var req project.SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = r.Header.Get(LearnerHeader)
	}
	if _, err := s.profiles.Get(r.Context(), req.OwnerID); err != nil {
		fail(w, "owner not found", err)
		return
	}

	p, created, err := s.projects.Save(r.Context(), req)
	if err != nil {
		fail(w, "failed to save project", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		// first_project and friends
		if _, err := s.profiles.SyncAchievements(r.Context(), p.OwnerID); err != nil {
			s.logger.Warn("failed to sync achievements", "learner_id", p.OwnerID, "error", err)
		}
	}
	jsonResponse(w, status, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	sort, err := project.ParseSort(r.URL.Query().Get("sort"))
	if err != nil {
		fail(w, "invalid sort", err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "page must be an integer", err)
		return
	}

	result, err := s.projects.ListPublic(r.Context(), sort, page)
	if err != nil {
		fail(w, "failed to list projects", err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.View(r.Context(), r.PathValue("id"), r.Header.Get(LearnerHeader))
	if err != nil {
		fail(w, "project not found", err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// handleProjectDocument serves a project as a sandboxed page
func (s *Server) handleProjectDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.projects.Document(r.Context(), r.PathValue("id"), r.Header.Get(LearnerHeader))
	if err != nil {
		fail(w, "project not found", err)
		return
	}
	writeSandboxedHTML(w, doc.HTML)
}

// handleLikeProject likes on POST and unlikes on DELETE
func (s *Server) handleLikeProject(w http.ResponseWriter, r *http.Request) {
	learnerID := r.Header.Get(LearnerHeader)
	if learnerID == "" {
		jsonError(w, http.StatusBadRequest, LearnerHeader+" header is required", nil)
		return
	}

	liked := r.Method == http.MethodPost
	p, changed, err := s.projects.SetLike(r.Context(), r.PathValue("id"), learnerID, liked)
	if err != nil {
		fail(w, "failed to update like", err)
		return
	}
	if changed && liked {
		// popular and community_star depend on likes received
		if _, err := s.profiles.SyncAchievements(r.Context(), p.OwnerID); err != nil {
			s.logger.Warn("failed to sync achievements", "learner_id", p.OwnerID, "error", err)
		}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"project_id": p.ID,
		"likes":      p.Likes,
		"liked":      liked,
		"changed":    changed,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		jsonError(w, http.StatusServiceUnavailable, "leaderboard not configured", nil)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "page must be an integer", err)
		return
	}
	size, err := queryInt(r, "size", 20)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "size must be an integer", err)
		return
	}
	if size > leaderboard.MaxPageSize {
		size = leaderboard.MaxPageSize
	}

	result, err := s.board.Page(r.Context(), page, size)
	if err != nil {
		fail(w, "failed to load leaderboard", err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
