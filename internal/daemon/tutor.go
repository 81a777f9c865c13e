package daemon

import (
	"net/http"

	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/llm"
	"github.com/gamecodelab/gamecode/internal/tutor"
)

// requireTutor reports 503 when no LLM provider is configured
func (s *Server) requireTutor(w http.ResponseWriter) bool {
	if s.tutor == nil {
		jsonError(w, http.StatusServiceUnavailable, "tutor not configured", llm.ErrNoDefaultProvider)
		return false
	}
	return true
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	if !s.requireTutor(w) {
		return
	}
	var req tutor.ExplainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	text, err := s.tutor.Explain(r.Context(), req)
	if err != nil {
		fail(w, "explain failed", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"explanation": text})
}

// handleGrade scores code. With a learner id a high score earns bonus
// XP; the default score is reported when the model gave none.
func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	if !s.requireTutor(w) {
		return
	}
	var req struct {
		tutor.GradeRequest
		LearnerID string `json:"learner_id,omitempty"`
		LessonID  string `json:"lesson_id,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	lesson, known := s.catalogLesson(req.LessonID)
	if known && req.Requirements == "" {
		req.Requirements = lesson.Criteria()
	}

	result, err := s.tutor.Grade(r.Context(), req.GradeRequest)
	if err != nil {
		fail(w, "grading failed", err)
		return
	}

	score := result.ScoreOr(tutor.DefaultScore)
	resp := map[string]any{
		"score":       score,
		"scored":      result.Score != nil,
		"suggestions": nonNil(result.Suggestions),
		"feedback":    result.Raw,
	}
	if known {
		resp["lesson_id"] = lesson.ID
		resp["passed"] = catalog.Passes(score)
	}

	if req.LearnerID != "" && result.Score != nil {
		award, err := s.profiles.AwardGradeBonus(r.Context(), req.LearnerID, score)
		if err != nil {
			s.logger.Warn("failed to award grade bonus",
				"learner_id", req.LearnerID,
				"score", score,
				"error", err,
			)
		} else {
			resp["award"] = s.awardView(award)
		}
	}

	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	if !s.requireTutor(w) {
		return
	}
	var req tutor.DiagnoseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := s.tutor.Diagnose(r.Context(), req)
	if err != nil {
		fail(w, "diagnosis failed", err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	if !s.requireTutor(w) {
		return
	}
	var req tutor.HintRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	hint, err := s.tutor.Hint(r.Context(), req)
	if err != nil {
		fail(w, "hint failed", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"hint": hint})
}

func (s *Server) handleExercise(w http.ResponseWriter, r *http.Request) {
	if !s.requireTutor(w) {
		return
	}
	var req tutor.ExerciseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ex, err := s.tutor.GenerateExercise(r.Context(), req)
	if err != nil {
		fail(w, "exercise generation failed", err)
		return
	}
	jsonResponse(w, http.StatusOK, ex)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.requireTutor(w) {
		return
	}
	var req struct {
		Message string        `json:"message"`
		History []llm.Message `json:"history,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := s.tutor.Chat(r.Context(), req.Message, req.History)
	if err != nil {
		fail(w, "chat failed", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"reply": reply})
}
