package daemon

import (
	"net/http"

	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/preview"
)

type lessonSummary struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Kind       catalog.LessonKind `json:"kind"`
	Difficulty string             `json:"difficulty"`
	XP         int                `json:"xp"`
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}

	courses := s.catalog.Courses()
	out := make([]map[string]any, 0, len(courses))
	for _, c := range courses {
		lessons := make([]lessonSummary, 0, len(c.Lessons))
		for _, l := range c.Lessons {
			lessons = append(lessons, lessonSummary{
				ID:         l.ID,
				Title:      l.Title,
				Kind:       l.Kind,
				Difficulty: string(l.Difficulty),
				XP:         l.Reward.XP,
			})
		}
		out = append(out, map[string]any{
			"id":          c.ID,
			"title":       c.Title,
			"description": c.Description,
			"level":       c.Level,
			"lessons":     lessons,
		})
	}
	jsonResponse(w, http.StatusOK, map[string]any{"courses": out})
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	c, err := s.catalog.Course(r.PathValue("id"))
	if err != nil {
		fail(w, "failed to get course", err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	l, err := s.catalog.Lesson(r.PathValue("id"))
	if err != nil {
		fail(w, "failed to get lesson", err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleNextLesson(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	next, err := s.catalog.Next(r.PathValue("id"))
	if err != nil {
		fail(w, "failed to find next lesson", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"next":     next,
		"finished": next == nil,
	})
}

func (s *Server) handleCheckLesson(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	var src preview.Source
	if !decodeJSON(w, r, &src) {
		return
	}
	if err := src.Validate(); err != nil {
		fail(w, "submission rejected", err)
		return
	}

	res, err := s.catalog.Check(r.PathValue("id"), src)
	if err != nil {
		fail(w, "failed to check lesson", err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) requireCatalog(w http.ResponseWriter) bool {
	if s.catalog == nil {
		jsonError(w, http.StatusServiceUnavailable, "course catalog not configured", nil)
		return false
	}
	return true
}

// catalogLesson returns the catalog entry for a lesson, if there is one
func (s *Server) catalogLesson(lessonID string) (*catalog.Lesson, bool) {
	if s.catalog == nil {
		return nil, false
	}
	l, err := s.catalog.Lesson(lessonID)
	if err != nil {
		return nil, false
	}
	return l, true
}
