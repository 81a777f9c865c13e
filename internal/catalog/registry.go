package catalog

import (
	"fmt"
	"sync"

	"github.com/gamecodelab/gamecode/internal/preview"
)

// Registry provides access to courses and lessons
type Registry struct {
	loader  *Loader
	mu      sync.RWMutex
	courses []*Course
	byID    map[string]*Course
	lessons map[string]*Lesson
}

// NewRegistry creates a new course registry
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:  loader,
		byID:    make(map[string]*Course),
		lessons: make(map[string]*Lesson),
	}
}

// Load loads all courses into memory, replacing what was loaded before.
// Course levels must be distinct.
func (r *Registry) Load() error {
	courses, err := r.loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load courses: %w", err)
	}

	byID := make(map[string]*Course, len(courses))
	lessons := make(map[string]*Lesson)
	levels := make(map[int]string, len(courses))
	for _, c := range courses {
		if _, dup := byID[c.ID]; dup {
			return fmt.Errorf("%w: duplicate course %s", ErrInvalidCourse, c.ID)
		}
		if other, dup := levels[c.Level]; dup {
			return fmt.Errorf("%w: %s and %s share level %d", ErrInvalidCourse, other, c.ID, c.Level)
		}
		byID[c.ID] = c
		levels[c.Level] = c.ID
		for _, l := range c.Lessons {
			lessons[l.ID] = l
		}
	}

	r.mu.Lock()
	r.courses = courses
	r.byID = byID
	r.lessons = lessons
	r.mu.Unlock()
	return nil
}

// Courses returns every course ordered by level
func (r *Registry) Courses() []*Course {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Course(nil), r.courses...)
}

// Course returns a course by ID
func (r *Registry) Course(id string) (*Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, id)
	}
	return c, nil
}

// Lesson returns a lesson by ID
func (r *Registry) Lesson(id string) (*Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lessons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	return l, nil
}

// Next returns the lesson after id, crossing into the next course level.
// It returns nil after the final lesson.
func (r *Registry) Next(id string) (*Lesson, error) {
	l, err := r.Lesson(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, c := range r.courses {
		if c.ID != l.CourseID {
			continue
		}
		if l.Order < len(c.Lessons) {
			return c.Lessons[l.Order], nil
		}
		for _, next := range r.courses[i+1:] {
			if len(next.Lessons) > 0 {
				return next.Lessons[0], nil
			}
		}
	}
	return nil, nil
}

// Check runs a lesson's rules against src
func (r *Registry) Check(id string, src preview.Source) (CheckResult, error) {
	l, err := r.Lesson(id)
	if err != nil {
		return CheckResult{}, err
	}
	return l.Check(src), nil
}

// Count returns the number of courses and lessons loaded
func (r *Registry) Count() (courses, lessons int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.courses), len(r.lessons)
}
