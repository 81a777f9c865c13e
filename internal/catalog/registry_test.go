package catalog

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/gamecodelab/gamecode/internal/preview"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(NewLoader(Builtin()))
	if err := r.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return r
}

func TestRegistry_Lookup(t *testing.T) {
	r := newTestRegistry(t)

	courses, lessons := r.Count()
	if courses != 5 || lessons < 5 {
		t.Errorf("Count() = %d, %d; want 5 courses and at least 5 lessons", courses, lessons)
	}

	c, err := r.Course("css-styling")
	if err != nil {
		t.Fatalf("Course() error = %v", err)
	}
	if c.Level != 2 {
		t.Errorf("Level = %d; want 2", c.Level)
	}

	if _, err := r.Course("cobol"); !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("Course(cobol) error = %v; want ErrCourseNotFound", err)
	}
	if _, err := r.Lesson("html-basics.nope"); !errors.Is(err, ErrLessonNotFound) {
		t.Errorf("Lesson() error = %v; want ErrLessonNotFound", err)
	}
}

func TestRegistry_CoursesIsCopy(t *testing.T) {
	r := newTestRegistry(t)
	got := r.Courses()
	got[0] = nil
	if r.Courses()[0] == nil {
		t.Error("Courses() should return a copy")
	}
}

func TestRegistry_Next(t *testing.T) {
	r := newTestRegistry(t)

	next, err := r.Next("html-basics.hello-html")
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next.ID != "html-basics.text-formatting" {
		t.Errorf("Next() = %s; want html-basics.text-formatting", next.ID)
	}

	next, _ = r.Next("html-basics.tables")
	if next == nil || next.ID != "css-styling.first-css" {
		t.Errorf("Next(last html lesson) = %v; want css-styling.first-css", next)
	}

	next, err = r.Next("projects.personal-homepage")
	if err != nil || next != nil {
		t.Errorf("Next(final) = %v, %v; want nil, nil", next, err)
	}

	if _, err := r.Next("missing.lesson"); !errors.Is(err, ErrLessonNotFound) {
		t.Errorf("Next(missing) error = %v; want ErrLessonNotFound", err)
	}
}

func TestRegistry_Check(t *testing.T) {
	r := newTestRegistry(t)

	res, err := r.Check("css-styling.first-css", preview.Source{Style: "body { background: navy; color: white; }"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.Passed {
		t.Errorf("Check() failures = %+v; want pass", res.Failures)
	}

	if _, err := r.Check("nope.nope", preview.Source{}); !errors.Is(err, ErrLessonNotFound) {
		t.Errorf("Check(missing) error = %v; want ErrLessonNotFound", err)
	}
}

func TestRegistry_LoadRejectsSharedLevel(t *testing.T) {
	r := NewRegistry(NewLoader(fstest.MapFS{
		"a.yaml": {Data: []byte("id: a\nlevel: 1\n")},
		"b.yaml": {Data: []byte("id: b\nlevel: 1\n")},
	}))
	if err := r.Load(); !errors.Is(err, ErrInvalidCourse) {
		t.Errorf("Load() error = %v; want ErrInvalidCourse", err)
	}

	r = NewRegistry(NewLoader(fstest.MapFS{
		"a.yaml": {Data: []byte("id: a\nlevel: 1\n")},
		"b.yaml": {Data: []byte("id: a\nlevel: 2\n")},
	}))
	if err := r.Load(); !errors.Is(err, ErrInvalidCourse) {
		t.Errorf("Load(duplicate id) error = %v; want ErrInvalidCourse", err)
	}
}
