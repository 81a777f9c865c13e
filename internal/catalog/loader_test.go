package catalog

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/gamecodelab/gamecode/internal/progression"
)

const testCourse = `id: basics
title: Basics
level: 1
lessons:
  - slug: first
    title: First
    difficulty: easy
    instructions: write a heading
    starter:
      html: <body></body>
    rules:
      - type: contains_tag
        tag: h1
        message: add a heading
    hints:
      - use h1
  - slug: second
    title: Second
    difficulty: hard
    kind: project
`

func TestLoader_LoadCourse(t *testing.T) {
	loader := NewLoader(fstest.MapFS{
		"basics.yaml": {Data: []byte(testCourse)},
	})

	course, err := loader.LoadCourse("basics.yaml")
	if err != nil {
		t.Fatalf("LoadCourse() error = %v", err)
	}

	if course.ID != "basics" || course.Level != 1 {
		t.Errorf("course = %s level %d; want basics level 1", course.ID, course.Level)
	}
	if len(course.Lessons) != 2 {
		t.Fatalf("len(Lessons) = %d; want 2", len(course.Lessons))
	}

	first := course.Lessons[0]
	if first.ID != "basics.first" {
		t.Errorf("ID = %q; want basics.first", first.ID)
	}
	if first.Kind != KindCoding {
		t.Errorf("Kind = %q; want coding by default", first.Kind)
	}
	if first.Reward != (progression.Reward{XP: 10, Coins: 5}) {
		t.Errorf("Reward = %+v; want easy lesson reward", first.Reward)
	}
	if first.Starter.Markup != "<body></body>" {
		t.Errorf("Starter.Markup = %q", first.Starter.Markup)
	}
	if first.Rules[0].re == nil {
		t.Error("rules should be compiled at load")
	}
	if first.Last {
		t.Error("first lesson should not be last")
	}

	second := course.Lessons[1]
	if second.Order != 2 || !second.Last || second.Kind != KindProject {
		t.Errorf("second = order %d last %v kind %s", second.Order, second.Last, second.Kind)
	}
}

func TestLoader_LoadCourseErrors(t *testing.T) {
	tests := map[string]string{
		"no id":          "title: x\nlevel: 1\n",
		"bad level":      "id: x\nlevel: 9\n",
		"no slug":        "id: x\nlevel: 1\nlessons:\n  - title: a\n    difficulty: easy\n",
		"repeated slug":  "id: x\nlevel: 1\nlessons:\n  - slug: a\n    difficulty: easy\n  - slug: a\n    difficulty: easy\n",
		"bad kind":       "id: x\nlevel: 1\nlessons:\n  - slug: a\n    difficulty: easy\n    kind: quiz\n",
		"bad rule":       "id: x\nlevel: 1\nlessons:\n  - slug: a\n    difficulty: easy\n    rules:\n      - type: contains_tag\n",
		"bad difficulty": "id: x\nlevel: 1\nlessons:\n  - slug: a\n    difficulty: brutal\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			loader := NewLoader(fstest.MapFS{"c.yaml": {Data: []byte(data)}})
			_, err := loader.LoadCourse("c.yaml")
			if err == nil {
				t.Fatal("LoadCourse() error = nil; want error")
			}
			if name == "bad difficulty" {
				if !errors.Is(err, progression.ErrUnknownDifficulty) {
					t.Errorf("error = %v; want ErrUnknownDifficulty", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidCourse) {
				t.Errorf("error = %v; want ErrInvalidCourse", err)
			}
		})
	}
}

func TestLoader_LoadCourseMalformed(t *testing.T) {
	loader := NewLoader(fstest.MapFS{"c.yaml": {Data: []byte("id: [")}})
	if _, err := loader.LoadCourse("c.yaml"); err == nil {
		t.Error("LoadCourse() should fail on malformed YAML")
	}
	if _, err := loader.LoadCourse("missing.yaml"); err == nil {
		t.Error("LoadCourse() should fail on a missing file")
	}
}

func TestLoader_LoadAllOrdersByLevel(t *testing.T) {
	loader := NewLoader(fstest.MapFS{
		"a.yaml":    {Data: []byte("id: later\nlevel: 2\n")},
		"b.yaml":    {Data: []byte("id: sooner\nlevel: 1\n")},
		"notes.txt": {Data: []byte("ignored")},
	})

	courses, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("len(courses) = %d; want 2", len(courses))
	}
	if courses[0].ID != "sooner" || courses[1].ID != "later" {
		t.Errorf("order = %s, %s; want sooner, later", courses[0].ID, courses[1].ID)
	}
}

func TestBuiltin(t *testing.T) {
	courses, err := NewLoader(Builtin()).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(courses) != progression.CourseLevels {
		t.Fatalf("len(courses) = %d; want %d", len(courses), progression.CourseLevels)
	}
	for i, c := range courses {
		if c.Level != i+1 {
			t.Errorf("courses[%d].Level = %d; want %d", i, c.Level, i+1)
		}
		if len(c.Lessons) == 0 {
			t.Errorf("course %s has no lessons", c.ID)
		}
	}

	hello := courses[0].Lessons[0]
	if hello.ID != "html-basics.hello-html" {
		t.Errorf("first lesson = %q; want html-basics.hello-html", hello.ID)
	}
	if hello.Check(hello.Starter).Passed {
		t.Error("starter code should not pass the first lesson")
	}
}
