package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/progression"
)

//go:embed courses/*.yaml
var builtin embed.FS

// Builtin returns the course files shipped with the binary
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "courses")
	if err != nil {
		panic(err)
	}
	return sub
}

// CourseFile represents the YAML structure for a course
type CourseFile struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Level       int          `yaml:"level"`
	Lessons     []LessonFile `yaml:"lessons"`
}

// LessonFile represents the YAML structure for a lesson
type LessonFile struct {
	Slug         string `yaml:"slug"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Difficulty   string `yaml:"difficulty"`
	Kind         string `yaml:"kind"`
	Instructions string `yaml:"instructions"`
	Starter      struct {
		HTML string `yaml:"html"`
		CSS  string `yaml:"css"`
		JS   string `yaml:"js"`
	} `yaml:"starter"`
	Rules []struct {
		Type     string `yaml:"type"`
		Tag      string `yaml:"tag"`
		Property string `yaml:"property"`
		Pattern  string `yaml:"pattern"`
		Message  string `yaml:"message"`
	} `yaml:"rules"`
	Hints []string `yaml:"hints"`
}

// Loader handles loading courses from YAML files
type Loader struct {
	fsys fs.FS
}

// NewLoader creates a loader over a directory of course files
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys}
}

// LoadCourse loads a single course file
func (l *Loader) LoadCourse(name string) (*Course, error) {
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read course file: %w", err)
	}

	var file CourseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse course file %s: %w", name, err)
	}
	return buildCourse(file)
}

// LoadAll loads every *.yaml course, ordered by level
func (l *Loader) LoadAll() ([]*Course, error) {
	names, err := fs.Glob(l.fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list course files: %w", err)
	}

	courses := make([]*Course, 0, len(names))
	for _, name := range names {
		course, err := l.LoadCourse(name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path.Base(name), err)
		}
		courses = append(courses, course)
	}

	slices.SortFunc(courses, func(a, b *Course) int { return a.Level - b.Level })
	return courses, nil
}

func buildCourse(file CourseFile) (*Course, error) {
	if file.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidCourse)
	}
	if file.Level < 1 || file.Level > progression.CourseLevels {
		return nil, fmt.Errorf("%w: %s has level %d", ErrInvalidCourse, file.ID, file.Level)
	}

	course := &Course{
		ID:          file.ID,
		Title:       file.Title,
		Description: file.Description,
		Level:       file.Level,
		Lessons:     make([]*Lesson, 0, len(file.Lessons)),
	}

	seen := make(map[string]bool, len(file.Lessons))
	for i, lf := range file.Lessons {
		if lf.Slug == "" {
			return nil, fmt.Errorf("%w: %s lesson %d has no slug", ErrInvalidCourse, file.ID, i+1)
		}
		if seen[lf.Slug] {
			return nil, fmt.Errorf("%w: %s repeats lesson %s", ErrInvalidCourse, file.ID, lf.Slug)
		}
		seen[lf.Slug] = true

		difficulty := progression.Difficulty(lf.Difficulty)
		reward, err := progression.LessonReward(difficulty)
		if err != nil {
			return nil, fmt.Errorf("lesson %s/%s: %w", file.ID, lf.Slug, err)
		}

		kind := LessonKind(lf.Kind)
		switch kind {
		case "":
			kind = KindCoding
		case KindCoding, KindProject:
		default:
			return nil, fmt.Errorf("%w: lesson %s/%s has kind %q", ErrInvalidCourse, file.ID, lf.Slug, lf.Kind)
		}

		lesson := &Lesson{
			ID:           LessonID(file.ID, lf.Slug),
			CourseID:     file.ID,
			CourseLevel:  file.Level,
			Order:        i + 1,
			Title:        lf.Title,
			Description:  lf.Description,
			Kind:         kind,
			Difficulty:   difficulty,
			Reward:       reward,
			Instructions: lf.Instructions,
			Starter: preview.Source{
				Markup: lf.Starter.HTML,
				Style:  lf.Starter.CSS,
				Script: lf.Starter.JS,
			},
			Rules: make([]Rule, len(lf.Rules)),
			Hints: lf.Hints,
		}
		for j, rf := range lf.Rules {
			rule := Rule{
				Type:     RuleType(rf.Type),
				Tag:      rf.Tag,
				Property: rf.Property,
				Pattern:  rf.Pattern,
				Message:  rf.Message,
			}
			re, err := rule.matcher()
			if err != nil {
				return nil, fmt.Errorf("lesson %s: %w", lesson.ID, err)
			}
			rule.re = re
			lesson.Rules[j] = rule
		}
		course.Lessons = append(course.Lessons, lesson)
	}

	if n := len(course.Lessons); n > 0 {
		course.Lessons[n-1].Last = true
	}
	return course, nil
}

// LessonID joins a course id and lesson slug. The dot keeps the id
// usable as a draft file name.
func LessonID(courseID, slug string) string {
	return courseID + "." + slug
}
