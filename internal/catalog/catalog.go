// Package catalog holds the course and lesson catalog: five course levels
// from HTML basics to a capstone project, each lesson with starter code,
// hints and the structural checks a submission has to pass.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/progression"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrInvalidCourse  = errors.New("invalid course")
)

// PassingScore is the lowest tutor grade that passes a lesson
const PassingScore = 60

// LessonKind separates guided exercises from open projects
type LessonKind string

const (
	KindCoding  LessonKind = "coding"
	KindProject LessonKind = "project"
)

// RuleType names a structural check
type RuleType string

const (
	RuleContainsTag RuleType = "contains_tag"
	RuleContainsCSS RuleType = "contains_css"
	RuleContainsJS  RuleType = "contains_js"
)

// Rule is one structural check on a submission
type Rule struct {
	Type     RuleType `json:"type"`
	Tag      string   `json:"tag,omitempty"`
	Property string   `json:"property,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Message  string   `json:"message"`

	re *regexp.Regexp
}

// matcher validates the rule and builds its pattern
func (r *Rule) matcher() (*regexp.Regexp, error) {
	var expr string
	switch r.Type {
	case RuleContainsTag:
		if r.Tag == "" {
			return nil, fmt.Errorf("%w: %s rule needs a tag", ErrInvalidCourse, r.Type)
		}
		expr = `(?i)<` + regexp.QuoteMeta(r.Tag) + `[\s/>]`
	case RuleContainsCSS:
		if r.Property == "" {
			return nil, fmt.Errorf("%w: %s rule needs a property", ErrInvalidCourse, r.Type)
		}
		// "background" is satisfied by background-color too
		expr = `(?i)(^|[\s{;"'])` + regexp.QuoteMeta(r.Property) + `[\w-]*\s*:`
	case RuleContainsJS:
		if r.Pattern == "" {
			return nil, fmt.Errorf("%w: %s rule needs a pattern", ErrInvalidCourse, r.Type)
		}
		expr = regexp.QuoteMeta(r.Pattern)
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidCourse, r.Type)
	}
	return regexp.MustCompile(expr), nil
}

// Satisfied reports whether src passes the rule. CSS may live in the
// stylesheet or inline in the markup.
func (r *Rule) Satisfied(src preview.Source) bool {
	re := r.re
	if re == nil {
		var err error
		if re, err = r.matcher(); err != nil {
			return false
		}
	}
	switch r.Type {
	case RuleContainsTag:
		return re.MatchString(src.Markup)
	case RuleContainsCSS:
		return re.MatchString(src.Style) || re.MatchString(src.Markup)
	case RuleContainsJS:
		return re.MatchString(src.Script) || re.MatchString(src.Markup)
	}
	return false
}

// Lesson is one step of a course
type Lesson struct {
	ID           string                 `json:"id"`
	CourseID     string                 `json:"course_id"`
	CourseLevel  int                    `json:"course_level"`
	Order        int                    `json:"order"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Kind         LessonKind             `json:"kind"`
	Difficulty   progression.Difficulty `json:"difficulty"`
	Reward       progression.Reward     `json:"reward"`
	Instructions string                 `json:"instructions"`
	Starter      preview.Source         `json:"starter"`
	Rules        []Rule                 `json:"rules"`
	Hints        []string               `json:"hints"`
	// Last marks the final lesson of its course level
	Last bool `json:"last"`
}

// Course is one level of the curriculum
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Level       int       `json:"level"`
	Lessons     []*Lesson `json:"lessons"`
}

// Failure is a rule a submission did not satisfy
type Failure struct {
	Rule    RuleType `json:"rule"`
	Message string   `json:"message"`
}

// CheckResult is the outcome of checking a submission against a lesson
type CheckResult struct {
	LessonID string    `json:"lesson_id"`
	Passed   bool      `json:"passed"`
	Checked  int       `json:"checked"`
	Failures []Failure `json:"failures"`
}

// Check runs every rule of the lesson against src
func (l *Lesson) Check(src preview.Source) CheckResult {
	res := CheckResult{LessonID: l.ID, Checked: len(l.Rules), Failures: []Failure{}}
	for i := range l.Rules {
		rule := &l.Rules[i]
		if !rule.Satisfied(src) {
			res.Failures = append(res.Failures, Failure{Rule: rule.Type, Message: rule.Message})
		}
	}
	res.Passed = len(res.Failures) == 0
	return res
}

// Criteria renders the rules as grading criteria for the tutor
func (l *Lesson) Criteria() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(l.Instructions))
	if len(l.Rules) > 0 {
		b.WriteString("\n\nRequired:")
		for _, r := range l.Rules {
			b.WriteString("\n- ")
			b.WriteString(r.Message)
		}
	}
	return b.String()
}

// Passes reports whether a graded score passes the lesson
func Passes(score int) bool {
	return score >= PassingScore
}
