package tutor

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	totalPattern      = regexp.MustCompile(`(?i)(?:总分|total score)\s*[：:]\s*(\d+)`)
	scorePattern      = regexp.MustCompile(`(?im)^[^\S\n]*(?:\*\*)?score(?:\*\*)?\s*[：:]\s*(\d+)`)
	suggestionPattern = regexp.MustCompile(`(?m)^\s*\d+[.)][^\S\n]*(.+?)\s*$`)
	fencePattern      = regexp.MustCompile("(?s)```[\\w-]*\\n(.+?)\\n```")
	problemPattern    = regexp.MustCompile(`(?im)^[^\S\n]*(?:\d+[.)][^\S\n]*)?(?:\*\*)?(?:问题|problem)[^:：\n]*[:：][^\S\n]*(.+)$`)
	fixPattern        = regexp.MustCompile(`(?im)^[^\S\n]*(?:\d+[.)][^\S\n]*)?(?:\*\*)?(?:修复|fix|solution)[^:：\n]*[:：][^\S\n]*(.+)$`)
	titlePattern      = regexp.MustCompile(`(?im)(?:标题|title)[^:：\n]*[:：][^\S\n]*(.+)$`)
)

// DefaultScore is reported when a grade response carries no readable score.
const DefaultScore = 70

// GradeResult is a parsed grading response. Score is nil when the model
// did not state one.
type GradeResult struct {
	Raw         string   `json:"raw"`
	Score       *int     `json:"score,omitempty"`
	Suggestions []string `json:"suggestions"`
}

// ScoreOr returns the parsed score or fallback
func (g *GradeResult) ScoreOr(fallback int) int {
	if g.Score == nil {
		return fallback
	}
	return *g.Score
}

// ParseGrade extracts the total score and the numbered suggestions. A bare
// "Score:" line counts only when no total is stated, since sub-scores such
// as "Style score:" may come first.
func ParseGrade(raw string) *GradeResult {
	res := &GradeResult{Raw: raw, Suggestions: []string{}}

	m := totalPattern.FindStringSubmatch(raw)
	if m == nil {
		m = scorePattern.FindStringSubmatch(raw)
	}
	if m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			n = min(100, max(0, n))
			res.Score = &n
		}
	}

	for _, m := range suggestionPattern.FindAllStringSubmatch(raw, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			res.Suggestions = append(res.Suggestions, s)
		}
	}
	return res
}

// Diagnosis is a parsed diagnose response; empty fields were not found
type Diagnosis struct {
	Raw       string `json:"raw"`
	Problem   string `json:"problem,omitempty"`
	Solution  string `json:"solution,omitempty"`
	FixedCode string `json:"fixed_code,omitempty"`
}

// ParseDiagnosis pulls the problem, fix and first fenced code block
func ParseDiagnosis(raw string) *Diagnosis {
	d := &Diagnosis{Raw: raw}
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		d.FixedCode = strings.TrimSpace(m[1])
	}
	prose := fencePattern.ReplaceAllString(raw, "")
	if m := problemPattern.FindStringSubmatch(prose); m != nil {
		d.Problem = cleanLine(m[1])
	}
	if m := fixPattern.FindStringSubmatch(prose); m != nil {
		d.Solution = cleanLine(m[1])
	}
	return d
}

// Exercise is a generated practice task
type Exercise struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StarterCode string   `json:"starter_code"`
	Hints       []string `json:"hints"`
}

// ParseExercise reads the title line; Title is empty when none was found
func ParseExercise(raw string) *Exercise {
	ex := &Exercise{Description: raw}
	if m := titlePattern.FindStringSubmatch(raw); m != nil {
		ex.Title = cleanLine(m[1])
	}
	return ex
}

func cleanLine(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*"))
}
