package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/gamecodelab/gamecode/internal/catalog"
	"github.com/gamecodelab/gamecode/internal/preview"
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/progression"
	"github.com/gamecodelab/gamecode/internal/tutor"
)

// ErrTutorUnavailable is returned by tutor tools when no LLM provider is set up
var ErrTutorUnavailable = errors.New("tutor not configured, set DEEPSEEK_API_KEY or OPENAI_API_KEY")

// Server exposes GameCode tools to editor agents over MCP
type Server struct {
	mcpServer *server.Server
	tutor     *tutor.Tutor
	profiles  *profile.Service
	courses   *catalog.Registry
}

// Config contains configuration for the MCP server. Every service is
// optional; tools that need a missing one return an error.
type Config struct {
	Tutor    *tutor.Tutor
	Profiles *profile.Service
	Courses  *catalog.Registry
}

// NewServer creates a new MCP server for GameCode
func NewServer(cfg Config) *Server {
	s := &Server{
		tutor:    cfg.Tutor,
		profiles: cfg.Profiles,
		courses:  cfg.Courses,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "gamecode",
		Version: "0.1.0",
	}, server.WithInstructions(`
GameCode teaches HTML, CSS and JavaScript through levelled lessons.

Available tools:
- gamecode_level: Resolve an XP total to level, title and progress
- gamecode_preview: Assemble markup, style and script into a sandboxed page
- gamecode_explain: Explain a piece of learner code
- gamecode_grade: Score learner code against requirements (0-100)
- gamecode_hint: Nudge a learner toward a solution without giving it away
- gamecode_learner: Show a learner's level, XP and achievements
- gamecode_lesson: Show a lesson and check code against its requirements
`))

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("gamecode_level").
		Description("Resolve a total XP value to level, title and progress toward the next level.").
		Handler(s.handleLevel)

	s.mcpServer.Tool("gamecode_preview").
		Description("Assemble HTML, CSS and JavaScript into a single sandboxed preview document.").
		Handler(s.handlePreview)

	s.mcpServer.Tool("gamecode_explain").
		Description("Explain what a piece of HTML, CSS or JavaScript does, for a beginner.").
		Handler(s.handleExplain)

	s.mcpServer.Tool("gamecode_grade").
		Description("Grade code against requirements and list suggestions.").
		Handler(s.handleGrade)

	s.mcpServer.Tool("gamecode_hint").
		Description("Give a hint for a task without revealing the full answer.").
		Handler(s.handleHint)

	s.mcpServer.Tool("gamecode_learner").
		Description("Show a learner's progression and unlocked achievements.").
		Handler(s.handleLearner)

	s.mcpServer.Tool("gamecode_lesson").
		Description("Show a lesson's instructions and hints. With code, also check it against the lesson's requirements.").
		Handler(s.handleLesson)
}

type LevelInput struct {
	XP int `json:"xp" jsonschema:"description=Total accumulated XP"`
}

type LevelOutput struct {
	Level         int     `json:"level"`
	Title         string  `json:"title"`
	XPIntoLevel   int     `json:"xp_into_level"`
	XPToNextLevel int     `json:"xp_to_next_level"`
	Progress      float64 `json:"progress"`
	MaxLevel      bool    `json:"max_level"`
}

type PreviewInput struct {
	Markup string `json:"markup,omitempty" jsonschema:"description=HTML body content"`
	Style  string `json:"style,omitempty" jsonschema:"description=CSS rules"`
	Script string `json:"script,omitempty" jsonschema:"description=JavaScript to run after the markup"`
}

type PreviewOutput struct {
	HTML    string `json:"html"`
	Sandbox string `json:"sandbox"`
	CSP     string `json:"csp"`
}

type CodeInput struct {
	Code     string `json:"code" jsonschema:"description=Learner code"`
	Language string `json:"language" jsonschema:"description=Code language,enum=html,enum=css,enum=javascript"`
	Context  string `json:"context,omitempty" jsonschema:"description=Lesson or question context"`
}

type TextOutput struct {
	Content string `json:"content"`
}

type GradeInput struct {
	Code         string `json:"code" jsonschema:"description=Learner code"`
	Language     string `json:"language" jsonschema:"description=Code language,enum=html,enum=css,enum=javascript"`
	Requirements string `json:"requirements" jsonschema:"description=What the code should achieve"`
}

type GradeOutput struct {
	Score       int      `json:"score"`
	Scored      bool     `json:"scored"`
	Suggestions []string `json:"suggestions,omitempty"`
	Feedback    string   `json:"feedback"`
}

type HintInput struct {
	Task     string `json:"task" jsonschema:"description=The exercise the learner is working on"`
	Code     string `json:"code,omitempty" jsonschema:"description=Learner code so far"`
	Language string `json:"language" jsonschema:"description=Code language,enum=html,enum=css,enum=javascript"`
}

type LearnerInput struct {
	LearnerID string `json:"learner_id" jsonschema:"description=Learner ID"`
}

type LearnerOutput struct {
	Username     string   `json:"username"`
	Role         string   `json:"role"`
	XP           int      `json:"xp"`
	Level        int      `json:"level"`
	Title        string   `json:"title"`
	Coins        int      `json:"coins"`
	StreakDays   int      `json:"streak_days"`
	Achievements []string `json:"achievements"`
}

type LessonInput struct {
	LessonID string `json:"lesson_id" jsonschema:"description=Lesson ID such as html-basics.hello-html"`
	Markup   string `json:"markup,omitempty" jsonschema:"description=HTML to check"`
	Style    string `json:"style,omitempty" jsonschema:"description=CSS to check"`
	Script   string `json:"script,omitempty" jsonschema:"description=JavaScript to check"`
}

type LessonOutput struct {
	Title        string   `json:"title"`
	Difficulty   string   `json:"difficulty"`
	XP           int      `json:"xp"`
	Instructions string   `json:"instructions"`
	Hints        []string `json:"hints"`
	Checked      bool     `json:"checked"`
	Passed       bool     `json:"passed,omitempty"`
	Failures     []string `json:"failures,omitempty"`
}

func (s *Server) handleLevel(ctx context.Context, input LevelInput) (LevelOutput, error) {
	p := progression.Resolve(input.XP)
	return LevelOutput{
		Level:         p.Level,
		Title:         progression.Title(p.Level),
		XPIntoLevel:   p.XPIntoLevel,
		XPToNextLevel: p.XPToNextLevel,
		Progress:      p.ProgressFraction,
		MaxLevel:      p.IsMaxLevel(),
	}, nil
}

func (s *Server) handlePreview(ctx context.Context, input PreviewInput) (PreviewOutput, error) {
	src := preview.Source{Markup: input.Markup, Style: input.Style, Script: input.Script}
	if err := src.Validate(); err != nil {
		return PreviewOutput{}, err
	}
	doc := preview.Assemble(src, 1, preview.AssembleOptions{})
	return PreviewOutput{
		HTML:    doc.HTML,
		Sandbox: preview.SandboxAttribute(),
		CSP:     preview.ContentSecurityPolicy(),
	}, nil
}

func (s *Server) handleExplain(ctx context.Context, input CodeInput) (TextOutput, error) {
	if s.tutor == nil {
		return TextOutput{}, ErrTutorUnavailable
	}
	text, err := s.tutor.Explain(ctx, tutor.ExplainRequest{
		Code:     input.Code,
		Language: input.Language,
		Context:  input.Context,
	})
	if err != nil {
		return TextOutput{}, fmt.Errorf("explain failed: %w", err)
	}
	return TextOutput{Content: text}, nil
}

func (s *Server) handleGrade(ctx context.Context, input GradeInput) (GradeOutput, error) {
	if s.tutor == nil {
		return GradeOutput{}, ErrTutorUnavailable
	}
	result, err := s.tutor.Grade(ctx, tutor.GradeRequest{
		Code:         input.Code,
		Language:     input.Language,
		Requirements: input.Requirements,
	})
	if err != nil {
		return GradeOutput{}, fmt.Errorf("grading failed: %w", err)
	}
	return GradeOutput{
		Score:       result.ScoreOr(tutor.DefaultScore),
		Scored:      result.Score != nil,
		Suggestions: result.Suggestions,
		Feedback:    result.Raw,
	}, nil
}

func (s *Server) handleHint(ctx context.Context, input HintInput) (TextOutput, error) {
	if s.tutor == nil {
		return TextOutput{}, ErrTutorUnavailable
	}
	hint, err := s.tutor.Hint(ctx, tutor.HintRequest{
		Task:     input.Task,
		Code:     input.Code,
		Language: input.Language,
	})
	if err != nil {
		return TextOutput{}, fmt.Errorf("hint failed: %w", err)
	}
	return TextOutput{Content: hint}, nil
}

func (s *Server) handleLearner(ctx context.Context, input LearnerInput) (LearnerOutput, error) {
	if s.profiles == nil {
		return LearnerOutput{}, errors.New("learner profiles not available")
	}
	p, err := s.profiles.Get(ctx, strings.TrimSpace(input.LearnerID))
	if err != nil {
		return LearnerOutput{}, fmt.Errorf("learner not found: %w", err)
	}
	unlocked, err := s.profiles.Achievements(ctx, p.ID)
	if err != nil {
		return LearnerOutput{}, fmt.Errorf("load achievements: %w", err)
	}

	codes := make([]string, 0, len(unlocked))
	for _, a := range unlocked {
		codes = append(codes, a.Code)
	}
	prog := p.Progression()
	return LearnerOutput{
		Username:     p.Username,
		Role:         string(p.Role),
		XP:           p.XP,
		Level:        prog.Level,
		Title:        progression.Title(prog.Level),
		Coins:        p.Coins,
		StreakDays:   p.StreakDays,
		Achievements: codes,
	}, nil
}

func (s *Server) handleLesson(ctx context.Context, input LessonInput) (LessonOutput, error) {
	if s.courses == nil {
		return LessonOutput{}, errors.New("course catalog not available")
	}
	l, err := s.courses.Lesson(strings.TrimSpace(input.LessonID))
	if err != nil {
		return LessonOutput{}, err
	}

	out := LessonOutput{
		Title:        l.Title,
		Difficulty:   string(l.Difficulty),
		XP:           l.Reward.XP,
		Instructions: l.Instructions,
		Hints:        l.Hints,
	}

	src := preview.Source{Markup: input.Markup, Style: input.Style, Script: input.Script}
	if src == (preview.Source{}) {
		return out, nil
	}
	if err := src.Validate(); err != nil {
		return LessonOutput{}, err
	}
	res := l.Check(src)
	out.Checked = true
	out.Passed = res.Passed
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Message)
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
