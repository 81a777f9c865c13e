// Package tutor is the AI assistant: code explanations, grading, error
// diagnosis, hints, generated exercises and free chat, all over one
// chat-completion provider.
package tutor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"

	"github.com/gamecodelab/gamecode/internal/llm"
	"github.com/gamecodelab/gamecode/internal/progression"
)

// MaxCodeLength bounds submitted code in characters
const MaxCodeLength = 100000

// MaxHistory is how many prior chat turns are forwarded to the model
const MaxHistory = 20

var (
	ErrMissingField = errors.New("missing required field")
	ErrCodeTooLong  = errors.New("code exceeds maximum length")
)

// Call names one kind of tutor request
type Call string

const (
	CallExplain  Call = "explain"
	CallGrade    Call = "grade"
	CallDiagnose Call = "diagnose"
	CallHint     Call = "hint"
	CallExercise Call = "exercise"
	CallChat     Call = "chat"
)

type sampling struct {
	temperature float64
	maxTokens   int
}

var samplings = map[Call]sampling{
	CallExplain:  {0.7, 1500},
	CallGrade:    {0.5, 1000},
	CallDiagnose: {0.5, 1500},
	CallHint:     {0.8, 500},
	CallExercise: {0.8, 2000},
	CallChat:     {0.9, 1000},
}

// ExplainRequest asks for a walkthrough of code
type ExplainRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Context  string `json:"context,omitempty"`
}

// GradeRequest asks for a score against requirements
type GradeRequest struct {
	Code         string `json:"code"`
	Language     string `json:"language"`
	Requirements string `json:"requirements"`
}

// DiagnoseRequest asks why code fails
type DiagnoseRequest struct {
	Code         string `json:"code"`
	Language     string `json:"language"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// HintRequest asks for the next step on a task
type HintRequest struct {
	Task     string `json:"task"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ExerciseRequest asks for a new practice task
type ExerciseRequest struct {
	Topic      string                 `json:"topic"`
	Difficulty progression.Difficulty `json:"difficulty"`
	Language   string                 `json:"language"`
}

// Config configures a Tutor
type Config struct {
	Provider llm.Provider
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Tutor issues prompts and parses the answers
type Tutor struct {
	provider llm.Provider
	cache    *cache.Cache
	logger   *slog.Logger
}

// New creates a Tutor. Explanations and hints are memoized for CacheTTL
// (default 1h).
func New(cfg Config) *Tutor {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tutor{
		provider: cfg.Provider,
		cache:    cache.New(ttl, 10*time.Minute),
		logger:   logger,
	}
}

// Explain describes what code does
func (t *Tutor) Explain(ctx context.Context, req ExplainRequest) (string, error) {
	if err := require("code", req.Code, "language", req.Language); err != nil {
		return "", err
	}
	if err := checkCode(req.Code); err != nil {
		return "", err
	}
	return t.cached(ctx, CallExplain, explainSystem, explainPrompt(req))
}

// Grade scores code against requirements
func (t *Tutor) Grade(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	if err := require("code", req.Code, "language", req.Language, "requirements", req.Requirements); err != nil {
		return nil, err
	}
	if err := checkCode(req.Code); err != nil {
		return nil, err
	}
	raw, err := t.complete(ctx, CallGrade, gradeSystem, []llm.Message{{Role: llm.RoleUser, Content: gradePrompt(req)}})
	if err != nil {
		return nil, err
	}
	res := ParseGrade(raw)
	if res.Score == nil {
		t.logger.Warn("grade response without score", "length", len(raw))
	}
	return res, nil
}

// Diagnose explains an error and proposes fixed code
func (t *Tutor) Diagnose(ctx context.Context, req DiagnoseRequest) (*Diagnosis, error) {
	if err := require("code", req.Code, "language", req.Language); err != nil {
		return nil, err
	}
	if err := checkCode(req.Code); err != nil {
		return nil, err
	}
	raw, err := t.complete(ctx, CallDiagnose, diagnoseSystem, []llm.Message{{Role: llm.RoleUser, Content: diagnosePrompt(req)}})
	if err != nil {
		return nil, err
	}
	return ParseDiagnosis(raw), nil
}

// Hint suggests the next step without solving the task
func (t *Tutor) Hint(ctx context.Context, req HintRequest) (string, error) {
	if err := require("task", req.Task, "language", req.Language); err != nil {
		return "", err
	}
	if err := checkCode(req.Code); err != nil {
		return "", err
	}
	return t.cached(ctx, CallHint, hintSystem, hintPrompt(req))
}

// GenerateExercise creates a practice task. Missing parts of the answer
// fall back to a generic title, starter code and hints.
func (t *Tutor) GenerateExercise(ctx context.Context, req ExerciseRequest) (*Exercise, error) {
	if err := require("topic", req.Topic, "language", req.Language); err != nil {
		return nil, err
	}
	if req.Difficulty == "" {
		req.Difficulty = progression.DifficultyEasy
	}
	if _, err := progression.ParseDifficulty(string(req.Difficulty)); err != nil {
		return nil, err
	}

	raw, err := t.complete(ctx, CallExercise, exerciseSystem, []llm.Message{{Role: llm.RoleUser, Content: exercisePrompt(req)}})
	if err != nil {
		return nil, err
	}

	ex := ParseExercise(raw)
	if ex.Title == "" {
		ex.Title = req.Topic + " exercise"
	}
	ex.StarterCode = fmt.Sprintf("// %s exercise\n// write your code here\n", req.Topic)
	ex.Hints = []string{"Check the structure of your code", "Watch the edge cases", "Try different inputs"}
	return ex, nil
}

// Chat continues a mentoring conversation. Only the last MaxHistory turns
// of history are sent.
func (t *Tutor) Chat(ctx context.Context, message string, history []llm.Message) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message", ErrMissingField)
	}
	if err := checkCode(message); err != nil {
		return "", err
	}
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		if _, err := llm.ParseRole(string(m.Role)); err != nil {
			return "", err
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	return t.complete(ctx, CallChat, chatSystem, msgs)
}

func (t *Tutor) cached(ctx context.Context, call Call, system, prompt string) (string, error) {
	key := cacheKey(call, prompt)
	if v, ok := t.cache.Get(key); ok {
		t.logger.Debug("tutor cache hit", "call", call)
		return v.(string), nil
	}

	out, err := t.complete(ctx, call, system, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	t.cache.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

func (t *Tutor) complete(ctx context.Context, call Call, system string, msgs []llm.Message) (string, error) {
	s := samplings[call]
	ctx, cancel := context.WithTimeout(ctx, llm.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := t.provider.Complete(ctx, &llm.Request{
		System:      system,
		Messages:    msgs,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		t.logger.Error("tutor call failed", "call", call, "provider", t.provider.Name(), "error", err)
		return "", fmt.Errorf("%s: %w", call, err)
	}

	t.logger.Info("tutor call",
		"call", call,
		"provider", t.provider.Name(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds())
	return resp.Content, nil
}

func cacheKey(call Call, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return string(call) + ":" + hex.EncodeToString(sum[:])
}

func checkCode(code string) error {
	if n := utf8.RuneCountInString(code); n > MaxCodeLength {
		return fmt.Errorf("%w: %d > %d", ErrCodeTooLong, n, MaxCodeLength)
	}
	return nil
}

// require takes name/value pairs and fails on the first blank value
func require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, pairs[i])
		}
	}
	return nil
}
