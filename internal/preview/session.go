// Package preview assembles learner markup, style and script into an
// isolated document and tracks one live preview session: debounced
// re-rendering, generation-tagged diagnostics and teardown.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounce is the quiet period before an edit triggers a render
const DefaultDebounce = time.Second

var ErrSessionClosed = errors.New("preview session closed")

// State is the lifecycle state of a session
type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateRendering  State = "rendering"
	StateRendered   State = "rendered"
	StateClosed     State = "closed"
)

// Config holds session settings
type Config struct {
	Debounce time.Duration
	Clock    Clock
	Checker  ScriptChecker // optional
	Logger   *slog.Logger
}

// DiagnosticHandler receives diagnostics of the current render in
// emission order. Handlers must not call back into the session.
type DiagnosticHandler func(Diagnostic)

// Session owns one isolated frame and the source rendered into it.
// Every mutation goes through the session, which is the single writer of
// its source, generation counter and diagnostic log.
type Session struct {
	ID uuid.UUID

	mu         sync.Mutex
	state      State
	source     Source
	generation uint64
	timer      Timer
	timerSeq   uint64
	log        []Diagnostic
	document   Document
	renders    int
	handlers   []DiagnosticHandler

	// renderMu serializes frame loads; emitMu keeps handler calls ordered.
	renderMu sync.Mutex
	emitMu   sync.Mutex

	frame    Frame
	debounce time.Duration
	clock    Clock
	checker  ScriptChecker
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates an idle session rendering into frame
func NewSession(frame Frame, cfg Config) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()

	return &Session{
		ID:       id,
		state:    StateIdle,
		frame:    frame,
		debounce: cfg.Debounce,
		clock:    cfg.Clock,
		checker:  cfg.Checker,
		logger:   cfg.Logger.With("preview_session", id.String()),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// UpdateSource replaces one fragment and restarts the debounce period.
// Calls after Close are ignored.
func (s *Session) UpdateSource(kind Kind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	s.source = s.source.With(kind, text)

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerSeq++
	seq := s.timerSeq
	s.state = StateDebouncing
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.fire(seq) })
}

// SetSource replaces all three fragments at once and restarts the
// debounce period.
func (s *Session) SetSource(src Source) {
	s.UpdateSource(KindMarkup, src.Markup)
	s.UpdateSource(KindStyle, src.Style)
	s.UpdateSource(KindScript, src.Script)
}

// ForceRefresh cancels any pending debounce and renders the latest source
// immediately.
func (s *Session) ForceRefresh() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	job := s.beginRenderLocked()
	s.mu.Unlock()

	s.finishRender(job)
}

// OnDiagnostic registers a handler for forwarded diagnostics
func (s *Session) OnDiagnostic(h DiagnosticHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.handlers = append(s.handlers, h)
}

// Deliver accepts a message relayed from the frame. Messages from a
// superseded render are dropped; the return value reports acceptance.
func (s *Session) Deliver(msg Message) bool {
	if msg == nil {
		return false
	}

	s.mu.Lock()
	if s.state == StateClosed || msg.Generation() != s.generation || s.generation == 0 {
		current := s.generation
		s.mu.Unlock()
		s.logger.Debug("dropped stale preview message",
			"message_generation", msg.Generation(),
			"current_generation", current)
		return false
	}
	s.mu.Unlock()

	d, ok := diagnosticFor(msg)
	if !ok {
		return true
	}
	return s.emit(d)
}

// Log returns a copy of the diagnostics of the current render
func (s *Session) Log() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.log))
	copy(out, s.log)
	return out
}

// ClearLog empties the visible diagnostic log without re-rendering
func (s *Session) ClearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the generation of the latest render, zero before the first
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Source returns the latest source, rendered or pending
func (s *Session) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Document returns the most recently loaded document
func (s *Session) Document() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document, s.document.Generation != 0
}

// Renders returns how many renders have started
func (s *Session) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// Close cancels pending work and releases the frame. It is safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.stopTimerLocked()
	s.state = StateClosed
	s.handlers = nil
	s.log = nil
	s.mu.Unlock()

	s.cancel()

	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	return s.frame.Close()
}

// renderJob is a snapshot taken when a render begins
type renderJob struct {
	generation uint64
	source     Source
}

func (s *Session) fire(seq uint64) {
	s.mu.Lock()
	if s.state == StateClosed || seq != s.timerSeq || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	job := s.beginRenderLocked()
	s.mu.Unlock()

	s.finishRender(job)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
}

func (s *Session) beginRenderLocked() renderJob {
	s.generation++
	s.renders++
	s.log = nil
	s.state = StateRendering
	return renderJob{generation: s.generation, source: s.source}
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateClosed && s.generation == gen
}

func (s *Session) finishRender(job renderJob) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	if !s.current(job.generation) {
		return
	}

	var opts AssembleOptions
	var preCheck *Diagnostic
	if s.checker != nil && strings.TrimSpace(job.source.Script) != "" {
		synErr, err := s.checker.CheckScript(s.ctx, job.source.Script)
		switch {
		case err != nil:
			s.logger.Warn("script pre-check unavailable", "error", err)
		case synErr != nil:
			opts.OmitScript = true
			preCheck = &Diagnostic{
				Generation: job.generation,
				Severity:   SeverityError,
				Text:       synErr.Error(),
			}
		}
	}

	doc := Assemble(job.source, job.generation, opts)
	if !s.current(job.generation) {
		return
	}

	loadErr := s.frame.Load(s.ctx, doc)

	s.mu.Lock()
	if s.state == StateClosed || s.generation != job.generation {
		s.mu.Unlock()
		return
	}
	s.document = doc
	if s.timer == nil {
		s.state = StateRendered
	}
	s.mu.Unlock()

	s.logger.Debug("preview rendered",
		"generation", job.generation,
		"script_omitted", opts.OmitScript)

	if preCheck != nil {
		s.emit(*preCheck)
	}
	if loadErr != nil {
		s.emit(Diagnostic{
			Generation: job.generation,
			Severity:   SeverityError,
			Text:       "preview failed to load: " + loadErr.Error(),
		})
	}
}

func (s *Session) emit(d Diagnostic) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.state == StateClosed || d.Generation != s.generation {
		s.mu.Unlock()
		return false
	}
	s.log = append(s.log, d)
	handlers := make([]DiagnosticHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(d)
	}
	return true
}
