package daemon

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/gamecodelab/gamecode/internal/preview"
)

// newUpgrader builds the preview socket upgrader for a daemon bound to bind
func newUpgrader(bind string, allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originPolicy(bind, allowedOrigins),
	}
}

// originPolicy admits requests without an Origin header, same-origin pages
// and the configured origins. With no origins configured a loopback daemon
// admits any page.
func originPolicy(bind string, allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}
	open := len(set) == 0 && isLoopback(bind)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || open || set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func isLoopback(bind string) bool {
	if strings.EqualFold(bind, "localhost") {
		return true
	}
	ip := net.ParseIP(bind)
	return ip != nil && ip.IsLoopback()
}

// handleAssemble builds a one-off document without a live session
func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source      preview.Source `json:"source"`
		Generation  uint64         `json:"generation,omitempty"`
		CheckSyntax bool           `json:"check_syntax,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Source.Validate(); err != nil {
		fail(w, "source too long", err)
		return
	}
	if req.Generation == 0 {
		req.Generation = 1
	}

	var opts preview.AssembleOptions
	diagnostics := []preview.Diagnostic{}
	if checker := s.hub.cfg.Checker; checker != nil && req.CheckSyntax && strings.TrimSpace(req.Source.Script) != "" {
		synErr, err := checker.CheckScript(r.Context(), req.Source.Script)
		switch {
		case err != nil:
			s.logger.Warn("script pre-check unavailable", "error", err)
		case synErr != nil:
			opts.OmitScript = true
			diagnostics = append(diagnostics, preview.Diagnostic{
				Generation: req.Generation,
				Severity:   preview.SeverityError,
				Text:       synErr.Error(),
			})
		}
	}

	doc := preview.Assemble(req.Source, req.Generation, opts)
	jsonResponse(w, http.StatusOK, map[string]any{
		"document":    doc,
		"diagnostics": diagnostics,
		"sandbox":     preview.SandboxAttribute(),
	})
}

func (s *Server) handleCreatePreviewSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LearnerID string          `json:"learner_id,omitempty"`
		Source    *preview.Source `json:"source,omitempty"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Source != nil {
		if err := req.Source.Validate(); err != nil {
			fail(w, "source too long", err)
			return
		}
	}
	if req.LearnerID != "" {
		if _, err := s.profiles.Get(r.Context(), req.LearnerID); err != nil {
			fail(w, "learner not found", err)
			return
		}
	}

	ls, err := s.hub.open(req.LearnerID)
	if err != nil {
		jsonError(w, http.StatusServiceUnavailable, "cannot open preview session", err)
		return
	}
	if req.Source != nil {
		ls.session.SetSource(*req.Source)
		ls.session.ForceRefresh()
	}

	jsonResponse(w, http.StatusCreated, s.previewSessionView(ls))
}

func (s *Server) handleGetPreviewSession(w http.ResponseWriter, r *http.Request) {
	ls, err := s.hub.get(r.PathValue("id"))
	if err != nil {
		fail(w, "preview session not found", err)
		return
	}
	jsonResponse(w, http.StatusOK, s.previewSessionView(ls))
}

func (s *Server) handleClosePreviewSession(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.close(r.PathValue("id")); err != nil {
		fail(w, "preview session not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreviewFrame serves the current document under a sandbox CSP, so
// the browser isolates it even when opened outside the iframe
func (s *Server) handlePreviewFrame(w http.ResponseWriter, r *http.Request) {
	ls, err := s.hub.get(r.PathValue("id"))
	if err != nil {
		fail(w, "preview session not found", err)
		return
	}

	doc, ok := ls.frame.document()
	if !ok {
		doc = preview.Assemble(preview.Source{}, 0, preview.AssembleOptions{})
	}

	writeSandboxedHTML(w, doc.HTML)
}

func writeSandboxedHTML(w http.ResponseWriter, html string) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", preview.ContentSecurityPolicy())
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// handlePreviewSocket attaches a websocket to a session. A newer socket
// replaces an older one.
func (s *Server) handlePreviewSocket(w http.ResponseWriter, r *http.Request) {
	ls, err := s.hub.get(r.PathValue("id"))
	if err != nil {
		fail(w, "preview session not found", err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("preview socket upgrade failed", "preview_session", ls.ID, "error", err)
		return
	}

	client := newSocketClient(conn, s.logger.With("preview_session", ls.ID))
	if err := ls.frame.attach(client); err != nil {
		client.close()
		go client.writePump()
		return
	}

	go client.writePump()

	if doc, ok := ls.frame.document(); ok {
		client.push(serverMessage{
			Type:          "render",
			Generation:    doc.Generation,
			FrameURL:      ls.frame.frameURL,
			HTML:          doc.HTML,
			ScriptOmitted: doc.ScriptOmitted,
		})
		for _, d := range ls.session.Log() {
			client.push(serverMessage{Type: "diagnostic", Generation: d.Generation, Diagnostic: &d})
		}
	}

	client.readPump(ls.handle)
	ls.frame.detach(client)
	ls.touch()
}

func (s *Server) previewSessionView(ls *liveSession) map[string]any {
	base := "/v1/preview/sessions/" + ls.ID
	return map[string]any{
		"id":          ls.ID,
		"learner_id":  ls.LearnerID,
		"created_at":  ls.CreatedAt,
		"state":       ls.session.State(),
		"generation":  ls.session.Generation(),
		"renders":     ls.session.Renders(),
		"diagnostics": ls.session.Log(),
		"frame_url":   base + "/frame",
		"ws_url":      base + "/ws",
		"sandbox":     preview.SandboxAttribute(),
	}
}

// recordPreviewRun credits a learner for a render; failures only log
func (s *Server) recordPreviewRun(ctx context.Context, learnerID string) {
	if _, err := s.profiles.RecordPreviewRun(ctx, learnerID); err != nil {
		s.logger.Warn("failed to record preview run", "learner_id", learnerID, "error", err)
	}
}
