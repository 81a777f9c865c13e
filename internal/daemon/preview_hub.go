package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamecodelab/gamecode/internal/preview"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
	maxSessions    = 256
)

var (
	errSessionNotFound = errors.New("preview session not found")
	errTooManySessions = errors.New("too many preview sessions")
)

// serverMessage is pushed to the preview socket
type serverMessage struct {
	Type          string              `json:"type"`
	Generation    uint64              `json:"generation,omitempty"`
	FrameURL      string              `json:"frame_url,omitempty"`
	HTML          string              `json:"html,omitempty"`
	ScriptOmitted bool                `json:"script_omitted,omitempty"`
	Diagnostic    *preview.Diagnostic `json:"diagnostic,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// clientMessage is received from the preview socket
type clientMessage struct {
	Type    string          `json:"type"` // update, source, refresh, diagnostic, clear
	Kind    string          `json:"kind,omitempty"`
	Text    string          `json:"text,omitempty"`
	Source  *preview.Source `json:"source,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// socketFrame is the host side of an isolated frame. It keeps the latest
// document for the frame endpoint and tells the attached socket to reload.
type socketFrame struct {
	mu       sync.Mutex
	doc      preview.Document
	loaded   bool
	closed   bool
	client   *socketClient
	frameURL string
	onLoad   func(ctx context.Context, doc preview.Document)
}

var _ preview.Frame = (*socketFrame)(nil)

func (f *socketFrame) Load(ctx context.Context, doc preview.Document) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return preview.ErrSessionClosed
	}
	f.doc = doc
	f.loaded = true
	client := f.client
	f.mu.Unlock()

	if client != nil {
		client.push(serverMessage{
			Type:          "render",
			Generation:    doc.Generation,
			FrameURL:      f.frameURL,
			HTML:          doc.HTML,
			ScriptOmitted: doc.ScriptOmitted,
		})
	}
	if f.onLoad != nil {
		f.onLoad(ctx, doc)
	}
	return nil
}

func (f *socketFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.client != nil {
		f.client.close()
		f.client = nil
	}
	return nil
}

// document returns the latest loaded document
func (f *socketFrame) document() (preview.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc, f.loaded
}

// attach makes c the session's socket, closing any previous one
func (f *socketFrame) attach(c *socketClient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return preview.ErrSessionClosed
	}
	if f.client != nil {
		f.client.close()
	}
	f.client = c
	return nil
}

// attached reports whether a socket currently drives the frame
func (f *socketFrame) attached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client != nil
}

func (f *socketFrame) detach(c *socketClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == c {
		f.client = nil
	}
}

func (f *socketFrame) push(msg serverMessage) {
	f.mu.Lock()
	client := f.client
	f.mu.Unlock()
	if client != nil {
		client.push(msg)
	}
}

// socketClient owns one websocket connection. Only writePump writes to it.
type socketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newSocketClient(conn *websocket.Conn, logger *slog.Logger) *socketClient {
	return &socketClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// push queues msg, dropping it when the client is gone or too slow
func (c *socketClient) push(msg serverMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode preview message", "error", err)
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("preview socket backlog full, dropping message", "type", msg.Type)
		return false
	}
}

func (c *socketClient) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump hands every text frame to handle until the connection fails
func (c *socketClient) readPump(handle func([]byte)) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("preview socket closed", "error", err)
			}
			return
		}
		handle(data)
	}
}

// writePump writes queued messages and pings until the client closes
func (c *socketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "preview closed"))
			return
		}
	}
}

// liveSession is one registered preview session
type liveSession struct {
	ID        string
	LearnerID string
	CreatedAt time.Time

	session *preview.Session
	frame   *socketFrame

	now        func() time.Time
	mu         sync.Mutex
	lastActive time.Time
}

// touch marks the session as in use
func (ls *liveSession) touch() {
	ls.mu.Lock()
	ls.lastActive = ls.now()
	ls.mu.Unlock()
}

func (ls *liveSession) idleSince() time.Time {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.lastActive
}

// previewHub tracks live preview sessions by id. Sessions without a socket
// that see no activity for idleTTL are closed.
type previewHub struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
	cfg      preview.Config
	idleTTL  time.Duration
	onRender func(ctx context.Context, learnerID string)
	logger   *slog.Logger
	now      func() time.Time
}

func newPreviewHub(cfg preview.Config, idleTTL time.Duration, onRender func(ctx context.Context, learnerID string), logger *slog.Logger) *previewHub {
	return &previewHub{
		sessions: make(map[string]*liveSession),
		cfg:      cfg,
		idleTTL:  idleTTL,
		onRender: onRender,
		logger:   logger,
		now:      time.Now,
	}
}

// open registers a new session; learnerID may be empty for anonymous
// previews, which earn nothing
func (h *previewHub) open(learnerID string) (*liveSession, error) {
	h.mu.Lock()
	var expired []*liveSession
	defer func() {
		h.mu.Unlock()
		h.release(expired)
	}()

	if len(h.sessions) >= maxSessions {
		expired = h.expireLocked()
		if len(h.sessions) >= maxSessions {
			return nil, errTooManySessions
		}
	}

	frame := &socketFrame{}
	sess := preview.NewSession(frame, h.cfg)
	id := sess.ID.String()
	frame.frameURL = "/v1/preview/sessions/" + id + "/frame"
	if learnerID != "" && h.onRender != nil {
		frame.onLoad = func(ctx context.Context, _ preview.Document) {
			h.onRender(ctx, learnerID)
		}
	}
	sess.OnDiagnostic(func(d preview.Diagnostic) {
		frame.push(serverMessage{Type: "diagnostic", Generation: d.Generation, Diagnostic: &d})
	})

	now := h.now()
	ls := &liveSession{
		ID:         id,
		LearnerID:  learnerID,
		CreatedAt:  now.UTC(),
		session:    sess,
		frame:      frame,
		now:        h.now,
		lastActive: now,
	}
	h.sessions[id] = ls
	h.logger.Debug("preview session opened", "preview_session", id, "learner_id", learnerID)
	return ls, nil
}

func (h *previewHub) get(id string) (*liveSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls, ok := h.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	ls.touch()
	return ls, nil
}

// close tears a session down and forgets it
func (h *previewHub) close(id string) error {
	h.mu.Lock()
	ls, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		return errSessionNotFound
	}
	h.logger.Debug("preview session closed", "preview_session", id)
	return ls.session.Close()
}

func (h *previewHub) closeAll() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		_ = h.close(id)
	}
}

// expireLocked forgets sessions idle past the TTL and returns them for
// release. Sessions with an attached socket never expire.
func (h *previewHub) expireLocked() []*liveSession {
	if h.idleTTL <= 0 {
		return nil
	}
	cutoff := h.now().Add(-h.idleTTL)
	var expired []*liveSession
	for id, ls := range h.sessions {
		if ls.frame.attached() || !ls.idleSince().Before(cutoff) {
			continue
		}
		delete(h.sessions, id)
		expired = append(expired, ls)
	}
	return expired
}

// release closes sessions already removed from the hub
func (h *previewHub) release(sessions []*liveSession) {
	for _, ls := range sessions {
		if err := ls.session.Close(); err != nil {
			h.logger.Warn("failed to close idle preview session", "preview_session", ls.ID, "error", err)
		}
	}
	if len(sessions) > 0 {
		h.logger.Info("closed idle preview sessions", "count", len(sessions))
	}
}

// sweep closes every expired session and reports how many it closed
func (h *previewHub) sweep() int {
	h.mu.Lock()
	expired := h.expireLocked()
	h.mu.Unlock()

	h.release(expired)
	return len(expired)
}

// run sweeps idle sessions until ctx is done
func (h *previewHub) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *previewHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// handle applies one client message to the session
func (ls *liveSession) handle(data []byte) {
	ls.touch()

	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		ls.frame.push(serverMessage{Type: "error", Error: "invalid message"})
		return
	}

	switch msg.Type {
	case "update":
		kind, err := preview.ParseKind(msg.Kind)
		if err != nil {
			ls.frame.push(serverMessage{Type: "error", Error: err.Error()})
			return
		}
		if err := (preview.Source{}).With(kind, msg.Text).Validate(); err != nil {
			ls.frame.push(serverMessage{Type: "error", Error: err.Error()})
			return
		}
		ls.session.UpdateSource(kind, msg.Text)
	case "source":
		if msg.Source == nil {
			ls.frame.push(serverMessage{Type: "error", Error: "source is required"})
			return
		}
		if err := msg.Source.Validate(); err != nil {
			ls.frame.push(serverMessage{Type: "error", Error: err.Error()})
			return
		}
		ls.session.SetSource(*msg.Source)
	case "refresh":
		ls.session.ForceRefresh()
	case "diagnostic":
		m, err := preview.ParseMessage(msg.Message)
		if err != nil {
			return
		}
		ls.session.Deliver(m)
	case "clear":
		ls.session.ClearLog()
		ls.frame.push(serverMessage{Type: "cleared", Generation: ls.session.Generation()})
	default:
		ls.frame.push(serverMessage{Type: "error", Error: "unknown message type " + msg.Type})
	}
}
