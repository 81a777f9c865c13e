package preview

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidMessage = errors.New("invalid preview message")

// Severity of a forwarded diagnostic
type Severity string

const (
	SeverityLog   Severity = "log"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Diagnostic is one entry in the preview console log
type Diagnostic struct {
	Generation uint64   `json:"generation"`
	Severity   Severity `json:"severity"`
	Text       string   `json:"text"`
}

// Message is a message relayed from the isolated frame. The concrete
// types are ConsoleMessage, ErrorMessage and ReadyMessage.
type Message interface {
	Generation() uint64
	isMessage()
}

// ConsoleMessage is a console.log/warn/error call inside the frame
type ConsoleMessage struct {
	Gen      uint64
	Severity Severity
	Text     string
}

// ErrorMessage is an uncaught error reported by window.onerror
type ErrorMessage struct {
	Gen    uint64
	Text   string
	Line   int
	Column int
}

// ReadyMessage signals that the frame finished loading
type ReadyMessage struct {
	Gen uint64
}

func (m ConsoleMessage) Generation() uint64 { return m.Gen }
func (m ErrorMessage) Generation() uint64   { return m.Gen }
func (m ReadyMessage) Generation() uint64   { return m.Gen }

func (ConsoleMessage) isMessage() {}
func (ErrorMessage) isMessage()   {}
func (ReadyMessage) isMessage()   {}

// wireMessage mirrors the payload posted by the document shim
type wireMessage struct {
	Channel    string `json:"channel"`
	Generation uint64 `json:"generation"`
	Kind       string `json:"kind"`
	Severity   string `json:"severity,omitempty"`
	Text       string `json:"text,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
}

// ParseMessage decodes a relayed frame payload
func ParseMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if w.Channel != MessageChannel {
		return nil, fmt.Errorf("%w: channel %q", ErrInvalidMessage, w.Channel)
	}

	switch w.Kind {
	case "console":
		sev := Severity(w.Severity)
		switch sev {
		case SeverityLog, SeverityWarn, SeverityError:
		default:
			return nil, fmt.Errorf("%w: severity %q", ErrInvalidMessage, w.Severity)
		}
		return ConsoleMessage{Gen: w.Generation, Severity: sev, Text: w.Text}, nil
	case "error":
		return ErrorMessage{Gen: w.Generation, Text: w.Text, Line: w.Line, Column: w.Column}, nil
	case "ready":
		return ReadyMessage{Gen: w.Generation}, nil
	}

	return nil, fmt.Errorf("%w: kind %q", ErrInvalidMessage, w.Kind)
}

// diagnosticFor converts a frame message into a log entry. Ready messages
// produce none.
func diagnosticFor(msg Message) (Diagnostic, bool) {
	switch m := msg.(type) {
	case ConsoleMessage:
		return Diagnostic{Generation: m.Gen, Severity: m.Severity, Text: m.Text}, true
	case ErrorMessage:
		text := m.Text
		if m.Line > 0 {
			text = fmt.Sprintf("%s (line %d)", text, m.Line)
		}
		return Diagnostic{Generation: m.Gen, Severity: SeverityError, Text: text}, true
	}
	return Diagnostic{}, false
}
