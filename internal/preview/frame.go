package preview

import (
	"context"
	"strconv"
)

// Frame is the isolated execution context a session renders into.
// Load hands over a complete document; diagnostics come back
// asynchronously through Session.Deliver.
type Frame interface {
	Load(ctx context.Context, doc Document) error
	Close() error
}

// SyntaxError is a parse failure in the behaviour fragment
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return "SyntaxError: " + e.Message + " (line " + strconv.Itoa(e.Line) + ")"
	}
	return "SyntaxError: " + e.Message
}

// ScriptChecker parses a behaviour fragment without running it. A nil
// *SyntaxError with a nil error means the script parsed.
type ScriptChecker interface {
	CheckScript(ctx context.Context, script string) (*SyntaxError, error)
}

// Viewport is a presentation width preset
type Viewport string

const (
	ViewportMobile  Viewport = "mobile"
	ViewportTablet  Viewport = "tablet"
	ViewportDesktop Viewport = "desktop"
)

// Width returns the CSS width of the preset
func (v Viewport) Width() string {
	switch v {
	case ViewportMobile:
		return "375px"
	case ViewportTablet:
		return "768px"
	default:
		return "100%"
	}
}
