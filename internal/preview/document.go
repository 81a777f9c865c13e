package preview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxSourceLength bounds each fragment in characters.
const MaxSourceLength = 100000

var ErrSourceTooLong = errors.New("source exceeds maximum length")

// Kind identifies one of the three editable fragments
type Kind string

const (
	KindMarkup Kind = "markup"
	KindStyle  Kind = "style"
	KindScript Kind = "script"
)

// ParseKind accepts the fragment names used by editors, including the
// html/css/javascript aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "markup", "html":
		return KindMarkup, nil
	case "style", "css":
		return KindStyle, nil
	case "script", "js", "javascript":
		return KindScript, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Source is the learner-authored content of one preview
type Source struct {
	Markup string `json:"markup"`
	Style  string `json:"style"`
	Script string `json:"script"`
}

// With returns a copy of s with one fragment replaced
func (s Source) With(kind Kind, text string) Source {
	switch kind {
	case KindMarkup:
		s.Markup = text
	case KindStyle:
		s.Style = text
	case KindScript:
		s.Script = text
	}
	return s
}

// Validate checks fragment sizes
func (s Source) Validate() error {
	for kind, text := range map[Kind]string{KindMarkup: s.Markup, KindStyle: s.Style, KindScript: s.Script} {
		if n := len([]rune(text)); n > MaxSourceLength {
			return fmt.Errorf("%w: %s has %d characters", ErrSourceTooLong, kind, n)
		}
	}
	return nil
}

// SandboxTokens is the capability set granted to the preview frame.
// allow-same-origin is never granted.
var SandboxTokens = []string{
	"allow-scripts",
	"allow-forms",
	"allow-modals",
	"allow-pointer-lock",
	"allow-popups",
}

// SandboxAttribute renders the iframe sandbox attribute value
func SandboxAttribute() string {
	return strings.Join(SandboxTokens, " ")
}

// ContentSecurityPolicy is served with frame documents so the browser
// applies the same sandbox even when the document is opened directly.
func ContentSecurityPolicy() string {
	return "sandbox " + SandboxAttribute()
}

// MessageChannel tags every message the shim posts to the host page
const MessageChannel = "gamecode-preview"

// Document is one assembled render
type Document struct {
	Generation    uint64 `json:"generation"`
	HTML          string `json:"html"`
	ScriptOmitted bool   `json:"script_omitted,omitempty"`
}

// AssembleOptions tweaks assembly
type AssembleOptions struct {
	// OmitScript leaves the behaviour fragment out entirely, used when a
	// pre-check already found a syntax error.
	OmitScript bool
}

const resetStyle = `* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: system-ui, -apple-system, sans-serif; }`

// Assemble combines the three fragments into one self-contained document.
// The diagnostic shim and the learner script live in separate script
// elements, so a syntax error in the learner script only disables that
// element and is still reported through window.onerror.
func Assemble(src Source, generation uint64, opts AssembleOptions) Document {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"UTF-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("<title>Preview</title>\n")
	b.WriteString("<style>\n")
	b.WriteString(resetStyle)
	b.WriteString("\n")
	b.WriteString(escapeClosingTag(src.Style, "style"))
	b.WriteString("\n</style>\n")
	b.WriteString("<script>\n")
	b.WriteString(shim(generation))
	b.WriteString("</script>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString(src.Markup)
	b.WriteString("\n")

	if !opts.OmitScript {
		b.WriteString("<script>\n")
		b.WriteString(guard(src.Script))
		b.WriteString("</script>\n")
	}

	b.WriteString("</body>\n</html>\n")

	return Document{
		Generation:    generation,
		HTML:          b.String(),
		ScriptOmitted: opts.OmitScript,
	}
}

// escapeClosingTag keeps learner text from terminating its raw-text element
func escapeClosingTag(text, tag string) string {
	needle := "</" + tag
	var b strings.Builder
	start := 0
	for i := 0; i+len(needle) <= len(text); i++ {
		if text[i] == '<' && strings.EqualFold(text[i:i+len(needle)], needle) {
			b.WriteString(text[start:i])
			b.WriteString(`<\/`)
			start = i + 2
			i++
		}
	}
	if start == 0 {
		return text
	}
	b.WriteString(text[start:])
	return b.String()
}

// escapeScript keeps learner script inside its element. Besides closing
// tags, "<!--" followed by "<script" would switch the parser into the
// escaped state and swallow the real closing tag.
func escapeScript(script string) string {
	return strings.ReplaceAll(escapeClosingTag(script, "script"), "<!--", `<\!--`)
}

func guard(script string) string {
	return "try {\n" + escapeScript(script) + "\n} catch (err) {\n" +
		"  console.error(err && err.message ? (err.name || 'Error') + ': ' + err.message : String(err));\n}\n"
}

func shim(generation uint64) string {
	return `(function () {
  var channel = ` + strconv.Quote(MessageChannel) + `;
  var generation = ` + strconv.FormatUint(generation, 10) + `;
  function post(payload) {
    payload.channel = channel;
    payload.generation = generation;
    try { window.parent.postMessage(payload, '*'); } catch (e) {}
  }
  function text(args) {
    return Array.prototype.map.call(args, function (a) {
      if (typeof a === 'object' && a !== null) {
        try { return JSON.stringify(a); } catch (e) { return String(a); }
      }
      return String(a);
    }).join(' ');
  }
  ['log', 'warn', 'error'].forEach(function (severity) {
    var original = console[severity];
    console[severity] = function () {
      if (original) { original.apply(console, arguments); }
      post({ kind: 'console', severity: severity, text: text(arguments) });
    };
  });
  window.onerror = function (message, source, line, column) {
    post({ kind: 'error', text: String(message), line: line || 0, column: column || 0 });
    return false;
  };
  window.addEventListener('load', function () { post({ kind: 'ready' }); });
})();
`
}
