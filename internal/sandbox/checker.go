package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/gamecodelab/gamecode/internal/preview"
)

const (
	workDir    = "/workspace"
	scriptFile = "script.js"
)

// Checker parses behaviour scripts with `node --check` inside one reused
// container. The container is created lazily and recreated after an
// exec failure.
type Checker struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu          sync.Mutex
	containerID string
	closed      bool
}

var _ preview.ScriptChecker = (*Checker)(nil)

// NewChecker creates a checker on top of backend.
func NewChecker(backend Backend, cfg Config, logger *slog.Logger) *Checker {
	def := DefaultConfig()
	if cfg.Image == "" {
		cfg.Image = def.Image
	}
	if cfg.MemoryMB == 0 {
		cfg.MemoryMB = def.MemoryMB
	}
	if cfg.CPULimit == 0 {
		cfg.CPULimit = def.CPULimit
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{backend: backend, cfg: cfg, logger: logger}
}

// CheckScript implements preview.ScriptChecker.
func (c *Checker) CheckScript(ctx context.Context, script string) (*preview.SyntaxError, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.containerID == "" {
		id, err := c.backend.CreateContainer(ctx, c.cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.containerID = id
		c.logger.Info("script checker container started", "container_id", shortID(id))
	}

	if err := c.backend.CopyFiles(ctx, c.containerID, map[string]string{scriptFile: script}); err != nil {
		c.resetLocked(ctx)
		return nil, fmt.Errorf("copy script: %w", err)
	}

	res, err := c.backend.Exec(ctx, c.containerID, []string{"node", "--check", scriptFile}, c.cfg.Timeout)
	if err != nil {
		c.resetLocked(ctx)
		return nil, fmt.Errorf("run node --check: %w", err)
	}

	if res.ExitCode == 0 {
		return nil, nil
	}

	synErr := ParseNodeSyntaxError(res.Stderr)
	if synErr == nil {
		return nil, fmt.Errorf("node --check exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return synErr, nil
}

// Close removes the container and releases the backend.
func (c *Checker) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.resetLocked(ctx)
	return c.backend.Close()
}

func (c *Checker) resetLocked(ctx context.Context) {
	if c.containerID == "" {
		return
	}
	if err := c.backend.DestroyContainer(ctx, c.containerID); err != nil {
		c.logger.Warn("failed to remove checker container", "container_id", shortID(c.containerID), "error", err)
	}
	c.containerID = ""
}

var locationLine = regexp.MustCompile(`^\S*` + regexp.QuoteMeta(scriptFile) + `:(\d+)\s*$`)

// ParseNodeSyntaxError extracts the line and message from `node --check`
// stderr. It returns nil when the output holds no SyntaxError.
func ParseNodeSyntaxError(stderr string) *preview.SyntaxError {
	var (
		line    int
		message string
	)
	for _, l := range strings.Split(stderr, "\n") {
		l = strings.TrimRight(l, "\r")
		if line == 0 {
			if m := locationLine.FindStringSubmatch(l); m != nil {
				line, _ = strconv.Atoi(m[1])
				continue
			}
		}
		if rest, ok := strings.CutPrefix(strings.TrimSpace(l), "SyntaxError:"); ok {
			message = strings.TrimSpace(rest)
			break
		}
	}
	if message == "" {
		return nil
	}
	return &preview.SyntaxError{Line: line, Message: message}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
