// Package sandbox runs untrusted learner code inside throwaway Docker
// containers. The preview uses it to parse behaviour scripts with node
// before they reach a browser frame.
package sandbox

import (
	"errors"
	"time"
)

// ExecResult holds the output from a sandbox execution.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Config holds container parameters.
type Config struct {
	Image      string        `yaml:"image"`
	MemoryMB   int           `yaml:"memory_mb"`
	CPULimit   float64       `yaml:"cpu_limit"`
	NetworkOff bool          `yaml:"network_off"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultConfig returns defaults for the node syntax checker.
func DefaultConfig() Config {
	return Config{
		Image:      "node:20-alpine",
		MemoryMB:   128,
		CPULimit:   0.5,
		NetworkOff: true,
		Timeout:    5 * time.Second,
	}
}

var (
	ErrUnavailable = errors.New("sandbox unavailable")
	ErrClosed      = errors.New("sandbox closed")
)
