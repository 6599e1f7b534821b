package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const maxStderrBytes = 2048

// RunResult holds captured output of an external command
type RunResult struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external tools with a timeout
type Runner struct {
	timeout time.Duration
	dir     string
}

// NewRunner creates a runner. A zero timeout only relies on the caller's context.
func NewRunner(timeout time.Duration, dir string) *Runner {
	return &Runner{timeout: timeout, dir: dir}
}

// Run executes name with args and captures its output
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*RunResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return result, fmt.Errorf("%s is not installed or not on PATH: %w", name, err)
		case ctx.Err() != nil:
			return result, fmt.Errorf("%s did not finish: %w", name, ctx.Err())
		default:
			return result, fmt.Errorf("%s failed: %w: %s", name, err, tail(result.Stderr, maxStderrBytes))
		}
	}
	return result, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
