// Package flatten runs the external programs that resolve the scene-graph
// dependencies of proprietary scene files while they are installed.
package flatten

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
)

// DefaultTimeout bounds a single flattening run.
const DefaultTimeout = 30 * time.Minute

// waitDelay is how long a killed tool gets to release its output pipes.
const waitDelay = 5 * time.Second

// Tool is a flattening program and the file extensions it handles.
// It is invoked as Command... <source> <destination>.
type Tool struct {
	Name       string
	Extensions []string
	Command    []string
}

// Runner implements chasm.Flattener over a fixed set of tools.
type Runner struct {
	tools   []Tool
	timeout time.Duration
	logger  chasm.Logger
}

// NewRunner creates a Runner. A non-positive timeout uses DefaultTimeout.
func NewRunner(tools []Tool, timeout time.Duration, logger chasm.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = chasm.NewNopLogger()
	}
	return &Runner{tools: tools, timeout: timeout, logger: logger}
}

// Match returns the name of the first tool registered for filename's extension,
// or "" when none is.
func (r *Runner) Match(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ""
	}
	for _, t := range r.tools {
		for _, e := range t.Extensions {
			if strings.EqualFold(e, ext) {
				return t.Name
			}
		}
	}
	return ""
}

// Flatten runs the named tool on (src, dst). The tool's output is logged but not
// interpreted: exit status 0 is success and anything else is an error.
func (r *Runner) Flatten(ctx context.Context, tool, src, dst string) error {
	t, ok := r.lookup(tool)
	if !ok {
		return fmt.Errorf("unknown flattening tool %q", tool)
	}
	if len(t.Command) == 0 {
		return fmt.Errorf("flattening tool %q has no command", tool)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, t.Command[1:]...), src, dst)
	cmd := exec.CommandContext(ctx, t.Command[0], args...)
	cmd.WaitDelay = waitDelay

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("flattening tool finished",
		"tool", tool, "src", src, "dst", dst,
		"duration", time.Since(start).Round(time.Millisecond).String(),
		"output", strings.TrimSpace(output.String()))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", tool, r.timeout)
		}
		return fmt.Errorf("running %s: %w", tool, err)
	}
	return nil
}

func (r *Runner) lookup(name string) (Tool, bool) {
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Compile-time check that Runner implements chasm.Flattener.
var _ chasm.Flattener = (*Runner)(nil)
