// Package media wraps the external media engine (ffmpeg/ffprobe) and the
// placeholder convention every stage uses to degrade instead of failing.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes an external command. ExecRunner is the production
// implementation; tests use media/mock.
type Runner interface {
	// Run executes the command and returns an error on non-zero exit.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. Stderr, if set, receives a copy of
// the command's stderr; leave nil to keep runs quiet.
type ExecRunner struct {
	Stderr io.Writer
}

var _ Runner = (*ExecRunner)(nil)

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = r.stderr(&stderr)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 500))
	}
	return nil
}

func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = r.stderr(&stderr)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 500))
	}
	return out, nil
}

func (r *ExecRunner) stderr(buf *bytes.Buffer) io.Writer {
	if r.Stderr == nil {
		return buf
	}
	return io.MultiWriter(buf, r.Stderr)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
