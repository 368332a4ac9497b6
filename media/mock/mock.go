// Package mock provides a recording media.Runner for tests. Every ffmpeg
// invocation "succeeds" by writing a fake media file at its last argument
// unless a failure rule matches.
package mock

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"ad-video-pipeline/media"
)

var _ media.Runner = (*Runner)(nil)

// Call is one recorded invocation
type Call struct {
	Name string
	Args []string
}

// Line joins the call back into a command line for substring assertions
func (c Call) Line() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Output returns the last argument, which for ffmpeg is the output file
func (c Call) Output() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}

// Runner records calls and fakes their side effects
type Runner struct {
	mu    sync.Mutex
	calls []Call

	// FailIf makes Run return an error when it returns true for a call.
	FailIf func(c Call) bool

	// Duration is what ffprobe reports. ProbeErr, if set, makes every probe
	// fail instead.
	Duration float64
	ProbeErr error

	// OutputBytes is the size of the fake media written for successful
	// ffmpeg calls; 0 means 4096.
	OutputBytes int
}

func (r *Runner) Run(_ context.Context, name string, args ...string) error {
	c := r.record(name, args)
	if r.FailIf != nil && r.FailIf(c) {
		return fmt.Errorf("mock: %s failed", name)
	}
	if name != "ffmpeg" {
		return nil
	}
	out := c.Output()
	if out == "" || strings.HasPrefix(out, "-") {
		return nil
	}
	size := r.OutputBytes
	if size == 0 {
		size = 4096
	}
	return os.WriteFile(out, make([]byte, size), 0644)
}

func (r *Runner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	c := r.record(name, args)
	if r.FailIf != nil && r.FailIf(c) {
		return nil, fmt.Errorf("mock: %s failed", name)
	}
	if r.ProbeErr != nil {
		return nil, r.ProbeErr
	}
	return []byte(fmt.Sprintf("%.6f\n", r.Duration)), nil
}

func (r *Runner) record(name string, args []string) Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Call{Name: name, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, c)
	return c
}

// Calls returns every recorded call in order
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Matching returns the ffmpeg calls whose command line contains every substr
func (r *Runner) Matching(substr ...string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Name != "ffmpeg" {
			continue
		}
		line := c.Line()
		ok := true
		for _, s := range substr {
			if !strings.Contains(line, s) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
