package visuals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

var (
	// ErrPollTimeout is returned when a task is still pending after the last attempt.
	ErrPollTimeout = errors.New("video task did not finish in time")
	// ErrTaskFailed is returned when the service reports the task as failed.
	ErrTaskFailed = errors.New("video task failed")
)

// PollState is where a task poll loop stands
type PollState struct {
	Attempt    int
	LastStatus string
	Deadline   int // attempt ceiling
}

// Exhausted reports whether no attempts are left
func (s PollState) Exhausted() bool { return s.Attempt >= s.Deadline }

// Poller waits for a video task to reach a terminal status
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
}

// Poll waits Interval, fetches the task, and repeats until it succeeds, fails
// or MaxAttempts fetches have been made. Fetch errors and unknown statuses
// count as attempts and keep the loop going.
func (p Poller) Poll(ctx context.Context, fetch func(context.Context) (Task, error)) (Task, PollState, error) {
	state := PollState{Deadline: p.MaxAttempts}
	for !state.Exhausted() {
		if err := pause(ctx, p.Interval); err != nil {
			return Task{}, state, err
		}
		state.Attempt++

		task, err := fetch(ctx)
		if err != nil {
			state.LastStatus = "error"
			log.Printf("[clips]   poll %d/%d: %v", state.Attempt, state.Deadline, err)
			continue
		}
		state.LastStatus = task.Status

		switch task.Status {
		case StatusSucceeded:
			if task.Content.VideoURL == "" {
				return task, state, fmt.Errorf("%w: succeeded without a video url", ErrTaskFailed)
			}
			return task, state, nil
		case StatusFailed:
			msg := "unknown error"
			if task.Error != nil && task.Error.Message != "" {
				msg = task.Error.Message
			}
			return task, state, fmt.Errorf("%w: %s", ErrTaskFailed, msg)
		default:
			if state.Attempt%6 == 0 {
				log.Printf("[clips]   poll %d/%d: %s", state.Attempt, state.Deadline, task.Status)
			}
		}
	}
	return Task{}, state, fmt.Errorf("%w: %d attempts, last status %q", ErrPollTimeout, state.Attempt, state.LastStatus)
}
