package board

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelworks/triage/internal/logging"
	"github.com/kestrelworks/triage/pkg/models"
)

// DefaultMaxRetries bounds how many times a call is reattempted after the
// first failure.
const DefaultMaxRetries = 3

// DefaultRetryBase is the first backoff delay; it doubles per attempt.
const DefaultRetryBase = 500 * time.Millisecond

// Retrying decorates a Board with bounded exponential backoff on
// ErrRemoteUnavailable. Terminal errors pass through immediately.
type Retrying struct {
	next Board
	max  int
	base time.Duration
	log  zerolog.Logger
}

// WithRetry wraps next with the retry policy. Non-positive maxRetries or
// base fall back to the defaults.
func WithRetry(next Board, maxRetries int, base time.Duration) *Retrying {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if base <= 0 {
		base = DefaultRetryBase
	}
	return &Retrying{
		next: next,
		max:  maxRetries,
		base: base,
		log:  logging.Component("board"),
	}
}

// do runs fn, reattempting on retryable errors with exponential backoff
// until the attempt budget or the context runs out.
func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.max; attempt++ {
		if attempt > 0 {
			delay := r.base * time.Duration(1<<uint(attempt-1))
			r.log.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("board unavailable, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// FindClients implements Board.
func (r *Retrying) FindClients(ctx context.Context, query string) ([]models.Client, error) {
	var out []models.Client
	err := r.do(ctx, "find_clients", func() error {
		var err error
		out, err = r.next.FindClients(ctx, query)
		return err
	})
	return out, err
}

// FindProjects implements Board.
func (r *Retrying) FindProjects(ctx context.Context, clientID string) ([]models.Project, error) {
	var out []models.Project
	err := r.do(ctx, "find_projects", func() error {
		var err error
		out, err = r.next.FindProjects(ctx, clientID)
		return err
	})
	return out, err
}

// FindAssignees implements Board.
func (r *Retrying) FindAssignees(ctx context.Context) ([]models.Assignee, error) {
	var out []models.Assignee
	err := r.do(ctx, "find_assignees", func() error {
		var err error
		out, err = r.next.FindAssignees(ctx)
		return err
	})
	return out, err
}

// ListOpenTasks implements Board.
func (r *Retrying) ListOpenTasks(ctx context.Context, scope Scope) ([]models.Task, error) {
	var out []models.Task
	err := r.do(ctx, "list_open_tasks", func() error {
		var err error
		out, err = r.next.ListOpenTasks(ctx, scope)
		return err
	})
	return out, err
}

// CreateTask implements Board.
func (r *Retrying) CreateTask(ctx context.Context, draft models.Task) (models.Task, error) {
	var out models.Task
	err := r.do(ctx, "create_task", func() error {
		var err error
		out, err = r.next.CreateTask(ctx, draft)
		return err
	})
	return out, err
}

// UpdateTask implements Board.
func (r *Retrying) UpdateTask(ctx context.Context, id string, patch TaskPatch) (models.Task, error) {
	var out models.Task
	err := r.do(ctx, "update_task", func() error {
		var err error
		out, err = r.next.UpdateTask(ctx, id, patch)
		return err
	})
	return out, err
}

// AddComment implements Board.
func (r *Retrying) AddComment(ctx context.Context, taskID, text string) error {
	return r.do(ctx, "add_comment", func() error {
		return r.next.AddComment(ctx, taskID, text)
	})
}
