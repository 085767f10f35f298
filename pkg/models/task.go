package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusDraft indicates the task exists only as an uncommitted intake draft.
	TaskStatusDraft TaskStatus = "draft"
	// TaskStatusOpen indicates the task is committed to the board and ready to start.
	TaskStatusOpen TaskStatus = "open"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusBlocked indicates the task cannot proceed until prerequisites resolve.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusDone indicates the task completed.
	TaskStatusDone TaskStatus = "done"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusDraft, TaskStatusOpen, TaskStatusInProgress, TaskStatusBlocked, TaskStatusDone:
		return true
	default:
		return false
	}
}

// Open reports whether the status counts toward an assignee's workload.
// Draft tasks are not yet committed and done tasks no longer consume effort.
func (s TaskStatus) Open() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// statusTransitions lists the allowed next statuses for each status.
// External board updates that violate this table are rejected when applied
// to the local cache.
var statusTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusDraft:      {TaskStatusOpen, TaskStatusBlocked},
	TaskStatusOpen:       {TaskStatusInProgress, TaskStatusBlocked, TaskStatusDone},
	TaskStatusInProgress: {TaskStatusDone, TaskStatusBlocked},
	TaskStatusBlocked:    {TaskStatusOpen},
	TaskStatusDone:       {},
}

// CanTransitionTo returns true if a task may move from s to next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseTaskStatus converts a string to a TaskStatus, case-insensitively.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return status, nil
}

// Priority represents the urgency level of a task.
type Priority string

const (
	// PriorityLow is for tasks with no time pressure.
	PriorityLow Priority = "low"
	// PriorityNormal is the default priority.
	PriorityNormal Priority = "normal"
	// PriorityHigh is for tasks that should be handled soon.
	PriorityHigh Priority = "high"
	// PriorityUrgent is for tasks requiring immediate attention.
	PriorityUrgent Priority = "urgent"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Weight returns the workload weight of a task at this priority.
// Unknown priorities weigh the same as normal.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0.5
	default:
		return 1
	}
}

// ParsePriority converts a string to a Priority, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// Task represents a unit of work flowing through intake and onto the board.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description is the original free-text description.
	Description string `json:"description,omitempty"`
	// ClientID is the resolved client, empty until resolution succeeds.
	ClientID string `json:"client_id,omitempty"`
	// ProjectID is the resolved project, empty until resolution succeeds.
	ProjectID string `json:"project_id,omitempty"`
	// Priority is the urgency level.
	Priority Priority `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// AssigneeID is the selected assignee, empty if unassigned.
	AssigneeID string `json:"assignee_id,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Tags are expertise/category tags extracted from the description.
	Tags []string `json:"tags,omitempty"`
	// EstimatedHours is the effort estimate derived at intake.
	EstimatedHours float64 `json:"estimated_hours,omitempty"`
	// CreatedAt is when the task entered intake.
	CreatedAt time.Time `json:"created_at"`
	// Embedding is the vector representation of the description.
	// It stays local to the cache and is never sent to the board.
	Embedding []float64 `json:"-"`
}

// DependsOnTask returns true if id is a direct prerequisite of the task.
func (t *Task) DependsOnTask(id string) bool {
	for _, dep := range t.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

// DependencyEdge is a directed depends-on relationship between two tasks.
// The dependent task cannot start until the prerequisite completes.
type DependencyEdge struct {
	// DependentID is the task that waits.
	DependentID string `json:"dependent_id"`
	// PrerequisiteID is the task that must complete first.
	PrerequisiteID string `json:"prerequisite_id"`
}
