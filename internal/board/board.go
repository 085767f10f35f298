// Package board provides the client for the external work-management
// platform: task CRUD plus the client, project and assignee directories.
// The rest of the pipeline only sees this interface; everything behind it
// is remote and owned by the platform.
package board

import (
	"context"

	"github.com/kestrelworks/triage/pkg/models"
)

// Scope narrows a task listing. The zero value lists across the whole
// workspace; ProjectID wins over ClientID when both are set.
type Scope struct {
	// ClientID limits results to one client's tasks.
	ClientID string
	// ProjectID limits results to one project's tasks.
	ProjectID string
}

// TaskPatch is a partial update. Nil fields are left unchanged.
type TaskPatch struct {
	// Title replaces the task title.
	Title *string
	// Description replaces the task description.
	Description *string
	// Status moves the task to a new lifecycle state.
	Status *models.TaskStatus
	// Priority changes the task priority.
	Priority *models.Priority
	// AssigneeID reassigns the task; empty string unassigns.
	AssigneeID *string
	// AddDependsOn appends prerequisite task IDs.
	AddDependsOn []string
}

// Board is the platform client surface used by intake and reporting.
type Board interface {
	// FindClients returns clients matching the query, or all clients when
	// the query is empty.
	FindClients(ctx context.Context, query string) ([]models.Client, error)
	// FindProjects returns the projects belonging to a client, or every
	// project when clientID is empty.
	FindProjects(ctx context.Context, clientID string) ([]models.Project, error)
	// FindAssignees returns the assignable people with their current load
	// and capacity as the platform sees them.
	FindAssignees(ctx context.Context) ([]models.Assignee, error)
	// ListOpenTasks returns tasks whose status counts toward load within
	// the scope.
	ListOpenTasks(ctx context.Context, scope Scope) ([]models.Task, error)
	// CreateTask records a new task and returns it as stored, with the
	// platform-assigned ID when the draft carried none.
	CreateTask(ctx context.Context, draft models.Task) (models.Task, error)
	// UpdateTask applies a partial update and returns the updated task.
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (models.Task, error)
	// AddComment attaches a comment to a task.
	AddComment(ctx context.Context, taskID, text string) error
}
