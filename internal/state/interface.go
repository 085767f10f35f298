// Package state provides SQLite-based persistence for the triage core.
package state

import (
	"io"

	"github.com/kestrelworks/triage/pkg/models"
)

// EntityStore handles cached client, project, and assignee persistence.
type EntityStore interface {
	UpsertClient(c *models.Client) error
	GetClient(id string) (*models.Client, error)
	ListClients() ([]models.Client, error)
	UpsertProject(p *models.Project) error
	GetProject(id string) (*models.Project, error)
	ListProjects() ([]models.Project, error)
	UpsertAssignee(a *models.Assignee) error
	GetAssignee(id string) (*models.Assignee, error)
	ListAssignees() ([]models.Assignee, error)
}

// TaskStore handles cached task and dependency-edge persistence.
type TaskStore interface {
	UpsertTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks() ([]models.Task, error)
	ListEdges() ([]models.DependencyEdge, error)
	CommitIntake(t *models.Task, assignee *models.Assignee) error
}

// CacheStore defines the persistence surface the intake engine depends on.
// This interface allows the engine to work with any cache backend without
// depending on the concrete SQLite implementation.
type CacheStore interface {
	io.Closer
	EntityStore
	TaskStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ CacheStore  = (*DB)(nil)
	_ EntityStore = (*DB)(nil)
	_ TaskStore   = (*DB)(nil)
)
