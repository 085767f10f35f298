package models

import "fmt"

// ConflictKind identifies the category of a detected conflict.
type ConflictKind string

const (
	// ConflictCycle means a proposed dependency edge would close a cycle.
	ConflictCycle ConflictKind = "cycle"
	// ConflictOverload means an assignment would push an assignee past
	// their capacity ceiling times the overload factor.
	ConflictOverload ConflictKind = "overload"
	// ConflictScheduling means an urgent task depends on a task nobody owns.
	ConflictScheduling ConflictKind = "scheduling"
)

// Conflict records one detected violation. Conflicts are data, not errors:
// components return them so the orchestrator can compose partial results
// and surface every violation to the requester.
type Conflict struct {
	// Kind is the conflict category.
	Kind ConflictKind `json:"kind"`
	// TaskID is the task whose intake raised the conflict.
	TaskID string `json:"task_id"`
	// AssigneeID is the affected assignee, for overload conflicts.
	AssigneeID string `json:"assignee_id,omitempty"`
	// PrerequisiteID is the other task involved, for cycle and scheduling conflicts.
	PrerequisiteID string `json:"prerequisite_id,omitempty"`
	// Detail is a human-readable explanation.
	Detail string `json:"detail"`
}

// Overridable reports whether the conflict may be overridden by a requester
// holding the override permission. Cycle conflicts never are: the edge stays
// rejected because accepting it would corrupt the graph.
func (c Conflict) Overridable() bool {
	return c.Kind != ConflictCycle
}

// String returns a short one-line description.
func (c Conflict) String() string {
	switch c.Kind {
	case ConflictCycle:
		return fmt.Sprintf("cycle: edge %s -> %s would close a dependency cycle", c.TaskID, c.PrerequisiteID)
	case ConflictOverload:
		return fmt.Sprintf("overload: assigning %s would exceed %s's capacity", c.TaskID, c.AssigneeID)
	case ConflictScheduling:
		return fmt.Sprintf("scheduling: urgent task %s depends on unassigned task %s", c.TaskID, c.PrerequisiteID)
	default:
		return fmt.Sprintf("%s: %s", c.Kind, c.Detail)
	}
}
