package models

import (
	"testing"
	"time"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"draft is valid", TaskStatusDraft, true},
		{"open is valid", TaskStatusOpen, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"blocked is valid", TaskStatusBlocked, true},
		{"done is valid", TaskStatusDone, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
		{"typo status is invalid", TaskStatus("draftt"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Open(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusDraft, false},
		{TaskStatusOpen, true},
		{TaskStatusInProgress, true},
		{TaskStatusBlocked, true},
		{TaskStatusDone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Open(); got != tt.want {
				t.Errorf("TaskStatus(%q).Open() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"draft to open", TaskStatusDraft, TaskStatusOpen, true},
		{"draft to blocked", TaskStatusDraft, TaskStatusBlocked, true},
		{"draft to done", TaskStatusDraft, TaskStatusDone, false},
		{"open to in_progress", TaskStatusOpen, TaskStatusInProgress, true},
		{"open to done", TaskStatusOpen, TaskStatusDone, true},
		{"open to draft", TaskStatusOpen, TaskStatusDraft, false},
		{"blocked to open", TaskStatusBlocked, TaskStatusOpen, true},
		{"blocked to done", TaskStatusBlocked, TaskStatusDone, false},
		{"in_progress to done", TaskStatusInProgress, TaskStatusDone, true},
		{"in_progress to blocked", TaskStatusInProgress, TaskStatusBlocked, true},
		{"done is terminal", TaskStatusDone, TaskStatusOpen, false},
		{"no self transition", TaskStatusOpen, TaskStatusOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q -> %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestParseTaskStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TaskStatus
		wantErr bool
	}{
		{"lowercase", "open", TaskStatusOpen, false},
		{"uppercase", "BLOCKED", TaskStatusBlocked, false},
		{"padded", "  draft  ", TaskStatusDraft, false},
		{"unknown", "archived", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTaskStatus(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTaskStatus(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTaskStatus(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPriority_Weight(t *testing.T) {
	tests := []struct {
		priority Priority
		want     float64
	}{
		{PriorityUrgent, 3},
		{PriorityHigh, 2},
		{PriorityNormal, 1},
		{PriorityLow, 0.5},
		{Priority(""), 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			if got := tt.priority.Weight(); got != tt.want {
				t.Errorf("Priority(%q).Weight() = %v, want %v", tt.priority, got, tt.want)
			}
		})
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Priority
		wantErr bool
	}{
		{"lowercase", "urgent", PriorityUrgent, false},
		{"mixed case", "High", PriorityHigh, false},
		{"padded", " low ", PriorityLow, false},
		{"unknown", "medium", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePriority(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriority(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePriority(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTask_DependsOnTask(t *testing.T) {
	task := Task{
		ID:        "t-1",
		DependsOn: []string{"t-2", "t-3"},
	}

	if !task.DependsOnTask("t-2") {
		t.Error("DependsOnTask(t-2) = false, want true")
	}
	if task.DependsOnTask("t-4") {
		t.Error("DependsOnTask(t-4) = true, want false")
	}

	empty := Task{ID: "t-5"}
	if empty.DependsOnTask("t-2") {
		t.Error("task with no dependencies should not depend on anything")
	}
}

func TestTask_Fields(t *testing.T) {
	now := time.Now()

	task := Task{
		ID:             "task-123",
		Title:          "Fix login bug",
		Description:    "Fix the login bug reported by Acme",
		ClientID:       "client-1",
		ProjectID:      "project-2",
		Priority:       PriorityHigh,
		Status:         TaskStatusDraft,
		AssigneeID:     "dev-7",
		DependsOn:      []string{"task-100"},
		Tags:           []string{"bug", "auth"},
		EstimatedHours: 4,
		CreatedAt:      now,
	}

	if task.ID != "task-123" {
		t.Errorf("Task.ID = %q, want %q", task.ID, "task-123")
	}
	if task.Priority != PriorityHigh {
		t.Errorf("Task.Priority = %q, want %q", task.Priority, PriorityHigh)
	}
	if task.Status != TaskStatusDraft {
		t.Errorf("Task.Status = %q, want %q", task.Status, TaskStatusDraft)
	}
	if len(task.DependsOn) != 1 {
		t.Errorf("Task.DependsOn length = %d, want 1", len(task.DependsOn))
	}
	if !task.CreatedAt.Equal(now) {
		t.Errorf("Task.CreatedAt = %v, want %v", task.CreatedAt, now)
	}
}

func TestAssignee_Remaining(t *testing.T) {
	tests := []struct {
		name     string
		assignee Assignee
		want     float64
	}{
		{"half loaded", Assignee{Load: 2, Capacity: 4}, 2},
		{"empty", Assignee{Load: 0, Capacity: 3}, 3},
		{"full", Assignee{Load: 4, Capacity: 4}, 0},
		{"overloaded clamps to zero", Assignee{Load: 6, Capacity: 4}, 0},
		{"zero capacity", Assignee{Load: 0, Capacity: 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.assignee.Remaining(); got != tt.want {
				t.Errorf("Remaining() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssignee_NormalizedLoad(t *testing.T) {
	tests := []struct {
		name     string
		assignee Assignee
		want     float64
	}{
		{"half loaded", Assignee{Load: 2, Capacity: 4}, 0.5},
		{"empty", Assignee{Load: 0, Capacity: 4}, 0},
		{"overloaded clamps to one", Assignee{Load: 8, Capacity: 4}, 1},
		{"zero capacity is fully loaded", Assignee{Load: 0, Capacity: 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.assignee.NormalizedLoad(); got != tt.want {
				t.Errorf("NormalizedLoad() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConflict_Overridable(t *testing.T) {
	tests := []struct {
		kind ConflictKind
		want bool
	}{
		{ConflictCycle, false},
		{ConflictOverload, true},
		{ConflictScheduling, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c := Conflict{Kind: tt.kind}
			if got := c.Overridable(); got != tt.want {
				t.Errorf("Conflict{%q}.Overridable() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}
