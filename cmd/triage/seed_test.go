package main

import (
	"context"
	"strings"
	"testing"

	"go.yaml.in/yaml/v3"

	"github.com/kestrelworks/triage/internal/board"
	"github.com/kestrelworks/triage/pkg/models"
)

func parseFixture(t *testing.T, doc string) seedFixture {
	t.Helper()
	var fixture seedFixture
	if err := yaml.Unmarshal([]byte(doc), &fixture); err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return fixture
}

func TestBoardFromFixture(t *testing.T) {
	fixture := parseFixture(t, `
clients:
  - id: c-acme
    name: Acme
projects:
  - id: p-web
    client: c-acme
    name: Website Revamp
assignees:
  - id: a-dana
    name: Dana
    capacity: 10
    expertise:
      development: 0.9
tasks:
  - id: T-101
    title: Login flow rework
    client: c-acme
    project: p-web
    assignee: a-dana
    priority: high
    estimated_hours: 4
    tags: [development]
  - id: T-102
    title: Checkout audit
    client: c-acme
    depends_on: [T-101]
`)

	mem, err := boardFromFixture(fixture)
	if err != nil {
		t.Fatalf("boardFromFixture: %v", err)
	}

	ctx := context.Background()
	clients, err := mem.FindClients(ctx, "")
	if err != nil || len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d (err %v)", len(clients), err)
	}
	if clients[0].Name != "Acme" {
		t.Errorf("client name = %q, want Acme", clients[0].Name)
	}

	task, ok := mem.Task("T-101")
	if !ok {
		t.Fatal("expected task T-101 on the board")
	}
	if task.Priority != models.PriorityHigh {
		t.Errorf("T-101 priority = %s, want high", task.Priority)
	}
	if task.Status != models.TaskStatusOpen {
		t.Errorf("T-101 status = %s, want open (default)", task.Status)
	}
	if task.EstimatedHours != 4 {
		t.Errorf("T-101 estimate = %v, want 4", task.EstimatedHours)
	}

	dep, ok := mem.Task("T-102")
	if !ok {
		t.Fatal("expected task T-102 on the board")
	}
	if dep.Priority != models.PriorityNormal {
		t.Errorf("T-102 priority = %s, want normal (default)", dep.Priority)
	}
	if !dep.DependsOnTask("T-101") {
		t.Error("expected T-102 to depend on T-101")
	}
}

func TestBoardFromFixtureValidation(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "client without name",
			doc:     "clients:\n  - id: c-acme\n",
			wantErr: "id and name",
		},
		{
			name:    "project without client",
			doc:     "projects:\n  - id: p-web\n    name: Website\n",
			wantErr: "id and client",
		},
		{
			name:    "assignee without id",
			doc:     "assignees:\n  - name: Dana\n",
			wantErr: "needs an id",
		},
		{
			name:    "task without title",
			doc:     "tasks:\n  - id: T-1\n",
			wantErr: "id and title",
		},
		{
			name:    "task with bad status",
			doc:     "tasks:\n  - id: T-1\n    title: A thing\n    status: paused\n",
			wantErr: "unknown status",
		},
		{
			name:    "task with bad priority",
			doc:     "tasks:\n  - id: T-1\n    title: A thing\n    priority: sometime\n",
			wantErr: "priority",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := boardFromFixture(parseFixture(t, tt.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestBoardFromFixtureEmpty(t *testing.T) {
	mem, err := boardFromFixture(seedFixture{})
	if err != nil {
		t.Fatalf("empty fixture should load: %v", err)
	}
	tasks, err := mem.ListOpenTasks(context.Background(), board.Scope{})
	if err != nil {
		t.Fatalf("list open tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected an empty board, got %d tasks", len(tasks))
	}
}
