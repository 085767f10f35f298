package board

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kestrelworks/triage/pkg/models"
)

// Memory is an in-process Board used by tests and by the CLI demo mode. It
// enforces the same refusals a real platform would (unknown references,
// illegal status transitions) and supports scripted failures so retry
// behavior can be exercised.
type Memory struct {
	mu        sync.RWMutex
	clients   map[string]models.Client
	projects  map[string]models.Project
	assignees map[string]models.Assignee
	tasks     map[string]models.Task
	comments  map[string][]string
	nextNum   int
	failN     int
	failErr   error
}

// NewMemory creates an empty in-memory board. Allocated task IDs start at
// T-100.
func NewMemory() *Memory {
	return &Memory{
		clients:   make(map[string]models.Client),
		projects:  make(map[string]models.Project),
		assignees: make(map[string]models.Assignee),
		tasks:     make(map[string]models.Task),
		comments:  make(map[string][]string),
		nextNum:   100,
	}
}

// FailNext makes the next n calls fail with err before any state change.
// Used to script outages in tests.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN = n
	m.failErr = err
}

// gate consumes one scripted failure, if any. Callers hold m.mu.
func (m *Memory) gate() error {
	if m.failN > 0 {
		m.failN--
		return m.failErr
	}
	return nil
}

// PutClient seeds or replaces a client.
func (m *Memory) PutClient(c models.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

// PutProject seeds or replaces a project.
func (m *Memory) PutProject(p models.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
}

// PutAssignee seeds or replaces an assignee.
func (m *Memory) PutAssignee(a models.Assignee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignees[a.ID] = a
}

// PutTask seeds or replaces a task, keeping its ID. The ID allocator
// advances past seeded T-n identifiers so CreateTask never reuses one.
func (m *Memory) PutTask(t models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	if n, err := strconv.Atoi(strings.TrimPrefix(t.ID, "T-")); err == nil && n >= m.nextNum {
		m.nextNum = n + 1
	}
}

// Task returns a stored task by ID.
func (m *Memory) Task(id string) (models.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// Comments returns the comments attached to a task.
func (m *Memory) Comments(taskID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.comments[taskID]))
	copy(out, m.comments[taskID])
	return out
}

// FindClients implements Board.
func (m *Memory) FindClients(_ context.Context, query string) ([]models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.Client
	for _, c := range m.clients {
		if q == "" || strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindProjects implements Board.
func (m *Memory) FindProjects(_ context.Context, clientID string) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return nil, err
	}

	var out []models.Project
	for _, p := range m.projects {
		if clientID == "" || p.ClientID == clientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindAssignees implements Board.
func (m *Memory) FindAssignees(_ context.Context) ([]models.Assignee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return nil, err
	}

	out := make([]models.Assignee, 0, len(m.assignees))
	for _, a := range m.assignees {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListOpenTasks implements Board.
func (m *Memory) ListOpenTasks(_ context.Context, scope Scope) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return nil, err
	}

	var out []models.Task
	for _, t := range m.tasks {
		if !t.Status.Open() {
			continue
		}
		if scope.ProjectID != "" && t.ProjectID != scope.ProjectID {
			continue
		}
		if scope.ProjectID == "" && scope.ClientID != "" && t.ClientID != scope.ClientID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateTask implements Board. Unknown client, project or assignee
// references are rejected; a draft without an ID gets a sequential one.
func (m *Memory) CreateTask(_ context.Context, draft models.Task) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return models.Task{}, err
	}

	if draft.ClientID != "" {
		if _, ok := m.clients[draft.ClientID]; !ok {
			return models.Task{}, fmt.Errorf("unknown client %s: %w", draft.ClientID, ErrRemoteRejected)
		}
	}
	if draft.ProjectID != "" {
		if _, ok := m.projects[draft.ProjectID]; !ok {
			return models.Task{}, fmt.Errorf("unknown project %s: %w", draft.ProjectID, ErrRemoteRejected)
		}
	}
	if draft.AssigneeID != "" {
		if _, ok := m.assignees[draft.AssigneeID]; !ok {
			return models.Task{}, fmt.Errorf("unknown assignee %s: %w", draft.AssigneeID, ErrRemoteRejected)
		}
	}
	for _, dep := range draft.DependsOn {
		if _, ok := m.tasks[dep]; !ok {
			return models.Task{}, fmt.Errorf("unknown dependency %s: %w", dep, ErrRemoteRejected)
		}
	}

	if draft.ID == "" {
		draft.ID = fmt.Sprintf("T-%d", m.nextNum)
		m.nextNum++
	} else if _, ok := m.tasks[draft.ID]; ok {
		return models.Task{}, fmt.Errorf("duplicate task %s: %w", draft.ID, ErrRemoteRejected)
	}

	m.tasks[draft.ID] = draft
	return draft, nil
}

// UpdateTask implements Board. Status changes must follow the task
// lifecycle.
func (m *Memory) UpdateTask(_ context.Context, id string, patch TaskPatch) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return models.Task{}, err
	}

	t, ok := m.tasks[id]
	if !ok {
		return models.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		if !t.Status.CanTransitionTo(*patch.Status) {
			return models.Task{}, fmt.Errorf("cannot move task %s from %s to %s: %w", id, t.Status, *patch.Status, ErrRemoteRejected)
		}
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID != "" {
			if _, ok := m.assignees[*patch.AssigneeID]; !ok {
				return models.Task{}, fmt.Errorf("unknown assignee %s: %w", *patch.AssigneeID, ErrRemoteRejected)
			}
		}
		t.AssigneeID = *patch.AssigneeID
	}
	for _, dep := range patch.AddDependsOn {
		if _, ok := m.tasks[dep]; !ok {
			return models.Task{}, fmt.Errorf("unknown dependency %s: %w", dep, ErrRemoteRejected)
		}
		t.DependsOn = append(t.DependsOn, dep)
	}

	m.tasks[id] = t
	return t, nil
}

// AddComment implements Board.
func (m *Memory) AddComment(_ context.Context, taskID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate(); err != nil {
		return err
	}

	if _, ok := m.tasks[taskID]; !ok {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	m.comments[taskID] = append(m.comments[taskID], text)
	return nil
}
