// Package deps infers depends-on relationships between tasks and maintains
// the dependency graph those relationships live in. The graph is acyclic at
// all times: every edge is checked for cycle closure before it is accepted,
// and rejected edges surface as conflicts rather than disappearing.
package deps

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kestrelworks/triage/pkg/models"
)

// ErrCycleDetected indicates an edge would create a circular dependency.
var ErrCycleDetected = errors.New("circular dependency detected")

// Graph is a directed acyclic graph of task dependencies. Tasks are nodes;
// an edge from A to B means A depends on B. All methods are safe for
// concurrent use; mutations serialize on the graph's lock.
type Graph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
	// completed tracks tasks marked complete by external updates.
	completed map[string]bool
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build populates the graph from a slice of tasks, using their DependsOn
// fields as edges. Rebuilding with tasks already present is a no-op for
// their existing edges. Returns an error if a dependency references an
// unknown task or the combined edges contain a cycle.
func (g *Graph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		g.nodes[task.ID] = task
		if g.edges[task.ID] == nil {
			g.edges[task.ID] = nil
		}
		if task.Status == models.TaskStatusDone {
			g.completed[task.ID] = true
		}
	}

	for _, task := range tasks {
	deps:
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			for _, existing := range g.edges[task.ID] {
				if existing == depID {
					continue deps
				}
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// AddTask registers a task as a node, replacing any previous copy. Existing
// edges for the task are preserved.
func (g *Graph) AddTask(task *models.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[task.ID] = task
	if task.Status == models.TaskStatusDone {
		g.completed[task.ID] = true
	}
}

// AddEdge records that dependent depends on prerequisite. The edge is
// rejected with ErrCycleDetected if the prerequisite already reaches the
// dependent through existing edges, so the graph stays acyclic.
func (g *Graph) AddEdge(dependentID, prerequisiteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[dependentID]; !exists {
		return fmt.Errorf("unknown dependent task %s", dependentID)
	}
	if _, exists := g.nodes[prerequisiteID]; !exists {
		return fmt.Errorf("unknown prerequisite task %s", prerequisiteID)
	}
	if dependentID == prerequisiteID {
		return fmt.Errorf("task %s cannot depend on itself: %w", dependentID, ErrCycleDetected)
	}
	for _, existing := range g.edges[dependentID] {
		if existing == prerequisiteID {
			return nil
		}
	}
	if g.reachesLocked(prerequisiteID, dependentID) {
		return fmt.Errorf("edge %s -> %s: %w", dependentID, prerequisiteID, ErrCycleDetected)
	}

	g.edges[dependentID] = append(g.edges[dependentID], prerequisiteID)
	return nil
}

// RemoveTask deletes a task, its outgoing edges, and every edge pointing
// at it.
func (g *Graph) RemoveTask(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.nodes, taskID)
	delete(g.edges, taskID)
	delete(g.completed, taskID)
	for id, deps := range g.edges {
		kept := deps[:0]
		for _, depID := range deps {
			if depID != taskID {
				kept = append(kept, depID)
			}
		}
		g.edges[id] = kept
	}
}

// Reaches reports whether from can reach to by following depends-on edges.
func (g *Graph) Reaches(fromID, toID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachesLocked(fromID, toID)
}

func (g *Graph) reachesLocked(fromID, toID string) bool {
	if fromID == toID {
		return true
	}
	visited := make(map[string]bool)
	stack := []string{fromID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			if depID == toID {
				return true
			}
			if !visited[depID] {
				stack = append(stack, depID)
			}
		}
	}
	return false
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

func (g *Graph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// TopologicalSort returns task IDs with every prerequisite before its
// dependents. Returns ErrCycleDetected if the graph has a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	// Iterate in sorted order so the output is deterministic.
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}
	return result, nil
}

// MarkComplete marks a task as completed, unblocking its dependents in
// subsequent Ready calls.
func (g *Graph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
}

// Ready returns task IDs whose prerequisites are all complete and that are
// not complete themselves, sorted for determinism.
func (g *Graph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, task := range g.nodes {
		if g.completed[id] || task.Status == models.TaskStatusDone {
			continue
		}
		blocked := false
		for _, depID := range g.edges[id] {
			if g.completed[depID] {
				continue
			}
			if dep, exists := g.nodes[depID]; !exists || dep.Status != models.TaskStatusDone {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// Task returns the task for an ID, or nil if not present.
func (g *Graph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs the given task depends on.
func (g *Graph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	deps := make([]string, len(g.edges[taskID]))
	copy(deps, g.edges[taskID])
	return deps
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// TransitiveDependents returns every task that directly or indirectly
// depends on the given task. Used to rank bottlenecks: the more dependents
// a task blocks, the more urgent its completion.
func (g *Graph) TransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reverse := make(map[string][]string)
	for id, deps := range g.edges {
		for _, depID := range deps {
			reverse[depID] = append(reverse[depID], id)
		}
	}

	visited := make(map[string]bool)
	stack := []string{taskID}
	var result []string
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range reverse[id] {
			if !visited[dep] {
				visited[dep] = true
				result = append(result, dep)
				stack = append(stack, dep)
			}
		}
	}
	sort.Strings(result)
	return result
}
