// Package workload maintains per-assignee load and expertise profiles.
// Profiles are cached copies of board-owned truth; load figures are kept
// current locally as tasks are assigned and completed between refreshes.
package workload

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kestrelworks/triage/pkg/models"
)

// DefaultStaleness is the maximum profile age usable for a capacity
// decision when no bound is configured.
const DefaultStaleness = 5 * time.Minute

// profile wraps an assignee with its own lock so concurrent assignment to
// different assignees never contends on a global lock.
type profile struct {
	mu       sync.Mutex
	assignee models.Assignee
	// openTasks maps counted task IDs to their weights. It makes Assign
	// and Complete idempotent: a task is never counted or removed twice.
	openTasks map[string]float64
}

// Tracker tracks workload for all known assignees.
type Tracker struct {
	mu        sync.RWMutex
	profiles  map[string]*profile
	staleness time.Duration
}

// New creates a tracker with the given staleness bound. Non-positive
// bounds fall back to DefaultStaleness.
func New(staleness time.Duration) *Tracker {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &Tracker{
		profiles:  make(map[string]*profile),
		staleness: staleness,
	}
}

// Put registers or refreshes an assignee profile. The assignee's Load field
// is ignored: load is derived from the open tasks the tracker counts, so a
// refresh cannot un-count locally assigned work.
func (t *Tracker) Put(assignee models.Assignee) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.profiles[assignee.ID]; ok {
		existing.mu.Lock()
		load := existing.assignee.Load
		existing.assignee = assignee
		existing.assignee.Load = load
		existing.mu.Unlock()
		return
	}
	assignee.Load = 0
	t.profiles[assignee.ID] = &profile{
		assignee:  assignee,
		openTasks: make(map[string]float64),
	}
}

// SetOpenTasks replaces the counted open tasks for an assignee, typically
// after a board refresh. Load becomes the sum of the tasks' priority
// weights. Freshness is controlled by Put alone, so counting tasks from a
// stale snapshot does not mask the staleness.
func (t *Tracker) SetOpenTasks(assigneeID string, tasks []*models.Task) error {
	p, err := t.profile(assigneeID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.openTasks = make(map[string]float64, len(tasks))
	load := 0.0
	for _, task := range tasks {
		if !task.Status.Open() {
			continue
		}
		w := task.Priority.Weight()
		p.openTasks[task.ID] = w
		load += w
	}
	p.assignee.Load = load
	return nil
}

// Assign counts a task against its assignee's load. Counting the same task
// twice is a no-op, so retried commits stay correct.
func (t *Tracker) Assign(task *models.Task) error {
	if task.AssigneeID == "" {
		return fmt.Errorf("task %s has no assignee", task.ID)
	}
	p, err := t.profile(task.AssigneeID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, counted := p.openTasks[task.ID]; counted {
		return nil
	}
	w := task.Priority.Weight()
	p.openTasks[task.ID] = w
	p.assignee.Load += w
	return nil
}

// Complete removes a task from its assignee's load. Unknown or already
// removed tasks are a no-op.
func (t *Tracker) Complete(assigneeID, taskID string) error {
	p, err := t.profile(assigneeID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	w, counted := p.openTasks[taskID]
	if !counted {
		return nil
	}
	delete(p.openTasks, taskID)
	p.assignee.Load -= w
	return nil
}

// Reassign moves a task's weight from one assignee to another atomically.
// Profile locks are taken in ID order to avoid deadlock with a concurrent
// reassignment in the opposite direction.
func (t *Tracker) Reassign(task *models.Task, fromID, toID string) error {
	if fromID == toID {
		return nil
	}
	from, err := t.profile(fromID)
	if err != nil {
		return err
	}
	to, err := t.profile(toID)
	if err != nil {
		return err
	}

	first, second := from, to
	if fromID > toID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	w, counted := from.openTasks[task.ID]
	if !counted {
		w = task.Priority.Weight()
	} else {
		delete(from.openTasks, task.ID)
		from.assignee.Load -= w
	}
	if _, already := to.openTasks[task.ID]; !already {
		to.openTasks[task.ID] = w
		to.assignee.Load += w
	}
	return nil
}

// Load returns the assignee's current weighted load. Unknown assignees
// have zero load.
func (t *Tracker) Load(assigneeID string) float64 {
	p, err := t.profile(assigneeID)
	if err != nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assignee.Load
}

// CapacityRemaining returns how much weighted load the assignee can still
// take, floored at zero.
func (t *Tracker) CapacityRemaining(assigneeID string) float64 {
	p, err := t.profile(assigneeID)
	if err != nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.assignee.Remaining()
}

// ExpertiseMatch returns the confidence-weighted overlap between the
// assignee's expertise and the task's tags, in [0, 1]. No tags means no
// signal, which scores zero.
func (t *Tracker) ExpertiseMatch(assigneeID string, tags []string) float64 {
	p, err := t.profile(assigneeID)
	if err != nil {
		return 0
	}

	p.mu.Lock()
	expertise := p.assignee.Expertise
	p.mu.Unlock()

	return Match(expertise, tags)
}

// Match computes the confidence-weighted overlap between an expertise
// profile and a set of tags: the sum of matched confidences divided by the
// number of tags. Confidences outside [0, 1] are clamped.
func Match(expertise map[string]float64, tags []string) float64 {
	if len(tags) == 0 {
		return 0
	}
	total := 0.0
	for _, tag := range tags {
		best := 0.0
		for skill, conf := range expertise {
			if strings.EqualFold(skill, tag) {
				if conf > 1 {
					conf = 1
				}
				if conf < 0 {
					conf = 0
				}
				if conf > best {
					best = conf
				}
			}
		}
		total += best
	}
	return total / float64(len(tags))
}

// Snapshot returns a copy of the assignee's profile with its current load.
func (t *Tracker) Snapshot(assigneeID string) (models.Assignee, bool) {
	p, err := t.profile(assigneeID)
	if err != nil {
		return models.Assignee{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyAssignee(p.assignee), true
}

// Candidates returns a snapshot of every profile, sorted by assignee ID so
// downstream scoring is deterministic.
func (t *Tracker) Candidates() []models.Assignee {
	t.mu.RLock()
	profiles := make([]*profile, 0, len(t.profiles))
	for _, p := range t.profiles {
		profiles = append(profiles, p)
	}
	t.mu.RUnlock()

	out := make([]models.Assignee, 0, len(profiles))
	for _, p := range profiles {
		p.mu.Lock()
		out = append(out, copyAssignee(p.assignee))
		p.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fresh reports whether the assignee's profile is within the staleness
// bound. Stale profiles may serve similarity lookups but must be refreshed
// before any capacity decision.
func (t *Tracker) Fresh(assigneeID string) bool {
	p, err := t.profile(assigneeID)
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.assignee.FetchedAt) <= t.staleness
}

// StaleIDs returns the assignees whose profiles have outlived the
// staleness bound, sorted by ID.
func (t *Tracker) StaleIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var stale []string
	for id, p := range t.profiles {
		p.mu.Lock()
		if time.Since(p.assignee.FetchedAt) > t.staleness {
			stale = append(stale, id)
		}
		p.mu.Unlock()
	}
	sort.Strings(stale)
	return stale
}

func (t *Tracker) profile(assigneeID string) (*profile, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.profiles[assigneeID]
	if !ok {
		return nil, fmt.Errorf("unknown assignee %s", assigneeID)
	}
	return p, nil
}

func copyAssignee(a models.Assignee) models.Assignee {
	out := a
	out.Expertise = make(map[string]float64, len(a.Expertise))
	for k, v := range a.Expertise {
		out.Expertise[k] = v
	}
	return out
}
