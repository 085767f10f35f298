// Package conflict inspects a tentative assignment for violations that must
// block finalization or require an explicit override.
package conflict

import (
	"fmt"
	"sync"

	"github.com/kestrelworks/triage/pkg/models"
)

// defaultOverloadFactor is the tolerated load overshoot above capacity.
const defaultOverloadFactor = 1.2

// Config contains detector tuning.
type Config struct {
	// OverloadFactor scales capacity into the hard ceiling. Default 1.2.
	OverloadFactor float64 `mapstructure:"overload_factor"`
}

// DefaultConfig returns the standard detector configuration.
func DefaultConfig() Config {
	return Config{OverloadFactor: defaultOverloadFactor}
}

// Check is one tentative assignment to inspect.
type Check struct {
	// Task is the draft under intake, priority already decided.
	Task *models.Task
	// Assignee is the tentative assignee snapshot, nil when nobody was
	// selected.
	Assignee *models.Assignee
	// Carried are conflicts recorded by earlier pipeline stages, such as
	// rejected cycle edges. They pass through unchanged.
	Carried []models.Conflict
	// Prerequisites are the current states of every task this draft would
	// depend on, existing dependencies and newly proposed edges alike.
	Prerequisites []models.Task
}

// Detector evaluates checks. The overload factor is guarded so a config
// reload can retune a live pipeline.
type Detector struct {
	mu     sync.RWMutex
	factor float64
}

// New creates a detector. A non-positive overload factor falls back to the
// default.
func New(cfg Config) *Detector {
	factor := cfg.OverloadFactor
	if factor <= 0 {
		factor = defaultOverloadFactor
	}
	return &Detector{factor: factor}
}

// OverloadFactor returns the current overload factor.
func (d *Detector) OverloadFactor() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.factor
}

// SetOverloadFactor replaces the overload factor, typically from a config
// reload. Non-positive values are ignored.
func (d *Detector) SetOverloadFactor(factor float64) {
	if factor <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factor = factor
}

// Detect returns every conflict the tentative assignment would introduce:
// carried cycle rejections, overload above capacity times the factor, and
// urgent tasks depending on unassigned work. An empty result means the
// assignment is clean.
func (d *Detector) Detect(chk Check) []models.Conflict {
	conflicts := make([]models.Conflict, 0, len(chk.Carried))
	conflicts = append(conflicts, chk.Carried...)

	if chk.Task == nil {
		return conflicts
	}

	if c, ok := d.overload(chk.Task, chk.Assignee); ok {
		conflicts = append(conflicts, c)
	}
	conflicts = append(conflicts, scheduling(chk.Task, chk.Prerequisites)...)

	return conflicts
}

// overload reports whether assigning the task would push the assignee's
// load above capacity times the overload factor.
func (d *Detector) overload(task *models.Task, assignee *models.Assignee) (models.Conflict, bool) {
	if assignee == nil {
		return models.Conflict{}, false
	}

	projected := assignee.Load + task.Priority.Weight()
	ceiling := assignee.Capacity * d.OverloadFactor()
	if projected <= ceiling {
		return models.Conflict{}, false
	}

	return models.Conflict{
		Kind:       models.ConflictOverload,
		TaskID:     task.ID,
		AssigneeID: assignee.ID,
		Detail: fmt.Sprintf("assignment raises load to %.2f, above ceiling %.2f (capacity %.2f x %.2f)",
			projected, ceiling, assignee.Capacity, d.OverloadFactor()),
	}, true
}

// scheduling flags urgent tasks that depend on unfinished work nobody owns:
// without an owner the prerequisite has no completion forecast.
func scheduling(task *models.Task, prereqs []models.Task) []models.Conflict {
	if task.Priority != models.PriorityUrgent {
		return nil
	}

	var conflicts []models.Conflict
	for _, p := range prereqs {
		if p.Status == models.TaskStatusDone || p.AssigneeID != "" {
			continue
		}
		conflicts = append(conflicts, models.Conflict{
			Kind:           models.ConflictScheduling,
			TaskID:         task.ID,
			PrerequisiteID: p.ID,
			Detail:         fmt.Sprintf("urgent task depends on %s, which has no assignee", p.ID),
		})
	}
	return conflicts
}
