package conflict

import (
	"errors"
	"sync"
	"time"

	"github.com/kestrelworks/triage/internal/identity"
	"github.com/kestrelworks/triage/pkg/models"
)

// ErrNothingOverridable is returned when an override request clears no
// conflicts, typically because only cycle conflicts remain.
var ErrNothingOverridable = errors.New("no overridable conflicts")

// Override records one granted override for audit.
type Override struct {
	// TaskID is the task whose conflicts were cleared.
	TaskID string `json:"task_id"`
	// PrincipalID identifies who authorized the override.
	PrincipalID string `json:"principal_id"`
	// Reason is the free-text justification supplied by the requester.
	Reason string `json:"reason"`
	// Cleared lists the conflicts the override removed.
	Cleared []models.Conflict `json:"cleared"`
	// At is when the override was granted.
	At time.Time `json:"at"`
}

// Gate authorizes conflict overrides. Overload and scheduling conflicts can
// be cleared by a principal holding the override permission; cycle conflicts
// never clear, the rejected edge stays rejected.
type Gate struct {
	mu      sync.RWMutex
	granted map[string]Override
}

// NewGate creates an empty override gate.
func NewGate() *Gate {
	return &Gate{granted: make(map[string]Override)}
}

// Apply attempts to override the task's conflicts on behalf of the
// principal. It returns the conflicts that remain in force. The principal
// must hold conflicts:override; when nothing can be cleared it returns the
// input unchanged with ErrNothingOverridable.
func (g *Gate) Apply(p identity.Principal, taskID string, conflicts []models.Conflict, reason string) ([]models.Conflict, error) {
	if err := identity.Require(p, identity.PermConflictsOverride); err != nil {
		return conflicts, err
	}

	var cleared, remaining []models.Conflict
	for _, c := range conflicts {
		if c.Overridable() {
			cleared = append(cleared, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	if len(cleared) == 0 {
		return conflicts, ErrNothingOverridable
	}

	g.mu.Lock()
	g.granted[taskID] = Override{
		TaskID:      taskID,
		PrincipalID: p.ID,
		Reason:      reason,
		Cleared:     cleared,
		At:          time.Now(),
	}
	g.mu.Unlock()

	return remaining, nil
}

// Granted returns the recorded override for a task, if any.
func (g *Gate) Granted(taskID string) (Override, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	o, ok := g.granted[taskID]
	return o, ok
}

// Reset clears the recorded override for a task. Called when the task
// completes or the intake is abandoned.
func (g *Gate) Reset(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.granted, taskID)
}
