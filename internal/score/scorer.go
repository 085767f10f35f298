// Package score ranks candidate assignees for a task by combining
// expertise match, load headroom and dependency proximity. Scoring is pure:
// the same candidate snapshot always produces the same selection.
package score

import (
	"sort"
	"sync"

	"github.com/kestrelworks/triage/internal/workload"
	"github.com/kestrelworks/triage/pkg/models"
)

// Weights configure the three scoring terms. They are externally
// configurable and hot-reloadable; the defaults favor expertise.
type Weights struct {
	// Expertise multiplies the expertise-match term.
	Expertise float64 `mapstructure:"expertise"`
	// Load multiplies the load-headroom term (1 - normalized load).
	Load float64 `mapstructure:"load"`
	// Proximity multiplies the dependency-proximity term.
	Proximity float64 `mapstructure:"proximity"`
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{Expertise: 0.5, Load: 0.3, Proximity: 0.2}
}

// Ranked is one candidate with its score and the per-term breakdown, kept
// so the selection can be explained to the requester.
type Ranked struct {
	// AssigneeID identifies the candidate.
	AssigneeID string `json:"assignee_id"`
	// Score is the combined weighted score.
	Score float64 `json:"score"`
	// ExpertiseMatch is the raw expertise term in [0, 1].
	ExpertiseMatch float64 `json:"expertise_match"`
	// NormalizedLoad is the candidate's load as a fraction of capacity.
	NormalizedLoad float64 `json:"normalized_load"`
	// Proximity is 1 when the candidate owns a prerequisite of the task.
	Proximity float64 `json:"proximity"`
	// Load is the candidate's absolute load at scoring time.
	Load float64 `json:"load"`
	// CapacityRemaining is the headroom at scoring time.
	CapacityRemaining float64 `json:"capacity_remaining"`
}

// Result is the scorer's verdict. NoCapacity is an explicit decision point:
// when nobody has headroom the pipeline stops instead of overloading
// someone silently.
type Result struct {
	// Selected is the winning candidate, nil when NoCapacity.
	Selected *Ranked `json:"selected,omitempty"`
	// Ranked lists every candidate with capacity, best first.
	Ranked []Ranked `json:"ranked,omitempty"`
	// NoCapacity is true when no candidate had remaining capacity.
	NoCapacity bool `json:"no_capacity,omitempty"`
}

// Scorer ranks assignees. Weights are guarded so a config reload can
// retune a live pipeline.
type Scorer struct {
	mu      sync.RWMutex
	weights Weights
}

// New creates a scorer with the given weights.
func New(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Weights returns the current weights.
func (s *Scorer) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// SetWeights replaces the weights, typically from a config reload.
func (s *Scorer) SetWeights(w Weights) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = w
}

// Select scores every candidate with remaining capacity against the task's
// tags and prerequisite owners, and picks the best. Ties break on lowest
// load, then lowest assignee ID, so identical inputs always select the
// same assignee. prereqOwners holds the assignee IDs that own a
// prerequisite of the task.
func (s *Scorer) Select(candidates []models.Assignee, tags []string, prereqOwners map[string]bool) Result {
	w := s.Weights()

	var ranked []Ranked
	for i := range candidates {
		cand := &candidates[i]
		remaining := cand.Remaining()
		if remaining <= 0 {
			continue
		}

		expertise := workload.Match(cand.Expertise, tags)
		normalized := cand.NormalizedLoad()
		proximity := 0.0
		if prereqOwners[cand.ID] {
			proximity = 1.0
		}

		ranked = append(ranked, Ranked{
			AssigneeID:        cand.ID,
			Score:             w.Expertise*expertise + w.Load*(1-normalized) + w.Proximity*proximity,
			ExpertiseMatch:    expertise,
			NormalizedLoad:    normalized,
			Proximity:         proximity,
			Load:              cand.Load,
			CapacityRemaining: remaining,
		})
	}

	if len(ranked) == 0 {
		return Result{NoCapacity: true}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Load != ranked[j].Load {
			return ranked[i].Load < ranked[j].Load
		}
		return ranked[i].AssigneeID < ranked[j].AssigneeID
	})

	return Result{Selected: &ranked[0], Ranked: ranked}
}
