package models

import "time"

// Assignee represents a person who can take tasks, with their expertise
// profile and current workload. The board owns the person; this core caches
// the profile and keeps the load figure current between refreshes.
type Assignee struct {
	// ID is the board's identifier for the assignee.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Expertise maps expertise tags to confidence weights in [0,1].
	Expertise map[string]float64 `json:"expertise,omitempty"`
	// Load is the current sum of weighted open-task effort.
	Load float64 `json:"load"`
	// Capacity is the workload ceiling for this assignee.
	Capacity float64 `json:"capacity"`
	// FetchedAt is when this cache entry was last refreshed from the board.
	FetchedAt time.Time `json:"fetched_at"`
}

// Remaining returns the capacity left before the assignee is full.
// Never negative.
func (a *Assignee) Remaining() float64 {
	if a.Load >= a.Capacity {
		return 0
	}
	return a.Capacity - a.Load
}

// NormalizedLoad returns load as a fraction of capacity, clamped to [0,1].
// An assignee with zero capacity is always fully loaded.
func (a *Assignee) NormalizedLoad() float64 {
	if a.Capacity <= 0 {
		return 1
	}
	n := a.Load / a.Capacity
	if n > 1 {
		return 1
	}
	if n < 0 {
		return 0
	}
	return n
}
