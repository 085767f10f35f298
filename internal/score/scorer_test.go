package score

import (
	"math"
	"testing"

	"github.com/kestrelworks/triage/pkg/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSelectWeighsExpertiseOverLoad(t *testing.T) {
	// A is nearly saturated but expert; B is idle but a poor fit. With the
	// default weights the expertise term dominates and A wins by 0.01.
	candidates := []models.Assignee{
		{ID: "dev-a", Name: "A", Expertise: map[string]float64{"auth": 0.9}, Load: 0.9, Capacity: 1.0},
		{ID: "dev-b", Name: "B", Expertise: map[string]float64{"auth": 0.4}, Load: 0.1, Capacity: 1.0},
	}

	s := New(DefaultWeights())
	res := s.Select(candidates, []string{"auth"}, nil)

	if res.NoCapacity {
		t.Fatal("unexpected NoCapacity")
	}
	if res.Selected == nil || res.Selected.AssigneeID != "dev-a" {
		t.Fatalf("Selected = %+v, want dev-a", res.Selected)
	}
	if !approx(res.Selected.Score, 0.48) {
		t.Errorf("score(dev-a) = %v, want 0.48", res.Selected.Score)
	}
	if len(res.Ranked) != 2 {
		t.Fatalf("len(Ranked) = %d, want 2", len(res.Ranked))
	}
	if !approx(res.Ranked[1].Score, 0.47) {
		t.Errorf("score(dev-b) = %v, want 0.47", res.Ranked[1].Score)
	}

	// The breakdown explains the selection.
	sel := res.Selected
	if !approx(sel.ExpertiseMatch, 0.9) {
		t.Errorf("ExpertiseMatch = %v, want 0.9", sel.ExpertiseMatch)
	}
	if !approx(sel.NormalizedLoad, 0.9) {
		t.Errorf("NormalizedLoad = %v, want 0.9", sel.NormalizedLoad)
	}
	if sel.Proximity != 0 {
		t.Errorf("Proximity = %v, want 0", sel.Proximity)
	}
	if !approx(sel.CapacityRemaining, 0.1) {
		t.Errorf("CapacityRemaining = %v, want 0.1", sel.CapacityRemaining)
	}
}

func TestSelectProximityBreaksEvenMatch(t *testing.T) {
	// Identical expertise and load; owning a prerequisite adds the full
	// proximity term and decides the selection.
	candidates := []models.Assignee{
		{ID: "dev-a", Expertise: map[string]float64{"db": 0.8}, Load: 2, Capacity: 4},
		{ID: "dev-b", Expertise: map[string]float64{"db": 0.8}, Load: 2, Capacity: 4},
	}

	s := New(DefaultWeights())
	res := s.Select(candidates, []string{"db"}, map[string]bool{"dev-b": true})

	if res.Selected == nil || res.Selected.AssigneeID != "dev-b" {
		t.Fatalf("Selected = %+v, want dev-b", res.Selected)
	}
	if res.Selected.Proximity != 1.0 {
		t.Errorf("Proximity = %v, want 1.0", res.Selected.Proximity)
	}
}

func TestSelectTieBreaksOnLowestLoad(t *testing.T) {
	// Same expertise and the same normalized load, so the scores are
	// bit-identical; the lower absolute load wins.
	candidates := []models.Assignee{
		{ID: "dev-heavy", Expertise: map[string]float64{"api": 0.7}, Load: 2, Capacity: 4},
		{ID: "dev-light", Expertise: map[string]float64{"api": 0.7}, Load: 1, Capacity: 2},
	}

	s := New(DefaultWeights())
	res := s.Select(candidates, []string{"api"}, nil)

	if res.Selected == nil || res.Selected.AssigneeID != "dev-light" {
		t.Fatalf("Selected = %+v, want dev-light", res.Selected)
	}
	if res.Ranked[0].Score != res.Ranked[1].Score {
		t.Fatalf("scores differ (%v vs %v), tie-break not exercised", res.Ranked[0].Score, res.Ranked[1].Score)
	}
}

func TestSelectTieBreaksOnLowestID(t *testing.T) {
	// Fully identical candidates fall through to the ID tie-break,
	// regardless of slice order.
	candidates := []models.Assignee{
		{ID: "zoe", Expertise: map[string]float64{"api": 0.7}, Load: 1, Capacity: 3},
		{ID: "amy", Expertise: map[string]float64{"api": 0.7}, Load: 1, Capacity: 3},
	}

	s := New(DefaultWeights())
	res := s.Select(candidates, []string{"api"}, nil)
	if res.Selected == nil || res.Selected.AssigneeID != "amy" {
		t.Fatalf("Selected = %+v, want amy", res.Selected)
	}

	// Reversed input selects the same assignee.
	reversed := []models.Assignee{candidates[1], candidates[0]}
	res = s.Select(reversed, []string{"api"}, nil)
	if res.Selected == nil || res.Selected.AssigneeID != "amy" {
		t.Fatalf("Selected after reorder = %+v, want amy", res.Selected)
	}
}

func TestSelectNoCapacity(t *testing.T) {
	candidates := []models.Assignee{
		{ID: "dev-a", Expertise: map[string]float64{"auth": 0.9}, Load: 5, Capacity: 5},
		{ID: "dev-b", Expertise: map[string]float64{"auth": 0.9}, Load: 7, Capacity: 5},
	}

	s := New(DefaultWeights())
	res := s.Select(candidates, []string{"auth"}, nil)

	if !res.NoCapacity {
		t.Fatal("NoCapacity = false, want true")
	}
	if res.Selected != nil {
		t.Errorf("Selected = %+v, want nil", res.Selected)
	}
	if len(res.Ranked) != 0 {
		t.Errorf("len(Ranked) = %d, want 0", len(res.Ranked))
	}
}

func TestSelectSkipsSaturatedCandidates(t *testing.T) {
	candidates := []models.Assignee{
		{ID: "full", Expertise: map[string]float64{"auth": 1.0}, Load: 5, Capacity: 5},
		{ID: "free", Expertise: map[string]float64{"auth": 0.1}, Load: 0, Capacity: 5},
	}

	s := New(DefaultWeights())
	res := s.Select(candidates, []string{"auth"}, nil)

	if res.Selected == nil || res.Selected.AssigneeID != "free" {
		t.Fatalf("Selected = %+v, want free", res.Selected)
	}
	if len(res.Ranked) != 1 {
		t.Fatalf("len(Ranked) = %d, want 1 (saturated candidate must not rank)", len(res.Ranked))
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	candidates := []models.Assignee{
		{ID: "dev-a", Expertise: map[string]float64{"auth": 0.9, "db": 0.3}, Load: 2, Capacity: 6},
		{ID: "dev-b", Expertise: map[string]float64{"auth": 0.7, "db": 0.8}, Load: 1, Capacity: 4},
		{ID: "dev-c", Expertise: map[string]float64{"db": 0.6}, Load: 0, Capacity: 3},
	}

	s := New(DefaultWeights())
	first := s.Select(candidates, []string{"auth", "db"}, map[string]bool{"dev-c": true})
	for i := 0; i < 20; i++ {
		res := s.Select(candidates, []string{"auth", "db"}, map[string]bool{"dev-c": true})
		if res.Selected.AssigneeID != first.Selected.AssigneeID {
			t.Fatalf("run %d selected %s, first run selected %s", i, res.Selected.AssigneeID, first.Selected.AssigneeID)
		}
		for j := range res.Ranked {
			if res.Ranked[j].AssigneeID != first.Ranked[j].AssigneeID {
				t.Fatalf("run %d rank %d = %s, want %s", i, j, res.Ranked[j].AssigneeID, first.Ranked[j].AssigneeID)
			}
		}
	}
}

func TestSetWeightsRetunesSelection(t *testing.T) {
	candidates := []models.Assignee{
		{ID: "expert", Expertise: map[string]float64{"auth": 0.9}, Load: 0.9, Capacity: 1.0},
		{ID: "idle", Expertise: map[string]float64{"auth": 0.4}, Load: 0.1, Capacity: 1.0},
	}

	s := New(DefaultWeights())
	if res := s.Select(candidates, []string{"auth"}, nil); res.Selected.AssigneeID != "expert" {
		t.Fatalf("default weights selected %s, want expert", res.Selected.AssigneeID)
	}

	// Shift all weight onto headroom and the idle candidate wins.
	s.SetWeights(Weights{Expertise: 0.0, Load: 1.0, Proximity: 0.0})
	if res := s.Select(candidates, []string{"auth"}, nil); res.Selected.AssigneeID != "idle" {
		t.Fatalf("load-only weights selected %s, want idle", res.Selected.AssigneeID)
	}

	got := s.Weights()
	if got.Expertise != 0 || got.Load != 1.0 || got.Proximity != 0 {
		t.Errorf("Weights() = %+v after SetWeights", got)
	}
}
