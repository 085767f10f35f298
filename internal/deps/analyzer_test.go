package deps

import (
	"testing"
	"time"

	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/pkg/models"
)

func TestDetectCues(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Cue
	}{
		{
			"blocked by with task id",
			"Fix login bug for Client Acme, blocked by task T-102",
			[]Cue{{Phrase: "blocked by", Reference: "task T-102"}},
		},
		{
			"depends on",
			"Ship the new checkout, depends on the payment API",
			[]Cue{{Phrase: "depends on", Reference: "the payment API"}},
		},
		{
			"after phrase",
			"Roll out dark mode after the design refresh, please",
			[]Cue{{Phrase: "after", Reference: "the design refresh"}},
		},
		{
			"waiting on",
			"Migrate the database. Waiting on infra approval.",
			[]Cue{{Phrase: "waiting on", Reference: "infra approval"}},
		},
		{
			"once done",
			"Enable the feature flag once the schema migration is done",
			[]Cue{{Phrase: "once", Reference: "the schema migration"}},
		},
		{
			"multiple cues",
			"Update docs, blocked by T-1, depends on T-2",
			[]Cue{
				{Phrase: "depends on", Reference: "T-2"},
				{Phrase: "blocked by", Reference: "T-1"},
			},
		},
		{
			"no cues",
			"Write the quarterly report",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectCues(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("DetectCues(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("cue[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMatchReference(t *testing.T) {
	open := []*models.Task{
		{ID: "T-102", Title: "Fix session expiry", Status: models.TaskStatusOpen},
		{ID: "T-200", Title: "Payment API migration", Status: models.TaskStatusOpen},
		{ID: "T-300", Title: "Design refresh", Status: models.TaskStatusOpen},
	}

	tests := []struct {
		name     string
		ref      string
		wantID   string
		wantByID bool
	}{
		{"explicit id", "task T-102", "T-102", true},
		{"lowercase id", "t-102", "T-102", true},
		{"title words", "the payment API migration", "T-200", false},
		{"partial title", "the design refresh", "T-300", false},
		{"no match", "the marketing newsletter", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, byID := MatchReference(tt.ref, open)
			if tt.wantID == "" {
				if got != nil {
					t.Fatalf("MatchReference(%q) = %v, want no match", tt.ref, got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Fatalf("MatchReference(%q) = %v, want %s", tt.ref, got, tt.wantID)
			}
			if byID != tt.wantByID {
				t.Errorf("MatchReference(%q) byID = %v, want %v", tt.ref, byID, tt.wantByID)
			}
		})
	}
}

// analyzerFixture builds an analyzer with the given open tasks indexed and
// registered in the graph.
func analyzerFixture(t *testing.T, open []*models.Task) *Analyzer {
	t.Helper()
	ix := index.New(nil)
	g := NewGraph()
	if err := g.Build(open); err != nil {
		t.Fatalf("fixture graph: %v", err)
	}
	for _, task := range open {
		ix.Put(index.KindTask, task.ID, task.Embedding, time.Now())
	}
	return NewAnalyzer(ix, g, DefaultConfig())
}

func TestAnalyzer_ProposeExplicitIDReference(t *testing.T) {
	// T-102's embedding is orthogonal to the new task's: the explicit ID
	// reference must still propose the edge.
	open := []*models.Task{
		{ID: "T-102", Title: "Session store rework", Status: models.TaskStatusOpen, Embedding: []float64{0, 1}},
	}
	a := analyzerFixture(t, open)

	newTask := &models.Task{
		ID:          "new-1",
		Description: "Fix login bug for Client Acme, blocked by task T-102",
		Embedding:   []float64{1, 0},
	}
	got := a.Propose(newTask, open, nil)

	if len(got.Edges) != 1 {
		t.Fatalf("Propose() edges = %v, want one", got.Edges)
	}
	edge := got.Edges[0]
	if edge.DependentID != "new-1" || edge.PrerequisiteID != "T-102" {
		t.Errorf("edge = %+v, want new-1 -> T-102", edge)
	}
	if len(got.Conflicts) != 0 {
		t.Errorf("unexpected conflicts: %v", got.Conflicts)
	}
}

func TestAnalyzer_TitleReferenceRequiresFloor(t *testing.T) {
	open := []*models.Task{
		{ID: "T-200", Title: "Payment API migration", Status: models.TaskStatusOpen, Embedding: []float64{0, 1}},
	}
	a := analyzerFixture(t, open)

	// Orthogonal embeddings: similarity 0, below the floor, so the fuzzy
	// title reference must not produce an edge.
	newTask := &models.Task{
		ID:          "new-1",
		Description: "Ship checkout, depends on the payment API migration",
		Embedding:   []float64{1, 0},
	}
	got := a.Propose(newTask, open, nil)
	if len(got.Edges) != 0 {
		t.Fatalf("below-floor title match proposed edges: %v", got.Edges)
	}

	// Identical embeddings clear the floor and the edge goes through.
	newTask.Embedding = []float64{0, 1}
	got = a.Propose(newTask, open, nil)
	if len(got.Edges) != 1 || got.Edges[0].PrerequisiteID != "T-200" {
		t.Fatalf("above-floor title match edges = %v, want new-1 -> T-200", got.Edges)
	}
}

func TestAnalyzer_CycleRejectedAsConflict(t *testing.T) {
	// T-50 already depends on T-60. Re-analyzing T-60 with a cue pointing
	// at T-50 would close the loop; the analyzer must report a conflict
	// and propose nothing.
	open := []*models.Task{
		{ID: "T-50", Title: "API contract", Status: models.TaskStatusOpen, DependsOn: []string{"T-60"}, Embedding: []float64{1, 0}},
		{ID: "T-60", Title: "Schema design", Status: models.TaskStatusOpen, Embedding: []float64{1, 0}},
	}
	a := analyzerFixture(t, open)

	reanalyzed := &models.Task{
		ID:          "T-60",
		Description: "Schema design, blocked by T-50",
		Embedding:   []float64{1, 0},
	}
	got := a.Propose(reanalyzed, open, nil)

	if len(got.Edges) != 0 {
		t.Errorf("cycle edge was proposed: %v", got.Edges)
	}
	if len(got.Conflicts) != 1 {
		t.Fatalf("conflicts = %v, want one cycle conflict", got.Conflicts)
	}
	c := got.Conflicts[0]
	if c.Kind != models.ConflictCycle || c.PrerequisiteID != "T-50" {
		t.Errorf("conflict = %+v, want cycle on T-50", c)
	}
	if a.graph.HasCycle() {
		t.Error("graph gained a cycle")
	}
}

func TestAnalyzer_DuplicateAndRelatedDetection(t *testing.T) {
	open := []*models.Task{
		{ID: "dup", Title: "Fix login bug", Status: models.TaskStatusOpen, Embedding: []float64{1, 0}},
		{ID: "rel", Title: "Audit auth flows", Status: models.TaskStatusOpen, Embedding: []float64{0.8, 0.5999999999}},
		{ID: "far", Title: "Write marketing copy", Status: models.TaskStatusOpen, Embedding: []float64{0, 1}},
	}
	a := analyzerFixture(t, open)

	newTask := &models.Task{
		ID:          "new-1",
		Description: "Fix the login bug users keep hitting",
		Embedding:   []float64{1, 0},
	}
	got := a.Propose(newTask, open, nil)

	if len(got.Duplicates) != 1 || got.Duplicates[0].EntityID != "dup" {
		t.Errorf("Duplicates = %v, want [dup]", got.Duplicates)
	}
	if len(got.Related) != 1 || got.Related[0].EntityID != "rel" {
		t.Errorf("Related = %v, want [rel]", got.Related)
	}
}

func TestAnalyzer_HintRefsProposeEdges(t *testing.T) {
	open := []*models.Task{
		{ID: "T-77", Title: "Provision staging cluster", Status: models.TaskStatusOpen, Embedding: []float64{0, 1}},
	}
	a := analyzerFixture(t, open)

	newTask := &models.Task{
		ID:          "new-1",
		Description: "Deploy the new service",
		Embedding:   []float64{1, 0},
	}
	got := a.Propose(newTask, open, []string{"T-77"})

	if len(got.Edges) != 1 || got.Edges[0].PrerequisiteID != "T-77" {
		t.Errorf("hint ref edges = %v, want new-1 -> T-77", got.Edges)
	}
}

func TestAnalyzer_SetConfigRetunesFloor(t *testing.T) {
	open := []*models.Task{
		{ID: "T-200", Title: "Payment API migration", Status: models.TaskStatusOpen, Embedding: []float64{0.7, 0.7141428429}},
	}
	a := analyzerFixture(t, open)

	// Similarity 0.7 sits above the default floor; a stricter floor must
	// drop the same title-matched edge.
	newTask := &models.Task{
		ID:          "new-1",
		Description: "Ship checkout, depends on the payment API migration",
		Embedding:   []float64{1, 0},
	}
	got := a.Propose(newTask, open, nil)
	if len(got.Edges) != 1 {
		t.Fatalf("default floor edges = %v, want one", got.Edges)
	}

	a.SetConfig(Config{SimilarityFloor: 0.75, DuplicateThreshold: 0.85, MaxRelated: 5})
	got = a.Propose(newTask, open, nil)
	if len(got.Edges) != 0 {
		t.Errorf("raised floor still proposed edges: %v", got.Edges)
	}

	a.SetConfig(Config{SimilarityFloor: 0.6, DuplicateThreshold: 0.85})
	if got := a.Config().MaxRelated; got != DefaultConfig().MaxRelated {
		t.Errorf("MaxRelated after SetConfig = %d, want normalized default", got)
	}
}

func TestScopeTasks(t *testing.T) {
	open := []*models.Task{
		{ID: "same-project", ClientID: "c1", ProjectID: "p1"},
		{ID: "same-client", ClientID: "c1", ProjectID: "p2"},
		{ID: "other", ClientID: "c2", ProjectID: "p9"},
	}

	t.Run("project scope wins", func(t *testing.T) {
		got := scopeTasks(&models.Task{ClientID: "c1", ProjectID: "p1"}, open)
		if len(got) != 1 || got[0].ID != "same-project" {
			t.Errorf("scope = %v, want [same-project]", ids(got))
		}
	})

	t.Run("client scope fallback", func(t *testing.T) {
		got := scopeTasks(&models.Task{ClientID: "c1", ProjectID: "p-empty"}, open)
		if len(got) != 2 {
			t.Errorf("scope = %v, want both c1 tasks", ids(got))
		}
	})

	t.Run("global fallback", func(t *testing.T) {
		got := scopeTasks(&models.Task{ClientID: "c-none"}, open)
		if len(got) != 3 {
			t.Errorf("scope = %v, want all", ids(got))
		}
	})
}

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
