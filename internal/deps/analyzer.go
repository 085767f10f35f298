package deps

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/pkg/models"
)

// Config holds the dependency-detection policy knobs.
type Config struct {
	// SimilarityFloor is the minimum similarity for a title-matched cue to
	// propose an edge. Explicit task-ID references skip the floor: a
	// requester naming a task ID is a stronger signal than the embedding.
	SimilarityFloor float64
	// DuplicateThreshold marks open tasks at or above this similarity as
	// probable duplicates of the new task.
	DuplicateThreshold float64
	// MaxRelated caps how many similar open tasks are examined.
	MaxRelated int
}

// DefaultConfig returns the standard detection policy.
func DefaultConfig() Config {
	return Config{SimilarityFloor: 0.6, DuplicateThreshold: 0.85, MaxRelated: 5}
}

// Proposal is the analyzer's verdict for one new task. Rejected edges are
// carried as conflicts so the orchestrator can surface them; they are never
// silently dropped.
type Proposal struct {
	// Edges are the accepted prerequisite edges, cycle-checked against the
	// graph at proposal time. They are applied to the graph only at the
	// orchestrator's commit step.
	Edges []models.DependencyEdge
	// Conflicts records edges rejected because they would close a cycle.
	Conflicts []models.Conflict
	// Duplicates are open tasks so similar they are probably the same work.
	Duplicates []index.Match
	// Related are open tasks above the similarity floor, for context.
	Related []index.Match
}

// Analyzer proposes dependency edges for new tasks using lexical cues and
// embedding similarity over the open-task set.
type Analyzer struct {
	index *index.Index
	graph *Graph

	mu  sync.RWMutex
	cfg Config
}

// NewAnalyzer creates an analyzer over the shared index and graph.
func NewAnalyzer(ix *index.Index, graph *Graph, cfg Config) *Analyzer {
	if cfg.MaxRelated <= 0 {
		cfg.MaxRelated = DefaultConfig().MaxRelated
	}
	return &Analyzer{index: ix, graph: graph, cfg: cfg}
}

// SetConfig replaces the detection policy. MaxRelated is normalized the
// same way NewAnalyzer does it. Each Propose call snapshots the policy
// once, so an in-flight analysis never mixes old and new values.
func (a *Analyzer) SetConfig(cfg Config) {
	if cfg.MaxRelated <= 0 {
		cfg.MaxRelated = DefaultConfig().MaxRelated
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
}

// Config returns the current detection policy.
func (a *Analyzer) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Propose analyzes the task against the open set and returns edges,
// conflicts and duplicate warnings. Open tasks sharing the task's client or
// project are preferred; when none share scope the whole open set is used.
// hintRefs are extra prerequisite references from the language-model hint
// source; they go through the same matching as lexical cues.
func (a *Analyzer) Propose(task *models.Task, open []*models.Task, hintRefs []string) Proposal {
	var proposal Proposal
	cfg := a.Config()

	scope := scopeTasks(task, open)
	similarity := a.similarityByID(task, scope)

	// Lexical pass: cues from the description plus hint references.
	refs := make([]string, 0, 4)
	for _, cue := range DetectCues(task.Description) {
		refs = append(refs, cue.Reference)
	}
	refs = append(refs, hintRefs...)

	proposed := make(map[string]bool)
	for _, ref := range refs {
		prereq, byID := MatchReference(ref, scope)
		if prereq == nil || prereq.ID == task.ID || proposed[prereq.ID] {
			continue
		}
		if !byID && similarity[prereq.ID] < cfg.SimilarityFloor {
			log.Debug().
				Str("reference", ref).
				Str("candidate", prereq.ID).
				Float64("similarity", similarity[prereq.ID]).
				Msg("cue match below similarity floor, skipped")
			continue
		}
		proposed[prereq.ID] = true
		a.acceptOrConflict(task, prereq.ID, &proposal)
	}

	// Similarity pass: flag near-identical open tasks as duplicates and
	// keep the rest above the floor as related context.
	matches := a.rankedMatches(cfg, task, scope)
	for _, m := range matches {
		switch {
		case m.Similarity >= cfg.DuplicateThreshold:
			proposal.Duplicates = append(proposal.Duplicates, m)
		case m.Similarity >= cfg.SimilarityFloor:
			proposal.Related = append(proposal.Related, m)
		}
	}

	return proposal
}

// acceptOrConflict runs the cycle check for one candidate edge and files it
// as an accepted edge or a cycle conflict.
func (a *Analyzer) acceptOrConflict(task *models.Task, prereqID string, proposal *Proposal) {
	// The edge task -> prereq closes a cycle exactly when the prerequisite
	// already reaches the task through existing edges.
	if a.graph.Reaches(prereqID, task.ID) {
		proposal.Conflicts = append(proposal.Conflicts, models.Conflict{
			Kind:           models.ConflictCycle,
			TaskID:         task.ID,
			PrerequisiteID: prereqID,
			Detail:         fmt.Sprintf("dependency on %s would close a cycle", prereqID),
		})
		return
	}
	proposal.Edges = append(proposal.Edges, models.DependencyEdge{
		DependentID:    task.ID,
		PrerequisiteID: prereqID,
	})
}

// similarityByID computes the task's similarity to each scoped open task.
func (a *Analyzer) similarityByID(task *models.Task, scope []*models.Task) map[string]float64 {
	sims := make(map[string]float64, len(scope))
	for _, other := range scope {
		sims[other.ID] = index.Cosine(task.Embedding, other.Embedding)
	}
	return sims
}

// rankedMatches queries the task index and keeps matches inside the scope.
func (a *Analyzer) rankedMatches(cfg Config, task *models.Task, scope []*models.Task) []index.Match {
	inScope := make(map[string]bool, len(scope))
	for _, t := range scope {
		inScope[t.ID] = true
	}

	// Over-fetch so scope filtering still leaves MaxRelated candidates.
	matches, err := a.index.Query(index.KindTask, task.Embedding, cfg.MaxRelated*4)
	if err != nil {
		return nil
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.EntityID != task.ID && inScope[m.EntityID] {
			kept = append(kept, m)
		}
	}
	if len(kept) > cfg.MaxRelated {
		kept = kept[:cfg.MaxRelated]
	}
	return kept
}

// scopeTasks prefers open tasks sharing the new task's project, then its
// client, falling back to the full open set.
func scopeTasks(task *models.Task, open []*models.Task) []*models.Task {
	if task.ProjectID != "" {
		var scoped []*models.Task
		for _, t := range open {
			if t.ProjectID == task.ProjectID {
				scoped = append(scoped, t)
			}
		}
		if len(scoped) > 0 {
			return scoped
		}
	}
	if task.ClientID != "" {
		var scoped []*models.Task
		for _, t := range open {
			if t.ClientID == task.ClientID {
				scoped = append(scoped, t)
			}
		}
		if len(scoped) > 0 {
			return scoped
		}
	}
	return open
}
