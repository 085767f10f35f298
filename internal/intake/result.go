package intake

import (
	"time"

	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/internal/resolve"
	"github.com/kestrelworks/triage/internal/score"
	"github.com/kestrelworks/triage/pkg/models"
)

// ResultKind identifies the outcome of an intake run.
type ResultKind string

const (
	// ResultFinalized means the task was committed to the board.
	ResultFinalized ResultKind = "finalized"
	// ResultNeedsDisambiguation means entity resolution was ambiguous and
	// the requester must choose before the intake can resume.
	ResultNeedsDisambiguation ResultKind = "needs_disambiguation"
	// ResultBlocked means conflicts or missing capacity stopped
	// finalization; an override or a different decision is required.
	ResultBlocked ResultKind = "blocked"
	// ResultRejected means the intake terminated: invalid input, denied
	// permission, or a board failure.
	ResultRejected ResultKind = "rejected"
)

// Result is the outcome of one intake run. Exactly one kind applies; the
// remaining fields carry the evidence for that outcome so the caller can
// display or act on it without re-running the pipeline.
type Result struct {
	// Kind is the outcome class.
	Kind ResultKind `json:"kind"`
	// IntakeID identifies this run in events and the journal.
	IntakeID string `json:"intake_id"`
	// Task is the committed task for finalized results, or the draft under
	// consideration for blocked ones.
	Task *models.Task `json:"task,omitempty"`
	// Resolution holds the entity decisions, including the candidate lists
	// a disambiguation must choose from.
	Resolution *resolve.Resolution `json:"resolution,omitempty"`
	// Conflicts are the violations that blocked finalization.
	Conflicts []models.Conflict `json:"conflicts,omitempty"`
	// NoCapacity is true when the intake blocked because no candidate had
	// remaining capacity.
	NoCapacity bool `json:"no_capacity,omitempty"`
	// Scoring is the ranked candidate list with per-term breakdowns, kept
	// whenever the scoring stage ran.
	Scoring *score.Result `json:"scoring,omitempty"`
	// Duplicates are open tasks flagged as probable duplicates. They never
	// block; finalized tasks carry them as a board comment.
	Duplicates []index.Match `json:"duplicates,omitempty"`
	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`
	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`
}

// Halted reports whether the intake stopped short of finalization but can
// still be resumed or overridden.
func (r Result) Halted() bool {
	return r.Kind == ResultNeedsDisambiguation || r.Kind == ResultBlocked
}
