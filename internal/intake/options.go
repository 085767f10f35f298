package intake

import (
	"github.com/kestrelworks/triage/internal/board"
	"github.com/kestrelworks/triage/internal/config"
	"github.com/kestrelworks/triage/internal/conflict"
	"github.com/kestrelworks/triage/internal/deps"
	"github.com/kestrelworks/triage/internal/identity"
	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/internal/score"
	"github.com/kestrelworks/triage/internal/state"
	"github.com/kestrelworks/triage/internal/workload"
)

// RequiredConfig contains the minimal required configuration for an
// Orchestrator. All fields are required and have no defaults.
type RequiredConfig struct {
	// Board is the external system of record for tasks and entities.
	Board board.Board
	// Embedder turns descriptions into vectors for the similarity index.
	Embedder index.Embedder
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
// These are only used during construction.
type orchestratorOptions struct {
	cfg             *config.Config
	store           *state.DB
	journal         *state.Journal
	identities      identity.Provider
	hinter          IntentClassifier
	eventBufferSize int

	// Injectable components for testing and for sharing caches across
	// orchestrator instances.
	index    *index.Index
	graph    *deps.Graph
	tracker  *workload.Tracker
	scorer   *score.Scorer
	detector *conflict.Detector
	gate     *conflict.Gate
}

// WithConfig sets the policy knobs: thresholds, weights, staleness and
// retry bounds. Without it the defaults apply.
func WithConfig(cfg config.Config) Option {
	return func(o *orchestratorOptions) { o.cfg = &cfg }
}

// WithStore sets the local cache database. Committed intakes and synced
// entities are persisted there; without it the caches are memory-only.
func WithStore(db *state.DB) Option {
	return func(o *orchestratorOptions) { o.store = db }
}

// WithJournal sets the audit journal for intake outcomes.
func WithJournal(j *state.Journal) Option {
	return func(o *orchestratorOptions) { o.journal = j }
}

// WithIdentityProvider sets the principal lookup used for permission
// checks. Without a provider every requester is treated as a member.
func WithIdentityProvider(p identity.Provider) Option {
	return func(o *orchestratorOptions) { o.identities = p }
}

// WithHinter sets the language-model hint source. Hints refine priority,
// tags, title and dependency references; hint failures never fail intake.
func WithHinter(h IntentClassifier) Option {
	return func(o *orchestratorOptions) { o.hinter = h }
}

// WithEventBufferSize sets the events channel buffer.
func WithEventBufferSize(n int) Option {
	return func(o *orchestratorOptions) { o.eventBufferSize = n }
}

// WithIndex sets a custom similarity index (mainly for testing).
func WithIndex(ix *index.Index) Option {
	return func(o *orchestratorOptions) { o.index = ix }
}

// WithGraph sets a custom dependency graph (mainly for testing).
func WithGraph(g *deps.Graph) Option {
	return func(o *orchestratorOptions) { o.graph = g }
}

// WithTracker sets a custom workload tracker (mainly for testing).
func WithTracker(t *workload.Tracker) Option {
	return func(o *orchestratorOptions) { o.tracker = t }
}

// WithScorer sets a custom assignment scorer (mainly for testing).
func WithScorer(s *score.Scorer) Option {
	return func(o *orchestratorOptions) { o.scorer = s }
}

// WithDetector sets a custom conflict detector (mainly for testing).
func WithDetector(d *conflict.Detector) Option {
	return func(o *orchestratorOptions) { o.detector = d }
}

// WithGate sets a custom override gate (mainly for testing).
func WithGate(g *conflict.Gate) Option {
	return func(o *orchestratorOptions) { o.gate = g }
}

// RunOption adjusts a single intake run.
type RunOption func(*runConfig)

// runConfig holds per-run adjustments.
type runConfig struct {
	intakeID       string
	pinnedClientID string
	overrideReason string
}

// WithPinnedClient fixes the client decision for one run. Used to resume
// an intake after the requester chose from an ambiguous candidate list.
func WithPinnedClient(clientID string) RunOption {
	return func(r *runConfig) { r.pinnedClientID = clientID }
}

// WithOverride asks to override whatever overridable conflicts the run
// detects, on the requester's authority. Cycle conflicts stay rejected.
func WithOverride(reason string) RunOption {
	return func(r *runConfig) { r.overrideReason = reason }
}

// withIntakeID pins the run ID. The pool uses it so Submit can hand the ID
// back before the run starts.
func withIntakeID(id string) RunOption {
	return func(r *runConfig) { r.intakeID = id }
}
