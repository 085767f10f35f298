// Package intake coordinates the task pipeline from free text to a
// committed board task.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelworks/triage/internal/analyze"
	"github.com/kestrelworks/triage/internal/board"
	"github.com/kestrelworks/triage/internal/config"
	"github.com/kestrelworks/triage/internal/conflict"
	"github.com/kestrelworks/triage/internal/deps"
	"github.com/kestrelworks/triage/internal/identity"
	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/internal/logging"
	"github.com/kestrelworks/triage/internal/resolve"
	"github.com/kestrelworks/triage/internal/score"
	"github.com/kestrelworks/triage/internal/state"
	"github.com/kestrelworks/triage/internal/workload"
	"github.com/kestrelworks/triage/pkg/models"
)

// ErrStopped is returned by Intake and Sync after Stop has been called.
var ErrStopped = errors.New("orchestrator stopped")

// Description bounds, matching the board's task validators.
const (
	minDescriptionRunes = 3
	maxDescriptionRunes = 2000
)

// IntentClassifier supplies optional language-model hints for a
// description. Implementations must be safe for concurrent use.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, description string) (analyze.Hints, error)
}

// Orchestrator runs intakes through the pipeline: Received, Resolving,
// DependencyCheck, Scoring, ConflictCheck, then Finalized or Rejected.
// Every stage is pure over its snapshot inputs; committing to the board is
// the only effectful step, and local caches are touched only after the
// board accepts the draft. The orchestrator owns the shared caches (index,
// catalog, tracker, graph), so concurrent Intake calls serialize per
// assignee and per graph through the component locks, never globally.
type Orchestrator struct {
	remote   board.Board
	embedder index.Embedder

	index    *index.Index
	catalog  *catalog
	resolver *resolve.Resolver
	analyzer *deps.Analyzer
	graph    *deps.Graph
	tracker  *workload.Tracker
	scorer   *score.Scorer
	detector *conflict.Detector
	gate     *conflict.Gate

	store      *state.DB
	journal    *state.Journal
	identities identity.Provider
	hinter     IntentClassifier

	emitter *EventEmitter
	log     zerolog.Logger

	// mu protects stopped; wg tracks in-flight runs.
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates an Orchestrator. The board is wrapped with the bounded retry
// policy from the configuration, so callers pass the raw client.
func New(req RequiredConfig, opts ...Option) *Orchestrator {
	options := &orchestratorOptions{}
	for _, opt := range opts {
		opt(options)
	}

	cfg := config.Default()
	if options.cfg != nil {
		cfg = options.cfg
	}

	ix := options.index
	if ix == nil {
		ix = index.New(req.Embedder)
	}
	graph := options.graph
	if graph == nil {
		graph = deps.NewGraph()
	}
	tracker := options.tracker
	if tracker == nil {
		tracker = workload.New(cfg.Cache.Staleness)
	}
	scorer := options.scorer
	if scorer == nil {
		scorer = score.New(cfg.Scoring.Weights)
	}
	detector := options.detector
	if detector == nil {
		detector = conflict.New(conflict.Config{OverloadFactor: cfg.Conflicts.OverloadFactor})
	}
	gate := options.gate
	if gate == nil {
		gate = conflict.NewGate()
	}

	bufferSize := options.eventBufferSize
	if bufferSize <= 0 {
		bufferSize = 100
	}

	cat := newCatalog()

	rcfg := resolve.DefaultConfig()
	rcfg.Threshold = cfg.Resolve.Threshold
	rcfg.Margin = cfg.Resolve.Margin

	dcfg := deps.DefaultConfig()
	dcfg.SimilarityFloor = cfg.Deps.SimilarityFloor
	dcfg.DuplicateThreshold = cfg.Deps.DuplicateThreshold

	return &Orchestrator{
		remote:     board.WithRetry(req.Board, cfg.Board.MaxRetries, cfg.Board.RetryBase),
		embedder:   req.Embedder,
		index:      ix,
		catalog:    cat,
		resolver:   resolve.New(ix, req.Embedder, cat, rcfg),
		analyzer:   deps.NewAnalyzer(ix, graph, dcfg),
		graph:      graph,
		tracker:    tracker,
		scorer:     scorer,
		detector:   detector,
		gate:       gate,
		store:      options.store,
		journal:    options.journal,
		identities: options.identities,
		hinter:     options.hinter,
		emitter:    NewEventEmitter(bufferSize),
		log:        logging.Component("intake"),
	}
}

// Events returns the channel of pipeline progress events.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// DroppedEventCount returns how many events were dropped because no
// subscriber drained the channel in time.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.emitter.DroppedCount()
}

// Tracker exposes the workload tracker for reports.
func (o *Orchestrator) Tracker() *workload.Tracker {
	return o.tracker
}

// Graph exposes the dependency graph for reports.
func (o *Orchestrator) Graph() *deps.Graph {
	return o.graph
}

// OpenTasks returns a snapshot of the cached open-task set, sorted by ID.
func (o *Orchestrator) OpenTasks() []*models.Task {
	return o.catalog.openTasks()
}

// SetConfig applies reloaded policy knobs to the live pipeline. Wiring
// choices such as paths, providers and the board client are fixed at
// construction and ignored here.
func (o *Orchestrator) SetConfig(cfg config.Config) {
	rcfg := o.resolver.Config()
	rcfg.Threshold = cfg.Resolve.Threshold
	rcfg.Margin = cfg.Resolve.Margin
	o.resolver.SetConfig(rcfg)

	dcfg := o.analyzer.Config()
	dcfg.SimilarityFloor = cfg.Deps.SimilarityFloor
	dcfg.DuplicateThreshold = cfg.Deps.DuplicateThreshold
	o.analyzer.SetConfig(dcfg)

	o.scorer.SetWeights(cfg.Scoring.Weights)
	o.detector.SetOverloadFactor(cfg.Conflicts.OverloadFactor)
}

// Stop waits for in-flight runs and closes the events channel. Further
// Intake and Sync calls return ErrStopped.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	o.wg.Wait()
	o.emitter.Close()
}

// begin registers a run, failing when the orchestrator is stopped.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	o.wg.Add(1)
	return nil
}

// Intake runs the pipeline for one description and returns the verdict.
// Domain outcomes, including board failures after the retry budget, come
// back as a Result; the error return is reserved for context cancellation
// and a stopped orchestrator. A run halts without guessing: ambiguous
// resolution yields NeedsDisambiguation, conflicts or missing capacity
// yield Blocked.
func (o *Orchestrator) Intake(ctx context.Context, description, requester string, opts ...RunOption) (Result, error) {
	if err := o.begin(); err != nil {
		return Result{}, err
	}
	defer o.wg.Done()

	var run runConfig
	for _, opt := range opts {
		opt(&run)
	}
	if run.intakeID == "" {
		run.intakeID = uuid.New().String()[:8]
	}

	return o.intake(ctx, description, requester, run)
}

func (o *Orchestrator) intake(ctx context.Context, description, requester string, run runConfig) (Result, error) {
	start := time.Now()
	id := run.intakeID
	desc := strings.TrimSpace(description)

	o.emitter.Emit(Event{Type: EventReceived, IntakeID: id, Requester: requester, Message: desc})

	// Received: validate the input and the requester's permission.
	if n := utf8.RuneCountInString(desc); n < minDescriptionRunes || n > maxDescriptionRunes {
		reason := fmt.Sprintf("description must be %d-%d characters, got %d",
			minDescriptionRunes, maxDescriptionRunes, n)
		return o.reject(id, requester, desc, start, reason), nil
	}

	principal, err := o.principal(requester)
	if err != nil {
		return o.reject(id, requester, desc, start, fmt.Sprintf("requester %s: %v", requester, err)), nil
	}
	if err := identity.Require(principal, identity.PermTasksCreate); err != nil {
		return o.reject(id, requester, desc, start, err.Error()), nil
	}

	// Deterministic analysis, overlaid with best-effort model hints.
	summary := analyze.Analyze(desc)
	var hintRefs []string
	if o.hinter != nil {
		hints, err := o.hinter.ClassifyIntent(ctx, desc)
		if err != nil {
			o.log.Warn().Err(err).Str("intake", id).
				Msg("intent hints unavailable, continuing with deterministic analysis")
		} else {
			summary = summary.Merge(hints)
			hintRefs = hints.DependsOnRefs
		}
	}

	// Resolving.
	o.emitter.Emit(Event{Type: EventResolving, IntakeID: id})
	var resolution resolve.Resolution
	if run.pinnedClientID != "" {
		resolution, err = o.resolver.ResolveWithClient(ctx, desc, run.pinnedClientID)
	} else {
		resolution, err = o.resolver.Resolve(ctx, desc)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return o.reject(id, requester, desc, start, fmt.Sprintf("resolve entities: %v", err)), nil
	}

	if resolution.Client.Outcome == resolve.OutcomeAmbiguous ||
		resolution.Project.Outcome == resolve.OutcomeAmbiguous {
		res := Result{
			Kind:       ResultNeedsDisambiguation,
			IntakeID:   id,
			Resolution: &resolution,
			Duration:   time.Since(start),
		}
		o.record(requester, desc, res)
		o.emitter.Emit(Event{
			Type:     EventNeedsDisambiguation,
			IntakeID: id,
			Message:  ambiguityMessage(resolution),
			Duration: res.Duration,
		})
		return res, nil
	}

	draft := &models.Task{
		ID:             "draft-" + id,
		Title:          summary.Title,
		Description:    desc,
		ClientID:       resolution.Client.ID,
		ProjectID:      resolution.Project.ID,
		Priority:       summary.Priority,
		Status:         models.TaskStatusDraft,
		Tags:           summary.Tags,
		EstimatedHours: summary.EstimatedHours,
		Embedding:      resolution.Vector,
	}

	// DependencyCheck.
	o.emitter.Emit(Event{Type: EventDependencyCheck, IntakeID: id})
	proposal := o.analyzer.Propose(draft, o.catalog.openTasks(), hintRefs)
	for _, e := range proposal.Edges {
		draft.DependsOn = append(draft.DependsOn, e.PrerequisiteID)
	}

	// Scoring. Stale assignee snapshots are refreshed first so capacity
	// decisions never run on outdated load data.
	o.emitter.Emit(Event{Type: EventScoring, IntakeID: id})
	if err := o.refreshStale(ctx); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return o.reject(id, requester, desc, start, fmt.Sprintf("refresh assignees: %v", err)), nil
	}
	scoring := o.scorer.Select(o.tracker.Candidates(), draft.Tags, o.prereqOwners(draft.DependsOn))
	if scoring.NoCapacity {
		res := Result{
			Kind:       ResultBlocked,
			IntakeID:   id,
			Task:       draft,
			Resolution: &resolution,
			Conflicts:  proposal.Conflicts,
			NoCapacity: true,
			Scoring:    &scoring,
			Duplicates: proposal.Duplicates,
			Duration:   time.Since(start),
		}
		o.record(requester, desc, res)
		o.emitter.Emit(Event{
			Type:      EventBlocked,
			IntakeID:  id,
			TaskTitle: draft.Title,
			Message:   "no assignee has remaining capacity",
			Conflicts: res.Conflicts,
			Duration:  res.Duration,
		})
		return res, nil
	}
	draft.AssigneeID = scoring.Selected.AssigneeID

	// ConflictCheck.
	o.emitter.Emit(Event{Type: EventConflictCheck, IntakeID: id, AssigneeID: draft.AssigneeID})
	var snapshot *models.Assignee
	if snap, ok := o.tracker.Snapshot(draft.AssigneeID); ok {
		snapshot = &snap
	}
	conflicts := o.detector.Detect(conflict.Check{
		Task:          draft,
		Assignee:      snapshot,
		Carried:       proposal.Conflicts,
		Prerequisites: o.prerequisiteStates(draft.DependsOn),
	})

	if len(conflicts) > 0 && run.overrideReason != "" {
		remaining, err := o.gate.Apply(principal, id, conflicts, run.overrideReason)
		switch {
		case errors.Is(err, identity.ErrPermissionDenied):
			return o.reject(id, requester, desc, start, err.Error()), nil
		case errors.Is(err, conflict.ErrNothingOverridable):
			// Only cycle conflicts remain; the blocked verdict below stands.
		case err != nil:
			return o.reject(id, requester, desc, start, fmt.Sprintf("override: %v", err)), nil
		default:
			o.log.Info().Str("intake", id).Str("requester", requester).
				Int("cleared", len(conflicts)-len(remaining)).
				Msg("conflicts overridden")
			conflicts = remaining
		}
	}
	if len(conflicts) > 0 {
		res := Result{
			Kind:       ResultBlocked,
			IntakeID:   id,
			Task:       draft,
			Resolution: &resolution,
			Conflicts:  conflicts,
			Scoring:    &scoring,
			Duplicates: proposal.Duplicates,
			Duration:   time.Since(start),
		}
		o.record(requester, desc, res)
		o.emitter.Emit(Event{
			Type:       EventBlocked,
			IntakeID:   id,
			TaskTitle:  draft.Title,
			AssigneeID: draft.AssigneeID,
			Conflicts:  conflicts,
			Duration:   res.Duration,
		})
		return res, nil
	}

	// Commit: the only effectful stage. Local caches are touched only
	// after the board accepts the draft.
	o.emitter.Emit(Event{
		Type:       EventCommitting,
		IntakeID:   id,
		TaskTitle:  draft.Title,
		AssigneeID: draft.AssigneeID,
	})
	created, err := o.commit(ctx, id, draft, proposal.Duplicates)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return o.reject(id, requester, desc, start, fmt.Sprintf("commit: %v", err)), nil
	}

	res := Result{
		Kind:       ResultFinalized,
		IntakeID:   id,
		Task:       created,
		Resolution: &resolution,
		Scoring:    &scoring,
		Duplicates: proposal.Duplicates,
		Duration:   time.Since(start),
	}
	o.record(requester, desc, res)
	o.emitter.Emit(Event{
		Type:       EventFinalized,
		IntakeID:   id,
		TaskID:     created.ID,
		TaskTitle:  created.Title,
		AssigneeID: created.AssigneeID,
		Duration:   res.Duration,
	})
	return res, nil
}

// commit sends the draft to the board and, on success, applies it to the
// graph, index, catalog, tracker, local store and journal. On failure
// nothing local changes.
func (o *Orchestrator) commit(ctx context.Context, id string, draft *models.Task, duplicates []index.Match) (*models.Task, error) {
	submit := *draft
	submit.ID = "" // the board assigns the identifier
	submit.Status = models.TaskStatusOpen

	created, err := o.remote.CreateTask(ctx, submit)
	if err != nil {
		return nil, err
	}
	if len(created.Embedding) == 0 {
		created.Embedding = draft.Embedding
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}

	o.graph.AddTask(&created)
	for _, prereqID := range created.DependsOn {
		if err := o.graph.AddEdge(created.ID, prereqID); err != nil {
			// A concurrent intake closed a cycle between proposal and
			// commit. Drop the edge locally and flag it on the board.
			o.log.Error().Err(err).Str("intake", id).
				Str("task", created.ID).Str("prerequisite", prereqID).
				Msg("edge dropped at commit")
			comment := fmt.Sprintf("dependency on %s dropped: %v", prereqID, err)
			if err := o.remote.AddComment(ctx, created.ID, comment); err != nil {
				o.log.Warn().Err(err).Str("task", created.ID).Msg("dropped-edge comment failed")
			}
		}
	}

	o.index.Put(index.KindTask, created.ID, created.Embedding, created.CreatedAt)
	o.catalog.putTask(created)

	if err := o.tracker.Assign(&created); err != nil {
		o.log.Warn().Err(err).Str("task", created.ID).Msg("workload not counted")
	}

	if o.store != nil {
		var snapshot *models.Assignee
		if snap, ok := o.tracker.Snapshot(created.AssigneeID); ok {
			snapshot = &snap
		}
		if err := o.store.CommitIntake(&created, snapshot); err != nil {
			o.log.Warn().Err(err).Str("task", created.ID).Msg("cache commit failed")
		}
	}

	if len(duplicates) > 0 {
		if err := o.remote.AddComment(ctx, created.ID, duplicateComment(duplicates)); err != nil {
			o.log.Warn().Err(err).Str("task", created.ID).Msg("duplicate comment failed")
		}
	}

	return &created, nil
}

// principal resolves the requester through the identity provider. Without
// a provider every requester is treated as a member.
func (o *Orchestrator) principal(requester string) (identity.Principal, error) {
	if o.identities == nil {
		return identity.Principal{ID: requester, Name: requester, Role: identity.RoleMember}, nil
	}
	return o.identities.Lookup(requester)
}

// refreshStale re-fetches assignee profiles that have outlived the
// staleness bound. Stale snapshots may serve similarity reads, but never a
// capacity decision.
func (o *Orchestrator) refreshStale(ctx context.Context) error {
	if len(o.tracker.StaleIDs()) == 0 {
		return nil
	}

	assignees, err := o.remote.FindAssignees(ctx)
	if err != nil {
		return fmt.Errorf("find assignees: %w", err)
	}
	now := time.Now()
	for _, a := range assignees {
		a.FetchedAt = now
		o.tracker.Put(a)
		o.persistAssignee(a)
	}
	return nil
}

// prereqOwners collects the assignees who own a prerequisite of the draft,
// for the scorer's proximity term.
func (o *Orchestrator) prereqOwners(prereqIDs []string) map[string]bool {
	owners := make(map[string]bool, len(prereqIDs))
	for _, id := range prereqIDs {
		if t, ok := o.catalog.task(id); ok && t.AssigneeID != "" {
			owners[t.AssigneeID] = true
		}
	}
	return owners
}

// prerequisiteStates returns the current cached state of every prerequisite.
func (o *Orchestrator) prerequisiteStates(prereqIDs []string) []models.Task {
	states := make([]models.Task, 0, len(prereqIDs))
	for _, id := range prereqIDs {
		if t, ok := o.catalog.task(id); ok {
			states = append(states, t)
		}
	}
	return states
}

// reject journals and emits a terminal rejection.
func (o *Orchestrator) reject(id, requester, desc string, start time.Time, reason string) Result {
	res := Result{
		Kind:     ResultRejected,
		IntakeID: id,
		Reason:   reason,
		Duration: time.Since(start),
	}
	o.record(requester, desc, res)
	o.emitter.Emit(Event{Type: EventRejected, IntakeID: id, Message: reason, Duration: res.Duration})
	return res
}

// record appends the outcome to the audit journal. Journal failures are
// logged, never surfaced: audit must not fail intake.
func (o *Orchestrator) record(requester, desc string, res Result) {
	if o.journal == nil {
		return
	}
	entry := &state.JournalEntry{
		ID:          res.IntakeID,
		Requester:   requester,
		Description: desc,
		Outcome:     string(res.Kind),
		Reason:      res.Reason,
		Duration:    res.Duration,
	}
	if res.Task != nil {
		entry.TaskID = res.Task.ID
		entry.AssigneeID = res.Task.AssigneeID
	}
	for _, c := range res.Conflicts {
		entry.Conflicts = append(entry.Conflicts, c.String())
	}
	if err := o.journal.Record(entry); err != nil {
		o.log.Warn().Err(err).Str("intake", res.IntakeID).Msg("journal write failed")
	}
}

func (o *Orchestrator) persistClient(c models.Client) {
	if o.store == nil {
		return
	}
	if err := o.store.UpsertClient(&c); err != nil {
		o.log.Warn().Err(err).Str("client", c.ID).Msg("cache write failed")
	}
}

func (o *Orchestrator) persistProject(p models.Project) {
	if o.store == nil {
		return
	}
	if err := o.store.UpsertProject(&p); err != nil {
		o.log.Warn().Err(err).Str("project", p.ID).Msg("cache write failed")
	}
}

func (o *Orchestrator) persistAssignee(a models.Assignee) {
	if o.store == nil {
		return
	}
	if err := o.store.UpsertAssignee(&a); err != nil {
		o.log.Warn().Err(err).Str("assignee", a.ID).Msg("cache write failed")
	}
}

func (o *Orchestrator) persistTask(t models.Task) {
	if o.store == nil {
		return
	}
	if err := o.store.UpsertTask(&t); err != nil {
		o.log.Warn().Err(err).Str("task", t.ID).Msg("cache write failed")
	}
}

// ambiguityMessage names the candidates the requester must choose from.
func ambiguityMessage(res resolve.Resolution) string {
	decision := res.Client
	kind := "client"
	if decision.Outcome != resolve.OutcomeAmbiguous {
		decision = res.Project
		kind = "project"
	}
	names := make([]string, len(decision.Candidates))
	for i, c := range decision.Candidates {
		names[i] = c.Name
	}
	return fmt.Sprintf("ambiguous %s: %s", kind, strings.Join(names, ", "))
}

// duplicateComment formats the duplicate warning posted on finalized tasks.
func duplicateComment(duplicates []index.Match) string {
	var b strings.Builder
	b.WriteString("possible duplicates detected during intake:")
	for _, d := range duplicates {
		fmt.Fprintf(&b, "\n- %s (similarity %.2f)", d.EntityID, d.Similarity)
	}
	return b.String()
}
