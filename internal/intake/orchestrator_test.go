package intake

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kestrelworks/triage/internal/analyze"
	"github.com/kestrelworks/triage/internal/board"
	"github.com/kestrelworks/triage/internal/config"
	"github.com/kestrelworks/triage/internal/embed"
	"github.com/kestrelworks/triage/internal/identity"
	"github.com/kestrelworks/triage/internal/resolve"
	"github.com/kestrelworks/triage/internal/state"
	"github.com/kestrelworks/triage/pkg/models"
)

// seedBoard returns an in-memory board with the standard test workspace:
// two clients, two assignees and one open, unassigned task.
func seedBoard() *board.Memory {
	b := board.NewMemory()
	b.PutClient(models.Client{ID: "c-acme", Name: "Acme"})
	b.PutClient(models.Client{ID: "c-globex", Name: "Globex"})
	b.PutAssignee(models.Assignee{
		ID: "a-dana", Name: "Dana",
		Expertise: map[string]float64{"development": 0.9},
		Capacity:  10,
	})
	b.PutAssignee(models.Assignee{
		ID: "a-mel", Name: "Mel",
		Expertise: map[string]float64{"qa": 0.8},
		Capacity:  8,
	})
	b.PutTask(models.Task{
		ID:       "T-102",
		Title:    "Login flow rework",
		ClientID: "c-acme",
		Priority: models.PriorityNormal,
		Status:   models.TaskStatusOpen,
	})
	return b
}

// newTestOrchestrator builds an orchestrator over the board and syncs it so
// the caches hold the seeded workspace.
func newTestOrchestrator(t *testing.T, b *board.Memory, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(RequiredConfig{Board: b, Embedder: embed.NewLocal(0)}, opts...)
	t.Cleanup(o.Stop)
	if err := o.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	return o
}

// drainEvents reads every event currently buffered on the channel.
func drainEvents(o *Orchestrator) []Event {
	var events []Event
	for {
		select {
		case ev, ok := <-o.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

// eventTypes returns the event types emitted for one intake, in order.
func eventTypes(events []Event, intakeID string) []EventType {
	var types []EventType
	for _, ev := range events {
		if ev.IntakeID == intakeID {
			types = append(types, ev.Type)
		}
	}
	return types
}

type stubHinter struct {
	hints analyze.Hints
	err   error
}

func (s *stubHinter) ClassifyIntent(context.Context, string) (analyze.Hints, error) {
	return s.hints, s.err
}

func TestIntake_FinalizedEndToEnd(t *testing.T) {
	b := seedBoard()
	o := newTestOrchestrator(t, b)

	res, err := o.Intake(context.Background(),
		"Implement the payment api integration for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Fatalf("kind = %q, want finalized (reason %q)", res.Kind, res.Reason)
	}
	if res.Task == nil || res.Task.ID == "" {
		t.Fatal("finalized result carries no committed task")
	}
	if res.Task.Status != models.TaskStatusOpen {
		t.Errorf("task status = %q, want open", res.Task.Status)
	}
	if res.Task.ClientID != "c-acme" {
		t.Errorf("task client = %q, want c-acme", res.Task.ClientID)
	}
	if res.Task.AssigneeID != "a-dana" {
		t.Errorf("assignee = %q, want a-dana (expertise match)", res.Task.AssigneeID)
	}
	if res.Task.Priority != models.PriorityNormal {
		t.Errorf("priority = %q, want normal", res.Task.Priority)
	}
	if res.Task.EstimatedHours != 8 {
		t.Errorf("estimated hours = %v, want 8 (medium + integration)", res.Task.EstimatedHours)
	}
	if res.Resolution == nil || res.Resolution.Client.ID != "c-acme" {
		t.Errorf("resolution = %+v, want client c-acme", res.Resolution)
	}
	if res.Scoring == nil || res.Scoring.Selected == nil || res.Scoring.Selected.AssigneeID != "a-dana" {
		t.Errorf("scoring = %+v, want a-dana selected", res.Scoring)
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}

	// The board holds the committed task and the caches follow it.
	stored, ok := b.Task(res.Task.ID)
	if !ok {
		t.Fatalf("task %s not on the board", res.Task.ID)
	}
	if stored.AssigneeID != "a-dana" {
		t.Errorf("board assignee = %q, want a-dana", stored.AssigneeID)
	}
	if got := o.Tracker().Load("a-dana"); got != 1 {
		t.Errorf("Load(a-dana) = %v, want 1 (normal weight)", got)
	}
	if got := len(o.OpenTasks()); got != 2 {
		t.Errorf("open tasks = %d, want 2", got)
	}

	// Pipeline stages in order, one event per stage.
	want := []EventType{
		EventReceived, EventResolving, EventDependencyCheck, EventScoring,
		EventConflictCheck, EventCommitting, EventFinalized,
	}
	got := eventTypes(drainEvents(o), res.IntakeID)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("event sequence = %v, want %v", got, want)
	}
}

func TestIntake_BlockedOnUnassignedUrgentPrerequisite(t *testing.T) {
	b := seedBoard()
	o := newTestOrchestrator(t, b)

	res, err := o.Intake(context.Background(),
		"Fix login bug for Client Acme, blocked by task T-102", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultBlocked {
		t.Fatalf("kind = %q, want blocked (reason %q)", res.Kind, res.Reason)
	}
	if res.NoCapacity {
		t.Error("blocked on conflicts, not capacity")
	}
	if !res.Halted() {
		t.Error("blocked result should report as halted")
	}
	if res.Task == nil {
		t.Fatal("blocked result carries no draft")
	}
	if res.Task.Priority != models.PriorityUrgent {
		t.Errorf("priority = %q, want urgent (blocked-by cue)", res.Task.Priority)
	}
	if !res.Task.DependsOnTask("T-102") {
		t.Errorf("draft dependencies = %v, want T-102", res.Task.DependsOn)
	}
	if res.Task.AssigneeID != "a-dana" {
		t.Errorf("tentative assignee = %q, want a-dana", res.Task.AssigneeID)
	}

	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %v, want exactly one", res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.Kind != models.ConflictScheduling {
		t.Errorf("conflict kind = %q, want scheduling", c.Kind)
	}
	if c.PrerequisiteID != "T-102" {
		t.Errorf("conflict prerequisite = %q, want T-102", c.PrerequisiteID)
	}
	if c.TaskID != "draft-"+res.IntakeID {
		t.Errorf("conflict task = %q, want the draft ID", c.TaskID)
	}

	// Nothing was committed: no board task, no counted load, no new edges.
	boardOpen, err := b.ListOpenTasks(context.Background(), board.Scope{})
	if err != nil {
		t.Fatalf("ListOpenTasks() error: %v", err)
	}
	if len(boardOpen) != 1 {
		t.Errorf("board open tasks = %d, want 1 (the draft must not land)", len(boardOpen))
	}
	if got := o.Tracker().Load("a-dana"); got != 0 {
		t.Errorf("Load(a-dana) = %v, want 0", got)
	}
	if got := len(o.OpenTasks()); got != 1 {
		t.Errorf("open tasks = %d, want 1", got)
	}
	if got := o.Graph().Size(); got != 1 {
		t.Errorf("graph size = %d, want 1", got)
	}
}

func TestIntake_OverrideClearsSchedulingConflict(t *testing.T) {
	b := seedBoard()
	ids := identity.NewStatic(
		identity.Principal{ID: "lead", Name: "Lead", Role: identity.RoleManager},
	)
	o := newTestOrchestrator(t, b, WithIdentityProvider(ids))

	res, err := o.Intake(context.Background(),
		"Fix login bug for Client Acme, blocked by task T-102", "lead",
		WithOverride("client escalation, accepted by the account manager"))
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Fatalf("kind = %q, want finalized (conflicts %v)", res.Kind, res.Conflicts)
	}
	if !res.Task.DependsOnTask("T-102") {
		t.Errorf("dependencies = %v, want T-102", res.Task.DependsOn)
	}

	// The edge was applied at commit and the urgent weight counted.
	deps := o.Graph().Dependencies(res.Task.ID)
	if len(deps) != 1 || deps[0] != "T-102" {
		t.Errorf("graph dependencies = %v, want [T-102]", deps)
	}
	if got := o.Tracker().Load("a-dana"); got != 3 {
		t.Errorf("Load(a-dana) = %v, want 3 (urgent weight)", got)
	}

	// The grant is recorded for audit.
	granted, ok := o.gate.Granted(res.IntakeID)
	if !ok {
		t.Fatal("override was not recorded")
	}
	if granted.PrincipalID != "lead" {
		t.Errorf("override principal = %q, want lead", granted.PrincipalID)
	}
	if granted.Reason == "" {
		t.Error("override reason was not recorded")
	}
	if len(granted.Cleared) != 1 || granted.Cleared[0].Kind != models.ConflictScheduling {
		t.Errorf("cleared = %v, want one scheduling conflict", granted.Cleared)
	}
}

func TestIntake_OverrideDeniedWithoutPermission(t *testing.T) {
	b := seedBoard()
	// Without a provider every requester is a member; members cannot override.
	o := newTestOrchestrator(t, b)

	res, err := o.Intake(context.Background(),
		"Fix login bug for Client Acme, blocked by task T-102", "ravi",
		WithOverride("just push it through"))
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultRejected {
		t.Fatalf("kind = %q, want rejected", res.Kind)
	}
	if !strings.Contains(res.Reason, "conflicts:override") {
		t.Errorf("reason = %q, want the missing permission named", res.Reason)
	}
	boardOpen, err := b.ListOpenTasks(context.Background(), board.Scope{})
	if err != nil {
		t.Fatalf("ListOpenTasks() error: %v", err)
	}
	if len(boardOpen) != 1 {
		t.Errorf("board open tasks = %d, want 1 (denied override must not commit)", len(boardOpen))
	}
}

func TestIntake_AmbiguousClientHaltsThenPinnedResumeFinalizes(t *testing.T) {
	b := board.NewMemory()
	b.PutClient(models.Client{ID: "c-acme", Name: "Acme"})
	b.PutClient(models.Client{ID: "c-acmefg", Name: "Acme Freight"})
	b.PutAssignee(models.Assignee{ID: "a-dana", Name: "Dana", Capacity: 10})
	o := newTestOrchestrator(t, b)

	// No client is named in the text, and neither candidate is a clear
	// winner, so the run halts for the requester to choose.
	res, err := o.Intake(context.Background(), "update the billing export pipeline", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultNeedsDisambiguation {
		t.Fatalf("kind = %q, want needs_disambiguation (reason %q)", res.Kind, res.Reason)
	}
	if res.Task != nil {
		t.Error("halted run produced a draft")
	}
	if res.Resolution == nil || res.Resolution.Client.Outcome != resolve.OutcomeAmbiguous {
		t.Fatalf("resolution = %+v, want ambiguous client", res.Resolution)
	}
	got := make(map[string]bool)
	for _, cand := range res.Resolution.Client.Candidates {
		got[cand.ID] = true
	}
	if !got["c-acme"] || !got["c-acmefg"] {
		t.Errorf("candidates = %v, want both clients", res.Resolution.Client.Candidates)
	}

	// Pinning the chosen client resumes the same description to completion.
	res, err = o.Intake(context.Background(), "update the billing export pipeline", "ravi",
		WithPinnedClient("c-acme"))
	if err != nil {
		t.Fatalf("Intake() with pinned client error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Fatalf("pinned kind = %q, want finalized (reason %q)", res.Kind, res.Reason)
	}
	if res.Task.ClientID != "c-acme" {
		t.Errorf("task client = %q, want the pinned c-acme", res.Task.ClientID)
	}
	if res.Resolution.Client.Similarity != 1.0 {
		t.Errorf("pinned similarity = %v, want 1.0", res.Resolution.Client.Similarity)
	}

	// An unknown pin rejects instead of guessing.
	res, err = o.Intake(context.Background(), "update the billing export pipeline", "ravi",
		WithPinnedClient("c-missing"))
	if err != nil {
		t.Fatalf("Intake() with unknown pin error: %v", err)
	}
	if res.Kind != ResultRejected {
		t.Errorf("unknown pin kind = %q, want rejected", res.Kind)
	}
}

func TestIntake_NoCapacityBlocks(t *testing.T) {
	b := board.NewMemory()
	b.PutClient(models.Client{ID: "c-acme", Name: "Acme"})
	b.PutAssignee(models.Assignee{ID: "a-dana", Name: "Dana", Capacity: 1})
	b.PutTask(models.Task{
		ID: "T-102", Title: "Login flow rework", ClientID: "c-acme",
		AssigneeID: "a-dana", Priority: models.PriorityNormal,
		Status: models.TaskStatusOpen,
	})
	o := newTestOrchestrator(t, b)

	// Dana's single slot is already taken by T-102.
	res, err := o.Intake(context.Background(), "Implement the invoice export for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultBlocked {
		t.Fatalf("kind = %q, want blocked (reason %q)", res.Kind, res.Reason)
	}
	if !res.NoCapacity {
		t.Error("NoCapacity not set")
	}
	if res.Scoring == nil || !res.Scoring.NoCapacity {
		t.Errorf("scoring = %+v, want NoCapacity", res.Scoring)
	}
	if res.Task.AssigneeID != "" {
		t.Errorf("assignee = %q, want none", res.Task.AssigneeID)
	}
	boardOpen, err := b.ListOpenTasks(context.Background(), board.Scope{})
	if err != nil {
		t.Fatalf("ListOpenTasks() error: %v", err)
	}
	if len(boardOpen) != 1 {
		t.Errorf("board open tasks = %d, want 1 (nothing committed)", len(boardOpen))
	}
}

func TestIntake_DuplicateWarningCommentPosted(t *testing.T) {
	b := seedBoard()
	b.PutTask(models.Task{
		ID: "T-900", Title: "Fix the checkout bug for Client Acme",
		ClientID: "c-acme", Priority: models.PriorityNormal,
		Status: models.TaskStatusOpen,
	})
	o := newTestOrchestrator(t, b)

	// The same work again: flagged as a duplicate but never blocked.
	res, err := o.Intake(context.Background(), "Fix the checkout bug for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Fatalf("kind = %q, want finalized (reason %q)", res.Kind, res.Reason)
	}
	if len(res.Duplicates) != 1 || res.Duplicates[0].EntityID != "T-900" {
		t.Fatalf("duplicates = %v, want T-900", res.Duplicates)
	}

	comments := b.Comments(res.Task.ID)
	if len(comments) != 1 {
		t.Fatalf("comments = %v, want one duplicate warning", comments)
	}
	if !strings.Contains(comments[0], "possible duplicates") || !strings.Contains(comments[0], "T-900") {
		t.Errorf("comment = %q, want a duplicate warning naming T-900", comments[0])
	}
}

func TestIntake_RetriesTransientBoardFailures(t *testing.T) {
	b := seedBoard()
	cfg := config.Default()
	cfg.Board.MaxRetries = 2
	cfg.Board.RetryBase = time.Millisecond
	o := newTestOrchestrator(t, b, WithConfig(*cfg))

	// Two transient failures fit inside the retry budget.
	b.FailNext(2, board.ErrRemoteUnavailable)
	res, err := o.Intake(context.Background(), "Implement the payment api for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Fatalf("kind = %q, want finalized after retries (reason %q)", res.Kind, res.Reason)
	}

	// Three consecutive failures exhaust it; the outcome is a rejection,
	// not an error, and nothing local changes.
	loadBefore := o.Tracker().Load("a-dana") + o.Tracker().Load("a-mel")
	b.FailNext(3, board.ErrRemoteUnavailable)
	res, err = o.Intake(context.Background(), "Design the billing dashboard for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultRejected {
		t.Fatalf("kind = %q, want rejected after budget exhaustion", res.Kind)
	}
	if !strings.Contains(res.Reason, "commit") || !strings.Contains(res.Reason, "board unavailable") {
		t.Errorf("reason = %q, want the commit failure surfaced", res.Reason)
	}
	loadAfter := o.Tracker().Load("a-dana") + o.Tracker().Load("a-mel")
	if loadBefore != loadAfter {
		t.Errorf("load changed on a failed commit: %v -> %v", loadBefore, loadAfter)
	}
	if got := len(o.OpenTasks()); got != 2 {
		t.Errorf("open tasks = %d, want 2 (T-102 plus the first intake)", got)
	}
}

func TestIntake_TerminalBoardRejectionDoesNotRetry(t *testing.T) {
	b := seedBoard()
	o := newTestOrchestrator(t, b)

	// One scripted terminal refusal. If the client retried, the second
	// attempt would succeed and this intake would finalize.
	b.FailNext(1, board.ErrRemoteRejected)
	res, err := o.Intake(context.Background(), "Implement the payment api for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultRejected {
		t.Fatalf("kind = %q, want rejected without retry", res.Kind)
	}
	if !strings.Contains(res.Reason, "board rejected request") {
		t.Errorf("reason = %q, want the refusal surfaced verbatim", res.Reason)
	}

	// The failure left no residue; the next intake goes through.
	res, err = o.Intake(context.Background(), "Implement the payment api for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Errorf("follow-up kind = %q, want finalized (reason %q)", res.Kind, res.Reason)
	}
}

func TestIntake_DescriptionBoundsRejected(t *testing.T) {
	o := newTestOrchestrator(t, seedBoard())

	tests := []struct {
		name string
		desc string
	}{
		{"too short", "hi"},
		{"whitespace only", "   "},
		{"too long", strings.Repeat("a", 2001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Intake(context.Background(), tt.desc, "ravi")
			if err != nil {
				t.Fatalf("Intake() error: %v", err)
			}
			if res.Kind != ResultRejected {
				t.Fatalf("kind = %q, want rejected", res.Kind)
			}
			if !strings.Contains(res.Reason, "description must be") {
				t.Errorf("reason = %q, want the bounds named", res.Reason)
			}
		})
	}
}

func TestIntake_RequesterPermissions(t *testing.T) {
	ids := identity.NewStatic(
		identity.Principal{ID: "vic", Name: "Vic", Role: identity.RoleViewer},
	)
	o := newTestOrchestrator(t, seedBoard(), WithIdentityProvider(ids))

	// Viewers cannot create tasks.
	res, err := o.Intake(context.Background(), "Implement the payment api for Client Acme", "vic")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultRejected {
		t.Fatalf("viewer kind = %q, want rejected", res.Kind)
	}
	if !strings.Contains(res.Reason, "tasks:create") {
		t.Errorf("reason = %q, want the missing permission named", res.Reason)
	}

	// Unknown requesters are rejected outright.
	res, err = o.Intake(context.Background(), "Implement the payment api for Client Acme", "nobody")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultRejected {
		t.Fatalf("unknown requester kind = %q, want rejected", res.Kind)
	}
	if !strings.Contains(res.Reason, "unknown principal") {
		t.Errorf("reason = %q, want unknown principal", res.Reason)
	}
}

func TestIntake_JournalsOutcomes(t *testing.T) {
	j, err := state.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal() error: %v", err)
	}
	defer j.Close()

	b := seedBoard()
	o := newTestOrchestrator(t, b, WithJournal(j))

	fin, err := o.Intake(context.Background(), "Implement the payment api for Client Acme", "ravi")
	if err != nil || fin.Kind != ResultFinalized {
		t.Fatalf("finalized intake = %+v, %v", fin, err)
	}
	blocked, err := o.Intake(context.Background(),
		"Fix login bug for Client Acme, blocked by task T-102", "morgan")
	if err != nil || blocked.Kind != ResultBlocked {
		t.Fatalf("blocked intake = %+v, %v", blocked, err)
	}

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(entries))
	}

	got, err := j.Get(fin.IntakeID)
	if err != nil || got == nil {
		t.Fatalf("Get(%s) = %v, %v", fin.IntakeID, got, err)
	}
	if got.Outcome != string(ResultFinalized) || got.Requester != "ravi" {
		t.Errorf("finalized entry = %+v", got)
	}
	if got.TaskID != fin.Task.ID || got.AssigneeID != fin.Task.AssigneeID {
		t.Errorf("finalized entry task = %q/%q, want %q/%q",
			got.TaskID, got.AssigneeID, fin.Task.ID, fin.Task.AssigneeID)
	}

	got, err = j.Get(blocked.IntakeID)
	if err != nil || got == nil {
		t.Fatalf("Get(%s) = %v, %v", blocked.IntakeID, got, err)
	}
	if got.Outcome != string(ResultBlocked) {
		t.Errorf("blocked outcome = %q", got.Outcome)
	}
	if len(got.Conflicts) != 1 || !strings.Contains(got.Conflicts[0], "T-102") {
		t.Errorf("blocked conflicts = %v, want one naming T-102", got.Conflicts)
	}
}

func TestIntake_RefreshesStaleProfilesBeforeScoring(t *testing.T) {
	b := seedBoard()
	cfg := config.Default()
	cfg.Cache.Staleness = 10 * time.Millisecond
	o := newTestOrchestrator(t, b, WithConfig(*cfg))

	// The board-side profiles change while the cached ones age out.
	b.PutAssignee(models.Assignee{ID: "a-dana", Name: "Dana", Capacity: 0})
	b.PutAssignee(models.Assignee{ID: "a-mel", Name: "Mel", Capacity: 0})
	time.Sleep(25 * time.Millisecond)

	// A fresh cache would have assigned Dana; the refresh sees the
	// capacity drop first.
	res, err := o.Intake(context.Background(), "Implement the payment api for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultBlocked || !res.NoCapacity {
		t.Fatalf("kind = %q (no capacity %v), want blocked on refreshed capacity", res.Kind, res.NoCapacity)
	}
	if !o.Tracker().Fresh("a-dana") {
		t.Error("refresh did not restamp the profile")
	}
}

func TestIntake_HinterRefinesAndFailsOpen(t *testing.T) {
	b := seedBoard()
	hinter := &stubHinter{hints: analyze.Hints{
		Priority: "high",
		Tags:     []string{"qa"},
		Title:    "Verify the payment flow",
	}}
	o := newTestOrchestrator(t, b, WithHinter(hinter))

	res, err := o.Intake(context.Background(), "Implement the payment api for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Fatalf("kind = %q, want finalized (reason %q)", res.Kind, res.Reason)
	}
	if res.Task.Priority != models.PriorityHigh {
		t.Errorf("priority = %q, want high from the hint", res.Task.Priority)
	}
	if res.Task.Title != "Verify the payment flow" {
		t.Errorf("title = %q, want the hinted title", res.Task.Title)
	}
	wantTags := []string{"development", "qa"}
	if !reflect.DeepEqual(res.Task.Tags, wantTags) {
		t.Errorf("tags = %v, want %v (hint joins derived)", res.Task.Tags, wantTags)
	}

	// A failing hint source never fails the intake; deterministic
	// analysis stands alone.
	hinter.err = errors.New("model unavailable")
	res, err = o.Intake(context.Background(), "Draft the launch checklist for Client Acme", "ravi")
	if err != nil {
		t.Fatalf("Intake() with failing hinter error: %v", err)
	}
	if res.Kind != ResultFinalized {
		t.Fatalf("kind = %q, want finalized despite hinter failure (reason %q)", res.Kind, res.Reason)
	}
	if res.Task.Priority != models.PriorityNormal {
		t.Errorf("priority = %q, want normal without hints", res.Task.Priority)
	}
}

func TestIntake_ContextCancellation(t *testing.T) {
	b := seedBoard()
	o := newTestOrchestrator(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The scripted transient failure sends the board client into backoff,
	// where the dead context is noticed.
	b.FailNext(1, board.ErrRemoteUnavailable)
	res, err := o.Intake(ctx, "Implement the payment api for Client Acme", "ravi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Kind != "" {
		t.Errorf("cancelled run produced a result: %+v", res)
	}
}

func TestOrchestrator_StopPreventsNewRuns(t *testing.T) {
	o := New(RequiredConfig{Board: board.NewMemory(), Embedder: embed.NewLocal(0)})
	o.Stop()

	if _, err := o.Intake(context.Background(), "Implement something", "ravi"); !errors.Is(err, ErrStopped) {
		t.Errorf("Intake() after Stop = %v, want ErrStopped", err)
	}
	if err := o.Sync(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Sync() after Stop = %v, want ErrStopped", err)
	}
	if _, ok := <-o.Events(); ok {
		t.Error("events channel still open after Stop")
	}

	// Stop is idempotent.
	o.Stop()
}
