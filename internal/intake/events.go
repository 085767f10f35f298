package intake

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelworks/triage/internal/logging"
	"github.com/kestrelworks/triage/pkg/models"
)

// EventType represents the type of intake event.
type EventType string

const (
	// EventReceived indicates a request entered the pipeline.
	EventReceived EventType = "received"
	// EventResolving indicates entity resolution has started.
	EventResolving EventType = "resolving"
	// EventNeedsDisambiguation indicates resolution was ambiguous and the
	// requester must choose before the intake can resume.
	EventNeedsDisambiguation EventType = "needs_disambiguation"
	// EventDependencyCheck indicates dependency analysis has started.
	EventDependencyCheck EventType = "dependency_check"
	// EventScoring indicates assignment scoring has started.
	EventScoring EventType = "scoring"
	// EventConflictCheck indicates conflict detection has started.
	EventConflictCheck EventType = "conflict_check"
	// EventCommitting indicates the draft is being committed to the board.
	EventCommitting EventType = "committing"
	// EventFinalized indicates the task was committed successfully.
	EventFinalized EventType = "finalized"
	// EventBlocked indicates conflicts or missing capacity stopped the
	// intake short of finalization.
	EventBlocked EventType = "blocked"
	// EventRejected indicates the intake terminated without a task.
	EventRejected EventType = "rejected"
	// EventSyncStarted indicates a board synchronization has started.
	EventSyncStarted EventType = "sync_started"
	// EventSyncCompleted indicates a board synchronization has finished.
	EventSyncCompleted EventType = "sync_completed"
)

// Event represents progress emitted by the orchestrator. Events are used
// to update the CLI/TUI and to follow pooled intakes.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// IntakeID is the ID of the intake run this event belongs to.
	IntakeID string
	// Requester is the principal who submitted the request, if applicable.
	Requester string
	// TaskID is the ID of the committed task, if applicable.
	TaskID string
	// TaskTitle is the title of the draft or committed task, if applicable.
	TaskTitle string
	// AssigneeID is the selected assignee, if applicable.
	AssigneeID string
	// Message provides additional context about the event.
	Message string
	// Conflicts carries the detected conflicts for blocked events.
	Conflicts []models.Conflict
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time, set on terminal events.
	Duration time.Duration
}

// EventEmitter handles event emission for the orchestrator.
// It provides a simple, thread-safe way to emit events to subscribers.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	log          zerolog.Logger
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
		log:    logging.Component("intake"),
	}
}

// Emit sends an event to the events channel, stamping the timestamp if
// unset. If the channel is full, it tries with a timeout before dropping
// the event.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Try immediate send first
	select {
	case e.events <- event:
		return
	default:
		// Channel full, try with timeout
	}

	// Try with 100ms timeout to give the receiver a chance to drain
	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		// Timeout expired, drop the event
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			e.log.Warn().
				Uint64("total_dropped", count).
				Str("type", string(event.Type)).
				Msg("event channel full, dropped event")
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
// This is used by subscribers (e.g., the CLI) to receive updates.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
// This should be called when the orchestrator is stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
