package intake

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Pool runs intakes concurrently against a shared Orchestrator. The
// orchestrator's caches serialize per assignee and per graph, so pooled
// runs interleave safely; the pool adds bounded concurrency, result
// collection and a graceful stop.
type Pool struct {
	orch *Orchestrator

	// sem bounds concurrent runs.
	sem chan struct{}

	// running tracks in-flight intakes by ID; results holds finished ones.
	running map[string]string
	results map[string]Result
	mu      sync.RWMutex

	// ctx and cancel for pool lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks running intakes
	wg sync.WaitGroup
}

// NewPool creates a pool over the orchestrator running at most maxConcurrent
// intakes at once. Non-positive maxConcurrent falls back to 4.
func NewPool(orch *Orchestrator, maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		orch:    orch,
		sem:     make(chan struct{}, maxConcurrent),
		running: make(map[string]string),
		results: make(map[string]Result),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit starts an intake for the description and returns its ID
// immediately. Progress arrives on Events; the verdict lands in Result
// once the run finishes. Submitting to a stopped pool returns ErrStopped.
func (p *Pool) Submit(description, requester string, opts ...RunOption) (string, error) {
	select {
	case <-p.ctx.Done():
		return "", ErrStopped
	default:
	}

	id := uuid.New().String()[:8]

	p.mu.Lock()
	p.running[id] = requester
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-p.ctx.Done():
			p.finish(id, Result{Kind: ResultRejected, IntakeID: id, Reason: "pool stopped"})
			return
		}

		opts = append(opts, withIntakeID(id))
		res, err := p.orch.Intake(p.ctx, description, requester, opts...)
		if err != nil {
			res = Result{Kind: ResultRejected, IntakeID: id, Reason: err.Error()}
		}
		p.finish(id, res)
	}()

	return id, nil
}

// finish moves an intake from running to results.
func (p *Pool) finish(id string, res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, id)
	p.results[id] = res
}

// Result returns the verdict for a submitted intake, when it has finished.
func (p *Pool) Result(id string) (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	res, ok := p.results[id]
	return res, ok
}

// Events returns the shared event stream for all pooled intakes. Consumers
// match events to submissions by IntakeID.
func (p *Pool) Events() <-chan Event {
	return p.orch.Events()
}

// Count returns the number of running intakes.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.running)
}

// DroppedEventCount returns the total events dropped on the shared stream.
func (p *Pool) DroppedEventCount() uint64 {
	return p.orch.DroppedEventCount()
}

// Stop cancels pending runs and waits for in-flight ones to settle. The
// orchestrator itself stays usable; stopping it is the owner's call.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}
