package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelworks/triage/internal/board"
	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/pkg/models"
)

// Sync pulls clients, projects, assignees and the open-task set from the
// board into the local caches, embedding entities the board does not carry
// vectors for. Safe to call repeatedly; entities already cached are
// refreshed in place.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if err := o.begin(); err != nil {
		return err
	}
	defer o.wg.Done()

	o.emitter.Emit(Event{Type: EventSyncStarted})
	now := time.Now()

	clients, err := o.remote.FindClients(ctx, "")
	if err != nil {
		return fmt.Errorf("find clients: %w", err)
	}
	for _, c := range clients {
		c.FetchedAt = now
		if len(c.Embedding) == 0 {
			if c.Embedding, err = o.index.Upsert(ctx, index.KindClient, c.ID, c.Name); err != nil {
				return err
			}
		} else {
			o.index.Put(index.KindClient, c.ID, c.Embedding, now)
		}
		o.catalog.putClient(c)
		o.persistClient(c)

		projects, err := o.remote.FindProjects(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("find projects for %s: %w", c.ID, err)
		}
		for _, p := range projects {
			p.FetchedAt = now
			if len(p.Embedding) == 0 {
				if p.Embedding, err = o.index.Upsert(ctx, index.KindProject, p.ID, p.Name); err != nil {
					return err
				}
			} else {
				o.index.Put(index.KindProject, p.ID, p.Embedding, now)
			}
			o.catalog.putProject(p)
			o.persistProject(p)
		}
	}

	assignees, err := o.remote.FindAssignees(ctx)
	if err != nil {
		return fmt.Errorf("find assignees: %w", err)
	}
	for _, a := range assignees {
		a.FetchedAt = now
		o.tracker.Put(a)
		o.persistAssignee(a)
	}

	tasks, err := o.remote.ListOpenTasks(ctx, board.Scope{})
	if err != nil {
		return fmt.Errorf("list open tasks: %w", err)
	}
	all := make([]*models.Task, 0, len(tasks))
	byAssignee := make(map[string][]*models.Task)
	for i := range tasks {
		t := &tasks[i]
		if len(t.Embedding) == 0 {
			if t.Embedding, err = o.index.Upsert(ctx, index.KindTask, t.ID, t.Title+"\n"+t.Description); err != nil {
				return err
			}
		} else {
			o.index.Put(index.KindTask, t.ID, t.Embedding, now)
		}
		o.catalog.putTask(*t)
		o.persistTask(*t)
		all = append(all, t)
		if t.AssigneeID != "" {
			byAssignee[t.AssigneeID] = append(byAssignee[t.AssigneeID], t)
		}
	}

	if err := o.graph.Build(all); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}
	for id, owned := range byAssignee {
		if err := o.tracker.SetOpenTasks(id, owned); err != nil {
			o.log.Warn().Err(err).Str("assignee", id).Msg("open tasks not counted")
		}
	}

	o.emitter.Emit(Event{
		Type: EventSyncCompleted,
		Message: fmt.Sprintf("%d clients, %d assignees, %d open tasks",
			len(clients), len(assignees), len(tasks)),
	})
	return nil
}

// Hydrate loads cached entities from the local store into the index,
// catalog, tracker and graph, so intakes can run before the next board
// sync. A stale hydrated snapshot still triggers an assignee refresh ahead
// of any capacity decision. No-op without a store.
func (o *Orchestrator) Hydrate() error {
	if o.store == nil {
		return nil
	}

	clients, err := o.store.ListClients()
	if err != nil {
		return fmt.Errorf("hydrate clients: %w", err)
	}
	for _, c := range clients {
		if len(c.Embedding) > 0 {
			o.index.Put(index.KindClient, c.ID, c.Embedding, c.FetchedAt)
		}
		o.catalog.putClient(c)
	}

	projects, err := o.store.ListProjects()
	if err != nil {
		return fmt.Errorf("hydrate projects: %w", err)
	}
	for _, p := range projects {
		if len(p.Embedding) > 0 {
			o.index.Put(index.KindProject, p.ID, p.Embedding, p.FetchedAt)
		}
		o.catalog.putProject(p)
	}

	assignees, err := o.store.ListAssignees()
	if err != nil {
		return fmt.Errorf("hydrate assignees: %w", err)
	}
	for _, a := range assignees {
		o.tracker.Put(a)
	}

	tasks, err := o.store.ListTasks()
	if err != nil {
		return fmt.Errorf("hydrate tasks: %w", err)
	}
	open := make([]*models.Task, 0, len(tasks))
	byAssignee := make(map[string][]*models.Task)
	for i := range tasks {
		t := &tasks[i]
		if !t.Status.Open() {
			continue
		}
		if len(t.Embedding) > 0 {
			o.index.Put(index.KindTask, t.ID, t.Embedding, t.CreatedAt)
		}
		o.catalog.putTask(*t)
		open = append(open, t)
		if t.AssigneeID != "" {
			byAssignee[t.AssigneeID] = append(byAssignee[t.AssigneeID], t)
		}
	}

	if err := o.graph.Build(open); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}
	for id, owned := range byAssignee {
		if err := o.tracker.SetOpenTasks(id, owned); err != nil {
			o.log.Warn().Err(err).Str("assignee", id).Msg("open tasks not counted")
		}
	}
	return nil
}
