package intake

import (
	"sort"
	"strings"
	"sync"

	"github.com/kestrelworks/triage/pkg/models"
)

// catalog is the in-memory entity directory behind the resolver: display
// names, project ownership and the open-task set. Like the index and
// tracker it is a cache of board-owned truth, hydrated from the store on
// start and refreshed through Sync.
type catalog struct {
	mu       sync.RWMutex
	clients  map[string]models.Client
	byName   map[string]string
	projects map[string]models.Project
	open     map[string]models.Task
}

func newCatalog() *catalog {
	return &catalog{
		clients:  make(map[string]models.Client),
		byName:   make(map[string]string),
		projects: make(map[string]models.Project),
		open:     make(map[string]models.Task),
	}
}

// ClientByID implements resolve.Directory.
func (c *catalog) ClientByID(id string) (models.Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	client, ok := c.clients[id]
	return client, ok
}

// ClientByName implements resolve.Directory. Lookup is case-insensitive.
func (c *catalog) ClientByName(name string) (models.Client, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return models.Client{}, false
	}
	client, ok := c.clients[id]
	return client, ok
}

// ProjectByID implements resolve.Directory.
func (c *catalog) ProjectByID(id string) (models.Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[id]
	return p, ok
}

func (c *catalog) putClient(client models.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.clients[client.ID]; ok {
		delete(c.byName, strings.ToLower(old.Name))
	}
	c.clients[client.ID] = client
	c.byName[strings.ToLower(client.Name)] = client.ID
}

func (c *catalog) putProject(p models.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects[p.ID] = p
}

// putTask records an open task. Tasks that are no longer open are dropped
// from the open set instead.
func (c *catalog) putTask(t models.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !t.Status.Open() {
		delete(c.open, t.ID)
		return
	}
	c.open[t.ID] = t
}

func (c *catalog) task(id string) (models.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.open[id]
	return t, ok
}

// openTasks returns a snapshot of the open set, sorted by ID so pipeline
// stages see a deterministic order.
func (c *catalog) openTasks() []*models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Task, 0, len(c.open))
	for id := range c.open {
		t := c.open[id]
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
