package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kestrelworks/triage/pkg/models"
)

// Client operations

// UpsertClient inserts or refreshes a cached client.
func (db *DB) UpsertClient(c *models.Client) error {
	_, err := db.Exec(`
		INSERT INTO clients (id, name, embedding, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			embedding = excluded.embedding,
			fetched_at = excluded.fetched_at
	`, c.ID, c.Name, encodeVector(c.Embedding), formatTime(c.FetchedAt))
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

// GetClient retrieves a cached client by ID. Returns nil if not cached.
func (db *DB) GetClient(id string) (*models.Client, error) {
	row := db.QueryRow(`
		SELECT id, name, embedding, fetched_at FROM clients WHERE id = ?
	`, id)

	var c models.Client
	var embedding []byte
	var fetchedAt string
	err := row.Scan(&c.ID, &c.Name, &embedding, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}

	c.Embedding = decodeVector(embedding)
	c.FetchedAt, _ = parseTime(fetchedAt)
	return &c, nil
}

// ListClients lists all cached clients.
func (db *DB) ListClients() ([]models.Client, error) {
	rows, err := db.Query(`
		SELECT id, name, embedding, fetched_at FROM clients ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var c models.Client
		var embedding []byte
		var fetchedAt string
		if err := rows.Scan(&c.ID, &c.Name, &embedding, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		c.Embedding = decodeVector(embedding)
		c.FetchedAt, _ = parseTime(fetchedAt)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// Project operations

// UpsertProject inserts or refreshes a cached project.
func (db *DB) UpsertProject(p *models.Project) error {
	_, err := db.Exec(`
		INSERT INTO projects (id, client_id, name, embedding, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			name = excluded.name,
			embedding = excluded.embedding,
			fetched_at = excluded.fetched_at
	`, p.ID, p.ClientID, p.Name, encodeVector(p.Embedding), formatTime(p.FetchedAt))
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject retrieves a cached project by ID. Returns nil if not cached.
func (db *DB) GetProject(id string) (*models.Project, error) {
	row := db.QueryRow(`
		SELECT id, client_id, name, embedding, fetched_at FROM projects WHERE id = ?
	`, id)

	var p models.Project
	var embedding []byte
	var fetchedAt string
	err := row.Scan(&p.ID, &p.ClientID, &p.Name, &embedding, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	p.Embedding = decodeVector(embedding)
	p.FetchedAt, _ = parseTime(fetchedAt)
	return &p, nil
}

// ListProjects lists all cached projects.
func (db *DB) ListProjects() ([]models.Project, error) {
	rows, err := db.Query(`
		SELECT id, client_id, name, embedding, fetched_at FROM projects ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		var embedding []byte
		var fetchedAt string
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name, &embedding, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Embedding = decodeVector(embedding)
		p.FetchedAt, _ = parseTime(fetchedAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Assignee operations

// UpsertAssignee inserts or refreshes a cached assignee.
func (db *DB) UpsertAssignee(a *models.Assignee) error {
	expertise, err := json.Marshal(a.Expertise)
	if err != nil {
		return fmt.Errorf("marshal expertise: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO assignees (id, name, expertise, load, capacity, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			expertise = excluded.expertise,
			load = excluded.load,
			capacity = excluded.capacity,
			fetched_at = excluded.fetched_at
	`, a.ID, a.Name, string(expertise), a.Load, a.Capacity, formatTime(a.FetchedAt))
	if err != nil {
		return fmt.Errorf("upsert assignee: %w", err)
	}
	return nil
}

// GetAssignee retrieves a cached assignee by ID. Returns nil if not cached.
func (db *DB) GetAssignee(id string) (*models.Assignee, error) {
	row := db.QueryRow(`
		SELECT id, name, expertise, load, capacity, fetched_at FROM assignees WHERE id = ?
	`, id)

	a, err := scanAssignee(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignee: %w", err)
	}
	return a, nil
}

// ListAssignees lists all cached assignees.
func (db *DB) ListAssignees() ([]models.Assignee, error) {
	rows, err := db.Query(`
		SELECT id, name, expertise, load, capacity, fetched_at FROM assignees ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	var assignees []models.Assignee
	for rows.Next() {
		a, err := scanAssignee(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		assignees = append(assignees, *a)
	}
	return assignees, rows.Err()
}

func scanAssignee(scan func(dest ...any) error) (*models.Assignee, error) {
	var a models.Assignee
	var expertise string
	var fetchedAt string
	if err := scan(&a.ID, &a.Name, &expertise, &a.Load, &a.Capacity, &fetchedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(expertise), &a.Expertise); err != nil {
		return nil, fmt.Errorf("unmarshal expertise: %w", err)
	}
	a.FetchedAt, _ = parseTime(fetchedAt)
	return &a, nil
}

// Task operations

// UpsertTask inserts or refreshes a cached task together with its
// dependency edges.
func (db *DB) UpsertTask(t *models.Task) error {
	return db.Transaction(func(tx *sql.Tx) error {
		return upsertTaskTx(tx, t)
	})
}

// upsertTaskTx writes the task row and replaces its outgoing edges.
func upsertTaskTx(tx *sql.Tx, t *models.Task) error {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (id, title, description, client_id, project_id, priority,
			status, assignee_id, tags, estimated_hours, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			client_id = excluded.client_id,
			project_id = excluded.project_id,
			priority = excluded.priority,
			status = excluded.status,
			assignee_id = excluded.assignee_id,
			tags = excluded.tags,
			estimated_hours = excluded.estimated_hours,
			embedding = excluded.embedding,
			created_at = excluded.created_at
	`, t.ID, t.Title, t.Description, t.ClientID, t.ProjectID, string(t.Priority),
		string(t.Status), t.AssigneeID, string(tags), t.EstimatedHours,
		encodeVector(t.Embedding), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM task_edges WHERE dependent_id = ?`, t.ID); err != nil {
		return fmt.Errorf("clear task edges: %w", err)
	}
	for _, prereq := range t.DependsOn {
		if _, err := tx.Exec(`
			INSERT INTO task_edges (dependent_id, prerequisite_id) VALUES (?, ?)
		`, t.ID, prereq); err != nil {
			return fmt.Errorf("insert task edge: %w", err)
		}
	}
	return nil
}

// GetTask retrieves a cached task by ID. Returns nil if not cached.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, title, description, client_id, project_id, priority,
			status, assignee_id, tags, estimated_hours, embedding, created_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	rows, err := db.Query(`
		SELECT prerequisite_id FROM task_edges WHERE dependent_id = ? ORDER BY prerequisite_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get task edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var prereq string
		if err := rows.Scan(&prereq); err != nil {
			return nil, fmt.Errorf("scan task edge: %w", err)
		}
		t.DependsOn = append(t.DependsOn, prereq)
	}
	return t, rows.Err()
}

// ListTasks lists all cached tasks with their dependency edges attached.
func (db *DB) ListTasks() ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, title, description, client_id, project_id, priority,
			status, assignee_id, tags, estimated_hours, embedding, created_at
		FROM tasks ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := db.ListEdges()
	if err != nil {
		return nil, err
	}
	prereqs := make(map[string][]string)
	for _, e := range edges {
		prereqs[e.DependentID] = append(prereqs[e.DependentID], e.PrerequisiteID)
	}
	for i := range tasks {
		tasks[i].DependsOn = prereqs[tasks[i].ID]
	}
	return tasks, nil
}

func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var t models.Task
	var tags string
	var embedding []byte
	var createdAt string
	if err := scan(&t.ID, &t.Title, &t.Description, &t.ClientID, &t.ProjectID,
		&t.Priority, &t.Status, &t.AssigneeID, &tags, &t.EstimatedHours,
		&embedding, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	t.Embedding = decodeVector(embedding)
	t.CreatedAt, _ = parseTime(createdAt)
	return &t, nil
}

// ListEdges lists all cached dependency edges.
func (db *DB) ListEdges() ([]models.DependencyEdge, error) {
	rows, err := db.Query(`
		SELECT dependent_id, prerequisite_id FROM task_edges
		ORDER BY dependent_id, prerequisite_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []models.DependencyEdge
	for rows.Next() {
		var e models.DependencyEdge
		if err := rows.Scan(&e.DependentID, &e.PrerequisiteID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// CommitIntake stores a finalized task and the assignee's updated load in a
// single transaction. When assignee is nil only the task is stored. If the
// assignee is not cached the whole commit rolls back.
func (db *DB) CommitIntake(t *models.Task, assignee *models.Assignee) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if err := upsertTaskTx(tx, t); err != nil {
			return err
		}
		if assignee == nil {
			return nil
		}

		result, err := tx.Exec(`
			UPDATE assignees SET load = ? WHERE id = ?
		`, assignee.Load, assignee.ID)
		if err != nil {
			return fmt.Errorf("update assignee load: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("assignee not cached: %s", assignee.ID)
		}
		return nil
	})
}

// Reset clears all cached entities and edges. Audit history in the journal
// is untouched.
func (db *DB) Reset() error {
	return db.Transaction(func(tx *sql.Tx) error {
		for _, table := range []string{"task_edges", "tasks", "assignees", "projects", "clients"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// encodeVector packs an embedding into a little-endian float64 blob.
// Empty vectors are stored as NULL.
func encodeVector(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian float64 blob.
func decodeVector(b []byte) []float64 {
	if len(b) == 0 || len(b)%8 != 0 {
		return nil
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
