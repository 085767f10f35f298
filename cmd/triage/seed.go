package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/kestrelworks/triage/internal/board"
	"github.com/kestrelworks/triage/internal/intake"
	"github.com/kestrelworks/triage/internal/state"
	"github.com/kestrelworks/triage/pkg/models"
)

var (
	seedFile  string
	seedReset bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load clients, assignees and tasks from a YAML fixture",
	Long: `Load a workspace fixture into the local cache, embedding every
entity so later intakes can resolve against them.

The fixture is a YAML file:

  clients:
    - id: c-acme
      name: Acme
  projects:
    - id: p-web
      client: c-acme
      name: Website Revamp
  assignees:
    - id: a-dana
      name: Dana
      capacity: 10
      expertise:
        development: 0.9
  tasks:
    - id: T-101
      title: Login flow rework
      client: c-acme
      project: p-web
      assignee: a-dana
      status: open
      priority: high
      estimated_hours: 4
      tags: [development]

Task status defaults to open and priority to normal. --reset clears the
cache first; the audit journal is never touched.`,
	RunE: runSeed,
}

// seedFixture is the YAML document shape.
type seedFixture struct {
	Clients []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"clients"`
	Projects []struct {
		ID     string `yaml:"id"`
		Client string `yaml:"client"`
		Name   string `yaml:"name"`
	} `yaml:"projects"`
	Assignees []struct {
		ID        string             `yaml:"id"`
		Name      string             `yaml:"name"`
		Capacity  float64            `yaml:"capacity"`
		Expertise map[string]float64 `yaml:"expertise"`
	} `yaml:"assignees"`
	Tasks []struct {
		ID             string   `yaml:"id"`
		Title          string   `yaml:"title"`
		Description    string   `yaml:"description"`
		Client         string   `yaml:"client"`
		Project        string   `yaml:"project"`
		Assignee       string   `yaml:"assignee"`
		Status         string   `yaml:"status"`
		Priority       string   `yaml:"priority"`
		EstimatedHours float64  `yaml:"estimated_hours"`
		Tags           []string `yaml:"tags"`
		DependsOn      []string `yaml:"depends_on"`
	} `yaml:"tasks"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	var fixture seedFixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	mem, err := boardFromFixture(fixture)
	if err != nil {
		return err
	}

	dbPath := cfg.DB.Path
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer db.Close()

	if seedReset {
		if err := db.Reset(); err != nil {
			return fmt.Errorf("reset cache: %w", err)
		}
	}

	embedder, err := buildEmbedder(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	orch := intake.New(intake.RequiredConfig{Board: mem, Embedder: embedder},
		intake.WithConfig(*cfg),
		intake.WithStore(db),
	)
	defer orch.Stop()

	if err := orch.Sync(cmd.Context()); err != nil {
		return fmt.Errorf("sync fixture: %w", err)
	}

	fmt.Printf("%s Seeded %d clients, %d projects, %d assignees, %d tasks into %s\n",
		color.GreenString("✓"),
		len(fixture.Clients), len(fixture.Projects), len(fixture.Assignees), len(fixture.Tasks),
		dbPath)
	return nil
}

// boardFromFixture validates the fixture and loads it into a fresh board.
func boardFromFixture(fixture seedFixture) (*board.Memory, error) {
	mem := board.NewMemory()

	for _, c := range fixture.Clients {
		if c.ID == "" || c.Name == "" {
			return nil, fmt.Errorf("client needs both id and name, got %+v", c)
		}
		mem.PutClient(models.Client{ID: c.ID, Name: c.Name})
	}
	for _, p := range fixture.Projects {
		if p.ID == "" || p.Client == "" {
			return nil, fmt.Errorf("project %q needs id and client", p.Name)
		}
		mem.PutProject(models.Project{ID: p.ID, ClientID: p.Client, Name: p.Name})
	}
	for _, a := range fixture.Assignees {
		if a.ID == "" {
			return nil, fmt.Errorf("assignee needs an id, got %+v", a)
		}
		mem.PutAssignee(models.Assignee{
			ID:        a.ID,
			Name:      a.Name,
			Capacity:  a.Capacity,
			Expertise: a.Expertise,
		})
	}
	for _, t := range fixture.Tasks {
		if t.ID == "" || t.Title == "" {
			return nil, fmt.Errorf("task needs both id and title, got %+v", t)
		}
		status := models.TaskStatus(t.Status)
		if t.Status == "" {
			status = models.TaskStatusOpen
		}
		if !status.Valid() {
			return nil, fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
		}
		priority := models.PriorityNormal
		if t.Priority != "" {
			parsed, err := models.ParsePriority(t.Priority)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", t.ID, err)
			}
			priority = parsed
		}
		mem.PutTask(models.Task{
			ID:             t.ID,
			Title:          t.Title,
			Description:    t.Description,
			ClientID:       t.Client,
			ProjectID:      t.Project,
			AssigneeID:     t.Assignee,
			Status:         status,
			Priority:       priority,
			EstimatedHours: t.EstimatedHours,
			Tags:           t.Tags,
			DependsOn:      t.DependsOn,
		})
	}

	return mem, nil
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "Path to the YAML fixture (required)")
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "Clear the cache before seeding")
	seedCmd.MarkFlagRequired("file")
}
