package main

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog/log"

	"github.com/kestrelworks/triage/internal/api"
	"github.com/kestrelworks/triage/internal/board"
	"github.com/kestrelworks/triage/internal/config"
	"github.com/kestrelworks/triage/internal/embed"
	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/internal/intake"
	"github.com/kestrelworks/triage/internal/state"
)

// workspace bundles everything a command needs to run intakes: the local
// cache, the journal, the board and a hydrated orchestrator. The in-memory
// board is rebuilt from the cache on every invocation, so commits persist
// across runs through the cache while the process stays self-contained.
type workspace struct {
	cfg     *config.Config
	store   *state.DB
	journal *state.Journal
	board   *board.Memory
	orch    *intake.Orchestrator
	watcher *config.Watcher
}

// openWorkspace opens the cache and journal databases, loads the board
// from the cache, and hydrates an orchestrator from it.
func openWorkspace(ctx context.Context, cfg *config.Config) (*workspace, error) {
	dbPath := cfg.DB.Path
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	journalPath := cfg.Journal.Path
	if journalPath == "" {
		journalPath = state.DefaultJournalPath()
	}
	journal, err := state.OpenJournal(journalPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	mem, err := boardFromStore(db)
	if err != nil {
		journal.Close()
		db.Close()
		return nil, err
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		journal.Close()
		db.Close()
		return nil, err
	}

	opts := []intake.Option{
		intake.WithConfig(*cfg),
		intake.WithStore(db),
		intake.WithJournal(journal),
	}
	if hinter := buildHinter(cfg); hinter != nil {
		opts = append(opts, intake.WithHinter(hinter))
	}

	orch := intake.New(intake.RequiredConfig{Board: mem, Embedder: embedder}, opts...)
	if err := orch.Hydrate(); err != nil {
		orch.Stop()
		journal.Close()
		db.Close()
		return nil, fmt.Errorf("hydrate caches: %w", err)
	}

	ws := &workspace{cfg: cfg, store: db, journal: journal, board: mem, orch: orch}

	// Edits to the project config while a command runs (for example during
	// an interactive disambiguation) retune thresholds and weights in place.
	if project := config.GetProjectConfigPath(); project != "" {
		w, err := config.Watch(project, func(c *config.Config) { orch.SetConfig(*c) })
		if err != nil {
			log.Debug().Err(err).Msg("config watch unavailable")
		} else {
			ws.watcher = w
		}
	}

	return ws, nil
}

// Close stops the orchestrator and closes both databases.
func (ws *workspace) Close() {
	if ws.watcher != nil {
		ws.watcher.Close()
	}
	ws.orch.Stop()
	ws.journal.Close()
	ws.store.Close()
}

// boardFromStore rebuilds the in-memory board from cached entities, so
// intakes have a system of record to commit against.
func boardFromStore(db *state.DB) (*board.Memory, error) {
	mem := board.NewMemory()

	clients, err := db.ListClients()
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	for _, c := range clients {
		mem.PutClient(c)
	}

	projects, err := db.ListProjects()
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	for _, p := range projects {
		mem.PutProject(p)
	}

	assignees, err := db.ListAssignees()
	if err != nil {
		return nil, fmt.Errorf("load assignees: %w", err)
	}
	for _, a := range assignees {
		mem.PutAssignee(a)
	}

	tasks, err := db.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for _, t := range tasks {
		mem.PutTask(t)
	}

	return mem, nil
}

// buildEmbedder selects the embedding provider. The Gemini provider falls
// back to the local embedder when the API call fails, so intake keeps
// working offline.
func buildEmbedder(ctx context.Context, cfg *config.Config) (index.Embedder, error) {
	local := embed.NewLocal(cfg.Embedding.Dimension)

	switch cfg.Embedding.Provider {
	case "", "local":
		return local, nil
	case "gemini":
		key, err := config.GetGeminiKey()
		if err != nil {
			return nil, fmt.Errorf("embedding provider gemini: %w", err)
		}
		gemini, err := embed.NewGemini(ctx, key, "")
		if err != nil {
			return nil, err
		}
		return embed.NewFallback(gemini, local), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// buildHinter builds the language-model intent classifier when an API key
// is configured. Without one, intake runs on the deterministic analyzer
// alone.
func buildHinter(cfg *config.Config) intake.IntentClassifier {
	key, err := config.GetAPIKey(cfg)
	if err != nil && !cfg.API.UseBedrock {
		log.Debug().Msg("no API key configured, intent hints disabled")
		return nil
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.API.Model),
		APIKey:        key,
		UseAWSBedrock: cfg.API.UseBedrock,
		AWSRegion:     cfg.AWS.Region,
		AWSProfile:    cfg.AWS.Profile,
	})
	if err != nil {
		log.Warn().Err(err).Msg("API client unavailable, intent hints disabled")
		return nil
	}
	return api.NewHinter(client)
}
