// Package resolve maps free-text task descriptions to client and project
// identities using lexical name cues and the embedding index.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/kestrelworks/triage/internal/index"
	"github.com/kestrelworks/triage/pkg/models"
)

// ErrUnknownClient is returned when a pinned client ID is not in the
// directory.
var ErrUnknownClient = errors.New("unknown client")

// Outcome classifies one side of a resolution.
type Outcome string

const (
	// OutcomeResolved means exactly one identity was selected.
	OutcomeResolved Outcome = "resolved"
	// OutcomeAmbiguous means several identities are plausible and the
	// requester must choose.
	OutcomeAmbiguous Outcome = "ambiguous"
	// OutcomeUnresolved means no identity matched.
	OutcomeUnresolved Outcome = "unresolved"
)

// maxCandidates is how many alternatives an ambiguous decision carries.
const maxCandidates = 3

// Candidate is one possible identity with its similarity to the query.
type Candidate struct {
	// ID is the entity identifier.
	ID string `json:"id"`
	// Name is the display name, for the requester's choice.
	Name string `json:"name"`
	// Similarity is the cosine similarity to the description.
	Similarity float64 `json:"similarity"`
}

// Decision is the resolution verdict for one entity kind.
type Decision struct {
	// Outcome classifies the verdict.
	Outcome Outcome `json:"outcome"`
	// ID is the selected identity when resolved.
	ID string `json:"id,omitempty"`
	// Name is the selected identity's display name when resolved.
	Name string `json:"name,omitempty"`
	// Similarity is the winning similarity when resolved.
	Similarity float64 `json:"similarity,omitempty"`
	// Candidates holds the alternatives when ambiguous.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Resolution is the full verdict for a description.
type Resolution struct {
	// Client is the client-side decision.
	Client Decision `json:"client"`
	// Project is the project-side decision, scoped to the resolved client
	// when there is one.
	Project Decision `json:"project"`
	// Vector is the description embedding, reused by later pipeline stages.
	Vector []float64 `json:"-"`
	// NameHints lists client names extracted lexically from the text.
	NameHints []string `json:"name_hints,omitempty"`
}

// Directory provides entity metadata the index does not carry: display
// names, project ownership, and exact name lookup. The local store
// implements it.
type Directory interface {
	ClientByID(id string) (models.Client, bool)
	ClientByName(name string) (models.Client, bool)
	ProjectByID(id string) (models.Project, bool)
}

// Config holds the resolution policy knobs.
type Config struct {
	// Threshold is the minimum top similarity for auto-resolution.
	Threshold float64
	// Margin is the minimum lead over the second-best candidate,
	// inclusive: a lead exactly equal to the margin still resolves.
	Margin float64
	// TopK is how many index matches to consider per kind.
	TopK int
}

// DefaultConfig returns the standard resolution policy.
func DefaultConfig() Config {
	return Config{Threshold: 0.80, Margin: 0.05, TopK: maxCandidates}
}

// Resolver resolves descriptions against the embedding index.
type Resolver struct {
	index    *index.Index
	embedder index.Embedder
	dir      Directory

	mu  sync.RWMutex
	cfg Config
}

// New creates a resolver. TopK values below the candidate count are raised
// so ambiguous decisions always carry enough alternatives.
func New(ix *index.Index, embedder index.Embedder, dir Directory, cfg Config) *Resolver {
	if cfg.TopK < maxCandidates {
		cfg.TopK = maxCandidates
	}
	return &Resolver{index: ix, embedder: embedder, dir: dir, cfg: cfg}
}

// SetConfig replaces the resolution policy. TopK is normalized the same
// way New does it. Each Resolve call snapshots the policy once, so an
// in-flight resolution never mixes old and new values.
func (r *Resolver) SetConfig(cfg Config) {
	if cfg.TopK < maxCandidates {
		cfg.TopK = maxCandidates
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Config returns the current resolution policy.
func (r *Resolver) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// clientNamePatterns extract candidate client names from the description.
// Capitalized runs after "client"/"for"/"customer" markers.
var clientNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[Cc]lient[:\s]+((?:[A-Z][\w&'-]*)(?:\s+[A-Z][\w&'-]*)*)`),
	regexp.MustCompile(`\b[Cc]ustomer[:\s]+((?:[A-Z][\w&'-]*)(?:\s+[A-Z][\w&'-]*)*)`),
	regexp.MustCompile(`\bfor\s+((?:[A-Z][\w&'-]*)(?:\s+[A-Z][\w&'-]*)*)`),
}

// ExtractNameHints returns client names mentioned lexically in the text,
// in order of appearance, without duplicates.
func ExtractNameHints(text string) []string {
	var hints []string
	seen := make(map[string]bool)
	for _, pattern := range clientNamePatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			// "for Client Acme" captures "Client Acme" on the third
			// pattern; strip the marker word.
			name = strings.TrimSpace(strings.TrimPrefix(name, "Client "))
			if name == "" || seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			hints = append(hints, name)
		}
	}
	return hints
}

// Resolve maps a description to client and project decisions. An exact
// lexical name match wins outright; otherwise the embedding index decides
// per the threshold/margin policy.
func (r *Resolver) Resolve(ctx context.Context, description string) (Resolution, error) {
	cfg := r.Config()

	vector, err := r.embedder.Embed(ctx, description)
	if err != nil {
		return Resolution{}, fmt.Errorf("embed description: %w", err)
	}

	res := Resolution{
		Vector:    vector,
		NameHints: ExtractNameHints(description),
	}

	res.Client = r.resolveClient(ctx, cfg, vector, res.NameHints)

	clientID := ""
	if res.Client.Outcome == OutcomeResolved {
		clientID = res.Client.ID
	}
	res.Project, err = r.resolveProject(cfg, vector, clientID)
	if err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// ResolveWithClient resolves a description with the client fixed up front,
// typically after the requester picked one from an ambiguous candidate
// list. Project resolution is scoped to that client.
func (r *Resolver) ResolveWithClient(ctx context.Context, description, clientID string) (Resolution, error) {
	cfg := r.Config()

	client, ok := r.dir.ClientByID(clientID)
	if !ok {
		return Resolution{}, fmt.Errorf("pin client %s: %w", clientID, ErrUnknownClient)
	}

	vector, err := r.embedder.Embed(ctx, description)
	if err != nil {
		return Resolution{}, fmt.Errorf("embed description: %w", err)
	}

	res := Resolution{
		Vector:    vector,
		NameHints: ExtractNameHints(description),
		Client: Decision{
			Outcome:    OutcomeResolved,
			ID:         client.ID,
			Name:       client.Name,
			Similarity: 1.0,
		},
	}
	res.Project, err = r.resolveProject(cfg, vector, client.ID)
	if err != nil {
		return Resolution{}, err
	}
	return res, nil
}

func (r *Resolver) resolveClient(_ context.Context, cfg Config, vector []float64, hints []string) Decision {
	// Exact name mention beats the statistical signal.
	for _, hint := range hints {
		if client, ok := r.dir.ClientByName(hint); ok {
			return Decision{
				Outcome:    OutcomeResolved,
				ID:         client.ID,
				Name:       client.Name,
				Similarity: 1.0,
			}
		}
	}

	matches, err := r.index.Query(index.KindClient, vector, cfg.TopK)
	if err != nil {
		// Only possible with an invalid topK, which New and SetConfig prevent.
		return Decision{Outcome: OutcomeUnresolved}
	}
	return decide(cfg, matches, func(id string) string {
		if c, ok := r.dir.ClientByID(id); ok {
			return c.Name
		}
		return id
	})
}

func (r *Resolver) resolveProject(cfg Config, vector []float64, clientID string) (Decision, error) {
	// Over-fetch so client scoping still leaves enough candidates.
	topK := cfg.TopK
	if clientID != "" {
		topK *= 4
	}
	matches, err := r.index.Query(index.KindProject, vector, topK)
	if err != nil {
		return Decision{}, fmt.Errorf("query projects: %w", err)
	}

	if clientID != "" {
		scoped := matches[:0]
		for _, m := range matches {
			if p, ok := r.dir.ProjectByID(m.EntityID); ok && p.ClientID == clientID {
				scoped = append(scoped, m)
			}
		}
		matches = scoped
	}
	if len(matches) > cfg.TopK {
		matches = matches[:cfg.TopK]
	}

	return decide(cfg, matches, func(id string) string {
		if p, ok := r.dir.ProjectByID(id); ok {
			return p.Name
		}
		return id
	}), nil
}

// decide applies the threshold/margin policy to a sorted match list.
func decide(cfg Config, matches []index.Match, nameOf func(id string) string) Decision {
	if len(matches) == 0 {
		return Decision{Outcome: OutcomeUnresolved}
	}

	top := matches[0]
	lead := top.Similarity
	if len(matches) > 1 {
		lead = top.Similarity - matches[1].Similarity
	}
	if top.Similarity >= cfg.Threshold && lead >= cfg.Margin {
		return Decision{
			Outcome:    OutcomeResolved,
			ID:         top.EntityID,
			Name:       nameOf(top.EntityID),
			Similarity: top.Similarity,
		}
	}

	n := len(matches)
	if n > maxCandidates {
		n = maxCandidates
	}
	candidates := make([]Candidate, n)
	for i := 0; i < n; i++ {
		candidates[i] = Candidate{
			ID:         matches[i].EntityID,
			Name:       nameOf(matches[i].EntityID),
			Similarity: matches[i].Similarity,
		}
	}
	return Decision{Outcome: OutcomeAmbiguous, Candidates: candidates}
}
