// Package index maintains vector representations of tasks, clients and
// projects for similarity lookup. The index is an in-memory cache of
// externally-owned entities; callers hydrate it from the local store on
// start and upsert incrementally as entities change.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrInvalidTopK is returned when a query asks for a non-positive number
// of results.
var ErrInvalidTopK = errors.New("top k must be positive")

// Kind identifies which entity namespace an entry belongs to.
type Kind string

const (
	// KindClient indexes client description embeddings.
	KindClient Kind = "client"
	// KindProject indexes project description embeddings.
	KindProject Kind = "project"
	// KindTask indexes open task description embeddings.
	KindTask Kind = "task"
)

// Embedder turns text into a vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Match is one query result: an entity and its cosine similarity to the
// query vector, in [-1, 1].
type Match struct {
	// EntityID identifies the matched entity within its kind.
	EntityID string
	// Similarity is the cosine similarity to the query vector.
	Similarity float64
}

type entry struct {
	vector    []float64
	updatedAt time.Time
}

// Index is a thread-safe in-memory vector index with incremental upsert.
type Index struct {
	mu       sync.RWMutex
	embedder Embedder
	entries  map[Kind]map[string]entry
}

// New creates an empty index that embeds text through the given embedder.
func New(embedder Embedder) *Index {
	return &Index{
		embedder: embedder,
		entries:  make(map[Kind]map[string]entry),
	}
}

// Upsert embeds text and stores the vector for the entity, replacing any
// previous entry. Returns the computed vector.
func (ix *Index) Upsert(ctx context.Context, kind Kind, entityID, text string) ([]float64, error) {
	vector, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed %s %s: %w", kind, entityID, err)
	}
	ix.Put(kind, entityID, vector, time.Now())
	return vector, nil
}

// Put stores a precomputed vector for the entity. Used when hydrating the
// index from the local store, where vectors and their original update times
// already exist.
func (ix *Index) Put(kind Kind, entityID string, vector []float64, updatedAt time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.entries[kind] == nil {
		ix.entries[kind] = make(map[string]entry)
	}
	ix.entries[kind][entityID] = entry{vector: vector, updatedAt: updatedAt}
}

// Remove deletes an entity from the index. Removing an absent entity is a
// no-op.
func (ix *Index) Remove(kind Kind, entityID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries[kind], entityID)
}

// Vector returns the stored vector for an entity, if present. Callers use
// it to rehydrate embeddings onto entities fetched from sources that do not
// carry them.
func (ix *Index) Vector(kind Kind, entityID string) ([]float64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[kind][entityID]
	if !ok {
		return nil, false
	}
	return e.vector, true
}

// Len returns the number of entries indexed under kind.
func (ix *Index) Len(kind Kind) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries[kind])
}

// Query returns up to topK entities of the given kind ordered by descending
// cosine similarity to the query vector. Ties are broken by most recently
// updated entity first, then by entity ID. An empty index for the kind
// yields an empty result, not an error.
func (ix *Index) Query(kind Kind, vector []float64, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("query %s: %w", kind, ErrInvalidTopK)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	kindEntries := ix.entries[kind]
	if len(kindEntries) == 0 {
		return []Match{}, nil
	}

	type scored struct {
		Match
		updatedAt time.Time
	}
	results := make([]scored, 0, len(kindEntries))
	for id, e := range kindEntries {
		results = append(results, scored{
			Match:     Match{EntityID: id, Similarity: Cosine(vector, e.vector)},
			updatedAt: e.updatedAt,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if !results[i].updatedAt.Equal(results[j].updatedAt) {
			return results[i].updatedAt.After(results[j].updatedAt)
		}
		return results[i].EntityID < results[j].EntityID
	})

	if topK > len(results) {
		topK = len(results)
	}
	matches := make([]Match, topK)
	for i := range matches {
		matches[i] = results[i].Match
	}
	return matches, nil
}

// Cosine computes the cosine similarity between two vectors. Mismatched
// dimensions or zero-magnitude vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
