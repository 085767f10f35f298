package embed

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Embedder turns text into a vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Fallback tries a primary embedder and falls back to a secondary one when
// the primary fails. Remote providers are best-effort: their unavailability
// degrades embedding quality, never the pipeline.
type Fallback struct {
	primary   Embedder
	secondary Embedder
}

// NewFallback wraps primary with secondary as the failure path.
func NewFallback(primary, secondary Embedder) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Embed returns the primary embedding, or the secondary one if the primary
// fails. The primary failure is logged, not returned.
func (f *Fallback) Embed(ctx context.Context, text string) ([]float64, error) {
	vector, err := f.primary.Embed(ctx, text)
	if err == nil {
		return vector, nil
	}
	log.Warn().Err(err).Msg("primary embedder failed, using fallback")
	return f.secondary.Embed(ctx, text)
}
