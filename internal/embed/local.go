// Package embed provides embedding providers for the vector index: a
// deterministic local embedder that needs no network, a Gemini-backed
// remote embedder, and a fallback chain so remote unavailability never
// fails an intake.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimension is the vector dimension of the local embedder.
const DefaultDimension = 256

// Local is a deterministic feature-hashing embedder. Tokens are hashed
// into a fixed number of buckets with a hash-derived sign, then the
// vector is L2-normalized. The same text always produces the same vector,
// so similarity results are reproducible without any model dependency.
type Local struct {
	dim int
}

// NewLocal creates a local embedder with the given dimension.
// Non-positive dimensions fall back to DefaultDimension.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Local{dim: dim}
}

// Embed converts text to a normalized bag-of-tokens vector. Text with no
// tokens yields a zero vector, which has zero similarity to everything.
func (l *Local) Embed(_ context.Context, text string) ([]float64, error) {
	vector := make([]float64, l.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vector, nil
	}

	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		bucket := int(sum % uint64(l.dim))
		// One hash bit decides the sign so unrelated texts can land
		// anywhere in [-1, 1] instead of clustering near 1.
		if sum&(1<<63) != 0 {
			vector[bucket] -= 1
		} else {
			vector[bucket] += 1
		}
	}

	var mag float64
	for _, v := range vector {
		mag += v * v
	}
	if mag == 0 {
		return vector, nil
	}
	mag = math.Sqrt(mag)
	for i := range vector {
		vector[i] /= mag
	}
	return vector, nil
}

// tokenize lowercases and splits on anything that is not a letter or digit.
// Single-character tokens carry no signal and are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
