package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// =============================================================================
// LOCAL DETERMINISTIC EMBEDDING ENGINE
// =============================================================================

// LocalEngine produces deterministic embeddings with no external model. It
// projects word and character-trigram features into a fixed-dimensional
// space via feature hashing, so texts sharing vocabulary or morphology get
// positive cosine similarity. Quality is far below a real model; it exists
// so analyses run offline and tests are reproducible.
type LocalEngine struct {
	dims int
}

// NewLocalEngine creates a local hashing engine. Dimensions default to 384.
func NewLocalEngine(dims int) (*LocalEngine, error) {
	if dims <= 0 {
		dims = 384
	}
	return &LocalEngine{dims: dims}, nil
}

// Embed generates a deterministic L2-normalized embedding for text.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	for _, word := range splitWords(text) {
		e.addFeature(vec, "w:"+word, 1.0)
		// Character trigrams catch morphological overlap (user / userId).
		if len(word) > 3 {
			for i := 0; i+3 <= len(word); i++ {
				e.addFeature(vec, "t:"+word[i:i+3], 0.35)
			}
		}
	}

	return Normalize(vec), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *LocalEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *LocalEngine) Name() string {
	return fmt.Sprintf("local:%d", e.dims)
}

// addFeature hashes the feature into two slots with signed weights. Two
// salted hashes reduce collisions washing features out entirely.
func (e *LocalEngine) addFeature(vec []float32, feature string, weight float32) {
	h1 := hashString(feature)
	h2 := hashString("salt|" + feature)

	idx1 := int(h1 % uint64(e.dims))
	sign1 := float32(1)
	if (h1>>32)&1 == 1 {
		sign1 = -1
	}
	vec[idx1] += sign1 * weight

	idx2 := int(h2 % uint64(e.dims))
	sign2 := float32(1)
	if (h2>>32)&1 == 1 {
		sign2 = -1
	}
	vec[idx2] += sign2 * weight * 0.5
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func splitWords(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
