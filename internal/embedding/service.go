package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"toolvet/internal/logging"
)

// =============================================================================
// EMBEDDING SERVICE
// =============================================================================

// CacheStore is an optional second-level cache for embeddings, keyed by
// (model, normalized text). The in-memory cache remains authoritative; the
// store is consulted on miss and written through on success.
type CacheStore interface {
	Get(model, text string) ([]float32, bool)
	Put(model, text string, vec []float32) error
}

// Service wraps an Engine with a process-wide text cache and the concept
// anchor table. Concurrent analyses share one Service safely: the cache is
// a sync.Map and anchors are built under a once-guard.
type Service struct {
	engine Engine
	cache  sync.Map // normalized text -> []float32

	store   CacheStore
	storeMu sync.RWMutex

	anchorsOnce sync.Once
	anchorsErr  error
	anchorsMu   sync.RWMutex
	anchors     map[Concept][][]float32
}

// NewService creates an embedding service over the given engine.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// Engine returns the underlying engine.
func (s *Service) Engine() Engine {
	return s.engine
}

// SetStore attaches a persistent second-level cache.
func (s *Service) SetStore(store CacheStore) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	s.store = store
}

// normalizeKey trims and lowercases text for cache keying, making Embed
// deterministic across callers that differ only in casing or whitespace.
func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Embed maps text to an L2-normalized vector. Results are cached process-
// wide on the normalized text. A per-text engine failure is not fatal:
// the service logs it and returns an empty vector so downstream semantic
// checks behave as "no match".
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	key := normalizeKey(text)
	if key == "" {
		return nil
	}

	if cached, ok := s.cache.Load(key); ok {
		return cached.([]float32)
	}

	s.storeMu.RLock()
	store := s.store
	s.storeMu.RUnlock()

	if store != nil {
		if vec, ok := store.Get(s.engine.Name(), key); ok {
			s.cache.Store(key, vec)
			return vec
		}
	}

	vec, err := s.engine.Embed(ctx, key)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("Embed failed for %q: %v", truncate(key, 60), err)
		return nil
	}
	vec = Normalize(vec)

	s.cache.Store(key, vec)
	if store != nil {
		if err := store.Put(s.engine.Name(), key, vec); err != nil {
			logging.Get(logging.CategoryEmbedding).Warn("Cache store write failed: %v", err)
		}
	}

	return vec
}

// =============================================================================
// CONCEPT ANCHORS
// =============================================================================

// InitConcepts embeds every anchor phrase of every concept exactly once.
// Idempotent; concurrent callers block on the first initialization. A
// failure here is fatal to the analysis (the model could not be loaded).
func (s *Service) InitConcepts(ctx context.Context) error {
	s.anchorsOnce.Do(func() {
		timer := logging.StartTimer(logging.CategoryEmbedding, "InitConcepts")
		defer timer.Stop()

		anchors := make(map[Concept][][]float32, len(AllConcepts))
		for _, concept := range AllConcepts {
			phrases := ConceptPhrases(concept)
			vecs := make([][]float32, 0, len(phrases))
			for _, phrase := range phrases {
				vec, err := s.engine.Embed(ctx, normalizeKey(phrase))
				if err != nil {
					s.anchorsErr = fmt.Errorf("failed to embed anchor phrase %q for %s: %w", phrase, concept, err)
					return
				}
				vecs = append(vecs, Normalize(vec))
			}
			anchors[concept] = vecs
		}

		s.anchorsMu.Lock()
		s.anchors = anchors
		s.anchorsMu.Unlock()

		logging.Embedding("Concept anchors initialized: %d concepts", len(anchors))
	})
	return s.anchorsErr
}

// Ready reports whether concept anchors are initialized.
func (s *Service) Ready() bool {
	s.anchorsMu.RLock()
	defer s.anchorsMu.RUnlock()
	return s.anchors != nil
}

// IsConceptMatch reports whether v semantically matches concept c at
// threshold tau: true iff the cosine between v and any anchor phrase
// vector of c meets or exceeds tau. Returns false for an empty vector or
// uninitialized anchors.
func (s *Service) IsConceptMatch(v []float32, c Concept, tau float64) bool {
	if len(v) == 0 {
		return false
	}
	return s.ConceptSimilarity(v, c) >= tau
}

// ConceptSimilarity returns the best cosine between v and the anchor
// vectors of c, or -1 when v is empty or anchors are unavailable.
func (s *Service) ConceptSimilarity(v []float32, c Concept) float64 {
	if len(v) == 0 {
		return -1
	}

	s.anchorsMu.RLock()
	anchors := s.anchors
	s.anchorsMu.RUnlock()
	if anchors == nil {
		return -1
	}

	best := -1.0
	for _, anchor := range anchors[c] {
		if sim := Cosine(v, anchor); sim > best {
			best = sim
		}
	}
	return best
}

// FindBestMatchingField returns the field name whose embedding has the
// highest cosine against v that also meets tau. The second return is false
// when nothing qualifies.
func (s *Service) FindBestMatchingField(v []float32, fields map[string][]float32, tau float64) (string, bool) {
	if len(v) == 0 || len(fields) == 0 {
		return "", false
	}

	bestName := ""
	bestSim := -1.0
	for name, vec := range fields {
		sim := Cosine(v, vec)
		if sim >= tau && (sim > bestSim || (sim == bestSim && name < bestName)) {
			bestName = name
			bestSim = sim
		}
	}

	if bestName == "" {
		return "", false
	}
	return bestName, true
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// =============================================================================
// SHARED INSTANCE (Package-level)
// =============================================================================

// shared is the process-wide service. Initialized by InitShared().
var (
	shared   *Service
	sharedMu sync.Mutex
)

// InitShared initializes the shared embedding service. Subsequent calls
// are no-ops and return the existing instance.
func InitShared(cfg Config) (*Service, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		return shared, nil
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	shared = NewService(engine)
	return shared, nil
}

// Shared returns the shared service, or nil before InitShared.
func Shared() *Service {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return shared
}
