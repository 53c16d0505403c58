package embedding

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLocalEngineDeterministic(t *testing.T) {
	engine, err := NewLocalEngine(128)
	if err != nil {
		t.Fatalf("NewLocalEngine: %v", err)
	}

	a, _ := engine.Embed(context.Background(), "fetch the user record")
	b, _ := engine.Embed(context.Background(), "fetch the user record")
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same text produced different vectors:\n%s", diff)
	}

	c, _ := engine.Embed(context.Background(), "delete every cached entry")
	if diff := cmp.Diff(a, c); diff == "" {
		t.Error("unrelated texts produced identical vectors")
	}
}

func TestLocalEngineNormalized(t *testing.T) {
	engine, _ := NewLocalEngine(0)
	if engine.Dimensions() != 384 {
		t.Errorf("default dimensions = %d, want 384", engine.Dimensions())
	}

	vec, err := engine.Embed(context.Background(), "normalize me please")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("L2 norm squared = %v, want 1", sum)
	}
}

func TestLocalEngineVocabularyOverlap(t *testing.T) {
	engine, _ := NewLocalEngine(384)
	ctx := context.Background()

	base, _ := engine.Embed(ctx, "get the user record")
	related, _ := engine.Embed(ctx, "fetch the user record")
	unrelated, _ := engine.Embed(ctx, "zzz qqq xxyzzy")

	if Cosine(base, related) <= Cosine(base, unrelated) {
		t.Errorf("related similarity %v should exceed unrelated %v",
			Cosine(base, related), Cosine(base, unrelated))
	}
}

func TestLocalEngineBatch(t *testing.T) {
	engine, _ := NewLocalEngine(64)
	vecs, err := engine.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("batch size = %d", len(vecs))
	}
	single, _ := engine.Embed(context.Background(), "one")
	if diff := cmp.Diff(single, vecs[0]); diff != "" {
		t.Errorf("batch element differs from single embed:\n%s", diff)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine(nil, []float32{1}); got != 0 {
		t.Errorf("empty vector cosine = %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("length mismatch cosine = %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical unit vectors cosine = %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal cosine = %v", got)
	}
}

func TestNormalize(t *testing.T) {
	zero := []float32{0, 0}
	if diff := cmp.Diff([]float32{0, 0}, Normalize(zero)); diff != "" {
		t.Errorf("zero vector changed:\n%s", diff)
	}

	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize(3,4) = %v, want (0.6, 0.8)", v)
	}
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type countingEngine struct {
	calls atomic.Int64
	fail  bool
}

func (e *countingEngine) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail {
		return nil, errors.New("backend down")
	}
	return []float32{1, 0, 0}, nil
}

func (e *countingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *countingEngine) Dimensions() int { return 3 }
func (e *countingEngine) Name() string    { return "counting" }

func TestServiceCachesOnNormalizedKey(t *testing.T) {
	engine := &countingEngine{}
	svc := NewService(engine)
	ctx := context.Background()

	first := svc.Embed(ctx, "Fetch User")
	if first == nil {
		t.Fatal("Embed returned nil")
	}
	svc.Embed(ctx, "fetch user")
	svc.Embed(ctx, "  fetch user  ")

	if got := engine.calls.Load(); got != 1 {
		t.Errorf("engine calls = %d, want 1 (cache on normalized key)", got)
	}
}

func TestServiceEmptyText(t *testing.T) {
	svc := NewService(&countingEngine{})
	if vec := svc.Embed(context.Background(), "   "); vec != nil {
		t.Errorf("blank text should embed to nil, got %v", vec)
	}
}

func TestServiceEngineFailureIsSoft(t *testing.T) {
	svc := NewService(&countingEngine{fail: true})
	if vec := svc.Embed(context.Background(), "anything"); vec != nil {
		t.Errorf("engine failure should yield nil, got %v", vec)
	}
}

type mapStore struct {
	data map[string][]float32
	puts int
}

func (s *mapStore) Get(model, text string) ([]float32, bool) {
	vec, ok := s.data[model+"|"+text]
	return vec, ok
}

func (s *mapStore) Put(model, text string, vec []float32) error {
	s.puts++
	s.data[model+"|"+text] = vec
	return nil
}

func TestServiceWritesThroughStore(t *testing.T) {
	store := &mapStore{data: make(map[string][]float32)}
	engine := &countingEngine{}
	svc := NewService(engine)
	svc.SetStore(store)

	svc.Embed(context.Background(), "fetch user")
	if store.puts != 1 {
		t.Errorf("store puts = %d, want 1", store.puts)
	}

	// A fresh service with the same store hits the store, not the engine.
	engine2 := &countingEngine{}
	svc2 := NewService(engine2)
	svc2.SetStore(store)
	if vec := svc2.Embed(context.Background(), "fetch user"); vec == nil {
		t.Fatal("store hit returned nil")
	}
	if got := engine2.calls.Load(); got != 0 {
		t.Errorf("engine calls = %d, want 0 (store hit)", got)
	}
}

// -----------------------------------------------------------------------------
// Concept anchors
// -----------------------------------------------------------------------------

func TestInitConceptsAndMatch(t *testing.T) {
	engine, _ := NewLocalEngine(384)
	svc := NewService(engine)
	ctx := context.Background()

	if svc.Ready() {
		t.Error("service ready before InitConcepts")
	}
	if svc.IsConceptMatch([]float32{1}, ConceptSensitive, 0.1) {
		t.Error("concept match before initialization")
	}

	if err := svc.InitConcepts(ctx); err != nil {
		t.Fatalf("InitConcepts: %v", err)
	}
	if err := svc.InitConcepts(ctx); err != nil {
		t.Fatalf("second InitConcepts: %v", err)
	}
	if !svc.Ready() {
		t.Fatal("service not ready after InitConcepts")
	}

	// A vector equal to an anchor phrase embedding matches its concept at
	// any threshold below 1.
	phrase := ConceptPhrases(ConceptSensitive)[0]
	vec := svc.Embed(ctx, phrase)
	if !svc.IsConceptMatch(vec, ConceptSensitive, 0.99) {
		t.Errorf("anchor phrase %q does not match its own concept", phrase)
	}
	if svc.IsConceptMatch(nil, ConceptSensitive, 0.1) {
		t.Error("empty vector matched a concept")
	}
}

func TestInitConceptsFailureIsFatal(t *testing.T) {
	svc := NewService(&countingEngine{fail: true})
	if err := svc.InitConcepts(context.Background()); err == nil {
		t.Fatal("expected error from failing engine")
	}
	if svc.Ready() {
		t.Error("service ready despite failed initialization")
	}
}

func TestFindBestMatchingField(t *testing.T) {
	svc := NewService(&countingEngine{})

	fields := map[string][]float32{
		"exact":   {1, 0, 0},
		"partial": {0.7071, 0.7071, 0},
		"far":     {0, 0, 1},
	}
	probe := []float32{1, 0, 0}

	name, ok := svc.FindBestMatchingField(probe, fields, 0.6)
	if !ok || name != "exact" {
		t.Errorf("best match = %q/%v, want exact/true", name, ok)
	}

	if _, ok := svc.FindBestMatchingField(probe, fields, 1.1); ok {
		t.Error("impossible threshold still matched")
	}
	if _, ok := svc.FindBestMatchingField(nil, fields, 0.1); ok {
		t.Error("empty probe matched")
	}
	if _, ok := svc.FindBestMatchingField(probe, nil, 0.1); ok {
		t.Error("empty field set matched")
	}
}
