package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolvet/internal/contract"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "toolvet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deeply", "nested", "toolvet.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	s := openTemp(t)

	vec := []float32{0.5, -1.25, 0, 3.75}
	require.NoError(t, s.Put("local:384", "fetch user", vec))

	got, ok := s.Get("local:384", "fetch user")
	require.True(t, ok, "Get missed a stored vector")
	assert.Equal(t, vec, got)

	_, ok = s.Get("local:384", "other text")
	assert.False(t, ok, "Get hit for unknown text")
	_, ok = s.Get("other-model", "fetch user")
	assert.False(t, ok, "Get ignored the model key")
}

func TestEmbeddingCacheReplace(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.Put("m", "t", []float32{1}))
	require.NoError(t, s.Put("m", "t", []float32{2}))

	got, ok := s.Get("m", "t")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, got)

	n, err := s.CacheSize()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorEncoding(t *testing.T) {
	vec := []float32{0, 1.5, -2.25}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err, "truncated blob should fail to decode")
}

func sampleResult() *contract.AnalysisResult {
	diag := contract.Diagnostic{
		Code: "E101", Severity: contract.SeverityError,
		Tool: "mystery", Message: `Tool "mystery" has no description`,
	}
	return &contract.AnalysisResult{
		Verdict:     contract.VerdictFail,
		Diagnostics: []contract.Diagnostic{diag},
		Errors:      []contract.Diagnostic{diag},
		ToolCount:   3,
	}
}

func TestRunHistory(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.SaveRun("run-1", "servers/weather", sampleResult()))
	passing := &contract.AnalysisResult{Verdict: contract.VerdictPass, ToolCount: 1}
	require.NoError(t, s.SaveRun("run-2", "tools.json", passing))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]Run{}
	for _, r := range runs {
		byID[r.RunID] = r
	}
	first := byID["run-1"]
	assert.Equal(t, "servers/weather", first.Source)
	assert.Equal(t, contract.VerdictFail, first.Verdict)
	assert.Equal(t, 3, first.ToolCount)
	assert.Equal(t, 1, first.Errors)
	assert.Equal(t, 0, first.Warnings)

	loaded, err := s.LoadRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), loaded)
}

func TestRunHistoryLimit(t *testing.T) {
	s := openTemp(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(id, "src", &contract.AnalysisResult{Verdict: contract.VerdictPass}))
	}

	runs, err := s.RecentRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSaveRunReplaces(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SaveRun("run-1", "src", &contract.AnalysisResult{Verdict: contract.VerdictPass}))
	require.NoError(t, s.SaveRun("run-1", "src", sampleResult()))

	loaded, err := s.LoadRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, contract.VerdictFail, loaded.Verdict)
}

func TestLoadRunMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.LoadRun("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
