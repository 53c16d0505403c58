// Package store persists toolvet's long-lived state in SQLite: the
// embedding cache (so repeated analyses of the same contract skip the
// model) and the analysis run history.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"toolvet/internal/contract"
	"toolvet/internal/logging"
)

// Store wraps the SQLite database. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open initializes the database at the given path, creating the directory
// and schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Opened store at %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	cacheTable := `
	CREATE TABLE IF NOT EXISTS embedding_cache (
		model TEXT NOT NULL,
		text TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, text)
	);`

	runsTable := `
	CREATE TABLE IF NOT EXISTS analysis_runs (
		run_id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		verdict TEXT NOT NULL,
		tool_count INTEGER NOT NULL,
		error_count INTEGER NOT NULL,
		warning_count INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON analysis_runs(source);
	`

	for _, table := range []string{cacheTable, runsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// EMBEDDING CACHE
// =============================================================================

// Get returns the cached vector for (model, text), if present.
func (s *Store) Get(model, text string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRow(
		`SELECT vector FROM embedding_cache WHERE model = ? AND text = ?`,
		model, text,
	).Scan(&blob)
	if err != nil {
		if err != sql.ErrNoRows {
			logging.StoreDebug("Cache lookup failed: %v", err)
		}
		return nil, false
	}

	vec, err := decodeVector(blob)
	if err != nil {
		logging.StoreDebug("Corrupt cached vector for model %s: %v", model, err)
		return nil, false
	}
	return vec, true
}

// Put stores a vector for (model, text), replacing any existing entry.
func (s *Store) Put(model, text string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO embedding_cache (model, text, vector) VALUES (?, ?, ?)`,
		model, text, encodeVector(vec),
	)
	if err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}

// CacheSize returns the number of cached vectors.
func (s *Store) CacheSize() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM embedding_cache`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// encodeVector packs float32s little-endian.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// =============================================================================
// RUN HISTORY
// =============================================================================

// Run is one recorded analysis.
type Run struct {
	RunID     string
	Source    string
	Verdict   contract.Verdict
	ToolCount int
	Errors    int
	Warnings  int
	CreatedAt time.Time
}

// SaveRun records an analysis result under the given run ID and source
// label (server ID or file path).
func (s *Store) SaveRun(runID, source string, result *contract.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO analysis_runs
		 (run_id, source, verdict, tool_count, error_count, warning_count, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, source, string(result.Verdict), result.ToolCount,
		len(result.Errors), len(result.Warnings), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	logging.StoreDebug("Saved run %s (%s): %s", runID, source, result.Verdict)
	return nil
}

// RecentRuns lists the newest runs, most recent first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT run_id, source, verdict, tool_count, error_count, warning_count, created_at
		 FROM analysis_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var verdict string
		if err := rows.Scan(&r.RunID, &r.Source, &verdict, &r.ToolCount, &r.Errors, &r.Warnings, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Verdict = contract.Verdict(verdict)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun retrieves a recorded result by run ID.
func (s *Store) LoadRun(runID string) (*contract.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRow(`SELECT result_json FROM analysis_runs WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, err
	}

	var result contract.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to parse stored result: %w", err)
	}
	return &result, nil
}
