package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/elixir-editor/assist/pkg/types"
)

// ErrNotFound is returned when a record id does not exist
var ErrNotFound = errors.New("record not found")

// History records job invocations and merges. Large text columns are stored
// brotli-compressed.
type History struct {
	db   *sql.DB
	path string
}

// OpenHistory opens (creating if needed) the history database at dbPath
func OpenHistory(dbPath string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	// Add connection parameters for better concurrency
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	h := &History{
		db:   db,
		path: dbPath,
	}

	if err := h.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return h, nil
}

func (h *History) createTables() error {
	schema := `
	-- One row per job invocation
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		prediction_id TEXT,
		generation INTEGER,
		path TEXT,
		model TEXT,
		state TEXT,
		attempts INTEGER,
		error TEXT,
		output BLOB,
		created_at INTEGER,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS jobs_created ON jobs(created_at);

	-- One row per merge
	CREATE TABLE IF NOT EXISTS merges (
		id TEXT PRIMARY KEY,
		job_id TEXT,
		path TEXT,
		strategy TEXT,
		overlap REAL,
		source BLOB,
		candidate BLOB,
		merged BLOB,
		applied INTEGER DEFAULT 0,
		created_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS merges_path ON merges(path);
	CREATE INDEX IF NOT EXISTS merges_created ON merges(created_at);
	`

	_, err := h.db.Exec(schema)
	return err
}

// Path returns the database file path
func (h *History) Path() string {
	return h.path
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// WithTransaction runs a function within a SQLite transaction
func (h *History) WithTransaction(fn func(tx *sql.Tx) error) error {
	tx, err := h.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- Jobs ---

// RecordJob inserts or replaces a job record, assigning an id if it has none
func (h *History) RecordJob(rec *types.JobRecord) error {
	return h.recordJob(h.db, rec)
}

// RecordJobTx records a job within a transaction
func (h *History) RecordJobTx(tx *sql.Tx, rec *types.JobRecord) error {
	return h.recordJob(tx, rec)
}

func (h *History) recordJob(q queryer, rec *types.JobRecord) error {
	if rec.ID == "" {
		rec.ID = generateID("job")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	output, err := compressText(rec.Output)
	if err != nil {
		return err
	}

	_, err = q.Exec(`
		INSERT OR REPLACE INTO jobs (id, prediction_id, generation, path, model, state, attempts, error, output, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.PredictionID, int64(rec.Generation), rec.Path, rec.Model, rec.State,
		rec.Attempts, rec.Error, output, toMillis(rec.CreatedAt), toMillis(rec.FinishedAt))

	return err
}

// ListJobs returns the most recent jobs first, without their output
func (h *History) ListJobs(limit int) ([]types.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Query(`
		SELECT id, prediction_id, generation, path, model, state, attempts, error, created_at, finished_at
		FROM jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []types.JobRecord
	for rows.Next() {
		var j types.JobRecord
		var gen, created, finished int64
		if err := rows.Scan(&j.ID, &j.PredictionID, &gen, &j.Path, &j.Model, &j.State,
			&j.Attempts, &j.Error, &created, &finished); err != nil {
			return nil, err
		}
		j.Generation = uint64(gen)
		j.CreatedAt = fromMillis(created)
		j.FinishedAt = fromMillis(finished)
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

// GetJob returns one job including its output
func (h *History) GetJob(id string) (*types.JobRecord, error) {
	var j types.JobRecord
	var gen, created, finished int64
	var output []byte

	err := h.db.QueryRow(`
		SELECT id, prediction_id, generation, path, model, state, attempts, error, output, created_at, finished_at
		FROM jobs WHERE id = ?
	`, id).Scan(&j.ID, &j.PredictionID, &gen, &j.Path, &j.Model, &j.State,
		&j.Attempts, &j.Error, &output, &created, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if j.Output, err = decompressText(output); err != nil {
		return nil, err
	}
	j.Generation = uint64(gen)
	j.CreatedAt = fromMillis(created)
	j.FinishedAt = fromMillis(finished)
	return &j, nil
}

// --- Merges ---

// RecordMerge inserts or replaces a merge record, assigning an id if it has none
func (h *History) RecordMerge(rec *types.MergeRecord) error {
	return h.recordMerge(h.db, rec)
}

// RecordMergeTx records a merge within a transaction
func (h *History) RecordMergeTx(tx *sql.Tx, rec *types.MergeRecord) error {
	return h.recordMerge(tx, rec)
}

func (h *History) recordMerge(q queryer, rec *types.MergeRecord) error {
	if rec.ID == "" {
		rec.ID = generateID("merge")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	blobs := make([][]byte, 3)
	for i, text := range []string{rec.Source, rec.Candidate, rec.Merged} {
		b, err := compressText(text)
		if err != nil {
			return err
		}
		blobs[i] = b
	}

	_, err := q.Exec(`
		INSERT OR REPLACE INTO merges (id, job_id, path, strategy, overlap, source, candidate, merged, applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.JobID, rec.Path, string(rec.Strategy), rec.Overlap,
		blobs[0], blobs[1], blobs[2], boolToInt(rec.Applied), toMillis(rec.CreatedAt))

	return err
}

// MarkApplied flags a merge as written back to its buffer
func (h *History) MarkApplied(id string) error {
	res, err := h.db.Exec("UPDATE merges SET applied = 1 WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("merge %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMerges returns recent merges first, without their texts. A non-empty
// path restricts the list to that file.
func (h *History) ListMerges(path string, limit int) ([]types.MergeRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, job_id, path, strategy, overlap, applied, created_at
		FROM merges
	`
	var args []any
	if path != "" {
		query += " WHERE path = ?"
		args = append(args, path)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merges []types.MergeRecord
	for rows.Next() {
		var m types.MergeRecord
		var strategy string
		var applied int
		var created int64
		if err := rows.Scan(&m.ID, &m.JobID, &m.Path, &strategy, &m.Overlap, &applied, &created); err != nil {
			return nil, err
		}
		m.Strategy = types.MergeStrategy(strategy)
		m.Applied = applied != 0
		m.CreatedAt = fromMillis(created)
		merges = append(merges, m)
	}

	return merges, rows.Err()
}

// GetMerge returns one merge with its source, candidate and merged texts
func (h *History) GetMerge(id string) (*types.MergeRecord, error) {
	var m types.MergeRecord
	var strategy string
	var applied int
	var created int64
	var source, candidate, merged []byte

	err := h.db.QueryRow(`
		SELECT id, job_id, path, strategy, overlap, source, candidate, merged, applied, created_at
		FROM merges WHERE id = ?
	`, id).Scan(&m.ID, &m.JobID, &m.Path, &strategy, &m.Overlap,
		&source, &candidate, &merged, &applied, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("merge %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		dst *string
		src []byte
	}{{&m.Source, source}, {&m.Candidate, candidate}, {&m.Merged, merged}} {
		if *pair.dst, err = decompressText(pair.src); err != nil {
			return nil, err
		}
	}

	m.Strategy = types.MergeStrategy(strategy)
	m.Applied = applied != 0
	m.CreatedAt = fromMillis(created)
	return &m, nil
}

// --- Stats ---

// GetStats returns row counts per table
func (h *History) GetStats() (map[string]int, error) {
	stats := make(map[string]int)

	for _, table := range []string{"jobs", "merges"} {
		var count int
		if err := h.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return nil, err
		}
		stats[table] = count
	}

	var applied int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM merges WHERE applied = 1").Scan(&applied); err != nil {
		return nil, err
	}
	stats["applied"] = applied

	return stats, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
