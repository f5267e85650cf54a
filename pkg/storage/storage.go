// Package storage implements the three-keyspace persistence layer the
// retrieval funnel is built on: a meta keyspace (text, arbitrary metadata,
// tier, expiry), a vec keyspace (full-precision embeddings) and a bit
// keyspace (quantized bit vectors), all backed by a single SQLite database
// opened with modernc.org/sqlite so the binary stays pure Go. Writes that
// touch more than one keyspace for the same entry are committed atomically
// in a single transaction; ScanBit reads a point-in-time snapshot by running
// its query inside its own read transaction.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Logger is the narrow structured-logging capability the store needs.
// Mirrors the teacher's pkg/core Logger interface.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

// Entry is the full row stored for one id: the text and arbitrary metadata,
// the tier it lives in, its optional expiry, and both vector
// representations. Put stores Vector at whatever length it has; it does not
// check that length against the rows already stored.
type Entry struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Tier      string
	ExpiresAt *time.Time
	Vector    []float32
	Bits      []byte
}

// Stats summarizes the store's current contents, mirroring the teacher's
// StoreStats shape (count, dimension, approximate on-disk size).
type Stats struct {
	Count      int
	Dimensions int
	SizeBytes  int64
}

// Store is the three-keyspace SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	logger Logger
}

// Open opens (creating if necessary) the SQLite database at path, applying
// the same WAL/synchronous/busy-timeout pragmas and connection pool tuning
// as the teacher's pkg/core store_init.go, and ensures the schema exists.
func Open(ctx context.Context, path string, logger Logger) (*Store, error) {
	if logger == nil {
		logger = NopLogger()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=cache_size(-2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one connection: every read and write through this Store is serialized
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(2 * time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", path, err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("storage opened", "path", path)
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS meta (
	id        TEXT PRIMARY KEY,
	envelope  BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS vec (
	id     TEXT PRIMARY KEY,
	vector BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS bit (
	id   TEXT PRIMARY KEY,
	bits BLOB NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage: create tables: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes an entry's meta, vec, and bit rows atomically: either all three
// keyspaces reflect the entry or none do.
func (s *Store) Put(ctx context.Context, e Entry) error {
	var expiresAt *int64
	if e.ExpiresAt != nil {
		unix := e.ExpiresAt.Unix()
		expiresAt = &unix
	}
	envBytes, err := encodeMeta(metaEnvelope{
		Text:      e.Text,
		Metadata:  e.Metadata,
		Tier:      e.Tier,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", e.ID, err)
	}
	vecBytes, err := encodeVector(e.Vector)
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", e.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: put %s: begin: %w", e.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (id, envelope) VALUES (?, ?)`, e.ID, envBytes); err != nil {
		return fmt.Errorf("storage: put %s: meta: %w", e.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO vec (id, vector) VALUES (?, ?)`, e.ID, vecBytes); err != nil {
		return fmt.Errorf("storage: put %s: vec: %w", e.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO bit (id, bits) VALUES (?, ?)`, e.ID, e.Bits); err != nil {
		return fmt.Errorf("storage: put %s: bit: %w", e.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: put %s: commit: %w", e.ID, err)
	}
	return nil
}

// GetMeta returns the text, metadata, tier, and expiry for id.
func (s *Store) GetMeta(ctx context.Context, id string) (text string, metadata map[string]any, tier string, expiresAt *time.Time, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT envelope FROM meta WHERE id = ?`, id)
	var envBytes []byte
	if scanErr := row.Scan(&envBytes); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", nil, "", nil, false, nil
		}
		return "", nil, "", nil, false, fmt.Errorf("storage: get meta %s: %w", id, scanErr)
	}
	env, decErr := decodeMeta(envBytes)
	if decErr != nil {
		return "", nil, "", nil, false, fmt.Errorf("storage: get meta %s: %w", id, decErr)
	}
	var exp *time.Time
	if env.ExpiresAt != nil {
		t := time.Unix(*env.ExpiresAt, 0).UTC()
		exp = &t
	}
	return env.Text, env.Metadata, env.Tier, exp, true, nil
}

// GetVec returns the full-precision embedding for id.
func (s *Store) GetVec(ctx context.Context, id string) ([]float32, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT vector FROM vec WHERE id = ?`, id)
	var vecBytes []byte
	if err := row.Scan(&vecBytes); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: get vec %s: %w", id, err)
	}
	v, err := decodeVector(vecBytes)
	if err != nil {
		return nil, false, fmt.Errorf("storage: get vec %s: %w", id, err)
	}
	return v, true, nil
}

// GetBit returns the quantized bit vector for id.
func (s *Store) GetBit(ctx context.Context, id string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT bits FROM bit WHERE id = ?`, id)
	var bits []byte
	if err := row.Scan(&bits); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: get bit %s: %w", id, err)
	}
	return bits, true, nil
}

// BitRow is one row of a ScanBit snapshot.
type BitRow struct {
	ID   string
	Bits []byte
}

// MetaRow is one row of a ScanMeta snapshot: the full decoded envelope,
// since both tier accounting (engine.liveIDs) and filter-based delete
// (engine.DeleteByFilter) need it.
type MetaRow struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Tier      string
	ExpiresAt *time.Time
}

// ScanMeta returns every entry's id, tier, and expiry as of a single point in
// time, the same snapshot discipline as ScanBit. Used by the engine's Stats
// to exclude lazily-expired episodic entries from the reported count.
func (s *Store) ScanMeta(ctx context.Context) ([]MetaRow, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("storage: scan meta: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, envelope FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("storage: scan meta: query: %w", err)
	}
	defer rows.Close()

	var out []MetaRow
	for rows.Next() {
		var id string
		var envBytes []byte
		if err := rows.Scan(&id, &envBytes); err != nil {
			return nil, fmt.Errorf("storage: scan meta: row: %w", err)
		}
		env, err := decodeMeta(envBytes)
		if err != nil {
			return nil, fmt.Errorf("storage: scan meta: decode %s: %w", id, err)
		}
		var exp *time.Time
		if env.ExpiresAt != nil {
			t := time.Unix(*env.ExpiresAt, 0).UTC()
			exp = &t
		}
		out = append(out, MetaRow{ID: id, Text: env.Text, Metadata: env.Metadata, Tier: env.Tier, ExpiresAt: exp})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: scan meta: rows: %w", err)
	}
	return out, nil
}

// ScanBit returns every (id, bits) pair as it existed at a single point in
// time: the query runs inside its own read transaction, so concurrent Puts
// or Deletes that commit after the scan begins are not observed.
func (s *Store) ScanBit(ctx context.Context) ([]BitRow, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("storage: scan bit: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, bits FROM bit`)
	if err != nil {
		return nil, fmt.Errorf("storage: scan bit: query: %w", err)
	}
	defer rows.Close()

	var out []BitRow
	for rows.Next() {
		var r BitRow
		if err := rows.Scan(&r.ID, &r.Bits); err != nil {
			return nil, fmt.Errorf("storage: scan bit: row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: scan bit: rows: %w", err)
	}
	return out, nil
}

// Delete removes an entry's rows from all three keyspaces atomically.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: delete %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"meta", "vec", "bit"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
			return fmt.Errorf("storage: delete %s: %s: %w", id, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: delete %s: commit: %w", id, err)
	}
	return nil
}

// DeleteExpiredBefore removes every entry whose meta envelope carries an
// expires_at at or before cutoff, and reports how many rows were removed.
// Used by pkg/tiering's best-effort sweep; never called from Put/Search.
func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: sweep: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, envelope FROM meta`)
	if err != nil {
		return 0, fmt.Errorf("storage: sweep: query: %w", err)
	}
	var expired []string
	cutoffUnix := cutoff.Unix()
	for rows.Next() {
		var id string
		var envBytes []byte
		if err := rows.Scan(&id, &envBytes); err != nil {
			rows.Close()
			return 0, fmt.Errorf("storage: sweep: row: %w", err)
		}
		env, err := decodeMeta(envBytes)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("storage: sweep: decode %s: %w", id, err)
		}
		if env.ExpiresAt != nil && *env.ExpiresAt <= cutoffUnix {
			expired = append(expired, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("storage: sweep: rows: %w", err)
	}
	rows.Close()

	for _, id := range expired {
		for _, table := range []string{"meta", "vec", "bit"} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
				return 0, fmt.Errorf("storage: sweep: delete %s: %s: %w", id, table, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: sweep: commit: %w", err)
	}
	return len(expired), nil
}

// Stats reports entry count, configured dimension (taken from the first row
// found, 0 if empty), and approximate on-disk size via SQLite's page
// accounting pragmas, the way the teacher's Stats does.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meta`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("storage: stats: count: %w", err)
	}

	var dim int
	var sampleVec []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM vec LIMIT 1`).Scan(&sampleVec)
	switch {
	case err == nil:
		dim = len(sampleVec) / 4
	case err == sql.ErrNoRows:
		dim = 0
	default:
		return Stats{}, fmt.Errorf("storage: stats: dim: %w", err)
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, `SELECT * FROM pragma_page_count()`).Scan(&pageCount); err != nil {
		return Stats{}, fmt.Errorf("storage: stats: page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT * FROM pragma_page_size()`).Scan(&pageSize); err != nil {
		return Stats{}, fmt.Errorf("storage: stats: page_size: %w", err)
	}

	return Stats{Count: count, Dimensions: dim, SizeBytes: pageCount * pageSize}, nil
}
