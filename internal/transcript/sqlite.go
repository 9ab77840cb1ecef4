package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
    run_id     TEXT    NOT NULL,
    feedback   INTEGER NOT NULL,
    iteration  INTEGER NOT NULL,
    kind       TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    content    TEXT    NOT NULL,
    created_at DATETIME DEFAULT (datetime('now')),
    PRIMARY KEY (run_id, feedback, iteration, kind)
);

CREATE TABLE IF NOT EXISTS transitions (
    id         TEXT    PRIMARY KEY,
    run_id     TEXT    NOT NULL,
    seq        INTEGER NOT NULL,
    from_state TEXT    NOT NULL,
    to_state   TEXT    NOT NULL,
    feedback   INTEGER NOT NULL,
    iteration  INTEGER NOT NULL,
    passes     INTEGER NOT NULL,
    fails      INTEGER NOT NULL,
    detail     TEXT,
    created_at TEXT    NOT NULL,
    UNIQUE (run_id, seq)
);
`

// SQLiteStore keeps artifacts and transitions in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	ext Extensions
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
// dsn examples: "file:transcript.db?cache=shared&mode=rwc" or ":memory:".
func OpenSQLite(dsn string, ext Extensions) (*SQLiteStore, error) {
	ext, err := ext.Normalize()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// a single writer keeps :memory: databases on one connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply transcript schema: %w", err)
	}
	return &SQLiteStore{db: db, ext: ext}, nil
}

// SaveCode implements Store.
func (s *SQLiteStore) SaveCode(ctx context.Context, key Key, source string) (string, error) {
	return s.write(ctx, key, KindCode, source)
}

// SaveOutput implements Store.
func (s *SQLiteStore) SaveOutput(ctx context.Context, key Key, output string) (string, error) {
	return s.write(ctx, key, KindOutput, output)
}

func (s *SQLiteStore) write(ctx context.Context, key Key, kind Kind, content string) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	name := key.Name(s.ext.forKind(kind))
	location := "sqlite:" + name

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, feedback, iteration, kind, name, content)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, feedback, iteration, kind) DO NOTHING`,
		key.RunID, key.Feedback, key.Iteration, string(kind), name, content)
	if err != nil {
		return "", fmt.Errorf("failed to insert %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return location, nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT content FROM artifacts WHERE run_id = ? AND feedback = ? AND iteration = ? AND kind = ?`,
		key.RunID, key.Feedback, key.Iteration, string(kind)).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("failed to read existing %s: %w", name, err)
	}
	if existing != content {
		return "", fmt.Errorf("%s: %w", name, ErrConflict)
	}
	return location, nil
}

// RecordTransition implements Store.
func (s *SQLiteStore) RecordTransition(ctx context.Context, t Transition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (id, run_id, seq, from_state, to_state, feedback, iteration, passes, fails, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RunID, t.Seq, t.From, t.To, t.Feedback, t.Iteration, t.Passes, t.Fails, t.Detail, t.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record transition %d: %w", t.Seq, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feedback, iteration, kind, name, content FROM artifacts
		 WHERE run_id = ? ORDER BY feedback, iteration, kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var arts []Artifact
	for rows.Next() {
		var a Artifact
		var kind, name string
		if err := rows.Scan(&a.Key.Feedback, &a.Key.Iteration, &kind, &name, &a.Content); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Key.RunID = runID
		a.Kind = Kind(kind)
		a.Location = "sqlite:" + name
		arts = append(arts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifacts: %w", err)
	}
	sortArtifacts(arts)
	return arts, nil
}

// Transitions returns the recorded transitions for runID ordered by sequence.
func (s *SQLiteStore) Transitions(ctx context.Context, runID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, from_state, to_state, feedback, iteration, passes, fails, COALESCE(detail, ''), created_at
		 FROM transitions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transition
	for rows.Next() {
		t := Transition{RunID: runID}
		var ts string
		if err := rows.Scan(&t.ID, &t.Seq, &t.From, &t.To, &t.Feedback, &t.Iteration, &t.Passes, &t.Fails, &t.Detail, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if t.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("failed to parse transition time %q: %w", ts, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to iterate transitions: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
