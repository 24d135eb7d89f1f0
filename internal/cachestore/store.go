// Package cachestore persists the local metadata cache (tracks, crate
// memberships, the freshness sentinel, and a full-text mirror) in an
// embedded SQLite database. It is safe to delete the database file at
// any time: cachebuilder reconstructs it from the repository.
package cachestore

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dbFileName = ".music-commander-cache.db"

// DefaultPath returns the well-known cache database path under repoRoot.
func DefaultPath(repoRoot string) string {
	return repoRoot + string(os.PathSeparator) + dbFileName
}

// Store wraps the cache database connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the cache database at path, applying the
// schema and WAL pragmas. If the first probing query reports
// corruption ("malformed", "corrupt", "not a database"), the file is
// deleted and recreated exactly once.
func Open(path string) (*Store, error) {
	s, err := open(path)
	if err != nil {
		if isCorruption(err) {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("cachestore: remove corrupt database: %w", rmErr)
			}
			s, err = open(path)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cachestore: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("cachestore: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: apply schema: %w", err)
	}

	// Probe: a corrupt file can pass sql.Open (lazy) but fail here.
	if _, err := db.Exec(`SELECT count(*) FROM tracks`); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "corrupt") ||
		strings.Contains(msg, "not a database")
}

// DB exposes the underlying connection for the search evaluator, which
// lowers AST nodes directly to parameterized queries against the
// fixed schema.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the on-disk path of the database file.
func (s *Store) Path() string {
	return s.path
}

// ReplaceAll truncates and rewrites tracks, track_crates, and the
// full-text mirror in a single transaction, then records newState.
func (s *Store) ReplaceAll(tracks []Track, memberships []CrateMembership, newState State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("cachestore: begin replace_all: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM tracks",
		"DELETE FROM track_crates",
		"DELETE FROM tracks_fts",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("cachestore: replace_all truncate: %w", err)
		}
	}

	if err := insertTracks(tx, tracks); err != nil {
		return err
	}
	if err := insertMemberships(tx, memberships); err != nil {
		return err
	}
	if err := insertFTS(tx, tracks); err != nil {
		return err
	}
	if err := writeState(tx, newState); err != nil {
		return err
	}

	return tx.Commit()
}

// Patch deletes the given keys' tracks/crate rows, inserts newTracks
// and newMemberships, updates state, and reindexes only the affected
// keys in the full-text mirror.
func (s *Store) Patch(keysToReplace []string, newTracks []Track, newMemberships []CrateMembership, newState State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("cachestore: begin patch: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keysToReplace {
		if _, err := tx.Exec(`DELETE FROM tracks WHERE key = ?`, key); err != nil {
			return fmt.Errorf("cachestore: patch delete track %s: %w", key, err)
		}
		if _, err := tx.Exec(`DELETE FROM track_crates WHERE key = ?`, key); err != nil {
			return fmt.Errorf("cachestore: patch delete crates %s: %w", key, err)
		}
		if _, err := tx.Exec(`DELETE FROM tracks_fts WHERE key = ?`, key); err != nil {
			return fmt.Errorf("cachestore: patch delete fts %s: %w", key, err)
		}
	}

	if err := insertTracks(tx, newTracks); err != nil {
		return err
	}
	if err := insertMemberships(tx, newMemberships); err != nil {
		return err
	}
	if err := insertFTS(tx, newTracks); err != nil {
		return err
	}
	if err := writeState(tx, newState); err != nil {
		return err
	}

	return tx.Commit()
}

func insertTracks(tx *sql.Tx, tracks []Track) error {
	stmt, err := tx.Prepare(`
		INSERT INTO tracks (key, file, present, artist, title, album, genre,
			key_musical, year, tracknumber, comment, color, bpm, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cachestore: prepare track insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		present := 0
		if t.Present {
			present = 1
		}
		if _, err := stmt.Exec(t.Key, t.File, present, t.Artist, t.Title, t.Album,
			t.Genre, t.KeyMusical, t.Year, t.TrackNumber, t.Comment, t.Color,
			t.BPM, t.Rating); err != nil {
			return fmt.Errorf("cachestore: insert track %s: %w", t.Key, err)
		}
	}
	return nil
}

func insertMemberships(tx *sql.Tx, memberships []CrateMembership) error {
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO track_crates (key, crate) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("cachestore: prepare crate insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range memberships {
		if _, err := stmt.Exec(m.Key, m.Crate); err != nil {
			return fmt.Errorf("cachestore: insert crate %s/%s: %w", m.Key, m.Crate, err)
		}
	}
	return nil
}

func insertFTS(tx *sql.Tx, tracks []Track) error {
	stmt, err := tx.Prepare(`
		INSERT INTO tracks_fts (key, artist, title, album, genre, file)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cachestore: prepare fts insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		if _, err := stmt.Exec(t.Key, t.Artist.String, t.Title.String, t.Album.String,
			t.Genre.String, t.File.String); err != nil {
			return fmt.Errorf("cachestore: insert fts %s: %w", t.Key, err)
		}
	}
	return nil
}

func writeState(tx *sql.Tx, state State) error {
	if state.LastUpdated.IsZero() {
		state.LastUpdated = time.Now().UTC()
	}
	_, err := tx.Exec(`
		INSERT INTO cache_state (id, branch_pointer, last_updated, track_count)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			branch_pointer = excluded.branch_pointer,
			last_updated = excluded.last_updated,
			track_count = excluded.track_count`,
		state.BranchPointer, state.LastUpdated.Format(time.RFC3339), state.TrackCount)
	if err != nil {
		return fmt.Errorf("cachestore: write state: %w", err)
	}
	return nil
}

// State returns the current singleton cache_state row. A zero-value
// State with a null BranchPointer is returned if the cache has never
// been built.
func (s *Store) State() (State, error) {
	var state State
	var branchPointer sql.NullString
	var lastUpdated string
	var trackCount sql.NullInt64
	err := s.db.QueryRow(`SELECT branch_pointer, last_updated, track_count FROM cache_state WHERE id = 1`).
		Scan(&branchPointer, &lastUpdated, &trackCount)
	if err == sql.ErrNoRows {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("cachestore: read state: %w", err)
	}
	state.BranchPointer = branchPointer
	state.TrackCount = int(trackCount.Int64)
	if t, parseErr := time.Parse(time.RFC3339, lastUpdated); parseErr == nil {
		state.LastUpdated = t
	}
	return state, nil
}

// LoadCrates returns crate memberships for the given keys, grouped by
// key. Passing a nil/empty slice returns all memberships.
func (s *Store) LoadCrates(keys []string) (map[string][]string, error) {
	var rows *sql.Rows
	var err error
	if len(keys) == 0 {
		rows, err = s.db.Query(`SELECT key, crate FROM track_crates ORDER BY key, crate`)
	} else {
		placeholders := make([]string, len(keys))
		args := make([]any, len(keys))
		for i, k := range keys {
			placeholders[i] = "?"
			args[i] = k
		}
		q := fmt.Sprintf(`SELECT key, crate FROM track_crates WHERE key IN (%s) ORDER BY key, crate`,
			strings.Join(placeholders, ","))
		rows, err = s.db.Query(q, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("cachestore: load_crates: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var key, crate string
		if err := rows.Scan(&key, &crate); err != nil {
			return nil, fmt.Errorf("cachestore: scan crate row: %w", err)
		}
		out[key] = append(out[key], crate)
	}
	return out, rows.Err()
}

// TrackCount returns the number of rows currently in tracks.
func (s *Store) TrackCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cachestore: track_count: %w", err)
	}
	return n, nil
}
