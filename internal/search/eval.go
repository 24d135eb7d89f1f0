package search

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/poelzi/music-commander/internal/cachestore"
)

// fieldColumn maps a query field name to its tracks column. "crate" and
// the empty (bare-word) field are handled separately.
var fieldColumn = map[string]string{
	"artist":      "artist",
	"title":       "title",
	"album":       "album",
	"genre":       "genre",
	"bpm":         "bpm",
	"rating":      "rating",
	"key":         "key_musical",
	"year":        "year",
	"tracknumber": "tracknumber",
	"comment":     "comment",
	"color":       "color",
	"file":        "file",
}

// EvalOptions configures result ordering.
type EvalOptions struct {
	// SortKey overrides the default "artist, album, tracknumber"
	// ordering. Must be a query field name (a key of fieldColumn).
	SortKey string
}

const defaultOrder = "artist ASC NULLS LAST, album ASC NULLS LAST, tracknumber ASC NULLS LAST"

// Eval lowers q to a parameterized query against db and returns the
// matching tracks in the spec's default order (or opts.SortKey).
func Eval(db *sql.DB, q Query, opts EvalOptions) ([]cachestore.Track, error) {
	where, args, err := lower(q)
	if err != nil {
		return nil, err
	}

	order := defaultOrder
	if opts.SortKey != "" {
		col, ok := fieldColumn[opts.SortKey]
		if !ok {
			return nil, fmt.Errorf("search: unknown sort key %q", opts.SortKey)
		}
		order = col + " ASC NULLS LAST"
	}

	query := fmt.Sprintf(`
		SELECT key, file, present, artist, title, album, genre, key_musical,
			year, tracknumber, comment, color, bpm, rating
		FROM tracks
		WHERE %s
		ORDER BY %s`, where, order)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: eval: %w", err)
	}
	defer rows.Close()

	var tracks []cachestore.Track
	for rows.Next() {
		var t cachestore.Track
		var present int
		if err := rows.Scan(&t.Key, &t.File, &present, &t.Artist, &t.Title, &t.Album,
			&t.Genre, &t.KeyMusical, &t.Year, &t.TrackNumber, &t.Comment, &t.Color,
			&t.BPM, &t.Rating); err != nil {
			return nil, fmt.Errorf("search: scan row: %w", err)
		}
		t.Present = present != 0
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// lower renders an OR-of-ANDs WHERE clause. An empty query matches
// every row.
func lower(q Query) (string, []any, error) {
	if len(q) == 0 {
		return "1=1", nil, nil
	}

	var groupClauses []string
	var args []any
	for _, group := range q {
		clause, groupArgs, err := lowerGroup(group)
		if err != nil {
			return "", nil, err
		}
		groupClauses = append(groupClauses, clause)
		args = append(args, groupArgs...)
	}
	return strings.Join(groupClauses, " OR "), args, nil
}

func lowerGroup(group Group) (string, []any, error) {
	if len(group) == 0 {
		return "1=1", nil, nil
	}
	var clauses []string
	var args []any
	for _, atom := range group {
		clause, atomArgs, err := lowerAtom(atom)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, atomArgs...)
	}
	return "(" + strings.Join(clauses, " AND ") + ")", args, nil
}

func lowerAtom(atom Atom) (string, []any, error) {
	subquery, args, err := atomKeySet(atom)
	if err != nil {
		return "", nil, err
	}
	if atom.Negated {
		return "key NOT IN " + subquery, args, nil
	}
	return "key IN " + subquery, args, nil
}

// atomKeySet renders the atom as "(SELECT key FROM ... WHERE ...)"
// plus its bind arguments.
func atomKeySet(atom Atom) (string, []any, error) {
	if atom.Field == "" {
		return "(SELECT key FROM tracks_fts WHERE tracks_fts MATCH ?)", []any{ftsPhrase(atom.Value)}, nil
	}

	if atom.Field == "crate" {
		switch atom.Op {
		case OpIsEmpty:
			return "(SELECT key FROM tracks WHERE key NOT IN (SELECT key FROM track_crates))", nil, nil
		case OpExact:
			return "(SELECT key FROM track_crates WHERE LOWER(crate) = LOWER(?))", []any{atom.Value}, nil
		default:
			return "(SELECT key FROM track_crates WHERE LOWER(crate) LIKE ?)", []any{"%" + strings.ToLower(atom.Value) + "%"}, nil
		}
	}

	col, ok := fieldColumn[atom.Field]
	if !ok {
		return "", nil, fmt.Errorf("search: unknown field %q", atom.Field)
	}

	switch atom.Op {
	case OpIsEmpty:
		return fmt.Sprintf("(SELECT key FROM tracks WHERE %s IS NULL OR %s = '')", col, col), nil, nil
	case OpExact:
		return fmt.Sprintf("(SELECT key FROM tracks WHERE LOWER(%s) = LOWER(?))", col), []any{atom.Value}, nil
	case OpGT:
		return fmt.Sprintf("(SELECT key FROM tracks WHERE CAST(%s AS REAL) > ?)", col), []any{atom.Value}, nil
	case OpGE:
		return fmt.Sprintf("(SELECT key FROM tracks WHERE CAST(%s AS REAL) >= ?)", col), []any{atom.Value}, nil
	case OpLT:
		return fmt.Sprintf("(SELECT key FROM tracks WHERE CAST(%s AS REAL) < ?)", col), []any{atom.Value}, nil
	case OpLE:
		return fmt.Sprintf("(SELECT key FROM tracks WHERE CAST(%s AS REAL) <= ?)", col), []any{atom.Value}, nil
	case OpRange:
		return fmt.Sprintf("(SELECT key FROM tracks WHERE CAST(%s AS REAL) BETWEEN ? AND ?)", col), []any{atom.Lo, atom.Hi}, nil
	default: // OpContains
		return fmt.Sprintf("(SELECT key FROM tracks WHERE LOWER(%s) LIKE ?)", col), []any{"%" + strings.ToLower(atom.Value) + "%"}, nil
	}
}

// ftsPhrase renders a bare text term as an FTS5 MATCH expression: a
// quoted phrase so punctuation and multiple words are matched
// literally, as a contains-style search over the indexed columns.
func ftsPhrase(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
