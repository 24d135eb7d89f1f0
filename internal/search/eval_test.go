package search

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/poelzi/music-commander/internal/cachestore"
)

func seedStore(t *testing.T) *cachestore.Store {
	t.Helper()
	s, err := cachestore.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tracks := []cachestore.Track{
		{
			Key: "k1", Present: true,
			Artist: sql.NullString{String: "Radiohead", Valid: true},
			Title:  sql.NullString{String: "Airbag", Valid: true},
			Album:  sql.NullString{String: "OK Computer", Valid: true},
			Genre:  sql.NullString{String: "Rock", Valid: true},
			BPM:    sql.NullFloat64{Float64: 120, Valid: true},
		},
		{
			Key: "k2", Present: true,
			Artist: sql.NullString{String: "Muse", Valid: true},
			Title:  sql.NullString{String: "Knights of Cydonia", Valid: true},
			Album:  sql.NullString{String: "Black Holes and Revelations", Valid: true},
			Genre:  sql.NullString{String: "Rock", Valid: true},
			BPM:    sql.NullFloat64{Float64: 140, Valid: true},
		},
		{
			Key: "k3", Present: false,
			Artist: sql.NullString{String: "Boards of Canada", Valid: true},
			Title:  sql.NullString{String: "Roygbiv", Valid: true},
			Genre:  sql.NullString{String: "Electronic", Valid: true},
		},
	}
	memberships := []cachestore.CrateMembership{{Key: "k1", Crate: "Favorites"}}
	if err := s.ReplaceAll(tracks, memberships, cachestore.State{}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	return s
}

func evalQuery(t *testing.T, s *cachestore.Store, query string) []cachestore.Track {
	t.Helper()
	q, err := Parse(query)
	if err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	tracks, err := Eval(s.DB(), q, EvalOptions{})
	if err != nil {
		t.Fatalf("Eval(%q): %v", query, err)
	}
	return tracks
}

func keysOf(tracks []cachestore.Track) []string {
	keys := make([]string, len(tracks))
	for i, t := range tracks {
		keys[i] = t.Key
	}
	return keys
}

func TestEval_emptyQueryReturnsAll(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "")
	if len(tracks) != 3 {
		t.Fatalf("got %d tracks, want 3", len(tracks))
	}
}

func TestEval_fieldContains(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "artist:radio")
	if len(tracks) != 1 || tracks[0].Key != "k1" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestEval_exactIsCaseInsensitiveWholeValue(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "artist:=radiohead")
	if len(tracks) != 1 || tracks[0].Key != "k1" {
		t.Fatalf("tracks = %+v", tracks)
	}
	tracks = evalQuery(t, s, "artist:=radio")
	if len(tracks) != 0 {
		t.Fatalf("exact match on partial value should return nothing, got %+v", tracks)
	}
}

func TestEval_numericRange(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "bpm:110-130")
	if len(tracks) != 1 || tracks[0].Key != "k1" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestEval_numericComparison(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "bpm:>130")
	if len(tracks) != 1 || tracks[0].Key != "k2" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestEval_negation(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "-artist:radiohead")
	keys := keysOf(tracks)
	for _, k := range keys {
		if k == "k1" {
			t.Fatalf("negation should exclude k1, got %v", keys)
		}
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want 2", keys)
	}
}

func TestEval_orOfGroups(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "artist:radiohead | artist:muse")
	if len(tracks) != 2 {
		t.Fatalf("tracks = %+v, want 2", tracks)
	}
}

func TestEval_andWithinGroup(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "genre:rock artist:muse")
	if len(tracks) != 1 || tracks[0].Key != "k2" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestEval_crateMembership(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "crate:Favorites")
	if len(tracks) != 1 || tracks[0].Key != "k1" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestEval_isEmpty(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, `album:""`)
	if len(tracks) != 1 || tracks[0].Key != "k3" {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestEval_defaultOrdering(t *testing.T) {
	s := seedStore(t)
	tracks := evalQuery(t, s, "")
	// Default order is artist ASC: Boards of Canada, Muse, Radiohead.
	want := []string{"k3", "k2", "k1"}
	got := keysOf(tracks)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEval_sortKeyOverride(t *testing.T) {
	s := seedStore(t)
	q, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	tracks, err := Eval(s.DB(), q, EvalOptions{SortKey: "bpm"})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("tracks = %+v", tracks)
	}
}
