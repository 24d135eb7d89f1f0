// Package view projects search results into a rendered path tree,
// either materialized as a directory of symlinks on disk or served
// live as a read-only FUSE filesystem, grounded in
// view/symlinks.py and view/template.py (original_source).
package view

import (
	"database/sql"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/poelzi/music-commander/internal/cachestore"
	"github.com/poelzi/music-commander/internal/encoder"
)

// Entry is one rendered leaf in the projected view: a relative
// on-disk path mapped to the absolute path of the real annexed file
// it should resolve to.
type Entry struct {
	RelPath string
	Target  string
}

var templateVarPattern = regexp.MustCompile(`{{\s*\.?(\w+)`)

// templateVariables returns the field names referenced by pattern,
// e.g. "{{.Artist}}/{{.Title}}" -> {"Artist", "Title"}.
func templateVariables(pattern string) map[string]bool {
	vars := make(map[string]bool)
	for _, m := range templateVarPattern.FindAllStringSubmatch(pattern, -1) {
		vars[m[1]] = true
	}
	return vars
}

// BuildEntries renders pattern against every track, expanding crate
// membership into one entry per crate value when pattern references
// "crate", sanitizing and deduplicating every rendered path, and
// appending the source file's original extension.
func BuildEntries(tracks []cachestore.Track, crates map[string][]string, pattern, repoRoot string) []Entry {
	vars := templateVariables(pattern)
	usesCrate := vars["Crate"] || vars["crate"]

	seen := make(map[string]bool)
	var entries []Entry

	for _, t := range tracks {
		if !t.File.Valid || t.File.String == "" {
			continue
		}

		trackCrates := crates[t.Key]
		dicts := metadataDicts(t, usesCrate, trackCrates)

		for _, data := range dicts {
			rendered := encoder.RenderPath(pattern, data)
			sanitized := encoder.SanitizePath(rendered)

			if ext := filepath.Ext(t.File.String); ext != "" && !strings.HasSuffix(sanitized, ext) {
				sanitized += ext
			}

			sanitized = encoder.Dedup(seen, sanitized)

			entries = append(entries, Entry{
				RelPath: sanitized,
				Target:  filepath.Join(repoRoot, t.File.String),
			})
		}
	}
	return entries
}

func metadataDicts(t cachestore.Track, usesCrate bool, trackCrates []string) []map[string]any {
	if usesCrate && len(trackCrates) > 0 {
		dicts := make([]map[string]any, len(trackCrates))
		for i, c := range trackCrates {
			dicts[i] = metadataDict(t, c)
		}
		return dicts
	}
	return []map[string]any{metadataDict(t, "")}
}

func metadataDict(t cachestore.Track, crate string) map[string]any {
	d := map[string]any{
		"Artist":      nullableString(t.Artist),
		"Title":       nullableString(t.Title),
		"Album":       nullableString(t.Album),
		"Genre":       nullableString(t.Genre),
		"Key":         nullableString(t.KeyMusical),
		"Year":        nullableString(t.Year),
		"TrackNumber": nullableString(t.TrackNumber),
		"Comment":     nullableString(t.Comment),
		"Color":       nullableString(t.Color),
		"File":        t.File.String,
		"Crate":       crate,
	}
	if t.BPM.Valid {
		d["BPM"] = t.BPM.Float64
	}
	if t.Rating.Valid {
		d["Rating"] = strconv.FormatInt(t.Rating.Int64, 10)
	}
	return d
}

func nullableString(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}
