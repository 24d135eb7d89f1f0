// Package cachebuilder drives the cache store from the metadata
// branch of an annexrepo.Repository. It implements both a full
// rebuild and an incremental refresh, mirroring cache/builder.py's
// build_cache / refresh_cache.
package cachebuilder

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/poelzi/music-commander/internal/annexrepo"
	"github.com/poelzi/music-commander/internal/cachestore"
	"github.com/poelzi/music-commander/internal/logdecoder"
)

const metadataBranch = "git-annex"

const logBlobSuffix = ".log.met"

// Builder builds and refreshes a cachestore.Store from a repository.
type Builder struct {
	Repo  annexrepo.Repository
	Store *cachestore.Store
}

// New returns a Builder over repo and store.
func New(repo annexrepo.Repository, store *cachestore.Store) *Builder {
	return &Builder{Repo: repo, Store: store}
}

func keyFromLogPath(path string) string {
	base := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		base = path[idx+1:]
	}
	return strings.TrimSuffix(base, logBlobSuffix)
}

// Build performs a full rebuild: every metadata blob on the branch is
// read, decoded, and lowered into fresh tracks/crates rows, replacing
// the store's contents atomically.
func (b *Builder) Build(ctx context.Context) (int, error) {
	refs, err := b.Repo.ListLogBlobs(ctx, metadataBranch)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: list log blobs: %w", err)
	}

	blobIDs := make([]string, len(refs))
	pathForBlob := make(map[string]string, len(refs))
	for i, r := range refs {
		blobIDs[i] = r.BlobID
		pathForBlob[r.BlobID] = r.Path
	}

	blobs, err := b.Repo.ReadBlobs(ctx, blobIDs)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: read blobs: %w", err)
	}

	snapshots := make(map[string]logdecoder.Snapshot, len(blobs))
	for blobID, content := range blobs {
		key := keyFromLogPath(pathForBlob[blobID])
		snapshots[key] = logdecoder.Decode(content)
	}

	pathByKey, err := b.Repo.ListAllAnnexedPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: list annexed paths: %w", err)
	}
	presentKeys, err := b.Repo.ListPresentKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: list present keys: %w", err)
	}

	tracks, memberships := lowerAll(snapshots, pathByKey, presentKeys)

	pointer, havePointer, err := b.Repo.CurrentBranchPointer(ctx)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: current branch pointer: %w", err)
	}
	newState := cachestore.State{TrackCount: len(tracks)}
	if havePointer {
		newState.BranchPointer = sql.NullString{String: pointer, Valid: true}
	}

	if err := b.Store.ReplaceAll(tracks, memberships, newState); err != nil {
		return 0, fmt.Errorf("cachebuilder: replace_all: %w", err)
	}
	return len(tracks), nil
}

// Refresh performs an incremental refresh when possible, falling back
// to a full Build when the cache is empty or has no recorded pointer.
// It returns the number of keys changed, or 0 if no change occurred.
func (b *Builder) Refresh(ctx context.Context) (int, error) {
	state, err := b.Store.State()
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: read state: %w", err)
	}
	if !state.BranchPointer.Valid || state.TrackCount == 0 {
		return b.Build(ctx)
	}

	newPointer, havePointer, err := b.Repo.CurrentBranchPointer(ctx)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: current branch pointer: %w", err)
	}
	if !havePointer || newPointer == state.BranchPointer.String {
		return 0, nil
	}

	changedPaths, err := b.Repo.DiffChangedPaths(ctx, state.BranchPointer.String, newPointer)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: diff changed paths: %w", err)
	}
	if len(changedPaths) == 0 {
		return 0, b.Store.Patch(nil, nil, nil, cachestore.State{
			BranchPointer: sql.NullString{String: newPointer, Valid: true},
			TrackCount:    state.TrackCount,
		})
	}

	snapshots := make(map[string]logdecoder.Snapshot, len(changedPaths))
	deletedKeys := make([]string, 0)
	for _, path := range changedPaths {
		key := keyFromLogPath(path)
		content, ok, err := b.Repo.ReadBlobAtRef(ctx, newPointer, path)
		if err != nil {
			return 0, fmt.Errorf("cachebuilder: read blob at ref %s: %w", path, err)
		}
		if !ok {
			deletedKeys = append(deletedKeys, key)
			continue
		}
		snapshots[key] = logdecoder.Decode(content)
	}

	pathByKey, err := b.Repo.ListAllAnnexedPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: list annexed paths: %w", err)
	}
	presentKeys, err := b.Repo.ListPresentKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("cachebuilder: list present keys: %w", err)
	}

	newTracks, newMemberships := lowerAll(snapshots, pathByKey, presentKeys)

	keysToReplace := make([]string, 0, len(snapshots)+len(deletedKeys))
	for key := range snapshots {
		keysToReplace = append(keysToReplace, key)
	}
	keysToReplace = append(keysToReplace, deletedKeys...)

	if err := b.Store.Patch(keysToReplace, newTracks, newMemberships, cachestore.State{
		BranchPointer: sql.NullString{String: newPointer, Valid: true},
		TrackCount:    state.TrackCount,
	}); err != nil {
		return 0, fmt.Errorf("cachebuilder: patch: %w", err)
	}

	actualCount, err := b.Store.TrackCount()
	if err == nil {
		_ = b.Store.Patch(nil, nil, nil, cachestore.State{
			BranchPointer: sql.NullString{String: newPointer, Valid: true},
			TrackCount:    actualCount,
		})
	}
	return len(keysToReplace), nil
}

func lowerAll(snapshots map[string]logdecoder.Snapshot, pathByKey map[string]string, presentKeys map[string]struct{}) ([]cachestore.Track, []cachestore.CrateMembership) {
	tracks := make([]cachestore.Track, 0, len(snapshots))
	var memberships []cachestore.CrateMembership

	for key, snap := range snapshots {
		track := cachestore.Track{Key: key}
		if path, ok := pathByKey[key]; ok {
			track.File = sql.NullString{String: path, Valid: true}
		}
		_, track.Present = presentKeys[key]

		track.Artist = firstValue(snap, "artist")
		track.Title = firstValue(snap, "title")
		track.Album = firstValue(snap, "album")
		track.Genre = firstValue(snap, "genre")
		track.KeyMusical = firstValue(snap, "key")
		track.Year = firstValue(snap, "year")
		track.TrackNumber = firstValue(snap, "tracknumber")
		track.Comment = firstValue(snap, "comment")
		track.Color = firstValue(snap, "color")
		track.BPM = firstFloat(snap, "bpm")
		track.Rating = firstInt(snap, "rating")

		tracks = append(tracks, track)

		for _, crate := range snap["crate"] {
			memberships = append(memberships, cachestore.CrateMembership{Key: key, Crate: crate})
		}
	}

	return tracks, memberships
}

func firstValue(snap logdecoder.Snapshot, field string) sql.NullString {
	values := snap[field]
	if len(values) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: values[0], Valid: true}
}

func firstFloat(snap logdecoder.Snapshot, field string) sql.NullFloat64 {
	values := snap[field]
	if len(values) == 0 {
		return sql.NullFloat64{}
	}
	f, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func firstInt(snap logdecoder.Snapshot, field string) sql.NullInt64 {
	values := snap[field]
	if len(values) == 0 {
		return sql.NullInt64{}
	}
	n, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}
