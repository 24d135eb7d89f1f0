package cachebuilder

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/poelzi/music-commander/internal/annexrepo"
	"github.com/poelzi/music-commander/internal/cachestore"
)

type fakeRepo struct {
	blobs         map[string][]byte // path -> content, at "current" pointer
	refsByBranch  []annexrepo.LogBlobRef
	pathByKey     map[string]string
	presentKeys   map[string]struct{}
	pointer       string
	havePointer   bool
	historyAtRef  map[string]map[string][]byte // pointer -> path -> content
	diffs         map[[2]string][]string
}

func (f *fakeRepo) ListLogBlobs(ctx context.Context, branch string) ([]annexrepo.LogBlobRef, error) {
	return f.refsByBranch, nil
}

func (f *fakeRepo) ReadBlobs(ctx context.Context, blobIDs []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, id := range blobIDs {
		if c, ok := f.blobs[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeRepo) DiffChangedPaths(ctx context.Context, oldPointer, newPointer string) ([]string, error) {
	return f.diffs[[2]string{oldPointer, newPointer}], nil
}

func (f *fakeRepo) ReadBlobAtRef(ctx context.Context, ref, path string) ([]byte, bool, error) {
	m, ok := f.historyAtRef[ref]
	if !ok {
		return nil, false, nil
	}
	c, ok := m[path]
	return c, ok, nil
}

func (f *fakeRepo) ListAllAnnexedPaths(ctx context.Context) (map[string]string, error) {
	return f.pathByKey, nil
}

func (f *fakeRepo) ListPresentKeys(ctx context.Context) (map[string]struct{}, error) {
	return f.presentKeys, nil
}

func (f *fakeRepo) CurrentBranchPointer(ctx context.Context) (string, bool, error) {
	return f.pointer, f.havePointer, nil
}

func encVal(s string) string {
	return "!" + base64.StdEncoding.EncodeToString([]byte(s))
}

func openStore(t *testing.T) *cachestore.Store {
	t.Helper()
	s, err := cachestore.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuild_fullRebuild(t *testing.T) {
	repo := &fakeRepo{
		refsByBranch: []annexrepo.LogBlobRef{{BlobID: "b1", Path: "x/KEY1.log.met"}},
		blobs: map[string][]byte{
			"b1": []byte("1000s artist +" + encVal("Radiohead") + " title +" + encVal("Airbag") + " crate +" + encVal("Favorites") + " crate +" + encVal("Rock") + " bpm +87.5\n"),
		},
		pathByKey:   map[string]string{"KEY1": "music/radiohead/airbag.flac"},
		presentKeys: map[string]struct{}{"KEY1": {}},
		pointer:     "ptr1",
		havePointer: true,
	}

	store := openStore(t)
	b := New(repo, store)

	n, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n != 1 {
		t.Fatalf("Build returned %d, want 1", n)
	}

	count, err := store.TrackCount()
	if err != nil || count != 1 {
		t.Fatalf("TrackCount = %d, err = %v", count, err)
	}

	crates, err := store.LoadCrates([]string{"KEY1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(crates["KEY1"]) != 2 {
		t.Fatalf("crates[KEY1] = %v, want 2 entries", crates["KEY1"])
	}

	state, err := store.State()
	if err != nil {
		t.Fatal(err)
	}
	if state.BranchPointer.String != "ptr1" {
		t.Fatalf("BranchPointer = %q, want ptr1", state.BranchPointer.String)
	}
}

func TestRefresh_delegatesToFullBuildWhenEmpty(t *testing.T) {
	repo := &fakeRepo{
		refsByBranch: []annexrepo.LogBlobRef{{BlobID: "b1", Path: "KEY1.log.met"}},
		blobs: map[string][]byte{
			"b1": []byte("1000s artist +" + encVal("A") + "\n"),
		},
		pathByKey:   map[string]string{},
		presentKeys: map[string]struct{}{},
		pointer:     "ptr1",
		havePointer: true,
	}
	store := openStore(t)
	b := New(repo, store)

	n, err := b.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 1 {
		t.Fatalf("Refresh (delegated build) = %d, want 1", n)
	}
}

func TestRefresh_noChangeWhenPointerEqual(t *testing.T) {
	repo := &fakeRepo{
		refsByBranch: []annexrepo.LogBlobRef{{BlobID: "b1", Path: "KEY1.log.met"}},
		blobs:        map[string][]byte{"b1": []byte("1000s artist +" + encVal("A") + "\n")},
		pathByKey:    map[string]string{},
		presentKeys:  map[string]struct{}{},
		pointer:      "ptr1",
		havePointer:  true,
	}
	store := openStore(t)
	b := New(repo, store)
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatal(err)
	}

	n, err := b.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 0 {
		t.Fatalf("Refresh with unchanged pointer = %d, want 0", n)
	}
}

func TestRefresh_appliesChangedKeysOnly(t *testing.T) {
	repo := &fakeRepo{
		refsByBranch: []annexrepo.LogBlobRef{{BlobID: "b1", Path: "KEY1.log.met"}},
		blobs:        map[string][]byte{"b1": []byte("1000s artist +" + encVal("Old") + "\n")},
		pathByKey:    map[string]string{"KEY1": "a.flac"},
		presentKeys:  map[string]struct{}{"KEY1": {}},
		pointer:      "ptr1",
		havePointer:  true,
	}
	store := openStore(t)
	b := New(repo, store)
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatal(err)
	}

	repo.pointer = "ptr2"
	repo.diffs = map[[2]string][]string{
		{"ptr1", "ptr2"}: {"KEY1.log.met"},
	}
	repo.historyAtRef = map[string]map[string][]byte{
		"ptr2": {"KEY1.log.met": []byte("2000s artist +" + encVal("New") + "\n")},
	}

	n, err := b.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 1 {
		t.Fatalf("Refresh changed keys = %d, want 1", n)
	}

	var artist string
	if err := store.DB().QueryRow(`SELECT artist FROM tracks WHERE key = 'KEY1'`).Scan(&artist); err != nil {
		t.Fatal(err)
	}
	if artist != "New" {
		t.Fatalf("artist = %q, want New", artist)
	}

	state, err := store.State()
	if err != nil {
		t.Fatal(err)
	}
	if state.BranchPointer.String != "ptr2" {
		t.Fatalf("BranchPointer = %q, want ptr2", state.BranchPointer.String)
	}
}

func TestRefresh_deletedBlobRemovesKey(t *testing.T) {
	repo := &fakeRepo{
		refsByBranch: []annexrepo.LogBlobRef{{BlobID: "b1", Path: "KEY1.log.met"}},
		blobs:        map[string][]byte{"b1": []byte("1000s artist +" + encVal("A") + "\n")},
		pathByKey:    map[string]string{"KEY1": "a.flac"},
		presentKeys:  map[string]struct{}{"KEY1": {}},
		pointer:      "ptr1",
		havePointer:  true,
	}
	store := openStore(t)
	b := New(repo, store)
	if _, err := b.Build(context.Background()); err != nil {
		t.Fatal(err)
	}

	repo.pointer = "ptr2"
	repo.diffs = map[[2]string][]string{{"ptr1", "ptr2"}: {"KEY1.log.met"}}
	repo.historyAtRef = map[string]map[string][]byte{"ptr2": {}}

	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	count, err := store.TrackCount()
	if err != nil || count != 0 {
		t.Fatalf("TrackCount = %d, err = %v, want 0", count, err)
	}
}
