// Package annexrepo is the collaborator boundary between the cache
// builder and the underlying git/git-annex repository. Repository is
// implemented over os/exec calls to the git and git-annex binaries;
// cachebuilder depends only on the interface so it can be driven
// against a fake in tests.
package annexrepo

import "context"

// LogBlobRef names one ".log.met" blob on the metadata branch.
type LogBlobRef struct {
	BlobID string
	Path   string
}

// Repository is the read-only view of a git-annex repository that the
// cache builder needs.
type Repository interface {
	// ListLogBlobs returns every ".log.met" path on branch with its
	// blob identifier.
	ListLogBlobs(ctx context.Context, branch string) ([]LogBlobRef, error)

	// ReadBlobs bulk-reads the given blob identifiers, returning their
	// raw content keyed by blob id.
	ReadBlobs(ctx context.Context, blobIDs []string) (map[string][]byte, error)

	// DiffChangedPaths returns file paths changed between two commits
	// on the metadata branch.
	DiffChangedPaths(ctx context.Context, oldPointer, newPointer string) ([]string, error)

	// ReadBlobAtRef reads a single path as it exists at ref (e.g.
	// "git-annex:<path>"). It returns ok=false if the path does not
	// exist at ref (e.g. deleted in a newer commit).
	ReadBlobAtRef(ctx context.Context, ref, path string) (content []byte, ok bool, err error)

	// ListAllAnnexedPaths returns the current working-tree key -> path
	// mapping, including keys whose content is not locally present.
	ListAllAnnexedPaths(ctx context.Context) (map[string]string, error)

	// ListPresentKeys returns the set of keys whose blob content is
	// locally materialized.
	ListPresentKeys(ctx context.Context) (map[string]struct{}, error)

	// CurrentBranchPointer returns the current commit of the metadata
	// branch, or ok=false if the branch does not exist.
	CurrentBranchPointer(ctx context.Context) (pointer string, ok bool, err error)
}
