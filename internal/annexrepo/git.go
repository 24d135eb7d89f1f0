package annexrepo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const metadataBranch = "git-annex"

// GitRepository implements Repository over the git and git-annex CLI
// binaries, scoped to repoRoot.
type GitRepository struct {
	RepoRoot string
}

// NewGitRepository returns a GitRepository rooted at repoRoot.
func NewGitRepository(repoRoot string) *GitRepository {
	return &GitRepository{RepoRoot: repoRoot}
}

func (g *GitRepository) run(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = g.RepoRoot
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("annexrepo: %s %s: %w: %s", name, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// ListLogBlobs lists every ".log.met" path on branch via
// "git ls-tree -r <branch>" and extracts its blob hash.
func (g *GitRepository) ListLogBlobs(ctx context.Context, branch string) ([]LogBlobRef, error) {
	out, err := g.run(ctx, "", "git", "ls-tree", "-r", branch)
	if err != nil {
		return nil, err
	}

	var refs []LogBlobRef
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasSuffix(line, ".log.met") {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		meta := strings.Fields(parts[0])
		if len(meta) < 3 {
			continue
		}
		refs = append(refs, LogBlobRef{BlobID: meta[2], Path: parts[1]})
	}
	return refs, nil
}

// ReadBlobs bulk-reads blobIDs via "git cat-file --batch".
func (g *GitRepository) ReadBlobs(ctx context.Context, blobIDs []string) (map[string][]byte, error) {
	if len(blobIDs) == 0 {
		return map[string][]byte{}, nil
	}
	input := strings.Join(blobIDs, "\n") + "\n"
	out, err := g.run(ctx, input, "git", "cat-file", "--batch")
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(blobIDs))
	r := bufio.NewReader(strings.NewReader(out))
	for _, id := range blobIDs {
		header, err := r.ReadString('\n')
		if err != nil {
			break
		}
		header = strings.TrimRight(header, "\n")
		fields := strings.Fields(header)
		if len(fields) < 3 || fields[1] != "blob" {
			continue
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		content := make([]byte, size)
		if _, err := readFull(r, content); err != nil {
			break
		}
		// Consume the trailing newline after blob content.
		r.ReadByte()
		result[id] = content
	}
	return result, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// DiffChangedPaths lists ".log.met" paths changed between oldPointer
// and newPointer via "git diff-tree -r --name-only".
func (g *GitRepository) DiffChangedPaths(ctx context.Context, oldPointer, newPointer string) ([]string, error) {
	out, err := g.run(ctx, "", "git", "diff-tree", "-r", "--name-only", oldPointer, newPointer)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasSuffix(line, ".log.met") {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// ReadBlobAtRef reads a path as it exists at ref via "git cat-file -p".
func (g *GitRepository) ReadBlobAtRef(ctx context.Context, ref, path string) ([]byte, bool, error) {
	out, err := g.run(ctx, "", "git", "cat-file", "-p", ref+":"+path)
	if err != nil {
		return nil, false, nil
	}
	return []byte(out), true, nil
}

// ListAllAnnexedPaths maps every annexed key to its current
// repository-relative path via "git annex find --include=*".
func (g *GitRepository) ListAllAnnexedPaths(ctx context.Context) (map[string]string, error) {
	out, err := g.run(ctx, "", "git", "annex", "find", "--include=*", "--format=${key}\t${file}\n")
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, "\t")
		if idx < 0 {
			continue
		}
		m[line[:idx]] = line[idx+1:]
	}
	return m, nil
}

// ListPresentKeys returns the set of locally-present annex keys via
// "git annex find" (no --include, only present content is listed).
func (g *GitRepository) ListPresentKeys(ctx context.Context) (map[string]struct{}, error) {
	out, err := g.run(ctx, "", "git", "annex", "find", "--format=${key}\n")
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			keys[line] = struct{}{}
		}
	}
	return keys, nil
}

// CurrentBranchPointer resolves the metadata branch tip via
// "git rev-parse git-annex".
func (g *GitRepository) CurrentBranchPointer(ctx context.Context) (string, bool, error) {
	out, err := g.run(ctx, "", "git", "rev-parse", metadataBranch)
	if err != nil {
		return "", false, nil
	}
	return strings.TrimSpace(out), true, nil
}
