//go:build linux
// +build linux

package view

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const entryTimeout = 1 * time.Second

// treeNode is one directory in the in-memory rendered tree; leaf
// entries are stored directly as children with a non-empty target.
type treeNode struct {
	children map[string]*treeNode
	target   string // non-empty for a leaf (symlink) node
}

func newTreeNode() *treeNode {
	return &treeNode{children: make(map[string]*treeNode)}
}

// buildTree turns a flat entry list into a nested directory structure
// keyed by path segment, mirroring the rendered/deduplicated paths
// BuildEntries produced.
func buildTree(entries []Entry) *treeNode {
	root := newTreeNode()
	for _, e := range entries {
		segments := strings.Split(filepath.ToSlash(e.RelPath), "/")
		cur := root
		for i, seg := range segments {
			if seg == "" {
				continue
			}
			if i == len(segments)-1 {
				cur.children[seg] = &treeNode{target: e.Target}
				continue
			}
			child, ok := cur.children[seg]
			if !ok {
				child = newTreeNode()
				cur.children[seg] = child
			}
			cur = child
		}
	}
	return root
}

// DirNode is a FUSE directory node backed by a treeNode.
type DirNode struct {
	fs.Inode
	node *treeNode
	key  string
}

var _ fs.NodeLookuper = (*DirNode)(nil)
var _ fs.NodeReaddirer = (*DirNode)(nil)

func (d *DirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, ok := d.node.children[name]
	if !ok {
		return nil, syscall.ENOENT
	}
	key := d.key + "/" + name
	if child.target != "" {
		leaf := &LinkNode{target: child.target}
		ch := d.NewInode(ctx, leaf, fs.StableAttr{Mode: fuse.S_IFLNK, Ino: inoFromString(key)})
		out.Mode = fuse.S_IFLNK | 0777
		out.SetEntryTimeout(entryTimeout)
		return ch, 0
	}
	ch := d.NewInode(ctx, &DirNode{node: child, key: key}, fs.StableAttr{Mode: fuse.S_IFDIR, Ino: inoFromString(key)})
	out.Mode = fuse.S_IFDIR | 0755
	out.SetEntryTimeout(entryTimeout)
	return ch, 0
}

func (d *DirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(d.node.children))
	for name, child := range d.node.children {
		mode := uint32(fuse.S_IFDIR)
		if child.target != "" {
			mode = fuse.S_IFLNK
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode, Ino: inoFromString(d.key + "/" + name)})
	}
	return fs.NewListDirStream(entries), 0
}

// LinkNode is a FUSE symlink node resolving to a real annexed file.
type LinkNode struct {
	fs.Inode
	target string
}

var _ fs.NodeReadlinker = (*LinkNode)(nil)
var _ fs.NodeGetattrer = (*LinkNode)(nil)

func (l *LinkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	return []byte(l.target), 0
}

func (l *LinkNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = fuse.S_IFLNK | 0777
	if fi, err := os.Lstat(l.target); err == nil {
		out.Size = uint64(len(l.target))
		mtime := fi.ModTime()
		out.SetTimes(nil, &mtime, nil)
	}
	return 0
}

// Root is the top-level node handed to fs.Mount.
type Root struct {
	DirNode
}

// NewRoot builds the FUSE root node from entries.
func NewRoot(entries []Entry) *Root {
	return &Root{DirNode{node: buildTree(entries), key: "view"}}
}
