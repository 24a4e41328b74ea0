// Package fsview exposes a resolved guest filesystem tree (a RomFS
// section or a PFS0 partition) as a read-only FUSE mount, adapted from
// the teacher's procfs/sysfs FUSE server (package fuse) onto a much
// simpler backing store: a fully-resolved, in-memory file tree instead
// of live handler dispatch.
package fsview

import (
	"path"
	"sort"
	"strings"
)

// Source is a read-only flat file collection. fs/romfs.RomFS and
// fs/pfs0.PFS0 both satisfy it, so either can back an fsview.Mount.
type Source interface {
	Paths() []string
	Open(name string) ([]byte, error)
}

type treeNode struct {
	name     string
	dir      bool
	data     []byte
	children map[string]*treeNode
}

func newDirNode(name string) *treeNode {
	return &treeNode{name: name, dir: true, children: make(map[string]*treeNode)}
}

// buildTree reads every path out of src and arranges it into an in-memory
// directory tree. fsview mounts back a single title's NSO/NPDM partition
// or RomFS section, small enough to hold entirely in memory for the
// mount's lifetime rather than resolving file bytes lazily per lookup.
func buildTree(src Source) (*treeNode, error) {
	root := newDirNode("")
	for _, p := range src.Paths() {
		data, err := src.Open(p)
		if err != nil {
			return nil, err
		}
		insert(root, strings.Split(path.Clean(p), "/"), data)
	}
	return root, nil
}

func insert(root *treeNode, parts []string, data []byte) {
	cur := root
	for i, part := range parts {
		if part == "" || part == "." {
			continue
		}
		last := i == len(parts)-1
		child, ok := cur.children[part]
		if !ok {
			if last {
				child = &treeNode{name: part, data: data}
			} else {
				child = newDirNode(part)
			}
			cur.children[part] = child
		}
		cur = child
	}
}

func (n *treeNode) sortedNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
