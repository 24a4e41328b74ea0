package fsview

import (
	"context"
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

var (
	_ fs.Node               = (*node)(nil)
	_ fs.HandleReadDirAller = (*node)(nil)
	_ fs.NodeStringLookuper = (*node)(nil)
	_ fs.HandleReader       = (*node)(nil)
)

// attribCacheTimeout mirrors fuse/dir.go's DentryCacheTimeout intent: a
// resolved RomFS/PFS0 tree never mutates under the mount, so attributes
// and lookups can be cached for as long as the kernel wants to hold them.
const attribCacheTimeout = time.Hour

// node is fsview's single fs.Node implementation, wrapping one treeNode.
// Every attribute is read-only (0444 for files, 0555 for directories),
// matching the layered filesystem stack's read-only, no-write-path
// scoping.
type node struct {
	tree *treeNode
}

func (n *node) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Valid = attribCacheTimeout
	if n.tree.dir {
		a.Mode = os.ModeDir | 0555
		return nil
	}
	a.Mode = 0444
	a.Size = uint64(len(n.tree.data))
	return nil
}

func (n *node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var out []fuse.Dirent
	for _, name := range n.tree.sortedNames() {
		child := n.tree.children[name]
		typ := fuse.DT_File
		if child.dir {
			typ = fuse.DT_Dir
		}
		out = append(out, fuse.Dirent{Name: name, Type: typ})
	}
	return out, nil
}

func (n *node) Lookup(ctx context.Context, name string) (fs.Node, error) {
	child, ok := n.tree.children[name]
	if !ok {
		return nil, fuse.ENOENT
	}
	return &node{tree: child}, nil
}

func (n *node) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if n.tree.dir {
		return fuse.Errno(syscall.EISDIR)
	}
	off := int(req.Offset)
	if off >= len(n.tree.data) {
		resp.Data = nil
		return nil
	}
	end := off + req.Size
	if end > len(n.tree.data) {
		end = len(n.tree.data)
	}
	resp.Data = n.tree.data[off:end]
	return nil
}
