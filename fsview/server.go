package fsview

import (
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"
)

// Mount serves src read-only at mountPoint using the host FUSE driver,
// grounded on fuse/server.go's fuseServer shape (Create/Run/Destroy split,
// initDone handshake) but with exactly one backing Source per mount
// instead of fuse/server.go's live procfs/sysfs handler dispatch.
type Mount struct {
	mountPoint string
	src        Source

	mu       sync.Mutex
	conn     *fuse.Conn
	server   *fs.Server
	root     *node
	initDone chan struct{}
}

// New resolves src into an in-memory tree and returns a Mount ready to
// Run against mountPoint.
func New(mountPoint string, src Source) (*Mount, error) {
	tree, err := buildTree(src)
	if err != nil {
		return nil, err
	}
	return &Mount{
		mountPoint: mountPoint,
		src:        src,
		root:       &node{tree: tree},
		initDone:   make(chan struct{}),
	}, nil
}

// Root satisfies bazil.org/fuse/fs.FS.
func (m *Mount) Root() (fs.Node, error) {
	return m.root, nil
}

// Run mounts mountPoint and serves requests until the connection closes,
// following fuse/server.go's Run(): mount, build the fs.Server, signal
// InitWait, then block in Serve.
func (m *Mount) Run() error {
	c, err := fuse.Mount(
		m.mountPoint,
		fuse.FSName("pegasusfs"),
		fuse.Subtype("pegasus"),
		fuse.ReadOnly(),
	)
	if err != nil {
		logrus.Errorf("fsview: mount %s failed: %v", m.mountPoint, err)
		return err
	}
	defer c.Close()

	m.mu.Lock()
	m.conn = c
	m.server = fs.New(c, nil)
	m.mu.Unlock()

	close(m.initDone)

	if err := m.server.Serve(m); err != nil {
		logrus.Errorf("fsview: serve %s failed: %v", m.mountPoint, err)
		return err
	}

	<-c.Ready
	if err := c.MountError; err != nil {
		return err
	}
	return nil
}

// InitWait blocks until Run has mounted and started its fs.Server, the
// same handshake fuse/server.go's InitWait provides.
func (m *Mount) InitWait() {
	<-m.initDone
}

// Close unmounts the filesystem.
func (m *Mount) Close() error {
	return fuse.Unmount(m.mountPoint)
}
