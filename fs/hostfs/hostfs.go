// Package hostfs exposes a single emulated-NAND or SD-card directory on
// the host as a resolvable, path-traversal-safe file view: the kernel
// core's one real filesystem collaborator contract (spec §1).
package hostfs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Fs is a rooted view over a host directory, backed by an afero.Fs so
// tests can swap in afero.NewMemMapFs() instead of the real OS
// filesystem (mirrors sysio's ioFileService split between
// domain.IOOsFileService and domain.IOMemFileService).
type Fs struct {
	backing afero.Fs
	root    string
}

// NewOsFs returns a Fs rooted at root on the real host filesystem.
func NewOsFs(root string) *Fs {
	return &Fs{backing: afero.NewOsFs(), root: root}
}

// NewMemFs returns a Fs rooted at root on an in-memory filesystem, for
// tests that don't want to touch disk.
func NewMemFs(root string) *Fs {
	return &Fs{backing: afero.NewMemMapFs(), root: root}
}

// Resolve maps a guest-relative path onto a host path beneath root,
// rejecting any path that would escape it via "..".
func (f *Fs) Resolve(guestPath string) (string, error) {
	clean := filepath.Clean(strings.TrimPrefix(guestPath, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", os.ErrPermission
	}
	return filepath.Join(f.root, clean), nil
}

// Open opens a guest-relative path for reading.
func (f *Fs) Open(guestPath string) (afero.File, error) {
	p, err := f.Resolve(guestPath)
	if err != nil {
		return nil, err
	}
	return f.backing.Open(p)
}

// Stat returns the backing Fs's file info for a guest-relative path
// unchanged; no host stat_t mode bits are merged into it.
func (f *Fs) Stat(guestPath string) (os.FileInfo, error) {
	p, err := f.Resolve(guestPath)
	if err != nil {
		return nil, err
	}
	return f.backing.Stat(p)
}

// Access checks whether the host-level uid/gid owning the calling
// emulator process may access a guest-relative path with the given
// unix.Access mode bits, using the real unix.Access syscall rather than
// re-deriving permission bits by hand.
func (f *Fs) Access(guestPath string, mode uint32) error {
	p, err := f.Resolve(guestPath)
	if err != nil {
		return err
	}
	return unix.Access(p, mode)
}

// MkdirAll creates a guest-relative directory (and its parents) beneath
// root, used when provisioning a fresh emulated NAND/SD layout.
func (f *Fs) MkdirAll(guestPath string, perm os.FileMode) error {
	p, err := f.Resolve(guestPath)
	if err != nil {
		return err
	}
	return f.backing.MkdirAll(p, perm)
}

// ReadDir lists the entries of a guest-relative directory.
func (f *Fs) ReadDir(guestPath string) ([]os.FileInfo, error) {
	p, err := f.Resolve(guestPath)
	if err != nil {
		return nil, err
	}
	return afero.ReadDir(f.backing, p)
}
