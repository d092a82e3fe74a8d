// Package kernfs publishes the mount table as a directory of one entry
// per mounted filesystem under /fs, the same "project live kernel
// state into a vfs-shaped namespace" idea devfs applies to the driver
// catalog, here applied to vfs.FileHierarchy's mount table.
package kernfs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/serena-os/kernel/internal/kernel/vfs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

const rootIno vfs.Ino = 1

// FileSystem mounts h's mount table as a vfs.Filesystem. Like devfs, a
// badger-backed in-memory vfs.Store holds each entry's own Info; the
// directory listing itself always reflects h.Mounts() live.
type FileSystem struct {
	mu    sync.Mutex
	fsid  vfs.FSID
	h     *vfs.FileHierarchy
	store *vfs.Store
}

// Mount creates a kernfs instance reflecting h's mount table.
func Mount(fsid vfs.FSID, h *vfs.FileHierarchy) (*FileSystem, error) {
	store, err := vfs.OpenInMemory()
	if err != nil {
		return nil, err
	}
	fs := &FileSystem{fsid: fsid, h: h, store: store}

	now := time.Now()
	if err := store.PutInfo(fs.rootKey(), vfs.Info{
		Mode: 0o555, Type: vfs.TypeDirectory, Links: 2,
		ATime: now, MTime: now, CTime: now,
	}); err != nil {
		store.Close()
		return nil, err
	}
	return fs, nil
}

func (fs *FileSystem) rootKey() vfs.Key { return vfs.Key{FSID: fs.fsid, Ino: rootIno} }

// entryName is the directory name a mount gets: its mount path with
// slashes collapsed to underscores and the leading slash stripped, so
// "/" becomes "root" and "/mnt/usb0" becomes "mnt_usb0".
func entryName(path string) string {
	if path == "/" {
		return "root"
	}
	return strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", "_")
}

func (fs *FileSystem) entryKey(path string) vfs.Key {
	h := uint64(2166136261)
	for _, b := range []byte(path) {
		h ^= uint64(b)
		h *= 16777619
	}
	if vfs.Ino(h) == rootIno {
		h++
	}
	return vfs.Key{FSID: fs.fsid, Ino: vfs.Ino(h)}
}

func (fs *FileSystem) FSID() vfs.FSID { return fs.fsid }
func (fs *FileSystem) Type() string   { return "kernfs" }
func (fs *FileSystem) ReadOnly() bool { return true }

func (fs *FileSystem) Root() vfs.Inode {
	return &inode{fs: fs, key: fs.rootKey()}
}

func (fs *FileSystem) Get(key vfs.Key) (vfs.Inode, error) {
	if key == fs.rootKey() {
		return fs.Root(), nil
	}
	for _, m := range fs.h.Mounts() {
		if fs.entryKey(m.Path) == key {
			return fs.entryFor(m)
		}
	}
	return nil, kerrors.ENOENT
}

func (fs *FileSystem) entryFor(m vfs.Mount) (*inode, error) {
	key := fs.entryKey(m.Path)
	if _, err := fs.store.GetInfo(key); err != nil {
		now := time.Now()
		if err := fs.store.PutInfo(key, vfs.Info{
			Mode: 0o444, Type: vfs.TypeRegular, Links: 1,
			ATime: now, MTime: now, CTime: now,
		}); err != nil {
			return nil, err
		}
	}
	return &inode{fs: fs, key: key, mount: &m}, nil
}

// DirEntry is one entry in a kernfs directory listing.
type DirEntry struct {
	Name string
	Key  vfs.Key
}

type inode struct {
	fs    *FileSystem
	key   vfs.Key
	mount *vfs.Mount // nil for the root directory itself
}

func (n *inode) Key() vfs.Key { return n.key }

func (n *inode) GetInfo() vfs.Info {
	info, _ := n.fs.store.GetInfo(n.key)
	return info
}

// SetInfo always fails: kernfs is a read-only projection of live
// kernel state, there is nothing underneath an entry to persist a
// mode/owner change to.
func (n *inode) SetInfo(vfs.InfoPatch) error { return kerrors.EROFS }

// Read renders a mount entry's description (fsid/type/read-only) as
// text; out-of-range offsets read as empty, and reading the root
// directory fails with EINVAL.
func (n *inode) Read(off int64, buf []byte) (int, error) {
	if n.mount == nil {
		return 0, kerrors.EINVAL
	}
	body := describeMount(*n.mount)
	if off < 0 || int(off) >= len(body) {
		return 0, nil
	}
	return copy(buf, body[off:]), nil
}

func describeMount(m vfs.Mount) string {
	ro := "rw"
	if m.FS.ReadOnly() {
		ro = "ro"
	}
	return "path=" + m.Path + " fsid=" + itoa(int64(m.FS.FSID())) + " type=" + m.FS.Type() + " " + ro + "\n"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func (n *inode) Write(int64, []byte) (int, error) { return 0, kerrors.EROFS }
func (n *inode) Truncate(uint64) error             { return kerrors.EROFS }

func (n *inode) ReadDir() ([]DirEntry, error) {
	if n.mount != nil {
		return nil, kerrors.ENOTDIR
	}
	mounts := n.fs.h.Mounts()
	sort.Slice(mounts, func(i, j int) bool { return mounts[i].Path < mounts[j].Path })

	out := make([]DirEntry, 0, len(mounts)+2)
	out = append(out, DirEntry{Name: ".", Key: n.key}, DirEntry{Name: "..", Key: n.key})
	for _, m := range mounts {
		out = append(out, DirEntry{Name: entryName(m.Path), Key: n.fs.entryKey(m.Path)})
	}
	return out, nil
}

func (n *inode) Lookup(name string) (vfs.Inode, error) {
	if n.mount != nil {
		return nil, kerrors.ENOTDIR
	}
	if name == "." || name == ".." {
		return n, nil
	}
	for _, m := range n.fs.h.Mounts() {
		if entryName(m.Path) == name {
			return n.fs.entryFor(m)
		}
	}
	return nil, kerrors.ENOENT
}

func (n *inode) Link(string, vfs.Inode) error          { return kerrors.EROFS }
func (n *inode) Unlink(string) error                   { return kerrors.EROFS }
func (n *inode) Rename(string, vfs.Inode, string) error { return kerrors.EROFS }
func (n *inode) CreateChannel(any) (vfs.Channel, error) { return nil, kerrors.ENOSYS }

func (n *inode) Lock()   { n.fs.mu.Lock() }
func (n *inode) Unlock() { n.fs.mu.Unlock() }
