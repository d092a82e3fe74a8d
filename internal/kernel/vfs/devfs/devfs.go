// Package devfs publishes the driver catalog as a flat directory of
// device inodes: every registered driver.Driver shows up as one entry
// under the mount's root, and opening that entry's channel delegates
// straight to the driver's own CreateChannel.
package devfs

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/serena-os/kernel/internal/kernel/driver"
	"github.com/serena-os/kernel/internal/kernel/vfs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

const rootIno vfs.Ino = 1

// FileSystem mounts a driver.Catalog as a vfs.Filesystem. Directory
// listing always reflects the catalog's current contents; inode
// metadata (mode/uid/gid/timestamps) is the part that actually needs
// to persist and survive repeated Lookups, so that lives in a
// badger-backed vfs.Store the same way sefs.FSContainer's format lives
// on disk, generalized here to an in-memory-only store since /dev
// doesn't outlive a boot.
type FileSystem struct {
	mu      sync.Mutex
	fsid    vfs.FSID
	catalog *driver.Catalog
	store   *vfs.Store
}

// Mount creates a devfs instance backed by catalog. Entries for every
// driver already registered in catalog are recorded immediately; call
// Sync after later Register calls to pick up new devices.
func Mount(fsid vfs.FSID, catalog *driver.Catalog) (*FileSystem, error) {
	store, err := vfs.OpenInMemory()
	if err != nil {
		return nil, err
	}
	fs := &FileSystem{fsid: fsid, catalog: catalog, store: store}

	now := time.Now()
	if err := store.PutInfo(fs.rootKey(), vfs.Info{
		Mode: 0o755, Type: vfs.TypeDirectory, Links: 2,
		ATime: now, MTime: now, CTime: now,
	}); err != nil {
		store.Close()
		return nil, err
	}
	if err := fs.Sync(); err != nil {
		store.Close()
		return nil, err
	}
	return fs, nil
}

// Sync re-records Info for every driver currently in the catalog that
// devfs hasn't seen yet, picking up devices registered after Mount.
func (fs *FileSystem) Sync() error {
	now := time.Now()
	for _, d := range fs.catalog.All() {
		key := fs.deviceKey(d.Name())
		if _, err := fs.store.GetInfo(key); err == nil {
			continue // already recorded
		}
		if err := fs.store.PutInfo(key, vfs.Info{
			Mode: 0o666, Type: vfs.TypeDevice, Links: 1,
			ATime: now, MTime: now, CTime: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSystem) rootKey() vfs.Key { return vfs.Key{FSID: fs.fsid, Ino: rootIno} }

// deviceKey derives a stable inode number from a driver's name via
// FNV-1a, avoiding a second persisted name->ino table.
func (fs *FileSystem) deviceKey(name string) vfs.Key {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	ino := h.Sum64()
	if vfs.Ino(ino) == rootIno {
		ino++
	}
	return vfs.Key{FSID: fs.fsid, Ino: vfs.Ino(ino)}
}

func (fs *FileSystem) FSID() vfs.FSID { return fs.fsid }
func (fs *FileSystem) Type() string   { return "devfs" }
func (fs *FileSystem) ReadOnly() bool { return false }

func (fs *FileSystem) Root() vfs.Inode {
	return &inode{fs: fs, key: fs.rootKey()}
}

func (fs *FileSystem) Get(key vfs.Key) (vfs.Inode, error) {
	if key == fs.rootKey() {
		return fs.Root(), nil
	}
	for _, d := range fs.catalog.All() {
		if fs.deviceKey(d.Name()) == key {
			return &inode{fs: fs, key: key, drv: d}, nil
		}
	}
	return nil, kerrors.ENOENT
}

// DirEntry is one entry in a devfs directory listing.
type DirEntry struct {
	Name string
	Key  vfs.Key
}

// inode is both the single root directory and every device node: drv
// is nil for the directory, set for a device.
type inode struct {
	fs  *FileSystem
	key vfs.Key
	drv driver.Driver
}

func (n *inode) Key() vfs.Key { return n.key }

func (n *inode) GetInfo() vfs.Info {
	info, _ := n.fs.store.GetInfo(n.key)
	return info
}

func (n *inode) SetInfo(patch vfs.InfoPatch) error {
	info, err := n.fs.store.GetInfo(n.key)
	if err != nil {
		return err
	}
	if patch.Mode != nil {
		info.Mode = *patch.Mode
	}
	if patch.Uid != nil {
		info.Uid = *patch.Uid
	}
	if patch.Gid != nil {
		info.Gid = *patch.Gid
	}
	now := time.Now()
	switch patch.ATime {
	case vfs.UTimeOmit:
	case vfs.UTimeNow:
		info.ATime = now
	default:
		info.ATime = patch.ATime
	}
	switch patch.MTime {
	case vfs.UTimeOmit:
	case vfs.UTimeNow:
		info.MTime = now
	default:
		info.MTime = patch.MTime
	}
	return n.fs.store.PutInfo(n.key, info)
}

// Read/Write/Truncate are not supported directly on a device node; IO
// goes through the channel CreateChannel returns instead.
func (n *inode) Read(off int64, buf []byte) (int, error)  { return 0, kerrors.ENOSYS }
func (n *inode) Write(off int64, buf []byte) (int, error) { return 0, kerrors.ENOSYS }
func (n *inode) Truncate(size uint64) error                { return kerrors.ENOSYS }

// ReadDir lists every registered driver plus "." and "..", both
// resolving to the root itself since devfs is a single flat directory.
func (n *inode) ReadDir() ([]DirEntry, error) {
	if n.drv != nil {
		return nil, kerrors.ENOTDIR
	}
	drivers := n.fs.catalog.All()
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].Name() < drivers[j].Name() })

	out := make([]DirEntry, 0, len(drivers)+2)
	out = append(out, DirEntry{Name: ".", Key: n.key}, DirEntry{Name: "..", Key: n.key})
	for _, d := range drivers {
		out = append(out, DirEntry{Name: d.Name(), Key: n.fs.deviceKey(d.Name())})
	}
	return out, nil
}

func (n *inode) Lookup(name string) (vfs.Inode, error) {
	if n.drv != nil {
		return nil, kerrors.ENOTDIR
	}
	if name == "." || name == ".." {
		return n, nil
	}
	d, ok := n.fs.catalog.Get(name)
	if !ok {
		return nil, kerrors.ENOENT
	}
	return &inode{fs: n.fs, key: n.fs.deviceKey(name), drv: d}, nil
}

func (n *inode) Link(name string, target vfs.Inode) error  { return kerrors.EROFS }
func (n *inode) Unlink(name string) error                  { return kerrors.EROFS }
func (n *inode) Rename(string, vfs.Inode, string) error     { return kerrors.EROFS }

func (n *inode) CreateChannel(arg any) (vfs.Channel, error) {
	if n.drv == nil {
		return nil, kerrors.EINVAL
	}
	ch, err := n.drv.CreateChannel(arg)
	if err != nil {
		return nil, err
	}
	vc, ok := ch.(vfs.Channel)
	if !ok {
		return nil, kerrors.EINVAL
	}
	return vc, nil
}

// devfs holds no real per-inode critical section worth a finer lock
// than one per filesystem: device count is small and writes to a
// given device's Info are rare (a chmod, essentially never a hot
// path), so every inode shares the filesystem's own mutex.
func (n *inode) Lock()   { n.fs.mu.Lock() }
func (n *inode) Unlock() { n.fs.mu.Unlock() }
