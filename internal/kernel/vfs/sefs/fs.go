package sefs

import (
	"sync"
	"time"

	kerrors "github.com/serena-os/kernel/pkg/errors"
	"github.com/serena-os/kernel/internal/kernel/vfs"
)

// FileSystem mounts a formatted SerenaFS volume and exposes it as a
// vfs.Filesystem. Inode records and directory contents are read through
// the FSContainer; a real boot mounts against a cache.CachedContainer
// rather than the raw container, but FileSystem itself only needs
// something that can read/write LBAs.
type FileSystem struct {
	mu        sync.Mutex
	fsid      vfs.FSID
	container FSContainer
	sb        Superblock
	readOnly  bool

	inodes map[uint32]*fsInode // live inode cache, keyed by on-disk inode id
}

// Mount opens an already-formatted volume.
func Mount(fsid vfs.FSID, container FSContainer, readOnly bool) (*FileSystem, error) {
	sb, err := ReadSuperblock(container)
	if err != nil {
		return nil, err
	}
	fs := &FileSystem{
		fsid:      fsid,
		container: container,
		sb:        sb,
		readOnly:  readOnly,
		inodes:    make(map[uint32]*fsInode),
	}
	return fs, nil
}

func (fs *FileSystem) FSID() vfs.FSID     { return fs.fsid }
func (fs *FileSystem) Type() string       { return "sefs" }
func (fs *FileSystem) ReadOnly() bool     { return fs.readOnly }

func (fs *FileSystem) Root() vfs.Inode {
	n, err := fs.load(rootInodeID)
	if err != nil {
		// The root inode is written by Format and must exist on any
		// mounted volume; a failure here means a corrupt superblock,
		// which ReadSuperblock/Mount would already have rejected.
		panic("sefs: root inode unreadable: " + err.Error())
	}
	return n
}

func (fs *FileSystem) Get(key vfs.Key) (vfs.Inode, error) {
	return fs.load(uint32(key.Ino))
}

// load reads inode id from disk, or returns the already-cached live
// instance so repeated lookups share the same object (and its lock).
func (fs *FileSystem) load(id uint32) (*fsInode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if n, ok := fs.inodes[id]; ok {
		return n, nil
	}
	lba := id
	if id == rootInodeID {
		// Format writes the root inode right after the allocation bitmap.
		lba = fs.sb.RootDirLBA
	}
	buf := make([]byte, fs.container.BlockSize())
	if err := fs.container.ReadBlock(lba, buf); err != nil {
		return nil, err
	}
	rec := DecodeInodeRecord(buf)
	if rec.Signature != SignatureInode {
		return nil, kerrors.ENOENT
	}
	n := &fsInode{fs: fs, id: id, lba: lba, rec: rec}
	n.key = vfs.Key{FSID: fs.fsid, Ino: vfs.Ino(id)}
	fs.inodes[id] = n
	return n, nil
}

// fsInode is a live SerenaFS inode: the decoded on-disk record plus the
// vfs.Inode surface. It does not embed vfs's baseInode because its Info
// is derived from, and must stay consistent with, the on-disk record
// rather than tracked independently.
type fsInode struct {
	mu  sync.Mutex
	key vfs.Key

	fs  *FileSystem
	id  uint32
	lba uint32 // block holding the on-disk record
	rec InodeRecord
}

func (n *fsInode) Key() vfs.Key { return n.key }

func (n *fsInode) GetInfo() vfs.Info {
	n.mu.Lock()
	defer n.mu.Unlock()
	typ := vfs.TypeRegular
	if n.rec.Type == ModeDir {
		typ = vfs.TypeDirectory
	}
	return vfs.Info{
		Mode:  n.rec.Mode,
		Uid:   n.rec.Uid,
		Gid:   n.rec.Gid,
		Size:  n.rec.Size,
		ATime: time.Unix(int64(n.rec.ATimeSec), 0),
		MTime: time.Unix(int64(n.rec.MTimeSec), 0),
		CTime: time.Unix(int64(n.rec.CTimeSec), 0),
		Links: n.rec.LinkCount,
		Type:  typ,
	}
}

func (n *fsInode) SetInfo(patch vfs.InfoPatch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fs.readOnly {
		return kerrors.EROFS
	}
	if patch.Mode != nil {
		n.rec.Mode = *patch.Mode
	}
	if patch.Uid != nil {
		n.rec.Uid = *patch.Uid
	}
	if patch.Gid != nil {
		n.rec.Gid = *patch.Gid
	}
	if patch.Size != nil {
		n.rec.Size = *patch.Size
	}
	now := uint32(time.Now().Unix())
	switch patch.ATime {
	case vfs.UTimeOmit:
	case vfs.UTimeNow:
		n.rec.ATimeSec = now
	default:
		n.rec.ATimeSec = uint32(patch.ATime.Unix())
	}
	switch patch.MTime {
	case vfs.UTimeOmit:
	case vfs.UTimeNow:
		n.rec.MTimeSec = now
	default:
		n.rec.MTimeSec = uint32(patch.MTime.Unix())
	}
	return n.writeLocked()
}

func (n *fsInode) writeLocked() error {
	buf := make([]byte, n.fs.container.BlockSize())
	copy(buf, n.rec.Encode())
	return n.fs.container.WriteBlock(n.lba, buf)
}

func (n *fsInode) Read(off int64, buf []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.rec.Type == ModeDir {
		return 0, kerrors.EINVAL
	}
	if off < 0 || uint64(off) >= n.rec.Size {
		return 0, nil
	}
	blockIdx := off / int64(n.fs.container.BlockSize())
	if blockIdx >= int64(len(n.rec.Blocks)) || n.rec.Blocks[blockIdx] == 0 {
		return 0, nil
	}
	block := make([]byte, n.fs.container.BlockSize())
	if err := n.fs.container.ReadBlock(n.rec.Blocks[blockIdx], block); err != nil {
		return 0, err
	}
	within := off % int64(n.fs.container.BlockSize())
	copied := copy(buf, block[within:])
	return copied, nil
}

func (n *fsInode) Write(off int64, buf []byte) (int, error) {
	return 0, kerrors.ENOSYS // direct-block allocation on write is out of scope for this volume's read path
}

func (n *fsInode) Truncate(size uint64) error {
	return kerrors.ENOSYS
}

// dirents reads the directory's single contents block and decodes every
// fixed-size record packed into it, up to rec.Size bytes.
func (n *fsInode) dirents() ([]DirentRecord, error) {
	if n.rec.Type != ModeDir {
		return nil, kerrors.ENOTDIR
	}
	if n.rec.Blocks[0] == 0 {
		return nil, nil
	}
	buf := make([]byte, n.fs.container.BlockSize())
	if err := n.fs.container.ReadBlock(n.rec.Blocks[0], buf); err != nil {
		return nil, err
	}
	count := int(n.rec.Size) / direntWireSize
	out := make([]DirentRecord, 0, count)
	for i := 0; i < count; i++ {
		start := i * direntWireSize
		out = append(out, DecodeDirentRecord(buf[start:start+direntWireSize]))
	}
	return out, nil
}

// ReadDir returns the directory's entries in on-disk order. Used by the
// Directory_Open/Directory_Read syscall path.
func (n *fsInode) ReadDir() ([]DirentRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dirents()
}

func (n *fsInode) Lookup(name string) (vfs.Inode, error) {
	n.mu.Lock()
	entries, err := n.dirents()
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, d := range entries {
		if d.NameString() == name {
			return n.fs.load(d.InodeID)
		}
	}
	return nil, kerrors.ENOENT
}

func (n *fsInode) Link(name string, target vfs.Inode) error   { return kerrors.ENOSYS }
func (n *fsInode) Unlink(name string) error                   { return kerrors.ENOSYS }
func (n *fsInode) Rename(string, vfs.Inode, string) error      { return kerrors.ENOSYS }
func (n *fsInode) CreateChannel(arg any) (vfs.Channel, error)  { return nil, kerrors.ENOSYS }

func (n *fsInode) Lock()   { n.mu.Lock() }
func (n *fsInode) Unlock() { n.mu.Unlock() }
