package vfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// memInode is a minimal in-memory Inode used only to test FileHierarchy
// resolution independent of any concrete filesystem.
type memInode struct {
	baseInode
	children map[string]*memInode
}

func newMemInode(key Key, typ Type) *memInode {
	n := &memInode{children: make(map[string]*memInode)}
	n.key = key
	n.info = Info{Type: typ}
	return n
}

func (n *memInode) SetInfo(p InfoPatch) error { n.applyPatch(p); return nil }
func (n *memInode) Read(int64, []byte) (int, error)  { return 0, kerrors.ENOSYS }
func (n *memInode) Write(int64, []byte) (int, error) { return 0, kerrors.ENOSYS }
func (n *memInode) Truncate(uint64) error            { return kerrors.ENOSYS }
func (n *memInode) Lookup(name string) (Inode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.children[name]
	if !ok {
		return nil, kerrors.ENOENT
	}
	return c, nil
}
func (n *memInode) Link(name string, target Inode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children[name] = target.(*memInode)
	return nil
}
func (n *memInode) Unlink(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, name)
	return nil
}
func (n *memInode) Rename(oldName string, newParent Inode, newName string) error {
	return kerrors.ENOSYS
}
func (n *memInode) CreateChannel(arg any) (Channel, error) { return nil, kerrors.ENOSYS }

type memFS struct {
	fsid FSID
	root *memInode
}

func (f *memFS) FSID() FSID       { return f.fsid }
func (f *memFS) Type() string     { return "memfs" }
func (f *memFS) ReadOnly() bool   { return false }
func (f *memFS) Root() Inode      { return f.root }
func (f *memFS) Get(k Key) (Inode, error) {
	return nil, kerrors.ENOSYS
}

func newTestHierarchy(t *testing.T) (*FileHierarchy, *memFS) {
	root := newMemInode(Key{FSID: 1, Ino: 1}, TypeDirectory)
	fs := &memFS{fsid: 1, root: root}
	h := NewFileHierarchy()
	require.NoError(t, h.Mount("/", fs))
	return h, fs
}

func TestResolveRoot(t *testing.T) {
	h, fs := newTestHierarchy(t)
	target, _, err := h.Resolve("/", "/")
	require.NoError(t, err)
	require.Equal(t, fs.root.Key(), target.Key())
}

func TestResolveNestedPath(t *testing.T) {
	h, fs := newTestHierarchy(t)
	child := newMemInode(Key{FSID: 1, Ino: 2}, TypeDirectory)
	require.NoError(t, fs.root.Link("etc", child))
	leaf := newMemInode(Key{FSID: 1, Ino: 3}, TypeRegular)
	require.NoError(t, child.Link("hosts", leaf))

	target, parent, err := h.Resolve("/", "/etc/hosts")
	require.NoError(t, err)
	require.Equal(t, leaf.Key(), target.Key())
	require.Equal(t, child.Key(), parent.Key())
}

func TestResolveMissingReturnsENOENT(t *testing.T) {
	h, _ := newTestHierarchy(t)
	_, _, err := h.Resolve("/", "/nope")
	require.ErrorIs(t, err, kerrors.ENOENT)
}

func TestResolveThroughFileIsENOTDIR(t *testing.T) {
	h, fs := newTestHierarchy(t)
	leaf := newMemInode(Key{FSID: 1, Ino: 2}, TypeRegular)
	require.NoError(t, fs.root.Link("file", leaf))

	_, _, err := h.Resolve("/", "/file/sub")
	require.ErrorIs(t, err, kerrors.ENOTDIR)
}

func TestMountDuplicatePathRejected(t *testing.T) {
	h, fs := newTestHierarchy(t)
	require.ErrorIs(t, h.Mount("/", fs), kerrors.EEXIST)
}

func TestMountsReportsCurrentTable(t *testing.T) {
	h, fs := newTestHierarchy(t)
	require.Len(t, h.Mounts(), 1)
	require.Equal(t, "/", h.Mounts()[0].Path)
	require.Equal(t, fs, h.Mounts()[0].FS)
}

func TestSetInfoUTimeSentinels(t *testing.T) {
	n := newMemInode(Key{FSID: 1, Ino: 1}, TypeRegular)
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, n.SetInfo(InfoPatch{MTime: fixed, ATime: UTimeOmit}))
	require.True(t, n.GetInfo().MTime.Equal(fixed))
	require.True(t, n.GetInfo().ATime.IsZero())

	require.NoError(t, n.SetInfo(InfoPatch{ATime: UTimeNow}))
	require.False(t, n.GetInfo().ATime.IsZero())
}
