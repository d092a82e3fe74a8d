package ioc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serena-os/kernel/internal/kernel/vfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

func mountedSefs(t *testing.T) vfs.Filesystem {
	t.Helper()
	container := sefs.NewMemContainer(64, 512)
	require.NoError(t, sefs.Format(container, "vol", 0, 0, 0o755))
	fs, err := sefs.Mount(1, container, false)
	require.NoError(t, err)
	return fs
}

func TestReadRespectsOpenMode(t *testing.T) {
	fs := mountedSefs(t)
	root := fs.Root()

	ch := OpenInode(root, OWrite)
	_, err := ch.Read(make([]byte, 16))
	require.ErrorIs(t, err, kerrors.EACCESS)
}

func TestSeekTracksPositionAcrossWhence(t *testing.T) {
	fs := mountedSefs(t)
	root := fs.Root()
	ch := OpenInode(root, ORead)

	pos, err := ch.Seek(5, SeekSet)
	require.NoError(t, err)
	require.Equal(t, int64(5), pos)

	pos, err = ch.Seek(3, SeekCur)
	require.NoError(t, err)
	require.Equal(t, int64(8), pos)

	_, err = ch.Seek(-100, SeekSet)
	require.ErrorIs(t, err, kerrors.EINVAL)
}

func TestIoctlGetIdAndCategories(t *testing.T) {
	fs := mountedSefs(t)
	root := fs.Root()
	ch := OpenInode(root, ORead)
	ch.id = "root"
	ch.categories = []string{"fs"}

	id, err := ch.Ioctl(IoctlGetId, nil)
	require.NoError(t, err)
	require.Equal(t, "root", id)

	cats, err := ch.Ioctl(IoctlGetCategories, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"fs"}, cats)
}

func TestDupSharesPositionAndRefcountsClose(t *testing.T) {
	fs := mountedSefs(t)
	root := fs.Root()
	ch := OpenInode(root, ORead)
	_, err := ch.Seek(4, SeekSet)
	require.NoError(t, err)

	dup := ch.Dup()
	require.Same(t, ch, dup)

	pos, err := dup.Seek(0, SeekCur)
	require.NoError(t, err)
	require.Equal(t, int64(4), pos)

	require.NoError(t, ch.Close())
	// Still open: dup holds the second reference.
	_, err = dup.Seek(0, SeekCur)
	require.NoError(t, err)

	require.NoError(t, dup.Close())
	_, err = dup.Seek(0, SeekCur)
	require.ErrorIs(t, err, kerrors.EBADF)
}

func TestErrnoOfMapsSentinelsAndUnknownErrors(t *testing.T) {
	require.Equal(t, int64(0), errnoOf(nil))
	require.Equal(t, int64(-2), errnoOf(kerrors.ENOENT))
	require.Equal(t, int64(-1), errnoOf(someOtherError{}))
}

type someOtherError struct{}

func (someOtherError) Error() string { return "unmapped" }
