package sefs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serena-os/kernel/internal/kernel/vfs"
)

// TestFormatLaysOutSignatureVersionAndBitmap covers a disk formatted
// with the exact dimensions and label a fresh volume would use: byte
// 0..3 is the signature, 4..7 the version, and LBAs 0, 1, root_lba and
// root_lba+1 are the only bits marked in-use.
func TestFormatLaysOutSignatureVersionAndBitmap(t *testing.T) {
	container := NewMemContainer(4096, 512)
	require.NoError(t, Format(container, "TEST", 0, 0, 0o755))

	sbBuf := make([]byte, 512)
	require.NoError(t, container.ReadBlock(SuperblockLBA, sbBuf))
	require.Equal(t, SignatureSuperblock, DecodeSuperblock(sbBuf).Signature)

	sb := DecodeSuperblock(sbBuf)
	require.Equal(t, VersionCurrent, sb.Version)
	require.Equal(t, "TEST", string(sb.Label[:sb.LabelLen]))

	rootLBA := sb.RootDirLBA
	require.Equal(t, uint32(2), rootLBA) // bitmap is exactly 1 block for a 4096-block volume

	bitmapBuf := make([]byte, 512)
	require.NoError(t, container.ReadBlock(BitmapFirstLBA, bitmapBuf))

	for lba := uint32(0); lba < 4096; lba++ {
		want := lba == 0 || lba == 1 || lba == rootLBA || lba == rootLBA+1
		require.Equal(t, want, bitSet(bitmapBuf, lba), "lba %d", lba)
	}
}

// TestSuperblockRoundTrips covers block count, block size, root-dir LBA
// and label surviving an encode/decode cycle unchanged.
func TestSuperblockRoundTrips(t *testing.T) {
	container := NewMemContainer(256, 512)
	require.NoError(t, Format(container, "VOL", 1, 2, 0o700))

	sb, err := ReadSuperblock(container)
	require.NoError(t, err)
	require.EqualValues(t, 256, sb.BlockCount)
	require.EqualValues(t, 512, sb.BlockSize)
	require.Equal(t, "VOL", string(sb.Label[:sb.LabelLen]))
	require.NotZero(t, sb.RootDirLBA)
}

// TestFreshVolumeRootDirectoryListing covers opening "/" on a freshly
// formatted volume and reading exactly "." and ".." before EOF.
func TestFreshVolumeRootDirectoryListing(t *testing.T) {
	container := NewMemContainer(256, 512)
	require.NoError(t, Format(container, "TEST", 0, 0, 0o755))

	fs, err := Mount(1, container, false)
	require.NoError(t, err)

	root := fs.Root()
	dir, ok := root.(*fsInode)
	require.True(t, ok)

	entries, err := dir.ReadDir()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ".", entries[0].NameString())
	require.Equal(t, "..", entries[1].NameString())
	require.EqualValues(t, rootInodeID, entries[0].InodeID)
	require.EqualValues(t, rootInodeID, entries[1].InodeID)
}

func TestFormatRejectsNonPowerOfTwoBlockSize(t *testing.T) {
	container := NewMemContainer(256, 500)
	err := Format(container, "BAD", 0, 0, 0o755)
	require.Error(t, err)
}

func TestFormatRejectsTooFewBlocks(t *testing.T) {
	container := NewMemContainer(4, 512)
	err := Format(container, "TINY", 0, 0, 0o755)
	require.Error(t, err)
}

func TestMountedRootLooksUpDotAndDotDot(t *testing.T) {
	container := NewMemContainer(256, 512)
	require.NoError(t, Format(container, "TEST", 0, 0, 0o755))
	fs, err := Mount(1, container, false)
	require.NoError(t, err)

	root := fs.Root()
	self, err := root.Lookup(".")
	require.NoError(t, err)
	require.Equal(t, root.Key(), self.Key())

	parent, err := root.Lookup("..")
	require.NoError(t, err)
	require.Equal(t, root.Key(), parent.Key())

	require.Equal(t, vfs.TypeDirectory, root.GetInfo().Type)
}
