package sefs

import (
	"time"

	kerrors "github.com/serena-os/kernel/pkg/errors"
	"github.com/serena-os/kernel/pkg/kid"
)

const rootInodeID uint32 = 1

// setBit marks lba in-use in bitmap, with bit 7 (the MSB) of byte 0
// representing LBA 0, descending from there.
func setBit(bitmap []byte, lba uint32) {
	byteIdx := lba / 8
	bitIdx := 7 - (lba % 8)
	bitmap[byteIdx] |= 1 << bitIdx
}

func bitSet(bitmap []byte, lba uint32) bool {
	byteIdx := lba / 8
	bitIdx := 7 - (lba % 8)
	return bitmap[byteIdx]&(1<<bitIdx) != 0
}

// ceilDiv returns ceil(a/b) for positive b.
func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// Format lays a fresh SerenaFS volume onto container: superblock at LBA
// 0, an allocation bitmap starting at BitmapFirstLBA, and a root
// directory inode + contents block immediately following the bitmap.
// label, uid, gid and perms describe the volume's root directory.
func Format(container FSContainer, label string, uid, gid, perms uint32) error {
	blockSize := container.BlockSize()
	blockCount := container.BlockCount()

	if !kid.IsPow2(uint64(blockSize)) {
		return kerrors.EINVAL
	}
	if blockCount < MinBlockCount {
		return kerrors.ENOSPC
	}
	if len(label) > MaxLabelLen {
		return kerrors.ERANGE
	}

	bitmapBytes := ceilDiv(blockCount, 8)
	bitmapBlockCount := ceilDiv(bitmapBytes, blockSize)
	rootDirLBA := BitmapFirstLBA + bitmapBlockCount
	rootContentsLBA := rootDirLBA + 1
	if rootContentsLBA >= blockCount {
		return kerrors.ENOSPC
	}

	bitmap := make([]byte, bitmapBlockCount*blockSize)
	setBit(bitmap, SuperblockLBA)
	for i := uint32(0); i < bitmapBlockCount; i++ {
		setBit(bitmap, BitmapFirstLBA+i)
	}
	setBit(bitmap, rootDirLBA)
	setBit(bitmap, rootContentsLBA)

	now := time.Now()
	var sb Superblock
	sb.Signature = SignatureSuperblock
	sb.Version = VersionCurrent
	sb.CreatedSec = uint32(now.Unix())
	sb.ModifiedSec = sb.CreatedSec
	sb.BlockSize = blockSize
	sb.BlockCount = blockCount
	sb.BitmapBytes = bitmapBytes
	sb.BitmapLBA = BitmapFirstLBA
	sb.RootDirLBA = rootDirLBA
	sb.LabelLen = uint8(len(label))
	copy(sb.Label[:], label)

	sbBuf := make([]byte, blockSize)
	copy(sbBuf, sb.Encode())
	if err := container.WriteBlock(SuperblockLBA, sbBuf); err != nil {
		return err
	}

	for i := uint32(0); i < bitmapBlockCount; i++ {
		buf := make([]byte, blockSize)
		copy(buf, bitmap[i*blockSize:(i+1)*blockSize])
		if err := container.WriteBlock(BitmapFirstLBA+i, buf); err != nil {
			return err
		}
	}

	var root InodeRecord
	root.Signature = SignatureInode
	root.ID = rootInodeID
	root.ParentID = rootInodeID
	root.LinkCount = 2 // "." and the entry a parent would hold, if any
	root.Uid = uid
	root.Gid = gid
	root.Mode = perms
	root.Type = ModeDir
	root.Blocks[0] = rootContentsLBA
	root.ATimeSec = uint32(now.Unix())
	root.MTimeSec = root.ATimeSec
	root.CTimeSec = root.ATimeSec

	rootBuf := make([]byte, blockSize)
	copy(rootBuf, root.Encode())
	if err := container.WriteBlock(rootDirLBA, rootBuf); err != nil {
		return err
	}

	dot := NewDirentRecord(rootInodeID, ".")
	dotdot := NewDirentRecord(rootInodeID, "..")
	contentsBuf := make([]byte, blockSize)
	copy(contentsBuf, dot.Encode())
	copy(contentsBuf[direntWireSize:], dotdot.Encode())
	root.Size = uint64(2 * direntWireSize)
	rootBuf2 := make([]byte, blockSize)
	copy(rootBuf2, root.Encode())
	if err := container.WriteBlock(rootDirLBA, rootBuf2); err != nil {
		return err
	}
	if err := container.WriteBlock(rootContentsLBA, contentsBuf); err != nil {
		return err
	}

	return container.Sync()
}

// ReadSuperblock loads and decodes the superblock from LBA 0.
func ReadSuperblock(container FSContainer) (Superblock, error) {
	buf := make([]byte, container.BlockSize())
	if err := container.ReadBlock(SuperblockLBA, buf); err != nil {
		return Superblock{}, err
	}
	sb := DecodeSuperblock(buf)
	if sb.Signature != SignatureSuperblock {
		return Superblock{}, kerrors.EINVAL
	}
	return sb, nil
}
