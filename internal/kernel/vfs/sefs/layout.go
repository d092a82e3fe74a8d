// Package sefs implements SerenaFS: the kernel's native on-disk
// filesystem format, its formatter, and a FSContainer abstraction over
// the block device a volume lives on.
package sefs

import "encoding/binary"

// Every multi-byte on-disk field is big-endian regardless of host
// endianness, a hard constraint independent of the target CPU. All
// layout helpers below route through encoding/binary.BigEndian rather
// than ad-hoc shifts, so there is exactly one place this rule could be
// violated.
const (
	SignatureSuperblock uint32 = 0x53654653 // "SeFS"
	SignatureInode      uint32 = 0x53654649 // "SeFI"
	VersionCurrent      uint32 = 1

	MinBlockCount = 64
	MaxLabelLen   = 32

	SuperblockLBA  = 0
	BitmapFirstLBA = 1
)

// Mode bits for Inode.Type, a POSIX-style S_IFREG/S_IFDIR/… family.
const (
	ModeRegular uint32 = 0o100000
	ModeDir     uint32 = 0o040000
	ModeDevice  uint32 = 0o020000
	ModeFIFO    uint32 = 0o010000
	ModeSymlink uint32 = 0o120000
)

// Superblock is the LBA-0 record describing an entire volume.
type Superblock struct {
	Signature     uint32
	Version       uint32
	Attributes    uint32
	CreatedSec    uint32
	CreatedNsec   uint32
	ModifiedSec   uint32
	ModifiedNsec  uint32
	BlockSize     uint32
	BlockCount    uint32
	BitmapBytes   uint32
	BitmapLBA     uint32
	RootDirLBA    uint32
	LabelLen      uint8
	Label         [MaxLabelLen]byte
}

const superblockWireSize = 4*10 + 1 + MaxLabelLen

// Encode serializes sb into a big-endian byte slice exactly
// superblockWireSize long.
func (sb *Superblock) Encode() []byte {
	b := make([]byte, superblockWireSize)
	off := 0
	putU32 := func(v uint32) {
		binary.BigEndian.PutUint32(b[off:], v)
		off += 4
	}
	putU32(sb.Signature)
	putU32(sb.Version)
	putU32(sb.Attributes)
	putU32(sb.CreatedSec)
	putU32(sb.CreatedNsec)
	putU32(sb.ModifiedSec)
	putU32(sb.ModifiedNsec)
	putU32(sb.BlockSize)
	putU32(sb.BlockCount)
	putU32(sb.BitmapBytes)
	putU32(sb.BitmapLBA)
	putU32(sb.RootDirLBA)
	b[off] = sb.LabelLen
	off++
	copy(b[off:], sb.Label[:])
	return b
}

// DecodeSuperblock parses a big-endian superblock record.
func DecodeSuperblock(b []byte) Superblock {
	var sb Superblock
	off := 0
	getU32 := func() uint32 {
		v := binary.BigEndian.Uint32(b[off:])
		off += 4
		return v
	}
	sb.Signature = getU32()
	sb.Version = getU32()
	sb.Attributes = getU32()
	sb.CreatedSec = getU32()
	sb.CreatedNsec = getU32()
	sb.ModifiedSec = getU32()
	sb.ModifiedNsec = getU32()
	sb.BlockSize = getU32()
	sb.BlockCount = getU32()
	sb.BitmapBytes = getU32()
	sb.BitmapLBA = getU32()
	sb.RootDirLBA = getU32()
	sb.LabelLen = b[off]
	off++
	copy(sb.Label[:], b[off:off+MaxLabelLen])
	return sb
}

const maxDirectBlocks = 12

// InodeRecord is the on-disk inode record.
type InodeRecord struct {
	Signature uint32
	ID        uint32
	ParentID  uint32
	LinkCount uint32
	Uid       uint32
	Gid       uint32
	Mode      uint32
	Type      uint32
	Blocks    [maxDirectBlocks]uint32
	Size      uint64
	ATimeSec  uint32
	MTimeSec  uint32
	CTimeSec  uint32
}

const inodeWireSize = 4*8 + 4*maxDirectBlocks + 8 + 4*3

func (ir *InodeRecord) Encode() []byte {
	b := make([]byte, inodeWireSize)
	off := 0
	putU32 := func(v uint32) {
		binary.BigEndian.PutUint32(b[off:], v)
		off += 4
	}
	putU32(ir.Signature)
	putU32(ir.ID)
	putU32(ir.ParentID)
	putU32(ir.LinkCount)
	putU32(ir.Uid)
	putU32(ir.Gid)
	putU32(ir.Mode)
	putU32(ir.Type)
	for _, blk := range ir.Blocks {
		putU32(blk)
	}
	binary.BigEndian.PutUint64(b[off:], ir.Size)
	off += 8
	putU32(ir.ATimeSec)
	putU32(ir.MTimeSec)
	putU32(ir.CTimeSec)
	return b
}

func DecodeInodeRecord(b []byte) InodeRecord {
	var ir InodeRecord
	off := 0
	getU32 := func() uint32 {
		v := binary.BigEndian.Uint32(b[off:])
		off += 4
		return v
	}
	ir.Signature = getU32()
	ir.ID = getU32()
	ir.ParentID = getU32()
	ir.LinkCount = getU32()
	ir.Uid = getU32()
	ir.Gid = getU32()
	ir.Mode = getU32()
	ir.Type = getU32()
	for i := range ir.Blocks {
		ir.Blocks[i] = getU32()
	}
	ir.Size = binary.BigEndian.Uint64(b[off:])
	off += 8
	ir.ATimeSec = getU32()
	ir.MTimeSec = getU32()
	ir.CTimeSec = getU32()
	return ir
}

// DirentRecord is a fixed-size directory entry: inode id, name length,
// and in-line name bytes padded to MaxNameLen. MaxNameLen is chosen so
// a record is a clean 64 bytes, keeping a whole number of entries per
// block at every supported block size (512 and up).
const MaxNameLen = 59

type DirentRecord struct {
	InodeID  uint32
	NameLen  uint8
	Name     [MaxNameLen]byte
}

const direntWireSize = 4 + 1 + MaxNameLen

func (d *DirentRecord) Encode() []byte {
	b := make([]byte, direntWireSize)
	binary.BigEndian.PutUint32(b[0:4], d.InodeID)
	b[4] = d.NameLen
	copy(b[5:], d.Name[:])
	return b
}

func DecodeDirentRecord(b []byte) DirentRecord {
	var d DirentRecord
	d.InodeID = binary.BigEndian.Uint32(b[0:4])
	d.NameLen = b[4]
	copy(d.Name[:], b[5:5+MaxNameLen])
	return d
}

func (d *DirentRecord) NameString() string {
	return string(d.Name[:d.NameLen])
}

func NewDirentRecord(inodeID uint32, name string) DirentRecord {
	var d DirentRecord
	d.InodeID = inodeID
	d.NameLen = uint8(len(name))
	copy(d.Name[:], name)
	return d
}
