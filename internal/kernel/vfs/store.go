package vfs

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Store is a badger-backed key/value map used two ways: as the inode
// cache (fsid,ino) -> Info for DevFS/KernFS, and, when opened on disk,
// as SerenaFS's block journal (fsid,lba) -> last-synced block contents.
type Store struct {
	mu     sync.RWMutex
	closed bool
	db     *badger.DB
}

// OpenInMemory creates a Store backed by an in-memory badger instance,
// used by DevFS and KernFS, which don't outlive a boot.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true))
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenFile creates a Store backed by a badger instance persisted at
// dir, used by SerenaFS's block-cache journal.
func OpenFile(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir))
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func infoKey(k Key) []byte {
	b := make([]byte, 4+8)
	binary.BigEndian.PutUint32(b[0:4], uint32(k.FSID))
	binary.BigEndian.PutUint64(b[4:12], uint64(k.Ino))
	return b
}

func blockKey(fsid FSID, lba uint32) []byte {
	b := make([]byte, 5+4+4)
	copy(b, "block")
	binary.BigEndian.PutUint32(b[5:9], uint32(fsid))
	binary.BigEndian.PutUint32(b[9:13], lba)
	return b
}

// PutBlock journals the last-synced contents of (fsid,lba).
func (s *Store) PutBlock(fsid FSID, lba uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.EIO
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(fsid, lba), buf)
	})
}

// GetBlock returns the journaled contents of (fsid,lba), for replay
// after an unclean shutdown.
func (s *Store) GetBlock(fsid FSID, lba uint32) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kerrors.EIO
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(fsid, lba))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return kerrors.ENOENT
			}
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	return data, err
}

func direntKey(parent Key, name string) []byte {
	b := append([]byte("dirent:"), infoKey(parent)...)
	return append(b, []byte(":"+name)...)
}

// PutInfo persists info under key.
func (s *Store) PutInfo(key Key, info Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.EIO
	}
	buf := encodeInfo(info)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(infoKey(key), buf)
	})
}

// GetInfo loads the Info persisted under key.
func (s *Store) GetInfo(key Key) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Info{}, kerrors.EIO
	}
	var info Info
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(infoKey(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return kerrors.ENOENT
			}
			return err
		}
		return item.Value(func(val []byte) error {
			info = decodeInfo(val)
			return nil
		})
	})
	return info, err
}

// PutDirent records that parent contains an entry name pointing at
// child.
func (s *Store) PutDirent(parent Key, name string, child Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.EIO
	}
	val := infoKey(child)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(direntKey(parent, name), val)
	})
}

// GetDirent looks up the child key parent/name maps to.
func (s *Store) GetDirent(parent Key, name string) (Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Key{}, kerrors.EIO
	}
	var child Key
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(direntKey(parent, name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return kerrors.ENOENT
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 12 {
				return fmt.Errorf("vfs: corrupt dirent value for %s/%s", infoKey(parent), name)
			}
			child = Key{
				FSID: FSID(binary.BigEndian.Uint32(val[0:4])),
				Ino:  Ino(binary.BigEndian.Uint64(val[4:12])),
			}
			return nil
		})
	})
	return child, err
}

// DeleteDirent removes the parent/name entry.
func (s *Store) DeleteDirent(parent Key, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kerrors.EIO
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(direntKey(parent, name))
	})
}

// Close shuts the store down. Idempotent: a second call is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeInfo(info Info) []byte {
	b := make([]byte, 4+4+4+8+8+8+8+4+4)
	off := 0
	binary.BigEndian.PutUint32(b[off:], info.Mode)
	off += 4
	binary.BigEndian.PutUint32(b[off:], info.Uid)
	off += 4
	binary.BigEndian.PutUint32(b[off:], info.Gid)
	off += 4
	binary.BigEndian.PutUint64(b[off:], info.Size)
	off += 8
	binary.BigEndian.PutUint64(b[off:], uint64(info.ATime.Unix()))
	off += 8
	binary.BigEndian.PutUint64(b[off:], uint64(info.MTime.Unix()))
	off += 8
	binary.BigEndian.PutUint64(b[off:], uint64(info.CTime.Unix()))
	off += 8
	binary.BigEndian.PutUint32(b[off:], info.Links)
	off += 4
	binary.BigEndian.PutUint32(b[off:], uint32(info.Type))
	return b
}

func decodeInfo(b []byte) Info {
	var info Info
	off := 0
	info.Mode = binary.BigEndian.Uint32(b[off:])
	off += 4
	info.Uid = binary.BigEndian.Uint32(b[off:])
	off += 4
	info.Gid = binary.BigEndian.Uint32(b[off:])
	off += 4
	info.Size = binary.BigEndian.Uint64(b[off:])
	off += 8
	info.ATime = time.Unix(int64(binary.BigEndian.Uint64(b[off:])), 0)
	off += 8
	info.MTime = time.Unix(int64(binary.BigEndian.Uint64(b[off:])), 0)
	off += 8
	info.CTime = time.Unix(int64(binary.BigEndian.Uint64(b[off:])), 0)
	off += 8
	info.Links = binary.BigEndian.Uint32(b[off:])
	off += 4
	info.Type = Type(binary.BigEndian.Uint32(b[off:]))
	return info
}
