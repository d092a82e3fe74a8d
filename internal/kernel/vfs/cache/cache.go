// Package cache implements the disk block cache that sits between a
// mounted filesystem and its FSContainer: a pin-aware LRU over
// fixed-size blocks. Eviction must skip pinned (currently mapped)
// entries rather than always dropping the oldest slot, so LRU order is
// kept with container/list rather than a fixed-size ring.
package cache

import (
	"container/list"
	"sync"

	"github.com/serena-os/kernel/internal/kernel/vfs"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

// Mode selects how a mapped block may be used.
type Mode int

const (
	Read Mode = iota
	ReadWrite
)

// BlockKey identifies one block across every attached container.
type BlockKey struct {
	FSID vfs.FSID
	LBA  uint32
}

// Block is a cached copy of one on-disk LBA. Data is shared by every
// Map call on the same key while it's pinned: callers observe each
// other's writes, matching a real block cache's "one physical copy per
// block" contract.
type Block struct {
	Key   BlockKey
	Data  []byte
	pins  int
	dirty bool
}

// Cache is a pin-aware LRU block cache shared across every mounted
// container. Evicting an entry skips any block with a nonzero pin
// count; if every cached block happens to be pinned, Map grows the
// cache past its nominal capacity rather than failing outright, the
// same way a real cache degrades under memory pressure instead of
// refusing IO.
type Cache struct {
	mu         sync.Mutex
	capacity   int
	containers map[vfs.FSID]sefs.FSContainer
	journals   map[vfs.FSID]*vfs.Store
	ll         *list.List // front = most recently used
	index      map[BlockKey]*list.Element
}

// New creates a cache that evicts down to capacity entries once it can.
func New(capacity int) *Cache {
	return &Cache{
		capacity:   capacity,
		containers: make(map[vfs.FSID]sefs.FSContainer),
		journals:   make(map[vfs.FSID]*vfs.Store),
		ll:         list.New(),
		index:      make(map[BlockKey]*list.Element),
	}
}

// Attach registers the container backing fsid; Map/Prefetch/Sync for
// that fsid read and write through it on a cache miss or flush.
func (c *Cache) Attach(fsid vfs.FSID, container sefs.FSContainer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.containers[fsid] = container
}

// AttachJournal records every block Sync writes back for fsid into
// journal as well, so a disk-backed Store can replay the last-synced
// contents of a volume after an unclean shutdown. Optional: a fsid
// with no journal attached just skips this step.
func (c *Cache) AttachJournal(fsid vfs.FSID, journal *vfs.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.journals[fsid] = journal
}

// Map returns the cached block for (fsid, lba), reading it from the
// backing container on a miss, and pins it: the returned Block stays
// in the cache and its Data stays stable until a matching Unmap,
// regardless of LRU pressure from other Map calls.
func (c *Cache) Map(fsid vfs.FSID, lba uint32, mode Mode) (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := BlockKey{FSID: fsid, LBA: lba}
	if el, ok := c.index[key]; ok {
		c.ll.MoveToFront(el)
		b := el.Value.(*Block)
		b.pins++
		if mode == ReadWrite {
			b.dirty = true
		}
		return b, nil
	}

	container, ok := c.containers[fsid]
	if !ok {
		return nil, kerrors.ENOENT
	}
	buf := make([]byte, container.BlockSize())
	if err := container.ReadBlock(lba, buf); err != nil {
		return nil, err
	}

	c.evictUnpinnedLocked()

	b := &Block{Key: key, Data: buf, pins: 1, dirty: mode == ReadWrite}
	el := c.ll.PushFront(b)
	c.index[key] = el
	return b, nil
}

// Prefetch warms the cache for (fsid, lba) without pinning it, a no-op
// if the block is already cached.
func (c *Cache) Prefetch(fsid vfs.FSID, lba uint32) error {
	c.mu.Lock()
	key := BlockKey{FSID: fsid, LBA: lba}
	if _, ok := c.index[key]; ok {
		c.mu.Unlock()
		return nil
	}
	container, ok := c.containers[fsid]
	c.mu.Unlock()
	if !ok {
		return kerrors.ENOENT
	}

	buf := make([]byte, container.BlockSize())
	if err := container.ReadBlock(lba, buf); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[key]; ok {
		return nil // lost the race to a concurrent Map/Prefetch
	}
	c.evictUnpinnedLocked()
	b := &Block{Key: key, Data: buf}
	el := c.ll.PushFront(b)
	c.index[key] = el
	return nil
}

// Unmap releases one pin on (fsid, lba). The block remains cached
// (eligible for LRU eviction once its pin count reaches zero) rather
// than being dropped immediately, so a block mapped read-only right
// after being unmapped still hits the cache.
func (c *Cache) Unmap(fsid vfs.FSID, lba uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := BlockKey{FSID: fsid, LBA: lba}
	el, ok := c.index[key]
	if !ok {
		return kerrors.ENOENT
	}
	b := el.Value.(*Block)
	if b.pins == 0 {
		return kerrors.EINVAL
	}
	b.pins--
	return nil
}

// Sync writes every dirty block belonging to fsid back to its
// container and clears their dirty bit.
func (c *Cache) Sync(fsid vfs.FSID) error {
	c.mu.Lock()
	container, ok := c.containers[fsid]
	journal := c.journals[fsid]
	if !ok {
		c.mu.Unlock()
		return kerrors.ENOENT
	}
	var dirty []*Block
	for el := c.ll.Front(); el != nil; el = el.Next() {
		b := el.Value.(*Block)
		if b.Key.FSID == fsid && b.dirty {
			dirty = append(dirty, b)
		}
	}
	c.mu.Unlock()

	for _, b := range dirty {
		if err := container.WriteBlock(b.Key.LBA, b.Data); err != nil {
			return err
		}
		if journal != nil {
			if err := journal.PutBlock(fsid, b.Key.LBA, b.Data); err != nil {
				return err
			}
		}
		c.mu.Lock()
		b.dirty = false
		c.mu.Unlock()
	}
	return container.Sync()
}

// evictUnpinnedLocked drops least-recently-used unpinned blocks until
// the cache is back at capacity, or gives up once every remaining
// block is pinned.
func (c *Cache) evictUnpinnedLocked() {
	for c.ll.Len() >= c.capacity {
		evicted := false
		for el := c.ll.Back(); el != nil; el = el.Prev() {
			b := el.Value.(*Block)
			if b.pins == 0 {
				c.ll.Remove(el)
				delete(c.index, b.Key)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// Len reports how many blocks are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// CachedContainer adapts one fsid's entry in a Cache back into an
// FSContainer, so a filesystem can be mounted against the cache
// instead of issuing ReadBlock/WriteBlock straight to the backing
// container. Every read pins, copies, and unpins; every write maps
// ReadWrite, copies in, and unpins, leaving the dirty block to flush on
// the next Sync rather than immediately.
type CachedContainer struct {
	cache *Cache
	fsid  vfs.FSID
	back  sefs.FSContainer
}

// NewCachedContainer attaches back to c under fsid and returns an
// FSContainer that reads and writes through the cache.
func NewCachedContainer(c *Cache, fsid vfs.FSID, back sefs.FSContainer) *CachedContainer {
	c.Attach(fsid, back)
	return &CachedContainer{cache: c, fsid: fsid, back: back}
}

func (cc *CachedContainer) ReadBlock(lba uint32, buf []byte) error {
	b, err := cc.cache.Map(cc.fsid, lba, Read)
	if err != nil {
		return err
	}
	copy(buf, b.Data)
	return cc.cache.Unmap(cc.fsid, lba)
}

func (cc *CachedContainer) WriteBlock(lba uint32, buf []byte) error {
	b, err := cc.cache.Map(cc.fsid, lba, ReadWrite)
	if err != nil {
		return err
	}
	copy(b.Data, buf)
	return cc.cache.Unmap(cc.fsid, lba)
}

func (cc *CachedContainer) BlockSize() uint32  { return cc.back.BlockSize() }
func (cc *CachedContainer) BlockCount() uint32 { return cc.back.BlockCount() }
func (cc *CachedContainer) Sync() error        { return cc.cache.Sync(cc.fsid) }
