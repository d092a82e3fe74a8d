// Package process implements the kernel's process model: address
// spaces, the process table, spawn/exec/exit/waitpid, exception
// delivery, and credential-checked signal routing.
package process

import (
	"sync"

	"github.com/serena-os/kernel/pkg/kid"
)

const arenaChunkSize = 8

// arena is one fixed-size group of allocations, the Go stand-in for a
// bumped-arena chunk: a page-rounded byte slice per slot instead of a
// raw pointer, since the host already garbage-collects.
type arena struct {
	slots [arenaChunkSize][]byte
	used  int
}

// AddressSpace is a per-process list of allocation chunks. Allocate
// rounds every request up to a page boundary via kid.Pow2Ceil and packs
// slots 8 to a chunk, matching the chunked bump-arena layout. UnmapAll
// drops every reference in one pass, letting the garbage collector
// reclaim rather than walking a free list.
type AddressSpace struct {
	mu     sync.Mutex
	chunks []*arena
	pageSz uint64
}

// NewAddressSpace creates an empty address space rounding allocations to
// pageSize (rounded itself to the next power of two).
func NewAddressSpace(pageSize uint64) *AddressSpace {
	return &AddressSpace{pageSz: kid.Pow2Ceil(pageSize)}
}

// Allocate reserves n bytes (rounded up to a page) and returns the
// backing slice.
func (a *AddressSpace) Allocate(n uint64) []byte {
	size := kid.Pow2Ceil(n)
	if size < a.pageSz {
		size = a.pageSz
	}
	buf := make([]byte, size)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.chunks {
		if c.used < arenaChunkSize {
			c.slots[c.used] = buf
			c.used++
			return buf
		}
	}
	c := &arena{}
	c.slots[0] = buf
	c.used = 1
	a.chunks = append(a.chunks, c)
	return buf
}

// UnmapAll drops every allocation in the space. Safe to call on an
// already-empty space.
func (a *AddressSpace) UnmapAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks = nil
}

// AdoptFrom moves every chunk from other into a, used by exec to hand a
// freshly built address space's mappings to the surviving process
// struct without a deep copy.
func (a *AddressSpace) AdoptFrom(other *AddressSpace) {
	other.mu.Lock()
	chunks := other.chunks
	other.chunks = nil
	other.mu.Unlock()

	a.mu.Lock()
	a.chunks = chunks
	a.mu.Unlock()
}

// AllocatedBytes returns the total bytes currently mapped, for
// diagnostics.
func (a *AddressSpace) AllocatedBytes() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total uint64
	for _, c := range a.chunks {
		for i := 0; i < c.used; i++ {
			total += uint64(len(c.slots[i]))
		}
	}
	return total
}
