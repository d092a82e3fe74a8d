package display

import (
	"sync"

	"github.com/serena-os/kernel/pkg/performance/ringbuffer"
)

// copperCacheCapacity is the number of retired Copper programs the
// cache holds at once; submitting beyond capacity evicts the oldest.
const copperCacheCapacity = 8

// CopperProgram is a compiled sequence of Copper-list instructions a
// screen configuration compiles down to.
type CopperProgram struct {
	Instructions int
}

// CopperCache is a bounded reuse cache over ringbuffer.RingBuffer's "keep
// only the most recent N items" eviction, used here as a
// retired-program pool rather than a sample window: Submit reuses an
// existing program whose instruction count matches instead of
// compiling (and caching) a duplicate.
type CopperCache struct {
	mu   sync.Mutex
	ring *ringbuffer.RingBuffer[*CopperProgram]
}

func NewCopperCache() *CopperCache {
	ring, _ := ringbuffer.New[*CopperProgram](copperCacheCapacity)
	return &CopperCache{ring: ring}
}

// Submit returns a program with the given instruction count, reusing a
// cached slot whose program already has that count; otherwise it
// compiles (allocates) a new one and pushes it in, evicting the oldest
// if the cache is already at capacity.
func (c *CopperCache) Submit(instructions int) *CopperProgram {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.ring.GetAll() {
		if p.Instructions == instructions {
			return p
		}
	}
	p := &CopperProgram{Instructions: instructions}
	c.ring.Push(p)
	return p
}

// Len reports how many programs the cache currently holds.
func (c *CopperCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.Len()
}
