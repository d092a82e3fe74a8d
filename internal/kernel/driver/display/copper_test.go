package display

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
)

// TestCopperCacheRetiresExactlyEightAndReusesMatch covers submitting
// more distinct configurations than the cache holds: after K>8 distinct
// instruction counts, the cache holds exactly 8 programs, and a later
// submission whose instruction count matches a still-cached program
// reuses that same instance instead of allocating a new one.
func TestCopperCacheRetiresExactlyEightAndReusesMatch(t *testing.T) {
	cache := NewCopperCache()

	var last *CopperProgram
	for i := 1; i <= 12; i++ {
		last = cache.Submit(i)
	}
	require.Equal(t, 8, cache.Len())
	require.Equal(t, 12, last.Instructions)

	// Instruction count 12 is the most recently submitted and must
	// still be cached: resubmitting it reuses the same instance.
	reused := cache.Submit(12)
	require.Same(t, last, reused)

	// Instruction count 1 was evicted long ago; resubmitting it
	// allocates a fresh program, distinct from any prior instance.
	fresh := cache.Submit(1)
	require.Equal(t, 1, fresh.Instructions)
}

func TestDisplaySubmitConfigurationReusesMatchingProgram(t *testing.T) {
	d := New(logr.Discard())
	screen := d.NewScreen(640, 480)

	surfaces := []*Surface{NewSurface(640, 480)}
	first := d.SubmitConfiguration(screen, surfaces)

	other := d.NewScreen(640, 480)
	second := d.SubmitConfiguration(other, surfaces)

	require.Same(t, first, second)
}
