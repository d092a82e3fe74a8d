package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualTickSourceSteps(t *testing.T) {
	m := NewManualTickSource(time.Millisecond)
	done := make(chan struct{})
	go func() {
		<-m.Ticks()
		close(done)
	}()
	m.Step()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick not delivered")
	}
}

func TestDescribeSystemCachesOnce(t *testing.T) {
	ResetSystemDescriptionForTest()
	defer ResetSystemDescriptionForTest()

	calls := 0
	probe := func() SystemDescription {
		calls++
		return SystemDescription{CPUClass: "68020", RAMBytes: 1 << 20}
	}

	d1 := DescribeSystem(probe)
	d2 := DescribeSystem(probe)

	require.Equal(t, 1, calls)
	require.Equal(t, d1, d2)
	require.Equal(t, "68020", d1.CPUClass)
	require.False(t, d1.BootTime.IsZero())
}
