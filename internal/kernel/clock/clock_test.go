package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetTimeHiresMonotonic(t *testing.T) {
	c := New(time.Millisecond)
	var lastSec, lastNsec int64
	for i := 0; i < 50; i++ {
		c.Tick()
		sec, nsec := c.GetTimeHires()
		if i > 0 {
			require.True(t, sec > lastSec || (sec == lastSec && nsec >= lastNsec),
				"hires time went backwards: (%d,%d) -> (%d,%d)", lastSec, lastNsec, sec, nsec)
		}
		lastSec, lastNsec = sec, nsec
	}
}

func TestDeadlineFiresInOrder(t *testing.T) {
	c := New(time.Millisecond)
	var fired []int

	d1 := &Deadline{TargetTick: 3, Callback: func() { fired = append(fired, 1) }}
	d2 := &Deadline{TargetTick: 1, Callback: func() { fired = append(fired, 2) }}
	d3 := &Deadline{TargetTick: 3, Callback: func() { fired = append(fired, 3) }} // same tick as d1, arrives after

	require.NoError(t, c.ArmDeadline(d1))
	require.NoError(t, c.ArmDeadline(d2))
	require.NoError(t, c.ArmDeadline(d3))

	for i := 0; i < 3; i++ {
		c.Tick()
	}

	require.Equal(t, []int{2, 1, 3}, fired)
	require.False(t, d1.Armed())
	require.False(t, d2.Armed())
	require.False(t, d3.Armed())
}

func TestCancelDeadline(t *testing.T) {
	c := New(time.Millisecond)
	fired := false
	d := &Deadline{TargetTick: 5, Callback: func() { fired = true }}
	require.NoError(t, c.ArmDeadline(d))

	require.True(t, c.CancelDeadline(d))
	require.False(t, c.CancelDeadline(d)) // already cancelled

	for i := 0; i < 10; i++ {
		c.Tick()
	}
	require.False(t, fired)
	require.Equal(t, 0, c.PendingDeadlines())
}

func TestArmDeadlineRejectsNil(t *testing.T) {
	c := New(time.Millisecond)
	require.Error(t, c.ArmDeadline(nil))
}
