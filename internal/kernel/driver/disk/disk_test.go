package disk

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/serena-os/kernel/internal/kernel/driver"
	"github.com/serena-os/kernel/internal/kernel/vfs/sefs"
	kerrors "github.com/serena-os/kernel/pkg/errors"
)

func TestDiskDriverReadWriteRoundTrips(t *testing.T) {
	container := sefs.NewMemContainer(64, 512)
	d := New("disk0", container, logr.Discard())
	require.NoError(t, d.Init(context.Background()))
	require.NoError(t, d.Start(context.Background()))

	chAny, err := d.CreateChannel(nil)
	require.NoError(t, err)
	ch := chAny.(*Channel)

	buf := make([]byte, 512)
	copy(buf, "hello block")
	require.NoError(t, ch.WriteBlock(3, buf))

	out := make([]byte, 512)
	require.NoError(t, ch.ReadBlock(3, out))
	require.Equal(t, buf, out)
}

func TestDiskDriverRejectsChannelBeforeRunning(t *testing.T) {
	container := sefs.NewMemContainer(64, 512)
	d := New("disk0", container, logr.Discard())

	_, err := d.CreateChannel(nil)
	require.ErrorIs(t, err, kerrors.EIO)
}

func TestDiskDriverReportsGeometry(t *testing.T) {
	container := sefs.NewMemContainer(128, 1024)
	d := New("disk0", container, logr.Discard())
	require.Equal(t, uint32(1024), d.BlockSize())
	require.Equal(t, uint32(128), d.BlockCount())
}

var _ driver.Driver = (*Driver)(nil)
