package zorro

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

func fakeProbe(present map[int]BoardIdentifier, failSlots map[int]bool) SlotProbe {
	return func(slot int) (BoardIdentifier, bool, error) {
		if failSlots[slot] {
			return BoardIdentifier{}, false, kerrors.EIO
		}
		id, ok := present[slot]
		return id, ok, nil
	}
}

func TestAutoconfigScanAssignsBoardsInSlotOrder(t *testing.T) {
	present := map[int]BoardIdentifier{
		1: NewBoardIdentifier(0x0202, 0x03, WithName("a2091-scsi")),
		3: NewBoardIdentifier(0x1234, 0x01, WithName("ethernet")),
	}
	d := New(4, fakeProbe(present, nil), logr.Discard())
	require.NoError(t, d.Init(context.Background()))

	boards := d.Boards()
	require.Len(t, boards, 2)
	require.Equal(t, 1, boards[0].Slot)
	require.Equal(t, "a2091-scsi", boards[0].ID.String())
	require.Equal(t, 3, boards[1].Slot)
	require.NotEqual(t, boards[0].BaseAddr, boards[1].BaseAddr)
}

func TestAutoconfigScanTreatsFailedProbeAsEmptySlot(t *testing.T) {
	present := map[int]BoardIdentifier{
		0: NewBoardIdentifier(0x1111, 0x01),
	}
	fail := map[int]bool{1: true}
	d := New(2, fakeProbe(present, fail), logr.Discard())
	require.NoError(t, d.Init(context.Background()))

	boards := d.Boards()
	require.Len(t, boards, 1)
	require.Equal(t, 0, boards[0].Slot)
}

func TestCreateChannelLooksUpBySlot(t *testing.T) {
	present := map[int]BoardIdentifier{2: NewBoardIdentifier(0x2020, 0x05)}
	d := New(4, fakeProbe(present, nil), logr.Discard())
	require.NoError(t, d.Init(context.Background()))

	chAny, err := d.CreateChannel(2)
	require.NoError(t, err)
	ch := chAny.(*Channel)
	require.Equal(t, 2, ch.Board().Slot)

	_, err = d.CreateChannel(99)
	require.ErrorIs(t, err, kerrors.ENOENT)
}
