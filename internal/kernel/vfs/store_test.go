package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	kerrors "github.com/serena-os/kernel/pkg/errors"
)

func TestStoreBlockRoundTrip(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutBlock(1, 7, []byte("block-data")))
	data, err := s.GetBlock(1, 7)
	require.NoError(t, err)
	require.Equal(t, "block-data", string(data))

	_, err = s.GetBlock(1, 8)
	require.ErrorIs(t, err, kerrors.ENOENT)
}

func TestStoreInfoAndBlockKeysDontCollide(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutInfo(Key{FSID: 1, Ino: 7}, Info{Size: 42}))
	require.NoError(t, s.PutBlock(1, 7, []byte("not-an-info-record")))

	info, err := s.GetInfo(Key{FSID: 1, Ino: 7})
	require.NoError(t, err)
	require.Equal(t, uint64(42), info.Size)

	data, err := s.GetBlock(1, 7)
	require.NoError(t, err)
	require.Equal(t, "not-an-info-record", string(data))
}
