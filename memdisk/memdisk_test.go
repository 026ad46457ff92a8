package memdisk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/memdisk"
)

func TestReadWriteRoundTrip(t *testing.T) {
	dev := memdisk.New(512, 16)

	data := make([]byte, 512)
	copy(data, "hello sector")
	require.NoError(t, dev.WriteSectors(data, 3, 1, fatfs.SectorDir))

	out := make([]byte, 512)
	require.NoError(t, dev.ReadSectors(out, 3, 1, fatfs.SectorDir))
	require.Equal(t, data, out)
}

func TestReadWritePastEndFails(t *testing.T) {
	dev := memdisk.New(512, 4)
	buf := make([]byte, 512)
	require.Error(t, dev.ReadSectors(buf, 10, 1, fatfs.SectorFile))
	require.Error(t, dev.WriteSectors(buf, 10, 1, fatfs.SectorFile))
}

func TestReleaseSectorsTrackedUntilRewrite(t *testing.T) {
	dev := memdisk.New(512, 4)
	require.NoError(t, dev.ReleaseSectors(1, 2))
	require.True(t, dev.WasReleased(1))
	require.True(t, dev.WasReleased(2))

	require.NoError(t, dev.WriteSectors(make([]byte, 512), 1, 1, fatfs.SectorFile))
	require.False(t, dev.WasReleased(1))
	require.True(t, dev.WasReleased(2))
}

func TestNewFromBytesPreservesContent(t *testing.T) {
	raw := make([]byte, 1024)
	copy(raw[512:], "second sector")
	dev := memdisk.NewFromBytes(512, raw)
	require.Equal(t, uint64(2), dev.TotalSectors())

	out := make([]byte, 512)
	require.NoError(t, dev.ReadSectors(out, 1, 1, fatfs.SectorFile))
	require.Equal(t, raw[512:1024], out)
}

func TestSnapshotReflectsWrites(t *testing.T) {
	dev := memdisk.New(512, 2)
	data := make([]byte, 512)
	copy(data, "snapshot me")
	require.NoError(t, dev.WriteSectors(data, 0, 1, fatfs.SectorMGMT))

	snap := dev.Snapshot()
	require.Equal(t, data, snap[:512])
}
