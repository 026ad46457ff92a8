package fatentry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/blockcache"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/fatentry"
	"github.com/sigurdsen/fatfs/memdisk"
)

func newVolume(t *testing.T, fatType codec.FATType, numFATs uint8) *fatfs.Volume {
	t.Helper()
	const secSize = 512
	dev := memdisk.New(secSize, 64)
	cache := blockcache.New(dev, secSize, 16)
	return &fatfs.Volume{
		Device:      dev,
		Cache:       cache,
		SecSize:     secSize,
		ClusSizeSec: 1,
		FATType:     fatType,
		NumFATs:     numFATs,
		RsvdSize:    1,
		FATSize:     4,
		DataStart:   1 + fatfs.SectorID(numFATs)*4,
		MaxClusNbr:  100,
	}
}

func TestReadWriteFAT16(t *testing.T) {
	v := newVolume(t, codec.FAT16, 2)
	require.NoError(t, fatentry.Write(v, 5, 0x1234))
	got, err := fatentry.Read(v, 5)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1234), got)
}

func TestReadWriteFAT32MasksToLow28Bits(t *testing.T) {
	v := newVolume(t, codec.FAT32, 2)
	require.NoError(t, fatentry.Write(v, 5, 0xF0000000|0x0000002))
	got, err := fatentry.Read(v, 5)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0000002), got, "Read masks to low 28 bits")
}

func TestFAT12NonStraddlingEntries(t *testing.T) {
	v := newVolume(t, codec.FAT12, 2)
	require.NoError(t, fatentry.Write(v, 2, 0xABC))
	require.NoError(t, fatentry.Write(v, 3, 0xDEF))

	got2, err := fatentry.Read(v, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(0xABC), got2)

	got3, err := fatentry.Read(v, 3)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEF), got3)
}

func TestFAT16MirroringToSecondFAT(t *testing.T) {
	v := newVolume(t, codec.FAT16, 2)
	require.NoError(t, fatentry.Write(v, 10, 0x5555))

	// Second FAT begins FATSize sectors after the first.
	buf, err := v.Cache.Get()
	require.NoError(t, err)
	defer v.Cache.Free(buf)
	require.NoError(t, v.Cache.Set(buf, uint64(v.RsvdSize)+uint64(v.FATSize), fatfs.SectorMGMT, true))
	require.Equal(t, uint16(0x5555), codec.GetU16(buf.Bytes(), 20))
}

func TestStraddlesDetectsSectorBoundary(t *testing.T) {
	v := newVolume(t, codec.FAT12, 1)
	v.SecSize = 16 // tiny sector to make a straddle reachable quickly: cluster 10 sits at byte 15

	found := false
	for c := fatfs.ClusterID(0); c < 64; c++ {
		if fatentry.Straddles(v, c) {
			found = true
			break
		}
	}
	require.True(t, found, "some cluster index must straddle with a 16-byte sector")
}

func TestIsFreeIsBadIsEOC(t *testing.T) {
	v := newVolume(t, codec.FAT16, 1)
	require.True(t, fatentry.IsFree(v, 0x0000))
	require.True(t, fatentry.IsBad(v, 0xFFF7))
	require.True(t, fatentry.IsEOC(v, 0xFFF8))
	require.True(t, fatentry.IsEOC(v, 0xFFFF))
	require.False(t, fatentry.IsEOC(v, 0x0005))
}

func TestIsValidNext(t *testing.T) {
	v := newVolume(t, codec.FAT16, 1)
	require.True(t, fatentry.IsValidNext(v, 5))
	require.False(t, fatentry.IsValidNext(v, 0xFFF7)) // bad
	require.False(t, fatentry.IsValidNext(v, 0xFFF8)) // eoc
	require.False(t, fatentry.IsValidNext(v, 0))       // free
	require.False(t, fatentry.IsValidNext(v, 1))       // reserved, < 2
}
