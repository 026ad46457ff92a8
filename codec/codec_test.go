package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs/codec"
)

func TestU16RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	codec.SetU16(buf, 2, 0xBEEF)
	require.Equal(t, uint16(0xBEEF), codec.GetU16(buf, 2))
	require.Equal(t, byte(0xEF), buf[2])
	require.Equal(t, byte(0xBE), buf[3])
}

func TestU32RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	codec.SetU32(buf, 0, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), codec.GetU32(buf, 0))
}

func TestU8RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	codec.SetU8(buf, 1, 0x42)
	require.Equal(t, uint8(0x42), codec.GetU8(buf, 1))
}

func TestDetermineFATType(t *testing.T) {
	require.Equal(t, codec.FAT12, codec.DetermineFATType(4084))
	require.Equal(t, codec.FAT16, codec.DetermineFATType(4085))
	require.Equal(t, codec.FAT16, codec.DetermineFATType(65524))
	require.Equal(t, codec.FAT32, codec.DetermineFATType(65525))
}

func TestNearFATTypeBoundary(t *testing.T) {
	require.True(t, codec.NearFATTypeBoundary(4084, 16))
	require.True(t, codec.NearFATTypeBoundary(4090, 16))
	require.False(t, codec.NearFATTypeBoundary(4200, 16))
	require.True(t, codec.NearFATTypeBoundary(65524, 16))
}

func TestFATTypeString(t *testing.T) {
	require.Equal(t, "FAT12", codec.FAT12.String())
	require.Equal(t, "FAT16", codec.FAT16.String())
	require.Equal(t, "FAT32", codec.FAT32.String())
}
