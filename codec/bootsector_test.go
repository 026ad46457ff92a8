package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs/codec"
)

func TestBootSectorRoundTripFAT16(t *testing.T) {
	bs := codec.BootSector{
		BytesPerSector:    512,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    512,
		TotalSectors:      131072,
		FATSize:           256,
		VolumeID:          0x12345678,
	}
	copy(bs.VolumeLabel[:], "MYVOLUME")

	raw := codec.EncodeBootSector(bs, codec.FAT16)
	require.True(t, codec.VerifyBootSignature(raw))

	decoded := codec.DecodeBootSector(raw)
	require.Equal(t, bs.BytesPerSector, decoded.BytesPerSector)
	require.Equal(t, bs.SectorsPerCluster, decoded.SectorsPerCluster)
	require.Equal(t, bs.ReservedSectors, decoded.ReservedSectors)
	require.Equal(t, bs.NumFATs, decoded.NumFATs)
	require.Equal(t, bs.RootEntryCount, decoded.RootEntryCount)
	require.Equal(t, bs.TotalSectors, decoded.TotalSectors)
	require.Equal(t, bs.FATSize, decoded.FATSize)
	require.Equal(t, bs.VolumeID, decoded.VolumeID)
}

func TestBootSectorRoundTripFAT32(t *testing.T) {
	bs := codec.BootSector{
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumFATs:           2,
		TotalSectors:      8000000,
		FATSize:           7800,
		RootCluster:       2,
		FSInfoSector:      1,
		BackupBootSector:  6,
		VolumeID:          0xCAFEBABE,
	}
	copy(bs.VolumeLabel[:], "BIGVOL")

	raw := codec.EncodeBootSector(bs, codec.FAT32)
	require.True(t, codec.VerifyBootSignature(raw))

	decoded := codec.DecodeBootSector(raw)
	require.Equal(t, bs.FATSize, decoded.FATSize)
	require.Equal(t, bs.RootCluster, decoded.RootCluster)
	require.Equal(t, bs.FSInfoSector, decoded.FSInfoSector)
	require.Equal(t, bs.BackupBootSector, decoded.BackupBootSector)
	require.Equal(t, bs.VolumeID, decoded.VolumeID)
	require.Equal(t, uint16(0), decoded.RootEntryCount)
}

func TestVerifyBootSignatureRejectsBadBytes(t *testing.T) {
	raw := make([]byte, codec.BootSectorSize)
	require.False(t, codec.VerifyBootSignature(raw))
}

func TestFSInfoRoundTrip(t *testing.T) {
	info := codec.FSInfo{FreeCount: 12345, NextFree: 67}
	raw := codec.EncodeFSInfo(info)

	decoded, ok := codec.DecodeFSInfo(raw)
	require.True(t, ok)
	require.Equal(t, info, decoded)
}

func TestDecodeFSInfoRejectsBadSignature(t *testing.T) {
	raw := make([]byte, codec.FSInfoSize)
	_, ok := codec.DecodeFSInfo(raw)
	require.False(t, ok)
}
