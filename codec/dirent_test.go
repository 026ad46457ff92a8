package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs/codec"
)

func TestDirentRoundTripFAT32(t *testing.T) {
	d := codec.Dirent{
		Attributes:   codec.AttrArchive,
		FirstCluster: 0x000A1234,
		FileSize:     4096,
	}
	copy(d.Name[:], "README  TXT")

	raw := codec.EncodeDirent(d, codec.FAT32)
	decoded := codec.DecodeDirent(raw, codec.FAT32)

	require.Equal(t, d.Name, decoded.Name)
	require.Equal(t, d.Attributes, decoded.Attributes)
	require.Equal(t, d.FirstCluster, decoded.FirstCluster)
	require.Equal(t, d.FileSize, decoded.FileSize)
}

func TestDirentClampsHighClusterWordOutsideFAT32(t *testing.T) {
	d := codec.Dirent{FirstCluster: 0x000A1234}
	raw := codec.EncodeDirent(d, codec.FAT16)
	decoded := codec.DecodeDirent(raw, codec.FAT16)
	require.Equal(t, uint32(0x1234), decoded.FirstCluster)
}

func TestDirentEscapesGenuine0xE5FirstByte(t *testing.T) {
	d := codec.Dirent{}
	copy(d.Name[:], "\xE5AMPLE TXT")

	raw := codec.EncodeDirent(d, codec.FAT16)
	require.Equal(t, byte(codec.NameEscapedE5), raw[0])

	decoded := codec.DecodeDirent(raw, codec.FAT16)
	require.Equal(t, byte(codec.NameDeletedMarker), decoded.Name[0])
}

func TestMarkDeleted(t *testing.T) {
	raw := make([]byte, codec.DirentSize)
	copy(raw, "HELLO   TXT")
	deleted := codec.MarkDeleted(raw)
	require.Equal(t, byte(codec.NameDeletedMarker), deleted[0])
	require.Equal(t, byte('H'), raw[0], "original buffer must not be mutated")
}

func TestClassifySlot(t *testing.T) {
	end := make([]byte, codec.DirentSize)
	require.Equal(t, codec.SlotEndOfDirectory, codec.ClassifySlot(end))

	deleted := make([]byte, codec.DirentSize)
	deleted[0] = codec.NameDeletedMarker
	require.Equal(t, codec.SlotDeleted, codec.ClassifySlot(deleted))

	lfn := make([]byte, codec.DirentSize)
	lfn[0] = 'X'
	lfn[11] = codec.AttrLongName
	require.Equal(t, codec.SlotLongName, codec.ClassifySlot(lfn))

	short := make([]byte, codec.DirentSize)
	short[0] = 'X'
	require.Equal(t, codec.SlotShortName, codec.ClassifySlot(short))
}

func TestLFNSlotRoundTrip(t *testing.T) {
	s := codec.LFNSlot{
		Ordinal:  1 | codec.LFNLastMarker,
		Checksum: 0x42,
	}
	for i := range s.Chars {
		s.Chars[i] = uint16('a' + i)
	}

	raw := codec.EncodeLFNSlot(s)
	decoded := codec.DecodeLFNSlot(raw)

	require.Equal(t, s.Ordinal, decoded.Ordinal)
	require.Equal(t, s.Checksum, decoded.Checksum)
	require.Equal(t, s.Chars, decoded.Chars)
}
