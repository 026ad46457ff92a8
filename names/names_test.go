package names_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs/names"
)

func TestIsValidShortName(t *testing.T) {
	require.True(t, names.IsValidShortName("FOO.TXT"))
	require.True(t, names.IsValidShortName("FOO"))
	require.True(t, names.IsValidShortName("."))
	require.True(t, names.IsValidShortName(".."))
	require.False(t, names.IsValidShortName("TOOLONGNAME.TXT"))
	require.False(t, names.IsValidShortName("FOO.TOOLONG"))
	require.False(t, names.IsValidShortName(" FOO.TXT"))
	require.False(t, names.IsValidShortName("FOO/BAR"))
}

func TestPackUnpackShortNameRoundTrip(t *testing.T) {
	raw := names.PackShortName("FOO.TXT")
	require.Equal(t, "FOO     TXT", string(raw[:]))
	require.Equal(t, "FOO.TXT", names.UnpackShortName(raw))
}

func TestPackUnpackShortNameNoExtension(t *testing.T) {
	raw := names.PackShortName("README")
	require.Equal(t, "README", names.UnpackShortName(raw))
}

func TestPackUnpackDotEntries(t *testing.T) {
	dot := names.PackShortName(".")
	require.Equal(t, ".", names.UnpackShortName(dot))

	dotdot := names.PackShortName("..")
	require.Equal(t, "..", names.UnpackShortName(dotdot))
}

func TestEqualFold(t *testing.T) {
	require.True(t, names.EqualFold("FOO.TXT", "foo.txt"))
	require.False(t, names.EqualFold("FOO.TXT", "BAR.TXT"))
}

func TestChecksumIsStableForSamePackedName(t *testing.T) {
	a := names.PackShortName("FOO.TXT")
	b := names.PackShortName("FOO.TXT")
	require.Equal(t, names.Checksum(a), names.Checksum(b))
}

func TestSlotsNeededShortNameIsOneSlot(t *testing.T) {
	require.Equal(t, 1, names.SlotsNeeded("FOO.TXT"))
}

func TestSlotsNeededLongNameNeedsLFNSlots(t *testing.T) {
	// "My Long File Name.txt" is 21 code units -> ceil(21/13) = 2 LFN slots + 1 short.
	require.Equal(t, 3, names.SlotsNeeded("My Long File Name.txt"))
}

func TestNeedsLongName(t *testing.T) {
	require.False(t, names.NeedsLongName("FOO.TXT"))
	require.True(t, names.NeedsLongName("foo.txt"))
	require.True(t, names.NeedsLongName("Long Name.txt"))
}

func TestEncodeDecodeLFNSequenceRoundTrip(t *testing.T) {
	const longName = "My Long File Name.txt"
	short := names.GenerateShortName(longName, func([11]byte) bool { return false })
	checksum := names.Checksum(short)

	slots := names.EncodeLFNSlots(longName, checksum)
	decoded, ok := names.DecodeLFNSequence(slots, checksum)
	require.True(t, ok)
	require.Equal(t, longName, decoded)
}

func TestDecodeLFNSequenceRejectsChecksumMismatch(t *testing.T) {
	slots := names.EncodeLFNSlots("some long name.txt", 0x11)
	_, ok := names.DecodeLFNSequence(slots, 0x22)
	require.False(t, ok)
}

func TestDecodeLFNSequenceRejectsMissingLastMarker(t *testing.T) {
	slots := names.EncodeLFNSlots("some long name.txt", 0x11)
	// Drop the first on-disk slot (the one carrying the last-marker).
	_, ok := names.DecodeLFNSequence(slots[1:], 0x11)
	require.False(t, ok)
}

func TestGenerateShortNameStripsSpacesAndDotsBeforeTakingPrefix(t *testing.T) {
	short := names.GenerateShortName("This is a rather long filename.TXT", func([11]byte) bool { return false })
	require.Equal(t, "THISIS~1.TXT", names.UnpackShortName(short))
}

func TestGenerateShortNameCollisionSuffix(t *testing.T) {
	taken := map[string]bool{}
	first := names.GenerateShortName("My Document.txt", func(raw [11]byte) bool {
		return taken[string(raw[:])]
	})
	taken[string(first[:])] = true

	second := names.GenerateShortName("My Document.txt", func(raw [11]byte) bool {
		return taken[string(raw[:])]
	})
	require.NotEqual(t, first, second)
	require.Contains(t, names.UnpackShortName(second), "~2")
}
