package volume_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/blockcache"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/memdisk"
	"github.com/sigurdsen/fatfs/volume"
)

const rwFile = fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeFile
const rwFileCreate = rwFile | fatfs.ModeCreate

func formatAndMount(t *testing.T, fatType codec.FATType, totalSectors uint64) *volume.Volume {
	t.Helper()
	const secSize = 512
	dev := memdisk.New(secSize, totalSectors)
	cache := blockcache.New(dev, secSize, 32)

	require.NoError(t, volume.Format(dev, cache, volume.FormatOptions{
		SectorSize:   secSize,
		TotalSectors: totalSectors,
		NumFATs:      2,
		FATType:      fatType,
		VolumeLabel:  "TESTVOL",
	}))

	vol, err := volume.Mount(dev, cache, volume.MountOptions{})
	require.NoError(t, err)
	return vol
}

func TestFormatMountRoundTripFAT12(t *testing.T) {
	vol := formatAndMount(t, codec.FAT12, 2000)

	label, err := vol.Label()
	require.NoError(t, err)
	require.Equal(t, "TESTVOL", label)

	free, bad, err := vol.Query()
	require.NoError(t, err)
	require.Zero(t, bad)
	require.NotZero(t, free)
}

func TestFormatMountRoundTripFAT32(t *testing.T) {
	vol := formatAndMount(t, codec.FAT32, 600000)

	free, bad, err := vol.Query()
	require.NoError(t, err)
	require.Zero(t, bad)
	require.NotZero(t, free)
}

func TestCreateFindDeleteRoundTrip(t *testing.T) {
	vol := formatAndMount(t, codec.FAT12, 2000)

	_, err := vol.Find(`HELLO.TXT`, rwFileCreate)
	require.NoError(t, err)

	res, err := vol.Find(`HELLO.TXT`, rwFile)
	require.NoError(t, err)
	require.False(t, res.IsDir)

	delMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeFile | fatfs.ModeDelete
	_, err = vol.Find(`HELLO.TXT`, delMode)
	require.NoError(t, err)

	_, err = vol.Find(`HELLO.TXT`, rwFile)
	require.ErrorIs(t, err, fatfs.ErrEntryNotFound)
}

func TestSetLabelThenRead(t *testing.T) {
	vol := formatAndMount(t, codec.FAT12, 2000)

	require.NoError(t, vol.SetLabel("RENAMED"))

	label, err := vol.Label()
	require.NoError(t, err)
	require.Equal(t, "RENAMED", label)
}

func TestRenameAcrossDirectories(t *testing.T) {
	vol := formatAndMount(t, codec.FAT12, 2000)

	dirMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeDir | fatfs.ModeCreate
	_, err := vol.Find(`DEST`, dirMode)
	require.NoError(t, err)

	_, err = vol.Find(`SRC.TXT`, rwFileCreate)
	require.NoError(t, err)

	require.NoError(t, vol.Rename(`SRC.TXT`, `DEST\SRC.TXT`))

	_, err = vol.Find(`SRC.TXT`, rwFile)
	require.ErrorIs(t, err, fatfs.ErrEntryNotFound)

	res, err := vol.Find(`DEST\SRC.TXT`, rwFile)
	require.NoError(t, err)
	require.False(t, res.IsDir)
}

func TestCheckInvariantsPassesOnFreshlyFormattedVolume(t *testing.T) {
	vol := formatAndMount(t, codec.FAT12, 2000)
	require.NoError(t, volume.CheckInvariants(vol))
}

func TestCheckInvariantsPassesAfterCreatingFiles(t *testing.T) {
	vol := formatAndMount(t, codec.FAT12, 2000)

	_, err := vol.Find(`A.TXT`, rwFileCreate)
	require.NoError(t, err)
	_, err = vol.Find(`B.TXT`, rwFileCreate)
	require.NoError(t, err)

	require.NoError(t, volume.CheckInvariants(vol))
}

func TestReadOnlyMountRejectsWrites(t *testing.T) {
	const secSize = 512
	const totalSectors = 2000
	dev := memdisk.New(secSize, totalSectors)
	cache := blockcache.New(dev, secSize, 32)
	require.NoError(t, volume.Format(dev, cache, volume.FormatOptions{
		SectorSize:   secSize,
		TotalSectors: totalSectors,
		NumFATs:      2,
		FATType:      codec.FAT12,
	}))

	vol, err := volume.Mount(dev, cache, volume.MountOptions{ReadOnly: true})
	require.NoError(t, err)

	_, err = vol.Find(`HELLO.TXT`, rwFileCreate)
	require.ErrorIs(t, err, fatfs.ErrReadOnlyVolume)
}
