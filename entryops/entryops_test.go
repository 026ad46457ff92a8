package entryops_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/blockcache"
	"github.com/sigurdsen/fatfs/cluster"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/entryops"
	"github.com/sigurdsen/fatfs/memdisk"
)

func newVolume(t *testing.T) *fatfs.Volume {
	t.Helper()
	const secSize = 512
	dev := memdisk.New(secSize, 256)
	cache := blockcache.New(dev, secSize, 16)
	return &fatfs.Volume{
		Device:       dev,
		Cache:        cache,
		SecSize:      secSize,
		ClusSizeSec:  1,
		ClusSizeBytes: secSize,
		FATType:      codec.FAT16,
		NumFATs:      1,
		RsvdSize:     1,
		FATSize:      8,
		RootDirStart: 9,
		RootDirSize:  1,
		DataStart:    10,
		MaxClusNbr:   60,
		NextClusNbr:  2,
	}
}

const rwFile = fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeFile
const rwFileCreate = rwFile | fatfs.ModeCreate

func TestFindCreatesMissingFile(t *testing.T) {
	v := newVolume(t)
	res, err := entryops.Find(v, nil, fatfs.NoopJournal{}, `FOO.TXT`, rwFileCreate)
	require.NoError(t, err)
	require.False(t, res.IsDir)
}

func TestFindLocatesExistingFile(t *testing.T) {
	v := newVolume(t)
	_, err := entryops.Find(v, nil, fatfs.NoopJournal{}, `FOO.TXT`, rwFileCreate)
	require.NoError(t, err)

	res, err := entryops.Find(v, nil, fatfs.NoopJournal{}, `FOO.TXT`, rwFile)
	require.NoError(t, err)
	require.False(t, res.IsDir)
}

func TestFindMustCreateFailsWhenExists(t *testing.T) {
	v := newVolume(t)
	_, err := entryops.Find(v, nil, fatfs.NoopJournal{}, `FOO.TXT`, rwFileCreate)
	require.NoError(t, err)

	_, err = entryops.Find(v, nil, fatfs.NoopJournal{}, `FOO.TXT`, rwFileCreate|fatfs.ModeMustCreate)
	require.ErrorIs(t, err, fatfs.ErrEntryExists)
}

func TestFindMissingWithoutCreateFails(t *testing.T) {
	v := newVolume(t)
	_, err := entryops.Find(v, nil, fatfs.NoopJournal{}, `NOPE.TXT`, rwFile)
	require.ErrorIs(t, err, fatfs.ErrEntryNotFound)
}

func TestCreateDirectoryAndDescendIntoIt(t *testing.T) {
	v := newVolume(t)
	sc := cluster.NewScanCache(v.MaxClusNbr)
	require.NoError(t, cluster.Rebuild(v, sc))

	dirMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeDir | fatfs.ModeCreate
	res, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `SUBDIR`, dirMode)
	require.NoError(t, err)
	require.True(t, res.IsDir)
	require.NotZero(t, res.FirstCluster)

	fileRes, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `SUBDIR\INNER.TXT`, rwFileCreate)
	require.NoError(t, err)
	require.False(t, fileRes.IsDir)
}

func TestDeleteFile(t *testing.T) {
	v := newVolume(t)
	_, err := entryops.Find(v, nil, fatfs.NoopJournal{}, `DEL.TXT`, rwFileCreate)
	require.NoError(t, err)

	delMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeFile | fatfs.ModeDelete
	_, err = entryops.Find(v, nil, fatfs.NoopJournal{}, `DEL.TXT`, delMode)
	require.NoError(t, err)

	_, err = entryops.Find(v, nil, fatfs.NoopJournal{}, `DEL.TXT`, rwFile)
	require.ErrorIs(t, err, fatfs.ErrEntryNotFound)
}

func TestDeleteNonEmptyDirectoryFails(t *testing.T) {
	v := newVolume(t)
	sc := cluster.NewScanCache(v.MaxClusNbr)
	require.NoError(t, cluster.Rebuild(v, sc))

	dirMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeDir | fatfs.ModeCreate
	_, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `SUBDIR`, dirMode)
	require.NoError(t, err)
	_, err = entryops.Find(v, sc, fatfs.NoopJournal{}, `SUBDIR\A.TXT`, rwFileCreate)
	require.NoError(t, err)

	delDirMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeDir | fatfs.ModeDelete
	_, err = entryops.Find(v, sc, fatfs.NoopJournal{}, `SUBDIR`, delDirMode)
	require.ErrorIs(t, err, fatfs.ErrDirectoryNotEmpty)
}

func TestTruncateOnOpen(t *testing.T) {
	v := newVolume(t)
	sc := cluster.NewScanCache(v.MaxClusNbr)
	require.NoError(t, cluster.Rebuild(v, sc))

	res, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `BIG.TXT`, rwFileCreate)
	require.NoError(t, err)

	require.NoError(t, entryops.Truncate(v, sc, fatfs.NoopJournal{}, v.RootDirStart, res.Range, 0))

	truncMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeFile | fatfs.ModeTruncate
	res2, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `BIG.TXT`, truncMode)
	require.NoError(t, err)
	require.Equal(t, uint32(0), res2.FileSize)
}

func TestRenameWithinSameDirectory(t *testing.T) {
	v := newVolume(t)
	sc := cluster.NewScanCache(v.MaxClusNbr)
	require.NoError(t, cluster.Rebuild(v, sc))

	_, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `OLD.TXT`, rwFileCreate)
	require.NoError(t, err)

	require.NoError(t, entryops.Rename(v, sc, fatfs.NoopJournal{}, `OLD.TXT`, `NEW.TXT`))

	_, err = entryops.Find(v, sc, fatfs.NoopJournal{}, `OLD.TXT`, rwFile)
	require.ErrorIs(t, err, fatfs.ErrEntryNotFound)

	res, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `NEW.TXT`, rwFile)
	require.NoError(t, err)
	require.False(t, res.IsDir)
}

func TestRenameAcrossDirectories(t *testing.T) {
	v := newVolume(t)
	sc := cluster.NewScanCache(v.MaxClusNbr)
	require.NoError(t, cluster.Rebuild(v, sc))

	dirMode := fatfs.ModeRead | fatfs.ModeWrite | fatfs.ModeDir | fatfs.ModeCreate
	_, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `DEST`, dirMode)
	require.NoError(t, err)

	_, err = entryops.Find(v, sc, fatfs.NoopJournal{}, `SRC.TXT`, rwFileCreate)
	require.NoError(t, err)

	require.NoError(t, entryops.Rename(v, sc, fatfs.NoopJournal{}, `SRC.TXT`, `DEST\SRC.TXT`))

	_, err = entryops.Find(v, sc, fatfs.NoopJournal{}, `SRC.TXT`, rwFile)
	require.ErrorIs(t, err, fatfs.ErrEntryNotFound)

	res, err := entryops.Find(v, sc, fatfs.NoopJournal{}, `DEST\SRC.TXT`, rwFile)
	require.NoError(t, err)
	require.False(t, res.IsDir)
}
