package cluster_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/blockcache"
	"github.com/sigurdsen/fatfs/cluster"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/fatentry"
	"github.com/sigurdsen/fatfs/memdisk"
)

func newVolume(t *testing.T, maxClusNbr fatfs.ClusterID) *fatfs.Volume {
	t.Helper()
	const secSize = 512
	dev := memdisk.New(secSize, 256)
	cache := blockcache.New(dev, secSize, 16)
	return &fatfs.Volume{
		Device:      dev,
		Cache:       cache,
		SecSize:     secSize,
		ClusSizeSec: 1,
		FATType:     codec.FAT16,
		NumFATs:     1,
		RsvdSize:    1,
		FATSize:     8,
		DataStart:   9,
		MaxClusNbr:  maxClusNbr,
		NextClusNbr: 2,
	}
}

func TestFindFreeSkipsUsedClustersFromHint(t *testing.T) {
	v := newVolume(t, 10)
	for c := fatfs.ClusterID(2); c < 8; c++ {
		require.NoError(t, fatentry.Write(v, c, v.Sentinels().EOCBase))
	}
	v.NextClusNbr = 5

	got, err := cluster.FindFree(v, nil)
	require.NoError(t, err)
	require.Equal(t, fatfs.ClusterID(8), got)
}

func TestFindFreeDeviceFull(t *testing.T) {
	v := newVolume(t, 4)
	for c := fatfs.ClusterID(2); c < 4; c++ {
		require.NoError(t, fatentry.Write(v, c, v.Sentinels().EOCBase))
	}
	_, err := cluster.FindFree(v, nil)
	require.ErrorIs(t, err, fatfs.ErrDeviceFull)
}

func TestAllocNewChainAndExtend(t *testing.T) {
	v := newVolume(t, 20)
	head, err := cluster.Alloc(v, nil, fatfs.NoopJournal{}, 0, 3)
	require.NoError(t, err)
	require.NotZero(t, head)

	chain, err := cluster.Follow(v, head, 10)
	require.NoError(t, err)
	require.Len(t, chain, 3)

	extended, err := cluster.Alloc(v, nil, fatfs.NoopJournal{}, chain[2], 2)
	require.NoError(t, err)
	require.NotZero(t, extended)

	chain, err = cluster.Follow(v, head, 10)
	require.NoError(t, err)
	require.Len(t, chain, 5)
}

func TestAllocRewindsOnExhaustion(t *testing.T) {
	v := newVolume(t, 6) // only clusters 2..5 available
	_, err := cluster.Alloc(v, nil, fatfs.NoopJournal{}, 0, 10)
	require.ErrorIs(t, err, fatfs.ErrDeviceFull)

	for c := fatfs.ClusterID(2); c < 6; c++ {
		val, rerr := fatentry.Read(v, c)
		require.NoError(t, rerr)
		require.True(t, fatentry.IsFree(v, val), "cluster %d must be rewound to free", c)
	}
}

func TestChainDeleteFreesWholeChain(t *testing.T) {
	v := newVolume(t, 20)
	head, err := cluster.Alloc(v, nil, fatfs.NoopJournal{}, 0, 4)
	require.NoError(t, err)

	freed, err := cluster.ChainDelete(v, nil, fatfs.NoopJournal{}, head, true, false)
	require.NoError(t, err)
	require.Equal(t, uint32(4), freed)

	val, err := fatentry.Read(v, head)
	require.NoError(t, err)
	require.True(t, fatentry.IsFree(v, val))
}

func TestChainDeletePreservingFirst(t *testing.T) {
	v := newVolume(t, 20)
	head, err := cluster.Alloc(v, nil, fatfs.NoopJournal{}, 0, 3)
	require.NoError(t, err)

	freed, err := cluster.ChainDelete(v, nil, fatfs.NoopJournal{}, head, false, false)
	require.NoError(t, err)
	require.Equal(t, uint32(2), freed)

	val, err := fatentry.Read(v, head)
	require.NoError(t, err)
	require.True(t, fatentry.IsEOC(v, val))
}

func TestChainDeleteIsIdempotent(t *testing.T) {
	v := newVolume(t, 20)
	head, err := cluster.Alloc(v, nil, fatfs.NoopJournal{}, 0, 3)
	require.NoError(t, err)

	_, err = cluster.ChainDelete(v, nil, fatfs.NoopJournal{}, head, true, false)
	require.NoError(t, err)

	freed, err := cluster.ChainDelete(v, nil, fatfs.NoopJournal{}, head, true, true)
	require.NoError(t, err)
	require.Equal(t, uint32(0), freed, "deleting an already-free chain converges immediately")
}

func TestReverseFollow(t *testing.T) {
	v := newVolume(t, 20)
	head, err := cluster.Alloc(v, nil, fatfs.NoopJournal{}, 0, 3)
	require.NoError(t, err)

	chain, err := cluster.Follow(v, head, 3)
	require.NoError(t, err)
	require.Len(t, chain, 3)

	pred, err := cluster.ReverseFollow(v, chain[1])
	require.NoError(t, err)
	require.Equal(t, chain[0], pred)

	pred, err = cluster.ReverseFollow(v, chain[0])
	require.NoError(t, err)
	require.Equal(t, fatfs.ClusterID(0), pred, "chain head has no predecessor")
}

func TestRebuildScanCache(t *testing.T) {
	v := newVolume(t, 10)
	require.NoError(t, fatentry.Write(v, 3, v.Sentinels().EOCBase))

	sc := cluster.NewScanCache(v.MaxClusNbr)
	require.NoError(t, cluster.Rebuild(v, sc))

	got, err := cluster.FindFree(v, sc)
	require.NoError(t, err)
	require.NotEqual(t, fatfs.ClusterID(3), got)
}
