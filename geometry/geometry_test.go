package geometry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/geometry"
)

func TestClusterSizeForSmallFAT12Volume(t *testing.T) {
	n, err := geometry.ClusterSizeFor(codec.FAT12, 8000, 512)
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)
}

func TestClusterSizeForLargeFAT12VolumeFallsThroughToLastRow(t *testing.T) {
	n, err := geometry.ClusterSizeFor(codec.FAT12, 100000, 512)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n)
}

func TestClusterSizeForFAT16PicksSmallestFittingRow(t *testing.T) {
	n, err := geometry.ClusterSizeFor(codec.FAT16, 20000, 512)
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)
}

func TestClusterSizeForFAT32(t *testing.T) {
	n, err := geometry.ClusterSizeFor(codec.FAT32, 20000000, 512)
	require.NoError(t, err)
	require.Equal(t, uint32(16), n)
}

func TestClusterSizeForUnknownFATTypeFails(t *testing.T) {
	_, err := geometry.ClusterSizeFor(codec.FATType(99), 8000, 512)
	require.Error(t, err)
}

func TestClusterSizeForRejectsNearFAT12Boundary(t *testing.T) {
	// Pick a total-sector count whose resulting cluster count lands right at
	// the 4084-cluster FAT12/16 boundary so the ±16 guard band rejects it.
	const sectorSize = 512
	const sectorsPerCluster = 2
	boundaryClusters := uint64(4084)
	totalSectors := boundaryClusters * sectorsPerCluster

	_, err := geometry.ClusterSizeFor(codec.FAT12, totalSectors, sectorSize)
	require.Error(t, err)
}
