// Package sectorio implements the sector walker (component C4): stepping a
// cursor sector-by-sector through the root directory region and through
// cluster chains, growing the chain on demand.
//
// Grounded on the teacher's getFirstSectorOfCluster/readAbsoluteSectors/
// readSectorsInCluster shape in drivers/fat/driverbase.go, generalized from
// one-shot whole-cluster reads into a stepper that knows about the fixed
// FAT12/16 root directory region, which driverbase.go's FAT32-only-minded
// cluster math doesn't model.
package sectorio

import (
	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/cluster"
)

// SecNextGet implements §4.4's sec_next_get. If sec lies in the fixed
// root-directory region (FAT12/16 only) it returns sec+1 so long as that
// stays within the region, else fatfs.ErrDirectoryFull. Otherwise it
// computes the remaining sectors in the current cluster; if any remain it
// returns sec+1, else it follows the chain to the next cluster's first
// sector.
func SecNextGet(v *fatfs.Volume, sec fatfs.SectorID) (fatfs.SectorID, error) {
	if inRootRegion(v, sec) {
		next := sec + 1
		if next < v.RootDirStart+fatfs.SectorID(v.RootDirSize) {
			return next, nil
		}
		return 0, fatfs.ErrDirectoryFull
	}

	clus, offInClus := sectorToCluster(v, sec)
	if offInClus+1 < v.ClusSizeSec {
		return sec + 1, nil
	}

	chain, err := cluster.Follow(v, clus, 2)
	if err != nil {
		return 0, err
	}
	if len(chain) < 2 {
		return 0, fatfs.ErrChainEndsEarly
	}
	return v.FirstSectorOfCluster(chain[1]), nil
}

// SecNextGetOrAlloc is SecNextGet, but on chain exhaustion it allocates one
// more cluster (§4.3.2) instead of failing. If a new cluster was allocated
// and clear is true, every sector of it is zeroed, each zeroed sector being
// flushed through the buffer cache — the mechanism directories use to grow.
func SecNextGetOrAlloc(v *fatfs.Volume, s *cluster.ScanCache, rec fatfs.JournalRecorder, sec fatfs.SectorID, clear bool) (fatfs.SectorID, error) {
	next, err := SecNextGet(v, sec)
	if err == nil {
		return next, nil
	}
	if err != fatfs.ErrChainEndsEarly {
		return 0, err
	}

	clus, _ := sectorToCluster(v, sec)
	newHead, aerr := cluster.Alloc(v, s, rec, clus, 1)
	if aerr != nil {
		return 0, aerr
	}

	firstSec := v.FirstSectorOfCluster(newHead)
	if clear {
		if err := zeroCluster(v, firstSec); err != nil {
			return 0, err
		}
	}
	return firstSec, nil
}

func inRootRegion(v *fatfs.Volume, sec fatfs.SectorID) bool {
	return v.RootDirSize > 0 && sec >= v.RootDirStart && sec < v.RootDirStart+fatfs.SectorID(v.RootDirSize)
}

func sectorToCluster(v *fatfs.Volume, sec fatfs.SectorID) (fatfs.ClusterID, uint32) {
	rel := uint32(sec - v.DataStart)
	clusIdx := rel / v.ClusSizeSec
	offInClus := rel % v.ClusSizeSec
	return fatfs.ClusterID(clusIdx + 2), offInClus
}

// zeroCluster writes zero-filled sectors across an entire cluster, flushing
// each buffer as it goes so the zero write isn't shadowed by a stale dirty
// buffer still pinned from a previous pass.
func zeroCluster(v *fatfs.Volume, firstSec fatfs.SectorID) error {
	zero := make([]byte, v.SecSize)
	for i := uint32(0); i < v.ClusSizeSec; i++ {
		buf, err := v.Cache.Get()
		if err != nil {
			return err
		}
		if err := v.Cache.Set(buf, uint64(firstSec)+uint64(i), fatfs.SectorDir, false); err != nil {
			v.Cache.Free(buf)
			return err
		}
		copy(buf.Bytes(), zero)
		v.Cache.MarkDirty(buf)
		if err := v.Cache.Flush(buf); err != nil {
			v.Cache.Free(buf)
			return err
		}
		v.Cache.Free(buf)
	}
	return nil
}
