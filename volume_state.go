package fatfs

import (
	"sync"

	"github.com/sigurdsen/fatfs/codec"
)

// QueryCache is the optional cached free/bad cluster count from §3.1.
type QueryCache struct {
	FreeClusters uint32
	BadClusters  uint32
	Valid        bool
}

// Volume is the in-memory, per-mounted-volume state described in spec §3.1.
// Every mount owns its own Volume; there is no process-wide singleton (§9
// Design Notes).
type Volume struct {
	Device BlockDevice
	Cache  BufferCache
	Clock  Clock

	SecSize       uint32 // bytes per sector; power of 2 in {512,1024,2048,4096}
	ClusSizeSec   uint32 // sectors per cluster; power of 2 in {1..128}
	ClusSizeBytes uint32 // = SecSize * ClusSizeSec; <= 65536
	ClusSizeLog2  uint32 // log2(ClusSizeBytes), cached per §3.1

	FATType codec.FATType

	NumFATs      uint8 // 1 or 2
	RsvdSize     uint32
	FATSize      uint32 // sectors per single FAT
	RootDirStart SectorID
	RootDirSize  uint32 // FAT12/16 only; 0 on FAT32
	RootCluster  ClusterID // FAT32 only
	DataStart    SectorID
	MaxClusNbr   ClusterID // one past the last valid cluster number

	NextClusNbr ClusterID // free-search hint

	JournalState JournalState
	QueryCache   QueryCache

	ReadOnly bool

	mu sync.Mutex
}

// Lock acquires the volume lock for the duration of a top-level entry
// operation, per spec §5: "a volume holds a lock for the duration of every
// top-level entry operation."
func (v *Volume) Lock() { v.mu.Lock() }

// Unlock releases the volume lock.
func (v *Volume) Unlock() { v.mu.Unlock() }

// Sentinels returns the FREE/BAD/EOC sentinel values for this volume's FAT
// width.
func (v *Volume) Sentinels() ClusterSentinels {
	switch v.FATType {
	case codec.FAT12:
		return sentinels12
	case codec.FAT16:
		return sentinels16
	default:
		return sentinels32
	}
}

// IsValidClusterNumber reports whether c lies in the legal data-cluster range
// [2, MaxClusNbr), per §3.1's invariant.
func (v *Volume) IsValidClusterNumber(c ClusterID) bool {
	return c >= 2 && c < v.MaxClusNbr
}

// FirstSectorOfCluster maps a cluster number to its first absolute sector
// (component C4 territory, but this arithmetic belongs to the volume
// geometry itself).
func (v *Volume) FirstSectorOfCluster(c ClusterID) SectorID {
	return v.DataStart + SectorID(uint32(c-2)*v.ClusSizeSec)
}

// InvalidateQueryCache marks the cached free/bad counts stale.
func (v *Volume) InvalidateQueryCache() {
	v.QueryCache.Valid = false
}
