// Package cluster implements the cluster chain manager (component C3): free
// cluster search, chain allocation with rewind-on-exhaustion, forward/reverse
// deletion, and forward/reverse chain follow.
//
// Grounded on the teacher's chain-walking shape in drivers/fat/driverbase.go
// (listClusters/getClusterInChain), and on drivers/common/allocatormap.go's
// bitmap first-fit scan, which this package adapts from a ground-truth
// allocation bitmap into an optional free-cluster scan *cache*: the FAT
// itself, not a bitmap, is this engine's source of truth for allocation
// state, since the FAT must remain correct even when the cache is absent or
// stale.
package cluster

import (
	"github.com/boljen/go-bitmap"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/fatentry"
)

// ScanCache is an optional free-cluster bitmap accelerating repeated
// searches, grounded on drivers/common/allocatormap.go's Allocator. It is
// advisory only: any write path also updates the FAT itself, and Rebuild
// can always reconstruct it from the FAT.
type ScanCache struct {
	free bitmap.Bitmap
	base fatfs.ClusterID // cluster number that bit 0 represents (== 2)
	n    int
}

// NewScanCache allocates an empty cache for maxClusNbr data clusters.
func NewScanCache(maxClusNbr fatfs.ClusterID) *ScanCache {
	n := int(maxClusNbr) - 2
	if n < 0 {
		n = 0
	}
	return &ScanCache{free: bitmap.New(n), base: 2, n: n}
}

func (s *ScanCache) idx(c fatfs.ClusterID) int { return int(c - s.base) }

func (s *ScanCache) markFree(c fatfs.ClusterID, free bool) {
	if s == nil {
		return
	}
	i := s.idx(c)
	if i < 0 || i >= s.n {
		return
	}
	s.free.Set(i, free)
}

// Rebuild rescans the whole FAT and repopulates the cache. Callers run this
// once at mount time; after that, allocation and deletion keep it current
// incrementally.
func Rebuild(v *fatfs.Volume, s *ScanCache) error {
	for c := fatfs.ClusterID(2); c < v.MaxClusNbr; c++ {
		val, err := fatentry.Read(v, c)
		if err != nil {
			return err
		}
		s.markFree(c, fatentry.IsFree(v, val))
	}
	return nil
}

// FindFree implements the §4.3.1 free-cluster search: starts at v's
// next_clus_nbr hint, wraps at max_clus_nbr back to 2, and scans until a
// FREE entry is found. Wraparound back to the start means device full.
// Sector-boundary-straddling FAT12 entries are skipped while journaling is
// started, per §4.2's interlock.
func FindFree(v *fatfs.Volume, s *ScanCache) (fatfs.ClusterID, error) {
	if v.MaxClusNbr <= 2 {
		return 0, fatfs.ErrDeviceFull
	}

	start := v.NextClusNbr
	if start < 2 || start >= v.MaxClusNbr {
		start = 2
	}

	cur := start
	for {
		if ok, err := isFree(v, s, cur); err != nil {
			return 0, err
		} else if ok && !excludedByJournal(v, cur) {
			v.NextClusNbr = cur + 1
			if v.NextClusNbr >= v.MaxClusNbr {
				v.NextClusNbr = 2
			}
			return cur, nil
		}

		cur++
		if cur >= v.MaxClusNbr {
			cur = 2
		}
		if cur == start {
			return 0, fatfs.ErrDeviceFull
		}
	}
}

func isFree(v *fatfs.Volume, s *ScanCache, c fatfs.ClusterID) (bool, error) {
	if s != nil {
		i := s.idx(c)
		if i >= 0 && i < s.n {
			return s.free.Get(i), nil
		}
	}
	val, err := fatentry.Read(v, c)
	if err != nil {
		return false, err
	}
	return fatentry.IsFree(v, val), nil
}

func excludedByJournal(v *fatfs.Volume, c fatfs.ClusterID) bool {
	if v.JournalState&fatfs.JournalStarted == 0 {
		return false
	}
	return fatentry.Straddles(v, c)
}

// Alloc implements §4.3.2. When startClus is 0 it begins a brand-new chain;
// otherwise startClus is taken as the chain's terminal cluster: if its FAT
// entry already links to a valid successor, that successor is returned and
// nothing is allocated, and if it is EOC, n more links are appended after
// it. rec logs the chain-alloc intent record before any FAT write; for a new
// chain the record names the first cluster the chain will start at.
func Alloc(v *fatfs.Volume, s *ScanCache, rec fatfs.JournalRecorder, startClus fatfs.ClusterID, n uint32) (fatfs.ClusterID, error) {
	isNewChain := startClus == 0

	var tail fatfs.ClusterID
	if isNewChain {
		tail = 0
	} else {
		val, err := fatentry.Read(v, startClus)
		if err != nil {
			return 0, err
		}
		if fatentry.IsValidNext(v, val) {
			return fatfs.ClusterID(val), nil
		}
		if !fatentry.IsEOC(v, val) {
			if fatentry.IsBad(v, val) {
				return 0, fatfs.ErrInvalidCluster.WithMessage("chain terminal cluster is marked BAD")
			}
			return 0, fatfs.ErrChainEndsEarly
		}
		tail = startClus
	}

	logClus := startClus
	if isNewChain {
		first, err := FindFree(v, s)
		if err != nil {
			return 0, err
		}
		// Leave the hint on first so the loop's first FindFree returns it.
		logClus = first
		v.NextClusNbr = first
	}
	if err := rec.LogChainAlloc(logClus, isNewChain); err != nil {
		return 0, err
	}

	var chainHead fatfs.ClusterID
	written := make([]fatfs.ClusterID, 0, n)

	for i := uint32(0); i < n; i++ {
		next, err := FindFree(v, s)
		if err != nil {
			if rerr := reverseRewind(v, s, startClus, isNewChain, written); rerr != nil {
				return 0, rerr
			}
			return 0, fatfs.ErrDeviceFull
		}

		if tail != 0 {
			if err := fatentry.Write(v, tail, uint32(next)); err != nil {
				return 0, err
			}
		} else {
			chainHead = next
		}
		if err := fatentry.Write(v, next, v.Sentinels().EOCBase); err != nil {
			return 0, err
		}
		s.markFree(next, false)
		written = append(written, next)
		tail = next
	}

	if v.QueryCache.Valid {
		if v.QueryCache.FreeClusters >= n {
			v.QueryCache.FreeClusters -= n
		} else {
			v.InvalidateQueryCache()
		}
	}

	if isNewChain {
		return chainHead, nil
	}
	return written[0], nil
}

// reverseRewind undoes a partially completed allocation after free-cluster
// exhaustion, per §4.3.2's rewind-on-exhaustion rule: every cluster written
// this call is freed, and when the allocation was extending an existing
// chain (not starting a brand-new one), startClus's terminal link — already
// overwritten by the loop's first iteration — is restored to EOC so the
// caller is left with the same well-formed, merely shorter chain it had
// before the call, never one pointing at a freed cluster.
func reverseRewind(v *fatfs.Volume, s *ScanCache, startClus fatfs.ClusterID, isNewChain bool, written []fatfs.ClusterID) error {
	for i := len(written) - 1; i >= 0; i-- {
		c := written[i]
		if err := fatentry.Write(v, c, v.Sentinels().Free); err != nil {
			return err
		}
		s.markFree(c, true)
	}
	if !isNewChain && len(written) > 0 {
		if err := fatentry.Write(v, startClus, v.Sentinels().EOCBase); err != nil {
			return err
		}
	}
	return nil
}

// ChainDelete implements §4.3.3: walks the chain starting at startClus,
// freeing every cluster (or, if !delFirst, leaving the first cluster in
// place marked EOC). Deletion is idempotent: a chain already fully FREE
// converges immediately. Before any write, the chain-delete record is
// logged with up to maxChainMarkers cluster numbers sampled along the chain
// by sampleChainMarkers, for the journal's replay (§4.8.2).
func ChainDelete(v *fatfs.Volume, s *ScanCache, rec fatfs.JournalRecorder, startClus fatfs.ClusterID, delFirst bool, tolerateInvalid bool) (freed uint32, err error) {
	markers, err := sampleChainMarkers(v, startClus)
	if err != nil {
		return 0, err
	}
	if err := rec.LogChainDelete(startClus, delFirst, markers); err != nil {
		return 0, err
	}

	cur := startClus
	first := true
	for cur != 0 {
		val, rerr := fatentry.Read(v, cur)
		if rerr != nil {
			return freed, rerr
		}
		// A FREE entry where a link is expected was released by an earlier pass.
		if fatentry.IsFree(v, val) && (delFirst || !first) {
			break
		}

		if first && !delFirst {
			if werr := fatentry.Write(v, cur, v.Sentinels().EOCBase); werr != nil {
				return freed, werr
			}
			first = false
		} else {
			if werr := fatentry.Write(v, cur, v.Sentinels().Free); werr != nil {
				return freed, werr
			}
			s.markFree(cur, true)
			freed++
			first = false
		}

		if fatentry.IsEOC(v, val) {
			break
		}
		if !fatentry.IsValidNext(v, val) {
			if tolerateInvalid {
				break
			}
			return freed, fatfs.ErrChainEndsEarly
		}
		cur = fatfs.ClusterID(val)
	}

	if v.QueryCache.Valid {
		v.QueryCache.FreeClusters += freed
	}
	return freed, nil
}

// maxChainMarkers bounds how many replay markers a chain delete logs, so a
// multi-thousand-cluster file's journal record stays small. Chains at or
// under this length get one marker per cluster — the journal's only record
// of chain order once fatentry writes start overwriting it — and longer
// ones fall back to an even stride, trading exact resume granularity for a
// bounded record size.
const maxChainMarkers = 256

// sampleChainMarkers walks the chain read-only before any fatentry write
// happens, recording cluster numbers for forwardCompleteChainDel (§4.8.2)
// to replay a crashed chain_del forward from where it stopped instead of
// from scratch, once the crash has already overwritten the very links a
// forward walk would otherwise need.
func sampleChainMarkers(v *fatfs.Volume, startClus fatfs.ClusterID) ([]fatfs.ClusterID, error) {
	var chain []fatfs.ClusterID
	cur := startClus
	for cur != 0 {
		chain = append(chain, cur)
		val, err := fatentry.Read(v, cur)
		if err != nil {
			return nil, err
		}
		if fatentry.IsEOC(v, val) || !fatentry.IsValidNext(v, val) {
			break
		}
		cur = fatfs.ClusterID(val)
	}
	if len(chain) <= maxChainMarkers {
		return chain, nil
	}
	stride := (len(chain) + maxChainMarkers - 1) / maxChainMarkers
	var markers []fatfs.ClusterID
	for i := 0; i < len(chain); i += stride {
		markers = append(markers, chain[i])
	}
	return markers, nil
}

// Follow implements the forward half of §4.3.5: walks length links from
// start (inclusive of start as link 0) or stops at EOC/invalid, whichever
// comes first.
func Follow(v *fatfs.Volume, start fatfs.ClusterID, length uint32) ([]fatfs.ClusterID, error) {
	out := make([]fatfs.ClusterID, 0, length)
	cur := start
	for i := uint32(0); i < length; i++ {
		if !v.IsValidClusterNumber(cur) {
			break
		}
		out = append(out, cur)
		val, err := fatentry.Read(v, cur)
		if err != nil {
			return out, err
		}
		if fatentry.IsEOC(v, val) || !fatentry.IsValidNext(v, val) {
			break
		}
		cur = fatfs.ClusterID(val)
	}
	return out, nil
}

// ReverseFollow implements §4.3.5's reverse follow: walks the FAT backward
// from index target-1, wrapping around, looking for any entry whose value
// equals target. Returns 0 if target is the first cluster of its chain
// (no predecessor found in a full revolution).
func ReverseFollow(v *fatfs.Volume, target fatfs.ClusterID) (fatfs.ClusterID, error) {
	if v.MaxClusNbr <= 2 {
		return 0, nil
	}
	cur := target - 1
	if cur < 2 {
		cur = v.MaxClusNbr - 1
	}
	for cur != target {
		val, err := fatentry.Read(v, cur)
		if err != nil {
			return 0, err
		}
		if fatfs.ClusterID(val) == target {
			return cur, nil
		}
		cur--
		if cur < 2 {
			cur = v.MaxClusNbr - 1
		}
	}
	return 0, nil
}
