// Package volume implements the volume façade (component C9): mount,
// format, query, label get/set, and the invariant checker, wiring together
// codec, fatentry, cluster, sectorio, names, direntry, entryops, and
// journal into a single entry point per mounted volume.
//
// Grounded on the teacher's DetermineFATVersion/NewFATBootSectorFromStream
// in drivers/fat/common.go and the FAT32-specific RawFAT32BootSector in
// drivers/fat/fat32.go, generalized into one mount routine that decides FAT
// type from the computed data-cluster count rather than the on-disk type
// string, per spec.
package volume

import (
	"github.com/hashicorp/go-multierror"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/cluster"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/direntry"
	"github.com/sigurdsen/fatfs/entryops"
	"github.com/sigurdsen/fatfs/fatentry"
	"github.com/sigurdsen/fatfs/geometry"
	"github.com/sigurdsen/fatfs/journal"
	"github.com/sigurdsen/fatfs/names"
	"github.com/sigurdsen/fatfs/sectorio"
)

func readFATEntry(v *fatfs.Volume, c fatfs.ClusterID) (uint32, error) { return fatentry.Read(v, c) }

func sectorioNext(v *fatfs.Volume, sec fatfs.SectorID) (fatfs.SectorID, error) {
	return sectorio.SecNextGet(v, sec)
}

const journalFileName = "JOURNAL.JNL"
const journalSectorsDefault = 32

// MountOptions configures a mount, per §9 Design Notes: read-only mode,
// disabling FAT12/LFN/journal, journal size, and the clock collaborator are
// all mount-time configuration rather than compile-time feature flags.
// DisableFAT12 and DisableLFN are not read by Mount or any operation.
type MountOptions struct {
	ReadOnly       bool
	DisableFAT12   bool
	DisableLFN     bool
	DisableJournal bool
	JournalSectors uint32
	Clock          fatfs.Clock
}

// Volume is the mounted handle callers operate on.
type Volume struct {
	state   *fatfs.Volume
	scan    *cluster.ScanCache
	journal *journal.Journal
	opts    MountOptions
}

// Mount reads sector 0, verifies the BPB, decides the FAT type from the
// computed data-cluster count (never from the on-disk type string), and
// mounts or replays the journal.
func Mount(device fatfs.BlockDevice, cache fatfs.BufferCache, opts MountOptions) (*Volume, error) {
	boot, rawBoot, err := readBootSector(device, cache)
	if err != nil {
		return nil, err
	}
	if !codec.VerifyBootSignature(rawBoot) {
		return nil, fatfs.ErrFileSystemCorrupted.WithMessage("missing 0xAA55 boot signature")
	}

	v := &fatfs.Volume{
		Device:  device,
		Cache:   cache,
		Clock:   opts.Clock,
		SecSize: uint32(boot.BytesPerSector),
		ClusSizeSec: uint32(boot.SectorsPerCluster),
		NumFATs: boot.NumFATs,
		ReadOnly: opts.ReadOnly,
	}
	v.ClusSizeBytes = v.SecSize * v.ClusSizeSec
	v.ClusSizeLog2 = log2(v.ClusSizeBytes)
	v.RsvdSize = uint32(boot.ReservedSectors)
	v.FATSize = boot.FATSize

	rootDirSectors := (uint32(boot.RootEntryCount)*32 + v.SecSize - 1) / v.SecSize
	v.RootDirStart = fatfs.SectorID(v.RsvdSize + uint32(v.NumFATs)*v.FATSize)
	v.RootDirSize = rootDirSectors
	v.DataStart = v.RootDirStart + fatfs.SectorID(rootDirSectors)

	totalDataSectors := boot.TotalSectors - uint32(v.DataStart)
	dataClusters := totalDataSectors / v.ClusSizeSec
	v.MaxClusNbr = fatfs.ClusterID(dataClusters + 2)
	v.FATType = codec.DetermineFATType(dataClusters)

	if v.FATType == codec.FAT32 {
		v.RootCluster = fatfs.ClusterID(boot.RootCluster)
		v.RootDirSize = 0
	}
	v.NextClusNbr = 2

	vol := &Volume{state: v, opts: opts}
	vol.scan = cluster.NewScanCache(v.MaxClusNbr)
	if err := cluster.Rebuild(v, vol.scan); err != nil {
		return nil, err
	}

	if !opts.DisableJournal {
		if err := vol.mountJournal(); err != nil {
			return nil, err
		}
	}

	return vol, nil
}

func log2(x uint32) uint32 {
	n := uint32(0)
	for x > 1 {
		x >>= 1
		n++
	}
	return n
}

func readBootSector(device fatfs.BlockDevice, cache fatfs.BufferCache) (codec.BootSector, []byte, error) {
	buf, err := cache.Get()
	if err != nil {
		return codec.BootSector{}, nil, err
	}
	defer cache.Free(buf)
	if err := cache.Set(buf, 0, fatfs.SectorMGMT, true); err != nil {
		return codec.BootSector{}, nil, err
	}
	raw := make([]byte, len(buf.Bytes()))
	copy(raw, buf.Bytes())
	return codec.DecodeBootSector(raw), raw, nil
}

// mountJournal locates (or, on first mount of a freshly formatted volume,
// creates) the hidden journal file, replays any in-flight records, then
// starts logging.
func (vol *Volume) mountJournal() error {
	v := vol.state
	noop := fatfs.NoopJournal{}

	rootSector := v.RootDirStart
	if v.FATType == codec.FAT32 {
		rootSector = v.FirstSectorOfCluster(v.RootCluster)
	}

	rng, found, err := direntry.Find(v, rootSector, journalFileName)
	var firstClus fatfs.ClusterID
	journalSectors := vol.opts.JournalSectors
	if journalSectors == 0 {
		journalSectors = journalSectorsDefault
	}

	if err != nil {
		return err
	}
	if !found {
		clustersNeeded := (journalSectors + v.ClusSizeSec - 1) / v.ClusSizeSec
		head, err := cluster.Alloc(v, vol.scan, noop, 0, clustersNeeded)
		if err != nil {
			return err
		}
		firstClus = head
		ts := fatfs.Timestamp{}
		if v.Clock != nil {
			if got, cerr := v.Clock.Now(); cerr == nil {
				ts = got
			}
		}
		_, err = direntry.Create(v, vol.scan, noop, rootSector, direntry.CreateParams{
			Name:         journalFileName,
			FirstCluster: head,
			FileSize:     journalSectors * v.SecSize,
			Attributes:   uint8(fatfs.AttrSystem) | uint8(fatfs.AttrHidden),
			Timestamp:    ts,
		})
		if err != nil {
			return err
		}
	} else {
		raw, rerr := journalDirentRaw(v, rng)
		if rerr != nil {
			return rerr
		}
		d := codec.DecodeDirent(raw, v.FATType)
		firstClus = fatfs.ClusterID(d.FirstCluster)
	}

	firstSec := v.FirstSectorOfCluster(firstClus)
	vol.journal = journal.New(v, vol.scan, firstSec, journalSectors)
	v.JournalState |= fatfs.JournalOpen

	if err := vol.journal.Replay(); err != nil {
		return fatfs.ErrFileSystemCorrupted.Wrap(err)
	}
	vol.journal.Start()
	return nil
}

func journalDirentRaw(v *fatfs.Volume, r direntry.Range) ([]byte, error) {
	buf, err := v.Cache.Get()
	if err != nil {
		return nil, err
	}
	defer v.Cache.Free(buf)
	if err := v.Cache.Set(buf, uint64(r.End.Sector), fatfs.SectorDir, true); err != nil {
		return nil, err
	}
	out := make([]byte, codec.DirentSize)
	copy(out, buf.Bytes()[r.End.Offset:r.End.Offset+codec.DirentSize])
	return out, nil
}

// recorder returns the journal if mounted, else a no-op, for callers that
// need a fatfs.JournalRecorder.
func (vol *Volume) recorder() fatfs.JournalRecorder {
	if vol.journal == nil {
		return fatfs.NoopJournal{}
	}
	return vol.journal
}

// commitJournal clears the journal once an operation that logged intent
// through it has run to completion. Leaving committed records in place
// would make the next mount's replay undo work that already finished
// cleanly — replay only needs to see records from an operation that was
// still in flight when the volume went away.
func (vol *Volume) commitJournal() error {
	if vol.journal == nil {
		return nil
	}
	return vol.journal.Clear()
}

// Find delegates to entryops.Find under the volume lock.
func (vol *Volume) Find(path string, mode fatfs.Mode) (entryops.Result, error) {
	vol.state.Lock()
	defer vol.state.Unlock()
	if vol.opts.ReadOnly && (mode.CanWrite() || mode.IsDelete()) {
		return entryops.Result{}, fatfs.ErrReadOnlyVolume
	}
	res, err := entryops.Find(vol.state, vol.scan, vol.recorder(), path, mode)
	if err != nil {
		return res, err
	}
	return res, vol.commitJournal()
}

// Rename delegates to entryops.Rename under the volume lock.
func (vol *Volume) Rename(oldPath, newPath string) error {
	vol.state.Lock()
	defer vol.state.Unlock()
	if vol.opts.ReadOnly {
		return fatfs.ErrReadOnlyVolume
	}
	if err := entryops.Rename(vol.state, vol.scan, vol.recorder(), oldPath, newPath); err != nil {
		return err
	}
	return vol.commitJournal()
}

// Query implements §4.9's free/bad cluster count, caching the result.
func (vol *Volume) Query() (free, bad uint32, err error) {
	vol.state.Lock()
	defer vol.state.Unlock()
	if vol.state.QueryCache.Valid {
		return vol.state.QueryCache.FreeClusters, vol.state.QueryCache.BadClusters, nil
	}
	return vol.rescanCounts()
}

func (vol *Volume) rescanCounts() (uint32, uint32, error) {
	v := vol.state
	var free, bad uint32
	for c := fatfs.ClusterID(2); c < v.MaxClusNbr; c++ {
		val, err := readFATEntry(v, c)
		if err != nil {
			return 0, 0, err
		}
		switch {
		case val == v.Sentinels().Free:
			free++
		case val == v.Sentinels().Bad:
			bad++
		}
	}
	v.QueryCache = fatfs.QueryCache{FreeClusters: free, BadClusters: bad, Valid: true}
	return free, bad, nil
}

// CheckInvariants checks part of §8.1 and returns a *multierror.Error with
// one entry per finding (nil if none): unreadable FAT entries, directory
// entries whose first cluster is out of range or shared with another entry
// ("." and ".." excepted; the walk stops at the first such finding), and a
// recount of FREE entries against the in-use and BAD entries of the FAT. It
// does not check chain-head links, FAT-copy equality or the journal's
// contents, and it does not report BAD clusters.
func CheckInvariants(vol *Volume) error {
	vol.state.Lock()
	defer vol.state.Unlock()
	v := vol.state
	var errs *multierror.Error

	seenFirstClusters := map[fatfs.ClusterID]bool{}
	freeCount, badCount := uint32(0), uint32(0)
	for c := fatfs.ClusterID(2); c < v.MaxClusNbr; c++ {
		val, err := readFATEntry(v, c)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		switch {
		case val == v.Sentinels().Free:
			freeCount++
		case val == v.Sentinels().Bad:
			badCount++
		}
	}

	rootSector := v.RootDirStart
	if v.FATType == codec.FAT32 {
		rootSector = v.FirstSectorOfCluster(v.RootCluster)
	}
	if err := walkForInvariants(v, rootSector, seenFirstClusters); err != nil {
		errs = multierror.Append(errs, err)
	}

	expectedFree := uint32(v.MaxClusNbr) - 2 - badCount - usedCount(v)
	if freeCount != expectedFree {
		errs = multierror.Append(errs, fatfs.ErrFileSystemCorrupted.WithMessage("free cluster count mismatch"))
	}

	return errs.ErrorOrNil()
}

func usedCount(v *fatfs.Volume) uint32 {
	used := uint32(0)
	for c := fatfs.ClusterID(2); c < v.MaxClusNbr; c++ {
		val, err := readFATEntry(v, c)
		if err != nil {
			continue
		}
		if val != v.Sentinels().Free && val != v.Sentinels().Bad {
			used++
		}
	}
	return used
}

func walkForInvariants(v *fatfs.Volume, dirSector fatfs.SectorID, seen map[fatfs.ClusterID]bool) error {
	cur := direntry.Cursor{Sector: dirSector, Offset: 0}
	for {
		raw, err := readRawSlot(v, cur)
		if err != nil {
			return err
		}
		switch codec.ClassifySlot(raw) {
		case codec.SlotEndOfDirectory:
			return nil
		case codec.SlotShortName:
			d := codec.DecodeDirent(raw, v.FATType)
			// "." and ".." share their clusters with the directory and its parent.
			isDot := names.UnpackShortName(d.Name) == "." || names.UnpackShortName(d.Name) == ".."
			if d.FirstCluster != 0 && !isDot {
				clus := fatfs.ClusterID(d.FirstCluster)
				if !v.IsValidClusterNumber(clus) {
					return fatfs.ErrFileSystemCorrupted.WithMessage("entry points to invalid cluster")
				}
				if seen[clus] {
					return fatfs.ErrFileSystemCorrupted.WithMessage("cross-linked cluster found")
				}
				seen[clus] = true
				if d.Attributes&uint8(fatfs.AttrDirectory) != 0 {
					if err := walkForInvariants(v, v.FirstSectorOfCluster(clus), seen); err != nil {
						return err
					}
				}
			}
		}

		slotsPerSector := v.SecSize / 32
		if cur.Offset/32+1 < slotsPerSector {
			cur.Offset += 32
		} else {
			// Crossing sector boundaries in a read-only scan doesn't need
			// allocation, so step past it only within the same cluster
			// region; sectorio.SecNextGet handles the chain walk.
			next, err := nextReadOnly(v, cur.Sector)
			if err != nil {
				return err
			}
			cur = direntry.Cursor{Sector: next, Offset: 0}
		}
	}
}

func nextReadOnly(v *fatfs.Volume, sec fatfs.SectorID) (fatfs.SectorID, error) {
	return sectorioNext(v, sec)
}

func readRawSlot(v *fatfs.Volume, c direntry.Cursor) ([]byte, error) {
	buf, err := v.Cache.Get()
	if err != nil {
		return nil, err
	}
	defer v.Cache.Free(buf)
	if err := v.Cache.Set(buf, uint64(c.Sector), fatfs.SectorDir, true); err != nil {
		return nil, err
	}
	out := make([]byte, codec.DirentSize)
	copy(out, buf.Bytes()[c.Offset:c.Offset+codec.DirentSize])
	return out, nil
}
