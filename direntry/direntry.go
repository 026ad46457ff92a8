// Package direntry implements the directory entry engine (component C6):
// a uniform (sector, byte_offset) cursor over raw 32-byte directory slots,
// and the find/create/delete/is-empty operations built on it.
//
// Grounded on the teacher's clusterToDirentSlice/ReadDirFromDirent pattern in
// drivers/fat/driverbase.go, generalized from "decode a whole cluster's
// slots at once" into a slot-at-a-time cursor that can cross sector and
// cluster boundaries via sectorio, since directory growth needs to observe
// and react to the logical end as it's discovered rather than after the
// fact.
package direntry

import (
	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/cluster"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/names"
	"github.com/sigurdsen/fatfs/sectorio"
)

// Cursor identifies one 32-byte slot by its absolute sector and the byte
// offset of the slot within that sector.
type Cursor struct {
	Sector fatfs.SectorID
	Offset uint32 // multiple of codec.DirentSize
}

// Range is an inclusive [Start, End] span of slots, e.g. an LFN sequence
// plus its trailing 8.3 slot.
type Range struct {
	Start Cursor
	End   Cursor
}

func readSlot(v *fatfs.Volume, c Cursor) ([]byte, error) {
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

func writeSlot(v *fatfs.Volume, c Cursor, raw []byte) error {
	buf, err := v.Cache.Get()
	if err != nil {
		return err
	}
	defer v.Cache.Free(buf)
	if err := v.Cache.Set(buf, uint64(c.Sector), fatfs.SectorDir, true); err != nil {
		return err
	}
	copy(buf.Bytes()[c.Offset:c.Offset+codec.DirentSize], raw)
	v.Cache.MarkDirty(buf)
	return v.Cache.Flush(buf)
}

// next advances c by one slot, crossing sector boundaries via sectorio (and
// optionally allocating a new cluster, for Create's growth path).
func next(v *fatfs.Volume, s *cluster.ScanCache, rec fatfs.JournalRecorder, c Cursor, alloc bool) (Cursor, bool, error) {
	slotsPerSector := v.SecSize / codec.DirentSize
	if c.Offset/codec.DirentSize+1 < slotsPerSector {
		return Cursor{Sector: c.Sector, Offset: c.Offset + codec.DirentSize}, false, nil
	}

	var nextSec fatfs.SectorID
	var err error
	if alloc {
		nextSec, err = sectorio.SecNextGetOrAlloc(v, s, rec, c.Sector, true)
	} else {
		nextSec, err = sectorio.SecNextGet(v, c.Sector)
	}
	if err != nil {
		return Cursor{}, false, err
	}
	grew := alloc && nextSec != c.Sector+1
	return Cursor{Sector: nextSec, Offset: 0}, grew, nil
}

// Find implements §4.6.1: scans from firstSector for name, returning the
// slot range to delete/rewrite (the LFN run plus its 8.3 slot, or just the
// 8.3 slot) on a match.
func Find(v *fatfs.Volume, firstSector fatfs.SectorID, name string) (Range, bool, error) {
	cur := Cursor{Sector: firstSector, Offset: 0}
	var lfnStart Cursor
	var lfnRaw [][]byte
	haveLFNStart := false

	for {
		raw, err := readSlot(v, cur)
		if err != nil {
			return Range{}, false, err
		}
		switch codec.ClassifySlot(raw) {
		case codec.SlotEndOfDirectory:
			return Range{}, false, nil
		case codec.SlotDeleted:
			lfnRaw = nil
			haveLFNStart = false
		case codec.SlotLongName:
			if !haveLFNStart {
				lfnStart = cur
				haveLFNStart = true
			}
			lfnRaw = append(lfnRaw, raw)
		default: // short-name slot
			d := codec.DecodeDirent(raw, v.FATType)
			checksum := names.Checksum(d.Name)
			if len(lfnRaw) > 0 {
				reconstructed, ok := names.DecodeLFNSequence(lfnRaw, checksum)
				if ok && names.EqualFold(reconstructed, name) {
					return Range{Start: lfnStart, End: cur}, true, nil
				}
			}
			if names.EqualFold(names.UnpackShortName(d.Name), name) {
				return Range{Start: cur, End: cur}, true, nil
			}
			lfnRaw = nil
			haveLFNStart = false
		}

		nc, _, err := next(v, nil, fatfs.NoopJournal{}, cur, false)
		if err != nil {
			return Range{}, false, err
		}
		cur = nc
	}
}

// CreateParams bundles the fields Create needs to write the winning slot
// range.
type CreateParams struct {
	Name         string
	IsDir        bool
	FirstCluster fatfs.ClusterID
	FileSize     uint32
	Attributes   uint8
	Timestamp    fatfs.Timestamp
}

// Create implements §4.6.2: computes the slot count, scans for (or grows to
// make room for) a contiguous free run, and writes the LFN + 8.3 slots.
func Create(v *fatfs.Volume, s *cluster.ScanCache, rec fatfs.JournalRecorder, firstSector fatfs.SectorID, p CreateParams) (Range, error) {
	needed := names.SlotsNeeded(p.Name)

	runStart, err := findContiguousFreeRun(v, s, rec, firstSector, needed)
	if err != nil {
		return Range{}, err
	}

	var shortRaw [11]byte
	if names.NeedsLongName(p.Name) {
		shortRaw = names.GenerateShortName(p.Name, func(cand [11]byte) bool {
			found, ok, ferr := Find(v, firstSector, names.UnpackShortName(cand))
			_ = found
			return ferr == nil && ok
		})
	} else {
		shortRaw = names.PackShortName(p.Name)
	}

	d := codec.Dirent{
		Name:             shortRaw,
		Attributes:       p.Attributes,
		CreateTimeTenths: uint8(p.Timestamp.HundredthsOfASecond),
		FirstCluster:     uint32(p.FirstCluster),
		FileSize:         p.FileSize,
	}
	d.CreateDate, d.CreateTime = encodeTimestamp(p.Timestamp)
	d.WriteDate, d.WriteTime = d.CreateDate, d.CreateTime
	d.LastAccessDate = d.CreateDate

	slots := [][]byte{}
	if names.NeedsLongName(p.Name) {
		checksum := names.Checksum(shortRaw)
		slots = append(slots, names.EncodeLFNSlots(p.Name, checksum)...)
	}
	slots = append(slots, codec.EncodeDirent(d, v.FATType))

	cursors := make([]Cursor, len(slots))
	cur := runStart
	for i := range slots {
		cursors[i] = cur
		if i < len(slots)-1 {
			nc, _, err := next(v, s, rec, cur, true)
			if err != nil {
				return Range{}, err
			}
			cur = nc
		}
	}

	if err := rec.LogEntryCreate(cursors[0].Sector, cursors[0].Offset, cursors[len(cursors)-1].Sector, cursors[len(cursors)-1].Offset); err != nil {
		return Range{}, err
	}
	for i, raw := range slots {
		if err := writeSlot(v, cursors[i], raw); err != nil {
			return Range{}, err
		}
	}

	return Range{Start: cursors[0], End: cursors[len(cursors)-1]}, nil
}

// findContiguousFreeRun scans firstSector for `needed` consecutive free
// slots (0x00 or 0xE5), growing the directory via sectorio when the
// logical end is reached before enough room is found.
func findContiguousFreeRun(v *fatfs.Volume, s *cluster.ScanCache, rec fatfs.JournalRecorder, firstSector fatfs.SectorID, needed int) (Cursor, error) {
	cur := Cursor{Sector: firstSector, Offset: 0}
	runStart := cur
	runLen := 0

	for {
		raw, err := readSlot(v, cur)
		if err != nil {
			return Cursor{}, err
		}
		kind := codec.ClassifySlot(raw)
		if kind == codec.SlotEndOfDirectory || kind == codec.SlotDeleted {
			if runLen == 0 {
				runStart = cur
			}
			runLen++
			if runLen == needed {
				return runStart, nil
			}
			if kind == codec.SlotEndOfDirectory {
				// Logical end mid-run: everything from here on is free,
				// but "free" slots past the end haven't been materialized
				// yet. Grow by allocating; the new cluster is zero-filled,
				// which both supplies slots and keeps the logical end
				// correctly positioned at its new tail.
				nc, _, err := next(v, s, rec, cur, true)
				if err != nil {
					return Cursor{}, err
				}
				cur = nc
				continue
			}
		} else {
			runLen = 0
		}

		nc, _, err := next(v, s, rec, cur, true)
		if err != nil {
			return Cursor{}, err
		}
		cur = nc
	}
}

// Delete implements §4.6.3: journals the pre-image of every slot in r, then
// marks each slot's first byte 0xE5.
func Delete(v *fatfs.Volume, rec fatfs.JournalRecorder, firstSector fatfs.SectorID, r Range) error {
	slots, cursors, err := collectRange(v, firstSector, r)
	if err != nil {
		return err
	}

	if err := rec.LogEntryUpdate(r.Start.Sector, r.Start.Offset, r.End.Sector, r.End.Offset, slots); err != nil {
		return err
	}
	for i, c := range cursors {
		if err := writeSlot(v, c, codec.MarkDeleted(slots[i])); err != nil {
			return err
		}
	}
	return nil
}

func collectRange(v *fatfs.Volume, firstSector fatfs.SectorID, r Range) ([][]byte, []Cursor, error) {
	var slots [][]byte
	var cursors []Cursor
	cur := r.Start
	for {
		raw, err := readSlot(v, cur)
		if err != nil {
			return nil, nil, err
		}
		slots = append(slots, raw)
		cursors = append(cursors, cur)
		if cur == r.End {
			break
		}
		nc, _, err := next(v, nil, fatfs.NoopJournal{}, cur, false)
		if err != nil {
			return nil, nil, err
		}
		cur = nc
	}
	return slots, cursors, nil
}

// IsEmpty implements §4.6.4: a directory is empty iff it has at most two
// non-deleted entries ("." and "..") before the logical end.
func IsEmpty(v *fatfs.Volume, firstSector fatfs.SectorID) (bool, error) {
	cur := Cursor{Sector: firstSector, Offset: 0}
	count := 0
	for {
		raw, err := readSlot(v, cur)
		if err != nil {
			return false, err
		}
		switch codec.ClassifySlot(raw) {
		case codec.SlotEndOfDirectory:
			return count <= 2, nil
		case codec.SlotDeleted:
			// not counted
		default:
			count++
			if count > 2 {
				return false, nil
			}
		}
		nc, _, err := next(v, nil, fatfs.NoopJournal{}, cur, false)
		if err != nil {
			return false, err
		}
		cur = nc
	}
}

func encodeTimestamp(t fatfs.Timestamp) (date, timeField uint16) {
	y := t.Year - 1980
	if y < 0 {
		y = 0
	}
	date = uint16(y<<9) | uint16(t.Month<<5) | uint16(t.Day)
	timeField = uint16(t.Hour<<11) | uint16(t.Minute<<5) | uint16(t.Second/2)
	return
}
