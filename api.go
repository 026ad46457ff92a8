// Package fatfs implements the core of a FAT12/16/32 filesystem engine:
// cluster allocation, directory entry management, and crash-consistent
// journaling, suitable for embedded and storage-device contexts. The
// interactive shell, block device driver, sector cache, clock, mount table,
// and partition-table parser are external collaborators, described here only
// by interface contract (§6) and implemented by the caller (or, for testing,
// by the memdisk and blockcache packages).
package fatfs

import "time"

// SectorType lets the block device route writes differently depending on
// what's being written, e.g. to a wear-leveling translation layer.
type SectorType int

const (
	SectorMGMT SectorType = iota // boot sector, FSINFO, FAT, journal
	SectorDir                    // directory data
	SectorFile                   // file data
)

// BlockDevice is the §6.1 block device contract: raw sector read/write/hint
// primitives. Implementations must make WriteSectors's effects durable
// before it returns, or the journal's crash-consistency guarantees do not
// hold.
type BlockDevice interface {
	ReadSectors(buf []byte, lba uint64, n uint, kind SectorType) error
	WriteSectors(buf []byte, lba uint64, n uint, kind SectorType) error
	// ReleaseSectors hints that the engine no longer needs this range, for
	// discard-capable devices. Implementations may treat this as a no-op.
	ReleaseSectors(lba uint64, n uint) error
}

// Buffer is a single pinned sector's worth of memory, owned by a BufferCache.
type Buffer interface {
	Bytes() []byte
	LBA() uint64
}

// BufferCache is the §6.2 sector buffer cache contract.
type BufferCache interface {
	Get() (Buffer, error)
	Set(buf Buffer, lba uint64, kind SectorType, readIfAbsent bool) error
	MarkDirty(buf Buffer)
	Flush(buf Buffer) error
	Free(buf Buffer)
}

// Timestamp is the decomposed FAT timestamp the Clock contract yields.
type Timestamp struct {
	Year, Month, Day    int
	Hour, Minute, Second int
	HundredthsOfASecond int
}

// Clock is the §6.3 clock contract. Failure is non-fatal: callers write
// zeroed date/time fields on error, which is legal on FAT.
type Clock interface {
	Now() (Timestamp, error)
}

// TimestampFromTime converts a time.Time into the decomposed form the codec
// expects, clamping the year to the FAT epoch (1980) if it's out of range.
func TimestampFromTime(t time.Time) Timestamp {
	year := t.Year()
	if year < 1980 {
		year = 1980
	}
	return Timestamp{
		Year:                year,
		Month:               int(t.Month()),
		Day:                 t.Day(),
		Hour:                t.Hour(),
		Minute:              t.Minute(),
		Second:              t.Second(),
		HundredthsOfASecond: t.Nanosecond() / 10_000_000,
	}
}
