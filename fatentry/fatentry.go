// Package fatentry implements the FAT table accessor (component C2):
// reading and writing one FAT entry at 12/16/32-bit width, including FAT12's
// bit-packed 1.5-byte entries and two-FAT mirroring.
//
// Grounded on the teacher's FATDriverCommon interface shape in
// drivers/fat/driverbase.go (GetClusterAtIndex/SetClusterAtIndex/
// IsValidCluster/IsEndOfChain), generalized to own the bit-packing work the
// teacher left unimplemented per version.
package fatentry

import (
	"encoding/binary"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/codec"
)

// entryByteOffset returns the byte offset of clus's entry within a single
// FAT, for the given width.
func entryByteOffset(fatType codec.FATType, clus fatfs.ClusterID) uint32 {
	switch fatType {
	case codec.FAT12:
		return uint32(clus) + uint32(clus)/2
	case codec.FAT16:
		return uint32(clus) * 2
	default:
		return uint32(clus) * 4
	}
}

// Straddles reports whether clus's FAT12 entry straddles a sector boundary
// (spec §4.2: "the entry straddles a sector boundary when this offset equals
// sec_size-1"). Always false for FAT16/32, whose entries are sector-aligned
// by construction (2 and 4 evenly divide any supported sector size).
func Straddles(v *fatfs.Volume, clus fatfs.ClusterID) bool {
	if v.FATType != codec.FAT12 {
		return false
	}
	off := entryByteOffset(codec.FAT12, clus)
	return off%v.SecSize == v.SecSize-1
}

// readFATSector pins, reads, and releases one absolute FAT sector (FAT #1).
func readFATSector(v *fatfs.Volume, sector fatfs.SectorID) ([]byte, error) {
	buf, err := v.Cache.Get()
	if err != nil {
		return nil, fatfs.ErrIOFailed.Wrap(err)
	}
	defer v.Cache.Free(buf)

	if err := v.Cache.Set(buf, uint64(sector), fatfs.SectorMGMT, true); err != nil {
		return nil, fatfs.ErrIOFailed.Wrap(err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// writeFATSector writes one sector of FAT copy fatIndex. Mirroring to every
// additional FAT (§4.2 "Mirroring") is done by Write, which calls this once
// per FAT copy.
func writeFATSector(v *fatfs.Volume, fatIndex uint32, relSector uint32, data []byte) error {
	absSector := fatfs.SectorID(v.RsvdSize) + fatfs.SectorID(fatIndex*v.FATSize) + fatfs.SectorID(relSector)

	buf, err := v.Cache.Get()
	if err != nil {
		return fatfs.ErrIOFailed.Wrap(err)
	}
	defer v.Cache.Free(buf)

	if err := v.Cache.Set(buf, uint64(absSector), fatfs.SectorMGMT, false); err != nil {
		return fatfs.ErrIOFailed.Wrap(err)
	}
	copy(buf.Bytes(), data)
	v.Cache.MarkDirty(buf)
	if err := v.Cache.Flush(buf); err != nil {
		return fatfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// Read returns the raw FAT entry for clus, masked to the volume's width
// (§4.2 clus_val_rd). Reads always go to FAT #1 per spec.
func Read(v *fatfs.Volume, clus fatfs.ClusterID) (uint32, error) {
	off := entryByteOffset(v.FATType, clus)
	sector := fatfs.SectorID(v.RsvdSize) + fatfs.SectorID(off/v.SecSize)
	inSec := off % v.SecSize

	switch v.FATType {
	case codec.FAT12:
		lo, err := readFATSector(v, sector)
		if err != nil {
			return 0, err
		}
		var b0, b1 byte
		b0 = lo[inSec]
		if inSec+1 < v.SecSize {
			b1 = lo[inSec+1]
		} else {
			hi, err := readFATSector(v, sector+1)
			if err != nil {
				return 0, err
			}
			b1 = hi[0]
		}
		raw := uint16(b0) | (uint16(b1) << 8)
		if clus%2 == 0 {
			return uint32(raw & 0x0FFF), nil
		}
		return uint32(raw >> 4), nil

	case codec.FAT16:
		data, err := readFATSector(v, sector)
		if err != nil {
			return 0, err
		}
		return uint32(binary.LittleEndian.Uint16(data[inSec : inSec+2])), nil

	default: // FAT32
		data, err := readFATSector(v, sector)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(data[inSec:inSec+4]) & 0x0FFFFFFF, nil
	}
}

// Write sets the FAT entry for clus to value (clus_val_wr), mirroring to
// every additional FAT. FAT32 writes preserve the reserved top 4 bits of the
// existing entry, per §6.4.
func Write(v *fatfs.Volume, clus fatfs.ClusterID, value uint32) error {
	off := entryByteOffset(v.FATType, clus)
	relSector := off / v.SecSize
	inSec := off % v.SecSize
	sector := fatfs.SectorID(v.RsvdSize) + fatfs.SectorID(relSector)

	switch v.FATType {
	case codec.FAT12:
		loBuf, err := readFATSectorMutable(v, sector)
		if err != nil {
			return err
		}
		straddle := inSec+1 >= v.SecSize
		var hiBuf []byte
		if straddle {
			hiBuf, err = readFATSectorMutable(v, sector+1)
			if err != nil {
				return err
			}
		}

		existingLo := loBuf[inSec]
		var existingHi byte
		if straddle {
			existingHi = hiBuf[0]
		} else {
			existingHi = loBuf[inSec+1]
		}
		existing := uint16(existingLo) | (uint16(existingHi) << 8)

		var packed uint16
		if clus%2 == 0 {
			packed = (existing & 0xF000) | (uint16(value) & 0x0FFF)
		} else {
			packed = (uint16(value&0x0FFF) << 4) | (existing & 0x000F)
		}

		loBuf[inSec] = byte(packed)
		if straddle {
			hiBuf[0] = byte(packed >> 8)
		} else {
			loBuf[inSec+1] = byte(packed >> 8)
		}

		for fatIdx := uint32(0); fatIdx < uint32(v.NumFATs); fatIdx++ {
			if err := writeFATSector(v, fatIdx, relSector, loBuf); err != nil {
				return err
			}
			if straddle {
				if err := writeFATSector(v, fatIdx, relSector+1, hiBuf); err != nil {
					return err
				}
			}
		}
		return nil

	case codec.FAT16:
		data, err := readFATSectorMutable(v, sector)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(data[inSec:inSec+2], uint16(value))
		for fatIdx := uint32(0); fatIdx < uint32(v.NumFATs); fatIdx++ {
			if err := writeFATSector(v, fatIdx, relSector, data); err != nil {
				return err
			}
		}
		return nil

	default: // FAT32
		data, err := readFATSectorMutable(v, sector)
		if err != nil {
			return err
		}
		existing := binary.LittleEndian.Uint32(data[inSec : inSec+4])
		newValue := (existing & 0xF0000000) | (value & 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(data[inSec:inSec+4], newValue)
		for fatIdx := uint32(0); fatIdx < uint32(v.NumFATs); fatIdx++ {
			if err := writeFATSector(v, fatIdx, relSector, data); err != nil {
				return err
			}
		}
		return nil
	}
}

func readFATSectorMutable(v *fatfs.Volume, sector fatfs.SectorID) ([]byte, error) {
	return readFATSector(v, sector)
}

// IsFree, IsBad, IsEOC, and IsValidNext classify a raw FAT entry value
// against this volume's sentinels (§3.2).
func IsFree(v *fatfs.Volume, value uint32) bool {
	return value == v.Sentinels().Free
}

func IsBad(v *fatfs.Volume, value uint32) bool {
	return value == v.Sentinels().Bad
}

func IsEOC(v *fatfs.Volume, value uint32) bool {
	return value >= v.Sentinels().EOCBase && value <= v.Sentinels().Mask
}

// IsValidNext reports whether value is usable as the "next" pointer of a
// chain link: a valid data-cluster number that isn't BAD.
func IsValidNext(v *fatfs.Volume, value uint32) bool {
	if IsBad(v, value) || IsEOC(v, value) || IsFree(v, value) {
		return false
	}
	return v.IsValidClusterNumber(fatfs.ClusterID(value))
}
