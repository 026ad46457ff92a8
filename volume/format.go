package volume

import (
	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/direntry"
	"github.com/sigurdsen/fatfs/geometry"
	"github.com/sigurdsen/fatfs/names"
)

// FormatOptions describes a new volume's geometry.
type FormatOptions struct {
	SectorSize   uint32
	TotalSectors uint64
	NumFATs      uint8
	FATType      codec.FATType // used as given; not checked against the cluster count the chosen geometry yields
	VolumeLabel  string
}

// Format implements §4.9's Format: selects cluster size from the embedded
// table, writes the boot sector (and, on FAT32, the backup boot sector and
// FSINFO sector), zeroes and seeds the FAT, and zeroes the root directory
// region or cluster. A non-empty VolumeLabel is written both into the boot
// sector and into a VOLUME_ID slot at the head of the root directory.
func Format(device fatfs.BlockDevice, cache fatfs.BufferCache, opts FormatOptions) error {
	if opts.NumFATs == 0 {
		opts.NumFATs = 2
	}

	secPerClus, err := geometry.ClusterSizeFor(opts.FATType, opts.TotalSectors, opts.SectorSize)
	if err != nil {
		return err
	}

	rootEntryCount := uint16(0)
	rsvdSectors := uint16(1)
	if opts.FATType != codec.FAT32 {
		rootEntryCount = 512
	} else {
		rsvdSectors = 32
	}
	rootDirSectors := (uint32(rootEntryCount)*32 + opts.SectorSize - 1) / opts.SectorSize

	dataSectorsGuess := uint32(opts.TotalSectors) - uint32(rsvdSectors) - rootDirSectors
	dataClustersGuess := dataSectorsGuess / secPerClus
	fatSize := fatSizeSectors(opts.FATType, dataClustersGuess, opts.SectorSize, uint32(opts.NumFATs), uint32(rsvdSectors), rootDirSectors)

	boot := codec.BootSector{
		BytesPerSector:    uint16(opts.SectorSize),
		SectorsPerCluster: uint8(secPerClus),
		ReservedSectors:   rsvdSectors,
		NumFATs:           opts.NumFATs,
		RootEntryCount:    rootEntryCount,
		TotalSectors:      uint32(opts.TotalSectors),
		FATSize:           fatSize,
		VolumeID:          0,
	}
	if opts.FATType == codec.FAT32 {
		boot.RootCluster = 2
		boot.FSInfoSector = 1
		boot.BackupBootSector = 6
	}
	copy(boot.VolumeLabel[:], padLabel(opts.VolumeLabel))

	rawBoot := codec.EncodeBootSector(boot, opts.FATType)
	if err := writeSector(device, cache, 0, rawBoot); err != nil {
		return err
	}

	dataStart := uint32(rsvdSectors) + uint32(opts.NumFATs)*fatSize + rootDirSectors

	if opts.FATType == codec.FAT32 {
		fsinfo := codec.EncodeFSInfo(codec.FSInfo{
			FreeCount: (uint32(opts.TotalSectors) - dataStart) / secPerClus,
			NextFree:  3,
		})
		if err := writeSector(device, cache, 1, fsinfo); err != nil {
			return err
		}
		if err := writeSector(device, cache, uint64(boot.BackupBootSector), rawBoot); err != nil {
			return err
		}
		if err := writeSector(device, cache, uint64(boot.BackupBootSector)+1, fsinfo); err != nil {
			return err
		}
	}

	if err := zeroFATs(device, cache, opts.SectorSize, uint64(rsvdSectors), fatSize, opts.NumFATs); err != nil {
		return err
	}
	if err := seedFATHead(device, cache, opts.FATType, opts.SectorSize, uint64(rsvdSectors), fatSize, opts.NumFATs); err != nil {
		return err
	}

	if opts.FATType == codec.FAT32 {
		if err := seedFAT32Root(device, cache, opts.FATType, opts.SectorSize, uint64(rsvdSectors), fatSize, opts.NumFATs); err != nil {
			return err
		}
		if err := zeroClusterRange(device, cache, opts.SectorSize, uint64(dataStart), secPerClus); err != nil {
			return err
		}
	} else {
		if err := zeroClusterRange(device, cache, opts.SectorSize, uint64(rsvdSectors)+uint64(opts.NumFATs)*uint64(fatSize), rootDirSectors); err != nil {
			return err
		}
	}

	if opts.VolumeLabel != "" {
		rootSector := uint64(rsvdSectors) + uint64(opts.NumFATs)*uint64(fatSize)
		if opts.FATType == codec.FAT32 {
			rootSector = uint64(dataStart)
		}
		var name [11]byte
		copy(name[:], padLabel(opts.VolumeLabel))
		slot := codec.EncodeDirent(codec.Dirent{Name: name, Attributes: uint8(fatfs.AttrVolumeID)}, opts.FATType)
		if err := writeSector(device, cache, rootSector, slot); err != nil {
			return err
		}
	}

	return nil
}

func fatSizeSectors(fatType codec.FATType, dataClusters uint32, sectorSize uint32, numFATs, rsvd, rootDirSectors uint32) uint32 {
	bitsPerEntry := uint32(16)
	switch fatType {
	case codec.FAT12:
		bitsPerEntry = 12
	case codec.FAT32:
		bitsPerEntry = 32
	}
	bytesNeeded := (uint64(dataClusters+2) * uint64(bitsPerEntry)) / 8
	sectors := uint32((bytesNeeded + uint64(sectorSize) - 1) / uint64(sectorSize))
	if sectors == 0 {
		sectors = 1
	}
	return sectors
}

func padLabel(label string) []byte {
	out := []byte("           ")
	copy(out, label)
	return out
}

func writeSector(device fatfs.BlockDevice, cache fatfs.BufferCache, lba uint64, data []byte) error {
	buf, err := cache.Get()
	if err != nil {
		return err
	}
	defer cache.Free(buf)
	if err := cache.Set(buf, lba, fatfs.SectorMGMT, false); err != nil {
		return err
	}
	copy(buf.Bytes(), data)
	cache.MarkDirty(buf)
	return cache.Flush(buf)
}

func zeroFATs(device fatfs.BlockDevice, cache fatfs.BufferCache, sectorSize uint32, rsvd uint64, fatSize uint32, numFATs uint8) error {
	zero := make([]byte, sectorSize)
	for f := uint8(0); f < numFATs; f++ {
		for i := uint32(0); i < fatSize; i++ {
			if err := writeSector(device, cache, rsvd+uint64(f)*uint64(fatSize)+uint64(i), zero); err != nil {
				return err
			}
		}
	}
	return nil
}

// seedFATHead writes FAT[0] = media-descriptor sentinel and FAT[1] = EOC,
// mirrored to every FAT, per §4.9.
func seedFATHead(device fatfs.BlockDevice, cache fatfs.BufferCache, fatType codec.FATType, sectorSize uint32, rsvd uint64, fatSize uint32, numFATs uint8) error {
	var entry0, entry1 uint32
	switch fatType {
	case codec.FAT12:
		entry0, entry1 = 0xFF8, 0xFFF
	case codec.FAT16:
		entry0, entry1 = 0xFFF8, 0xFFFF
	default:
		entry0, entry1 = 0x0FFFFFF8, 0x0FFFFFFF
	}

	for f := uint8(0); f < numFATs; f++ {
		buf, err := cache.Get()
		if err != nil {
			return err
		}
		if err := cache.Set(buf, rsvd+uint64(f)*uint64(fatSize), fatfs.SectorMGMT, true); err != nil {
			cache.Free(buf)
			return err
		}
		writeRawFATEntries(buf.Bytes(), fatType, entry0, entry1)
		cache.MarkDirty(buf)
		err = cache.Flush(buf)
		cache.Free(buf)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedFAT32Root(device fatfs.BlockDevice, cache fatfs.BufferCache, fatType codec.FATType, sectorSize uint32, rsvd uint64, fatSize uint32, numFATs uint8) error {
	for f := uint8(0); f < numFATs; f++ {
		buf, err := cache.Get()
		if err != nil {
			return err
		}
		if err := cache.Set(buf, rsvd+uint64(f)*uint64(fatSize), fatfs.SectorMGMT, true); err != nil {
			cache.Free(buf)
			return err
		}
		codec.SetU32(buf.Bytes(), 8, 0x0FFFFFFF) // cluster 2 (root): EOC
		cache.MarkDirty(buf)
		err = cache.Flush(buf)
		cache.Free(buf)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeRawFATEntries(buf []byte, fatType codec.FATType, entry0, entry1 uint32) {
	switch fatType {
	case codec.FAT12:
		packed := (uint32(entry1) << 12) | (entry0 & 0xFFF)
		buf[0] = byte(packed)
		buf[1] = byte(packed >> 8)
		buf[2] = byte(packed >> 16)
	case codec.FAT16:
		codec.SetU16(buf, 0, uint16(entry0))
		codec.SetU16(buf, 2, uint16(entry1))
	default:
		codec.SetU32(buf, 0, entry0)
		codec.SetU32(buf, 4, entry1)
	}
}

func zeroClusterRange(device fatfs.BlockDevice, cache fatfs.BufferCache, sectorSize uint32, startSector uint64, numSectors uint32) error {
	zero := make([]byte, sectorSize)
	for i := uint32(0); i < numSectors; i++ {
		if err := writeSector(device, cache, startSector+uint64(i), zero); err != nil {
			return err
		}
	}
	return nil
}

// Label reads the root directory's VOLUME_ID entry, if any.
func (vol *Volume) Label() (string, error) {
	vol.state.Lock()
	defer vol.state.Unlock()
	v := vol.state
	rootSector := v.RootDirStart
	if v.FATType == codec.FAT32 {
		rootSector = v.FirstSectorOfCluster(v.RootCluster)
	}

	cur := direntry.Cursor{Sector: rootSector, Offset: 0}
	for {
		raw, err := readRawSlot(v, cur)
		if err != nil {
			return "", err
		}
		kind := codec.ClassifySlot(raw)
		if kind == codec.SlotEndOfDirectory {
			return "", nil
		}
		if kind == codec.SlotShortName {
			d := codec.DecodeDirent(raw, v.FATType)
			if d.Attributes&uint8(fatfs.AttrVolumeID) != 0 {
				return names.UnpackShortName(d.Name), nil
			}
		}
		next, err := nextReadOnly(v, cur.Sector)
		if err != nil {
			return "", err
		}
		if cur.Offset+32 < v.SecSize {
			cur.Offset += 32
		} else {
			cur = direntry.Cursor{Sector: next, Offset: 0}
		}
	}
}

// SetLabel writes or replaces the root directory's VOLUME_ID slot.
func (vol *Volume) SetLabel(label string) error {
	vol.state.Lock()
	defer vol.state.Unlock()
	v := vol.state
	if vol.opts.ReadOnly {
		return fatfs.ErrReadOnlyVolume
	}

	rootSector := v.RootDirStart
	if v.FATType == codec.FAT32 {
		rootSector = v.FirstSectorOfCluster(v.RootCluster)
	}

	raw := [11]byte{}
	copy(raw[:], padLabel(label))
	d := codec.Dirent{Name: raw, Attributes: uint8(fatfs.AttrVolumeID)}
	rawSlot := codec.EncodeDirent(d, v.FATType)

	cur := direntry.Cursor{Sector: rootSector, Offset: 0}
	for {
		existing, err := readRawSlot(v, cur)
		if err != nil {
			return err
		}
		kind := codec.ClassifySlot(existing)
		if kind == codec.SlotEndOfDirectory || (kind == codec.SlotShortName && codec.GetU8(existing, 11)&uint8(fatfs.AttrVolumeID) != 0) {
			return writeRawSlotAt(v, cur, rawSlot)
		}
		next, err := nextReadOnly(v, cur.Sector)
		if err != nil {
			return err
		}
		if cur.Offset+32 < v.SecSize {
			cur.Offset += 32
		} else {
			cur = direntry.Cursor{Sector: next, Offset: 0}
		}
	}
}

func writeRawSlotAt(v *fatfs.Volume, c direntry.Cursor, raw []byte) error {
	buf, err := v.Cache.Get()
	if err != nil {
		return err
	}
	defer v.Cache.Free(buf)
	if err := v.Cache.Set(buf, uint64(c.Sector), fatfs.SectorDir, true); err != nil {
		return err
	}
	copy(buf.Bytes()[c.Offset:c.Offset+32], raw)
	v.Cache.MarkDirty(buf)
	return v.Cache.Flush(buf)
}
