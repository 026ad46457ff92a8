package codec

// Boot sector field offsets, common to FAT12/16/32 (the "BPB"). Grounded on
// drivers/fat/common.go's RawFATBootSectorWithBPB and drivers/fat/fat32.go's
// RawFAT32BootSector, generalized into explicit offsets instead of a fixed
// struct + binary.Read, since FAT32 appends extra fields the reader must
// branch on and the struct-tag approach can't express that branch.
const (
	offJmpBoot         = 0
	offOEMName         = 3
	offBytesPerSector  = 11
	offSectorsPerClus  = 13
	offReservedSectors = 14
	offNumFATs         = 16
	offRootEntryCount  = 17
	offTotalSectors16  = 19
	offMedia           = 21
	offFATSize16       = 22
	offSectorsPerTrack = 24
	offNumHeads        = 26
	offHiddenSectors   = 28
	offTotalSectors32  = 32

	// FAT32-only extension, starting where FAT12/16 keep DriveNumber etc.
	off32FATSize32        = 36
	off32ExtFlags         = 40
	off32FSVersion        = 42
	off32RootCluster      = 44
	off32FSInfoSector     = 48
	off32BackupBootSector = 50
	off32DriveNumber      = 64
	off32BootSignature    = 66
	off32VolumeID         = 67
	off32VolumeLabel      = 71
	off32FileSystemType   = 82

	// FAT12/16 layout after the common fields (no FAT32 extension).
	off1216DriveNumber    = 36
	off1216BootSignature  = 37
	off1216VolumeID       = 38
	off1216VolumeLabel    = 42
	off1216FileSystemType = 54

	offBootSignature = 510 // 0xAA55 marker, both widths

	BootSectorSize = 512
)

// BootSectorSignature is the required value at offset 510-511.
const BootSectorSignature = 0xAA55

// BootSector is the decoded, unified representation of the boot sector
// fields this engine cares about. FAT32-only fields are zero for FAT12/16.
type BootSector struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	FATSize           uint32 // sectors per single FAT
	RootCluster       uint32 // FAT32 only
	FSInfoSector      uint16 // FAT32 only
	BackupBootSector  uint16 // FAT32 only
	VolumeID          uint32
	VolumeLabel       [11]byte
}

// DecodeBootSector parses a 512-byte boot sector buffer. It does not yet know
// the FAT type; callers derive that from the resulting geometry via
// DetermineFATType, per spec §4.9.
func DecodeBootSector(buf []byte) BootSector {
	bs := BootSector{
		BytesPerSector:    GetU16(buf, offBytesPerSector),
		SectorsPerCluster: GetU8(buf, offSectorsPerClus),
		ReservedSectors:   GetU16(buf, offReservedSectors),
		NumFATs:           GetU8(buf, offNumFATs),
		RootEntryCount:    GetU16(buf, offRootEntryCount),
	}

	totalSectors16 := GetU16(buf, offTotalSectors16)
	if totalSectors16 != 0 {
		bs.TotalSectors = uint32(totalSectors16)
	} else {
		bs.TotalSectors = GetU32(buf, offTotalSectors32)
	}

	fatSize16 := GetU16(buf, offFATSize16)
	if fatSize16 != 0 {
		bs.FATSize = uint32(fatSize16)
	} else {
		bs.FATSize = GetU32(buf, off32FATSize32)
		bs.RootCluster = GetU32(buf, off32RootCluster)
		bs.FSInfoSector = GetU16(buf, off32FSInfoSector)
		bs.BackupBootSector = GetU16(buf, off32BackupBootSector)
		bs.VolumeID = GetU32(buf, off32VolumeID)
		copy(bs.VolumeLabel[:], buf[off32VolumeLabel:off32VolumeLabel+11])
	}

	if fatSize16 != 0 {
		bs.VolumeID = GetU32(buf, off1216VolumeID)
		copy(bs.VolumeLabel[:], buf[off1216VolumeLabel:off1216VolumeLabel+11])
	}

	return bs
}

// EncodeBootSector writes bs into a fresh 512-byte buffer for the given FAT
// type, setting the 0xAA55 signature. jmp/OEM/media/etc. are filled with
// conventional placeholder values; they carry no semantic weight for this
// engine.
func EncodeBootSector(bs BootSector, fatType FATType) []byte {
	buf := make([]byte, BootSectorSize)
	buf[offJmpBoot] = 0xEB
	buf[offJmpBoot+1] = 0x00
	buf[offJmpBoot+2] = 0x90
	copy(buf[offOEMName:offOEMName+8], []byte("FATFS1.0"))

	SetU16(buf, offBytesPerSector, bs.BytesPerSector)
	SetU8(buf, offSectorsPerClus, bs.SectorsPerCluster)
	SetU16(buf, offReservedSectors, bs.ReservedSectors)
	SetU8(buf, offNumFATs, bs.NumFATs)
	SetU16(buf, offMedia, 0)
	buf[offMedia] = 0xF8

	if bs.TotalSectors <= 0xFFFF {
		SetU16(buf, offTotalSectors16, uint16(bs.TotalSectors))
	} else {
		SetU32(buf, offTotalSectors32, bs.TotalSectors)
	}

	if fatType == FAT32 {
		SetU16(buf, offRootEntryCount, 0)
		SetU32(buf, off32FATSize32, bs.FATSize)
		SetU32(buf, off32RootCluster, bs.RootCluster)
		SetU16(buf, off32FSInfoSector, bs.FSInfoSector)
		SetU16(buf, off32BackupBootSector, bs.BackupBootSector)
		SetU8(buf, off32BootSignature, 0x29)
		SetU32(buf, off32VolumeID, bs.VolumeID)
		copy(buf[off32VolumeLabel:off32VolumeLabel+11], padName(bs.VolumeLabel[:]))
		copy(buf[off32FileSystemType:off32FileSystemType+8], []byte("FAT32   "))
	} else {
		SetU16(buf, offRootEntryCount, bs.RootEntryCount)
		SetU16(buf, offFATSize16, uint16(bs.FATSize))
		SetU8(buf, off1216BootSignature, 0x29)
		SetU32(buf, off1216VolumeID, bs.VolumeID)
		copy(buf[off1216VolumeLabel:off1216VolumeLabel+11], padName(bs.VolumeLabel[:]))
		label := "FAT16   "
		if fatType == FAT12 {
			label = "FAT12   "
		}
		copy(buf[off1216FileSystemType:off1216FileSystemType+8], []byte(label))
	}

	SetU16(buf, offBootSignature, BootSectorSignature)
	return buf
}

func padName(name []byte) []byte {
	out := [11]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	copy(out[:], name)
	return out[:]
}

// VerifyBootSignature checks the 0xAA55 marker at bytes 510-511.
func VerifyBootSignature(buf []byte) bool {
	return GetU16(buf, offBootSignature) == BootSectorSignature
}

// FSInfo field offsets (FAT32 only).
const (
	offFSInfoLeadSig  = 0
	offFSInfoStructSig = 484
	offFSInfoFreeCount = 488
	offFSInfoNextFree  = 492
	offFSInfoTrailSig  = 508

	FSInfoLeadSignature  = 0x41615252
	FSInfoStructSignature = 0x61417272
	FSInfoTrailSignature = 0xAA550000

	FSInfoSize = 512
)

// FSInfo is the decoded FAT32 FSINFO sector (§6.4).
type FSInfo struct {
	FreeCount uint32
	NextFree  uint32
}

// DecodeFSInfo parses a 512-byte FSINFO sector. ok is false if any signature
// doesn't match.
func DecodeFSInfo(buf []byte) (FSInfo, bool) {
	ok := GetU32(buf, offFSInfoLeadSig) == FSInfoLeadSignature &&
		GetU32(buf, offFSInfoStructSig) == FSInfoStructSignature &&
		GetU32(buf, offFSInfoTrailSig) == FSInfoTrailSignature
	if !ok {
		return FSInfo{}, false
	}
	return FSInfo{
		FreeCount: GetU32(buf, offFSInfoFreeCount),
		NextFree:  GetU32(buf, offFSInfoNextFree),
	}, true
}

// EncodeFSInfo writes a fresh FSINFO sector.
func EncodeFSInfo(info FSInfo) []byte {
	buf := make([]byte, FSInfoSize)
	SetU32(buf, offFSInfoLeadSig, FSInfoLeadSignature)
	SetU32(buf, offFSInfoStructSig, FSInfoStructSignature)
	SetU32(buf, offFSInfoFreeCount, info.FreeCount)
	SetU32(buf, offFSInfoNextFree, info.NextFree)
	SetU32(buf, offFSInfoTrailSig, FSInfoTrailSignature)
	return buf
}
