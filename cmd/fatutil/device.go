package main

import (
	"os"

	"github.com/sigurdsen/fatfs"
)

// fileDevice is a fatfs.BlockDevice backed by an ordinary OS file, grounded
// on memdisk.Device's shape but reading/writing through *os.File instead of
// an in-memory stream.
type fileDevice struct {
	f          *os.File
	sectorSize uint32
}

func (d *fileDevice) ReadSectors(dst []byte, lba uint64, count uint, _ fatfs.SectorType) error {
	n := int(count) * int(d.sectorSize)
	if len(dst) < n {
		return fatfs.ErrIOFailed.WithMessage("destination buffer too small")
	}
	_, err := d.f.ReadAt(dst[:n], int64(lba)*int64(d.sectorSize))
	return err
}

func (d *fileDevice) WriteSectors(src []byte, lba uint64, count uint, _ fatfs.SectorType) error {
	n := int(count) * int(d.sectorSize)
	if len(src) < n {
		return fatfs.ErrIOFailed.WithMessage("source buffer too small")
	}
	_, err := d.f.WriteAt(src[:n], int64(lba)*int64(d.sectorSize))
	return err
}

func (d *fileDevice) ReleaseSectors(lba uint64, count uint) error {
	return nil
}
