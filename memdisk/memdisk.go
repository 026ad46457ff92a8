// Package memdisk provides an in-memory reference implementation of the
// §6.1 block device contract, for tests. The cmd/fatutil CLI does not use
// it; it works on an image file.
//
// Grounded on the teacher's testing/images.go, which wraps a []byte in
// github.com/xaionaro-go/bytesextra's bytesextra.NewReadWriteSeeker to get an
// io.ReadWriteSeeker view over fixed-size storage without a real file.
package memdisk

import (
	"io"

	"github.com/sigurdsen/fatfs"
	"github.com/xaionaro-go/bytesextra"
)

// Device is an in-memory fatfs.BlockDevice backed by a fixed-size byte slice.
type Device struct {
	sectorSize uint32
	sectors    uint64
	stream     io.ReadWriteSeeker
	released   map[uint64]bool
}

// New allocates a zero-filled in-memory device of sectorSize*totalSectors
// bytes.
func New(sectorSize uint32, totalSectors uint64) *Device {
	raw := make([]byte, uint64(sectorSize)*totalSectors)
	return &Device{
		sectorSize: sectorSize,
		sectors:    totalSectors,
		stream:     bytesextra.NewReadWriteSeeker(raw),
		released:   make(map[uint64]bool),
	}
}

// NewFromBytes wraps an existing byte slice (its length must be a multiple
// of sectorSize) as a Device, e.g. to re-mount a previously formatted image.
func NewFromBytes(sectorSize uint32, raw []byte) *Device {
	return &Device{
		sectorSize: sectorSize,
		sectors:    uint64(len(raw)) / uint64(sectorSize),
		stream:     bytesextra.NewReadWriteSeeker(raw),
		released:   make(map[uint64]bool),
	}
}

func (d *Device) seek(lba uint64) error {
	_, err := d.stream.Seek(int64(lba)*int64(d.sectorSize), io.SeekStart)
	return err
}

// ReadSectors implements fatfs.BlockDevice.
func (d *Device) ReadSectors(buf []byte, lba uint64, n uint, _ fatfs.SectorType) error {
	if lba+uint64(n) > d.sectors {
		return fatfs.ErrIOFailed.WithMessage("read past end of device")
	}
	if err := d.seek(lba); err != nil {
		return fatfs.ErrIOFailed.Wrap(err)
	}
	want := int(n) * int(d.sectorSize)
	if _, err := io.ReadFull(d.stream, buf[:want]); err != nil {
		return fatfs.ErrIOFailed.Wrap(err)
	}
	return nil
}

// WriteSectors implements fatfs.BlockDevice. Writes to this in-memory device
// are visible as soon as the call returns, satisfying the durability
// requirement the journal depends on.
func (d *Device) WriteSectors(buf []byte, lba uint64, n uint, _ fatfs.SectorType) error {
	if lba+uint64(n) > d.sectors {
		return fatfs.ErrIOFailed.WithMessage("write past end of device")
	}
	if err := d.seek(lba); err != nil {
		return fatfs.ErrIOFailed.Wrap(err)
	}
	want := int(n) * int(d.sectorSize)
	if _, err := d.stream.Write(buf[:want]); err != nil {
		return fatfs.ErrIOFailed.Wrap(err)
	}
	for i := uint64(0); i < uint64(n); i++ {
		delete(d.released, lba+i)
	}
	return nil
}

// ReleaseSectors implements fatfs.BlockDevice; this device just remembers
// which ranges were released, for tests that want to assert on it.
func (d *Device) ReleaseSectors(lba uint64, n uint) error {
	for i := uint64(0); i < uint64(n); i++ {
		d.released[lba+i] = true
	}
	return nil
}

// WasReleased reports whether ReleaseSectors was called for lba since the
// last write to it.
func (d *Device) WasReleased(lba uint64) bool {
	return d.released[lba]
}

// SectorSize returns the device's fixed sector size.
func (d *Device) SectorSize() uint32 { return d.sectorSize }

// TotalSectors returns the device's fixed sector count.
func (d *Device) TotalSectors() uint64 { return d.sectors }

// Snapshot returns a copy of the entire device contents, for golden-file
// comparisons in crash-scenario tests.
func (d *Device) Snapshot() []byte {
	out := make([]byte, uint64(d.sectorSize)*d.sectors)
	if err := d.seek(0); err != nil {
		return out
	}
	io.ReadFull(d.stream, out)
	d.seek(0)
	return out
}
