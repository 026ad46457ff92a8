// Package codec implements the on-disk codec (component C1): little-endian
// read/write of boot sector, FSINFO, directory entry, and FAT entry fields.
// No function in this package accesses a sector except through the bounded
// primitives here, per the "byte-slice + offset + codec pattern" design
// note: manual pointer arithmetic into sector buffers is replaced by this
// codec package end to end.
package codec

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// GetU8 reads a single byte at offset. Grounded on the teacher's
// drivers/fat/dirent.go direct indexing, generalized into a named primitive
// per the Design Notes.
func GetU8(buf []byte, offset int) uint8 {
	return buf[offset]
}

// SetU8 writes a single byte at offset.
func SetU8(buf []byte, offset int, value uint8) {
	buf[offset] = value
}

// GetU16 reads a little-endian uint16 at offset.
func GetU16(buf []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(buf[offset : offset+2])
}

// SetU16 writes a little-endian uint16 at offset, through bytewriter so the
// write is bounds-checked against the destination slice the same way the
// teacher's format.go/blockcache.go writers are.
func SetU16(buf []byte, offset int, value uint16) {
	w := bytewriter.New(buf[offset:])
	binary.Write(w, binary.LittleEndian, value)
}

// GetU32 reads a little-endian uint32 at offset.
func GetU32(buf []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(buf[offset : offset+4])
}

// SetU32 writes a little-endian uint32 at offset.
func SetU32(buf []byte, offset int, value uint32) {
	w := bytewriter.New(buf[offset:])
	binary.Write(w, binary.LittleEndian, value)
}
