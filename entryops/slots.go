package entryops

import (
	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/direntry"
)

// readShortSlot and writeRawSlot duplicate direntry's unexported slot I/O at
// the single-cursor granularity entryops needs for the trailing 8.3 slot of
// a resolved entry; direntry's own Find/Create/Delete already cover the
// multi-slot cases.

func readShortSlot(v *fatfs.Volume, c direntry.Cursor) ([]byte, error) {
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

func writeRawSlot(v *fatfs.Volume, c direntry.Cursor, raw []byte) error {
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

func decodeDirent(v *fatfs.Volume, raw []byte) codec.Dirent {
	return codec.DecodeDirent(raw, v.FATType)
}

func encodeMinimalDirent(v *fatfs.Volume, name [11]byte, firstClus uint32, attrs uint8) []byte {
	d := codec.Dirent{Name: name, Attributes: attrs, FirstCluster: firstClus}
	return codec.EncodeDirent(d, v.FATType)
}

// rewriteShortSlot journals the pre-image of a single trailing 8.3 slot
// (via LogEntryUpdate) and writes its new encoded form.
func rewriteShortSlot(v *fatfs.Volume, rec fatfs.JournalRecorder, c direntry.Cursor, before, after codec.Dirent) error {
	rawBefore := codec.EncodeDirent(before, v.FATType)
	if err := rec.LogEntryUpdate(c.Sector, c.Offset, c.Sector, c.Offset, [][]byte{rawBefore}); err != nil {
		return err
	}
	return writeRawSlot(v, c, codec.EncodeDirent(after, v.FATType))
}
