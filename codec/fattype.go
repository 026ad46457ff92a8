package codec

// FATType enumerates the three on-disk FAT widths (§3.1 fat_type).
type FATType int

const (
	FAT12 FATType = 12
	FAT16 FATType = 16
	FAT32 FATType = 32
)

func (t FATType) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// DetermineFATType decides the FAT width solely from the computed
// data-cluster count, never from the on-disk filesystem-type string
// (spec §4.9). Grounded on the teacher's DetermineFATVersion in
// drivers/fat/common.go, which cites Microsoft's FAT spec v1.03 p.14 for
// these exact thresholds.
func DetermineFATType(dataClusters uint32) FATType {
	if dataClusters <= 4084 {
		return FAT12
	}
	if dataClusters <= 65524 {
		return FAT16
	}
	return FAT32
}

// NearFATTypeBoundary reports whether totalClusters is within `margin`
// clusters of one of the two type-deciding boundaries (4084/65524). Format
// (§4.9) rejects cluster-size choices landing in this band, to stay clear of
// implementations that mis-derive the type.
func NearFATTypeBoundary(totalClusters uint32, margin uint32) bool {
	near := func(boundary uint32) bool {
		lo, hi := boundary-margin, boundary+margin
		return totalClusters >= lo && totalClusters <= hi
	}
	return near(4084) || near(65524)
}
