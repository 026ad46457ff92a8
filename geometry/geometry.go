// Package geometry implements the §4.9 format-time cluster-size selection
// table: given a FAT type, total sector count, and sector size, it picks
// sectors-per-cluster from a static table and rejects configurations too
// close to the FAT12/16 type boundaries.
//
// Grounded on the teacher's disks/disks.go, which embeds a CSV of disk
// geometries with //go:embed and parses it at init time via
// github.com/gocarina/gocsv's UnmarshalToCallback. This package follows the
// same embed-plus-gocsv shape for a cluster-size table instead of a disk
// geometry table.
package geometry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/sigurdsen/fatfs"
	"github.com/sigurdsen/fatfs/codec"
)

// row is one line of table.csv.
type row struct {
	FATType         string `csv:"fat_type"`
	MaxTotalSectors uint64 `csv:"max_total_sectors"`
	SectorsPerClus  uint32 `csv:"sectors_per_cluster"`
}

//go:embed table.csv
var rawTable string

var rowsByType = map[codec.FATType][]row{}

func init() {
	reader := strings.NewReader(rawTable)
	err := gocsv.UnmarshalToCallback(reader, func(r row) error {
		var ft codec.FATType
		switch r.FATType {
		case "FAT12":
			ft = codec.FAT12
		case "FAT16":
			ft = codec.FAT16
		case "FAT32":
			ft = codec.FAT32
		default:
			return fatfs.ErrInvalidArgument.WithMessage(fmt.Sprintf("unknown fat_type %q in table.csv", r.FATType))
		}
		rowsByType[ft] = append(rowsByType[ft], r)
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// ClusterSizeFor picks sectors-per-cluster for fatType/totalSectors from the
// embedded table, taking the first row whose max_total_sectors bound isn't
// exceeded. It rejects totalSectors within codec.NearFATTypeBoundary's
// margin of the FAT12/16 cluster-count boundaries (§4.9: "reject
// configurations near the 4084/65524 boundaries (±16 clusters)").
func ClusterSizeFor(fatType codec.FATType, totalSectors uint64, sectorSize uint32) (uint32, error) {
	rows, ok := rowsByType[fatType]
	if !ok {
		return 0, fatfs.ErrInvalidArgument.WithMessage(fmt.Sprintf("no table rows for FAT type %s", fatType))
	}
	for _, r := range rows {
		if totalSectors <= r.MaxTotalSectors {
			clusterSizeBytes := uint64(r.SectorsPerClus) * uint64(sectorSize)
			dataClusters := uint32(totalSectors * uint64(sectorSize) / clusterSizeBytes)
			if codec.NearFATTypeBoundary(dataClusters, 16) {
				return 0, fatfs.ErrInvalidArgument.WithMessage(fmt.Sprintf("%d data clusters is within 16 of a FAT type boundary", dataClusters))
			}
			return r.SectorsPerClus, nil
		}
	}
	return 0, fatfs.ErrInvalidArgument.WithMessage(fmt.Sprintf("no cluster size for %s with %d total sectors", fatType, totalSectors))
}
