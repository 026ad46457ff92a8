// Command fatutil is a thin CLI over the volume façade, grounded on the
// teacher's cmd/main.go urfave/cli/v2 wrapper. It deliberately stays thin:
// mkfs, fsck, and label only — the full cat/ls/cp/mv shell surface is an
// external collaborator's concern, not this engine's.
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/sigurdsen/fatfs/blockcache"
	"github.com/sigurdsen/fatfs/codec"
	"github.com/sigurdsen/fatfs/volume"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	app := cli.App{
		Usage: "Format, check, and label FAT12/16/32 volume images",
		Commands: []*cli.Command{
			{
				Name:      "mkfs",
				Usage:     "Format a volume image",
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "sectors", Required: true, Usage: "total sector count"},
					&cli.IntFlag{Name: "sector-size", Value: 512},
					&cli.StringFlag{Name: "type", Value: "auto", Usage: "FAT12, FAT16, FAT32, or auto"},
					&cli.StringFlag{Name: "label", Value: ""},
				},
				Action: func(c *cli.Context) error { return mkfs(c, logger) },
			},
			{
				Name:      "fsck",
				Usage:     "Check a volume image's invariants",
				ArgsUsage: "IMAGE_FILE",
				Action:    func(c *cli.Context) error { return fsck(c, logger) },
			},
			{
				Name:      "label",
				Usage:     "Print or set the volume label",
				ArgsUsage: "IMAGE_FILE [NEW_LABEL]",
				Action:    func(c *cli.Context) error { return labelCmd(c, logger) },
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func openDevice(path string, sectorSize uint32) (*fileDevice, *blockcache.Cache, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, nil, err
	}
	dev := &fileDevice{f: f, sectorSize: sectorSize}
	cache := blockcache.New(dev, sectorSize, 8)
	return dev, cache, nil
}

func mkfs(c *cli.Context, logger *slog.Logger) error {
	path := c.Args().Get(0)
	if path == "" {
		return cli.Exit("mkfs: missing IMAGE_FILE", 1)
	}
	sectorSize := uint32(c.Int("sector-size"))
	totalSectors := c.Uint64("sectors")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := f.Truncate(int64(totalSectors) * int64(sectorSize)); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	dev := &fileDevice{f: f, sectorSize: sectorSize}
	cache := blockcache.New(dev, sectorSize, 8)

	fatType := resolveFATType(c.String("type"), totalSectors, sectorSize)
	logger.Info("formatting volume", "path", path, "sectors", totalSectors, "fat_type", fatType.String())

	err = volume.Format(dev, cache, volume.FormatOptions{
		SectorSize:   sectorSize,
		TotalSectors: totalSectors,
		FATType:      fatType,
		VolumeLabel:  c.String("label"),
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func resolveFATType(name string, totalSectors uint64, sectorSize uint32) codec.FATType {
	switch name {
	case "FAT12":
		return codec.FAT12
	case "FAT16":
		return codec.FAT16
	case "FAT32":
		return codec.FAT32
	default:
		approxDataClusters := uint32(totalSectors / 1) // every sector counted as a cluster; Format uses the resulting type as given
		return codec.DetermineFATType(approxDataClusters)
	}
}

func fsck(c *cli.Context, logger *slog.Logger) error {
	path := c.Args().Get(0)
	if path == "" {
		return cli.Exit("fsck: missing IMAGE_FILE", 1)
	}
	dev, cache, err := openDevice(path, 512)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer dev.f.Close()

	vol, err := volume.Mount(dev, cache, volume.MountOptions{ReadOnly: true})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if err := volume.CheckInvariants(vol); err != nil {
		logger.Error("invariant violations found", "err", err)
		return cli.Exit(err.Error(), 1)
	}
	logger.Info("no invariant violations found", "path", path)
	return nil
}

func labelCmd(c *cli.Context, logger *slog.Logger) error {
	path := c.Args().Get(0)
	if path == "" {
		return cli.Exit("label: missing IMAGE_FILE", 1)
	}
	dev, cache, err := openDevice(path, 512)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer dev.f.Close()

	vol, err := volume.Mount(dev, cache, volume.MountOptions{})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if newLabel := c.Args().Get(1); newLabel != "" {
		if err := vol.SetLabel(newLabel); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		logger.Info("label set", "path", path, "label", newLabel)
		return nil
	}

	label, err := vol.Label()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	logger.Info("volume label", "path", path, "label", strconv.Quote(label))
	return nil
}
