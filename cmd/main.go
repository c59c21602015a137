package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dargueta/diskette/disks"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "diskette",
		Usage: "Inspect and manipulate CPC DSK floppy disk images",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Log every floppy controller command and result to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show the geometry and contents summary of images",
				Action:    showInfo,
				ArgsUsage: "IMAGE...",
			},
			{
				Name:      "ls",
				Usage:     "List the CP/M directory of images",
				Action:    listDirectory,
				ArgsUsage: "IMAGE...",
			},
			{
				Name:      "format",
				Usage:     "Create a blank, formatted image",
				Action:    formatImage,
				ArgsUsage: "OUTPUT",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "geometry",
						Value: "plus3",
						Usage: "Disk geometry to format with (see `geometries`)",
					},
					&cli.BoolFlag{
						Name:  "compress",
						Usage: "Write the image RLE8 and gzip compressed",
					},
				},
			},
			{
				Name:      "read",
				Usage:     "Read sectors through the emulated floppy controller",
				Action:    readSectors,
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "drive", Usage: "Drive to insert the image into"},
					&cli.UintFlag{Name: "track", Usage: "Track to seek to"},
					&cli.UintFlag{Name: "head", Usage: "Side to read"},
					&cli.UintFlag{Name: "sector", Value: 0xc1, Usage: "First sector ID"},
					&cli.UintFlag{Name: "count", Value: 1, Usage: "Number of consecutive sectors"},
					&cli.UintFlag{Name: "size-code", Value: 2, Usage: "Sector size code N"},
					&cli.BoolFlag{Name: "deleted", Usage: "Use Read Deleted Data"},
					&cli.BoolFlag{Name: "skip", Usage: "Set the skip (SK) flag"},
					&cli.BoolFlag{Name: "motor-off", Usage: "Leave the drive motors off while reading"},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the raw data to this file instead of a hex dump",
					},
				},
			},
			{
				Name:      "compress",
				Usage:     "Compress an image using RLE8 and gzip",
				Action:    compressFile,
				ArgsUsage: "INPUT OUTPUT",
			},
			{
				Name:      "decompress",
				Usage:     "Expand an image compressed with RLE8 and gzip",
				Action:    decompressFile,
				ArgsUsage: "INPUT OUTPUT",
			},
			{
				Name:   "geometries",
				Usage:  "List the predefined disk geometries",
				Action: listGeometries,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func listGeometries(context *cli.Context) error {
	for _, slug := range disks.Slugs() {
		geometry, err := disks.GetPredefinedDiskGeometry(slug)
		if err != nil {
			return err
		}
		fmt.Fprintf(
			context.App.Writer,
			"%-12s %3d x %d x %d x %4d  %4dK  first ID %#02x  %s\n",
			slug,
			geometry.Tracks,
			geometry.Sides,
			geometry.SectorsPerTrack,
			geometry.BytesPerSector(),
			geometry.TotalSizeBytes()/1024,
			geometry.FirstSectorID,
			geometry.Name)
	}
	return nil
}
