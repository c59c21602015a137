package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/cpm"
	"github.com/dargueta/diskette/disks"
	"github.com/dargueta/diskette/dsk"
	"github.com/dargueta/diskette/fdc"
	"github.com/dargueta/diskette/imagefile"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentLoads bounds how many images are read at once.
const maxConcurrentLoads = 4

type loadedImage struct {
	path  string
	image *dsk.Image
}

// loadImages loads every path concurrently. Images that fail to load are left
// out of the result and their errors are combined into one.
func loadImages(paths []string) ([]loadedImage, error) {
	if len(paths) == 0 {
		return nil, diskette.ErrInvalidArgument.WithMessage("no images given")
	}

	images := make([]*dsk.Image, len(paths))
	failures := make([]error, len(paths))

	var group errgroup.Group
	group.SetLimit(maxConcurrentLoads)
	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			images[i], failures[i] = imagefile.LoadFile(path)
			return nil
		})
	}
	group.Wait()

	var result *multierror.Error
	loaded := make([]loadedImage, 0, len(paths))
	for i, path := range paths {
		if failures[i] != nil {
			result = multierror.Append(result, failures[i])
			continue
		}
		loaded = append(loaded, loadedImage{path: path, image: images[i]})
	}
	return loaded, result.ErrorOrNil()
}

func showInfo(context *cli.Context) error {
	loaded, err := loadImages(context.Args().Slice())
	out := context.App.Writer

	for _, entry := range loaded {
		image := entry.image
		encoding := "standard"
		if image.Extended {
			encoding = "extended"
		}

		formatted := 0
		sectors := 0
		weakSectors := 0
		for cylinder := 0; cylinder < image.NumTracks; cylinder++ {
			for head := 0; head < image.NumSides; head++ {
				track := image.Track(cylinder, head)
				if track == nil || !track.IsFormatted() {
					continue
				}
				formatted++
				sectors += len(track.Sectors)
				for _, sector := range track.Sectors {
					if sector.IsWeak() {
						weakSectors++
					}
				}
			}
		}

		alloc, allocErr := cpm.UsedBlocks(image)
		runStart, runLength := alloc.LargestFreeRun()
		fmt.Fprintf(out, "%s:\n", entry.path)
		fmt.Fprintf(out, "  encoding:         %s\n", encoding)
		fmt.Fprintf(out, "  tracks x sides:   %d x %d\n", image.NumTracks, image.Sides())
		fmt.Fprintf(out, "  formatted tracks: %d of %d\n", formatted, image.TotalTracks())
		fmt.Fprintf(out, "  sectors:          %d (%d weak)\n", sectors, weakSectors)
		fmt.Fprintf(out, "  files:            %d\n", len(cpm.ListFiles(image)))
		fmt.Fprintf(out, "  used blocks:      %d of %d\n", alloc.CountUsed(), alloc.TotalUnits)
		fmt.Fprintf(out, "  free blocks:      %d\n", alloc.CountFree())
		fmt.Fprintf(out, "  largest free run: %d blocks at block %d\n", runLength, runStart)
		if allocErr != nil {
			fmt.Fprintf(out, "  allocation problems: %s\n", allocErr.Error())
		}
	}
	return err
}

func listDirectory(context *cli.Context) error {
	loaded, err := loadImages(context.Args().Slice())
	out := context.App.Writer

	for _, entry := range loaded {
		if len(loaded) > 1 {
			fmt.Fprintf(out, "%s:\n", entry.path)
		}
		for _, file := range cpm.ListFiles(entry.image) {
			fmt.Fprintf(
				out, "%2d  %-12s %8d  %3d\n", file.User, file.FullName(), file.Size, file.Blocks)
		}
	}
	return err
}

func formatImage(context *cli.Context) error {
	if context.NArg() != 1 {
		return diskette.ErrInvalidArgument.WithMessage("expected exactly one output path")
	}

	geometry, err := disks.GetPredefinedDiskGeometry(context.String("geometry"))
	if err != nil {
		return err
	}

	image := dsk.NewBlank(geometry)
	return imagefile.SaveFile(context.Args().First(), image, context.Bool("compress"))
}

func newController(context *cli.Context) *fdc.Controller {
	options := fdc.Options{}
	if context.Bool("trace") {
		options.Logger = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return fdc.New(options)
}

// readSectors drives the controller through its registers the way the +3 ROM
// would: seek, sense the interrupt, issue a read, drain the data and the result.
func readSectors(context *cli.Context) error {
	if context.NArg() != 1 {
		return diskette.ErrInvalidArgument.WithMessage("expected exactly one image path")
	}
	image, err := imagefile.LoadFile(context.Args().First())
	if err != nil {
		return err
	}

	driveNum := byte(context.Uint("drive"))
	head := byte(context.Uint("head"))
	track := byte(context.Uint("track"))
	sector := byte(context.Uint("sector"))
	sizeCode := byte(context.Uint("size-code"))
	count := context.Uint("count")
	if count == 0 {
		return diskette.ErrInvalidArgument.WithMessage("count must be at least 1")
	}

	controller := newController(context)
	if err := controller.Insert(int(driveNum), image); err != nil {
		return err
	}
	controller.SetMotor(!context.Bool("motor-off"))

	if err := sendCommand(controller, fdc.CmdSeek, driveNum, track); err != nil {
		return err
	}
	if err := sendCommand(controller, fdc.CmdSenseInterruptStatus); err != nil {
		return err
	}
	drainResult(controller)

	command := byte(fdc.CmdReadData)
	if context.Bool("deleted") {
		command = fdc.CmdReadDeletedData
	}
	command |= fdc.FlagMFM
	if context.Bool("skip") {
		command |= fdc.FlagSkipDeleted
	}
	err = sendCommand(
		controller,
		command,
		driveNum|head<<2,
		track,
		head,
		sector,
		sizeCode,
		sector+byte(count-1),
		0x2a,
		0xff)
	if err != nil {
		return err
	}

	data := []byte{}
	for controller.Phase() == fdc.PhaseExecution {
		data = append(data, controller.ReadData())
	}
	result := drainResult(controller)

	if len(result) < 3 || result[0]&diskette.ST0_IC_MASK == diskette.ST0_INVALID {
		return fmt.Errorf("controller rejected the command: % x", result)
	}
	motor := "off"
	if controller.MotorOn(int(driveNum)) {
		motor = "on"
	}
	fmt.Fprintf(
		os.Stderr,
		"drive %d (motor %s): ST0=%02x ST1=%02x ST2=%02x, %d bytes\n",
		driveNum,
		motor,
		result[0],
		result[1],
		result[2],
		len(data))

	outputPath := context.String("output")
	if outputPath == "" {
		dumper := hex.Dumper(context.App.Writer)
		defer dumper.Close()
		_, err = dumper.Write(data)
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// sendCommand writes a complete command to the data register. The controller
// only starts executing once it has every byte, so a short command would leave
// it stuck in the command phase.
func sendCommand(controller *fdc.Controller, command ...byte) error {
	expected := fdc.CommandLength(command[0])
	if expected != len(command) {
		return diskette.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"command %#02x takes %d bytes, got %d", command[0], expected, len(command)))
	}

	for _, b := range command {
		controller.WriteData(b)
	}
	return nil
}

func drainResult(controller *fdc.Controller) []byte {
	result := []byte{}
	for controller.Phase() == fdc.PhaseResult {
		result = append(result, controller.ReadData())
	}
	return result
}

func openFilePair(context *cli.Context) (*os.File, *os.File, error) {
	if context.NArg() != 2 {
		return nil, nil, diskette.ErrInvalidArgument.WithMessage(
			"expected an input and an output path")
	}

	input, err := os.Open(context.Args().Get(0))
	if err != nil {
		return nil, nil, err
	}
	output, err := os.Create(context.Args().Get(1))
	if err != nil {
		input.Close()
		return nil, nil, err
	}
	return input, output, nil
}

func convertFile(
	context *cli.Context, convert func(io.Reader, io.Writer) (int64, error),
) error {
	input, output, err := openFilePair(context)
	if err != nil {
		return err
	}
	defer input.Close()

	_, err = convert(input, output)
	if closeErr := output.Close(); err == nil {
		err = closeErr
	}
	return err
}

func compressFile(context *cli.Context) error {
	return convertFile(context, imagefile.CompressImage)
}

func decompressFile(context *cli.Context) error {
	return convertFile(context, imagefile.DecompressImage)
}
