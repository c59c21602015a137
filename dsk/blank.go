package dsk

import (
	"bytes"

	"github.com/dargueta/diskette/disks"
)

// NewBlank creates a freshly formatted image: every track on every side holds
// the geometry's sectors, numbered from FirstSectorID and filled with its filler
// byte.
func NewBlank(geometry disks.DiskGeometry) *Image {
	image := NewImage(int(geometry.Tracks), int(geometry.Sides))
	image.Extended = true

	for cylinder := 0; cylinder < image.NumTracks; cylinder++ {
		for head := 0; head < image.NumSides; head++ {
			image.SetTrack(cylinder, head, FormatTrack(
				byte(cylinder),
				byte(head),
				byte(geometry.FirstSectorID),
				int(geometry.SectorsPerTrack),
				byte(geometry.SizeCode),
				byte(geometry.GapLength),
				byte(geometry.FillerByte)))
		}
	}
	return image
}

// FormatTrack builds a track of `count` consecutive sectors starting at
// `firstID`, all of size code `sizeCode` and filled with `filler`.
func FormatTrack(cylinder, head, firstID byte, count int, sizeCode, gapLength, filler byte) *Track {
	track := &Track{
		Sectors:    make([]*Sector, count),
		GapLength:  gapLength,
		FillerByte: filler,
	}
	for i := 0; i < count; i++ {
		track.Sectors[i] = &Sector{
			Cylinder: cylinder,
			Head:     head,
			ID:       firstID + byte(i),
			SizeCode: sizeCode,
			Data:     bytes.Repeat([]byte{filler}, SectorSize(sizeCode)),
		}
	}
	return track
}
