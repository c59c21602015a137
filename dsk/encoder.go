package dsk

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargueta/diskette"
	"github.com/noxer/bytewriter"
)

const (
	extendedDiskInfoSignature = "EXTENDED CPC DSK File\r\nDisk-Info\r\n"
	trackInfoSignature        = "Track-Info\r\n"
	creatorName               = "diskette"
	maxSizeTableEntries       = HeaderSize - headerSizeTable
	defaultGapLength          = 0x4e
	defaultFillerByte         = 0xe5
)

// diskInfoHeader is the 256-byte block at the start of an extended image.
type diskInfoHeader struct {
	Signature [34]byte
	Creator   [14]byte
	Tracks    uint8
	Sides     uint8
	// TrackSize is unused in extended images.
	TrackSize uint16
	SizeTable [maxSizeTableEntries]uint8
}

// trackInfoHeader is the fixed part of a track information block. The sector
// descriptors follow it directly.
type trackInfoHeader struct {
	Signature   [12]byte
	Unused      [4]byte
	Cylinder    uint8
	Side        uint8
	Unused2     [2]byte
	SizeCode    uint8
	SectorCount uint8
	GapLength   uint8
	FillerByte  uint8
}

// storedSectorData returns the bytes written to the container for a sector.
// Weak sectors are stored as two copies, the second with every weak byte
// inverted, so that parsing the result reproduces the same weak map.
func storedSectorData(sector *Sector) []byte {
	if sector.WeakMap == nil {
		return sector.Data
	}

	stored := make([]byte, len(sector.Data)*2)
	copy(stored, sector.Data)
	copy(stored[len(sector.Data):], sector.Data)
	for i := range sector.Data {
		if sector.WeakMap.Get(i) {
			stored[len(sector.Data)+i] ^= 0xff
		}
	}
	return stored
}

// trackBlockSize returns the size of the block needed to store `track`, rounded
// up to a multiple of 256 bytes.
func trackBlockSize(track *Track) int {
	size := TrackHeaderSize
	for _, sector := range track.Sectors {
		size += len(storedSectorData(sector))
	}
	return (size + 255) &^ 255
}

func checkTrackEncodable(index int, track *Track) error {
	if len(track.Sectors) > MaxSectorInfosPerTrack {
		return diskette.ErrTooManySectors.WithMessage(
			fmt.Sprintf(
				"track %d has %d sectors, at most %d fit",
				index,
				len(track.Sectors),
				MaxSectorInfosPerTrack))
	}

	for _, sector := range track.Sectors {
		// A stored length of 0 means "use the nominal size" when parsed, so an
		// empty sector wouldn't come back the same.
		if len(sector.Data) == 0 {
			return diskette.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("sector %#02x on track %d has no data", sector.ID, index))
		}
		if len(storedSectorData(sector)) > 0xffff {
			return diskette.ErrTrackTooLarge.WithMessage(
				fmt.Sprintf(
					"sector %#02x on track %d stores %d bytes",
					sector.ID,
					index,
					len(storedSectorData(sector))))
		}
	}

	if trackBlockSize(track)/256 > 0xff {
		return diskette.ErrTrackTooLarge.WithMessage(
			fmt.Sprintf("track %d needs %d bytes", index, trackBlockSize(track)))
	}
	return nil
}

// Encode serializes the image in the extended DSK encoding, regardless of the
// encoding it was loaded from. Absent tracks are written as unformatted.
func Encode(image *Image) ([]byte, error) {
	totalTracks := image.TotalTracks()
	if image.NumTracks <= 0 || image.NumTracks > 0xff || image.NumSides <= 0 ||
		image.NumSides > 0xff || totalTracks > maxSizeTableEntries {
		return nil, diskette.ErrInvalidGeometry.WithMessage(
			fmt.Sprintf(
				"can't encode %d tracks and %d sides", image.NumTracks, image.NumSides))
	}

	header := diskInfoHeader{
		Tracks: uint8(image.NumTracks),
		Sides:  uint8(image.NumSides),
	}
	copy(header.Signature[:], extendedDiskInfoSignature)
	copy(header.Creator[:], creatorName)

	totalSize := HeaderSize
	for i, track := range image.tracks {
		if track == nil || !track.IsFormatted() {
			continue
		}
		if err := checkTrackEncodable(i, track); err != nil {
			return nil, err
		}

		blockSize := trackBlockSize(track)
		header.SizeTable[i] = uint8(blockSize / 256)
		totalSize += blockSize
	}

	output := make([]byte, totalSize)
	writer := bytewriter.New(output)
	if err := binary.Write(writer, binary.LittleEndian, &header); err != nil {
		return nil, diskette.ErrIOFailed.Wrap(err)
	}

	for i, track := range image.tracks {
		if header.SizeTable[i] == 0 {
			continue
		}
		err := writeTrackBlock(
			writer, track, i/image.NumSides, i%image.NumSides, int(header.SizeTable[i])*256)
		if err != nil {
			return nil, diskette.ErrIOFailed.Wrap(err)
		}
	}
	return output, nil
}

func writeTrackBlock(writer io.Writer, track *Track, cylinder, side, blockSize int) error {
	header := trackInfoHeader{
		Cylinder:    uint8(cylinder),
		Side:        uint8(side),
		SizeCode:    track.Sectors[0].SizeCode,
		SectorCount: uint8(len(track.Sectors)),
		GapLength:   track.GapLength,
		FillerByte:  track.FillerByte,
	}
	copy(header.Signature[:], trackInfoSignature)
	if header.GapLength == 0 {
		header.GapLength = defaultGapLength
	}
	if header.FillerByte == 0 {
		header.FillerByte = defaultFillerByte
	}

	if err := binary.Write(writer, binary.LittleEndian, &header); err != nil {
		return err
	}

	written := trackSectorInfoOffset
	for _, sector := range track.Sectors {
		info := rawSectorInfo{
			C:          sector.Cylinder,
			H:          sector.Head,
			R:          sector.ID,
			N:          sector.SizeCode,
			ST1:        sector.ST1,
			ST2:        sector.ST2,
			DataLength: uint16(len(storedSectorData(sector))),
		}
		if err := binary.Write(writer, binary.LittleEndian, &info); err != nil {
			return err
		}
		written += SectorInfoSize
	}

	// Pad the header out to 256 bytes, then write the sector data back to back.
	if err := writePadding(writer, TrackHeaderSize-written); err != nil {
		return err
	}
	written = TrackHeaderSize

	for _, sector := range track.Sectors {
		n, err := writer.Write(storedSectorData(sector))
		if err != nil {
			return err
		}
		written += n
	}

	return writePadding(writer, blockSize-written)
}

// writePadding writes `count` zero bytes. A full bytewriter rejects even an
// empty write, so nothing is written when there's no padding to add.
func writePadding(writer io.Writer, count int) error {
	if count <= 0 {
		return nil
	}
	_, err := writer.Write(make([]byte, count))
	return err
}
