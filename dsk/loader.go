package dsk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/diskette"
)

// Signatures at the start of a DSK container. Only the significant prefix is
// compared; the rest of the 34-byte field varies between imaging tools.
const (
	StandardSignature = "MV - CPC"
	ExtendedSignature = "EXTENDED CPC DSK"
	TrackSignature    = "Track-Info"
)

// Offsets within the 256-byte disk information block.
const (
	HeaderSize          = 0x100
	headerTracksOffset  = 0x30
	headerSidesOffset   = 0x31
	headerTrackSizeLow  = 0x32
	headerTrackSizeHigh = 0x33
	headerSizeTable     = 0x34
)

// Offsets within a track information block.
const (
	TrackHeaderSize        = 0x100
	trackSizeCodeOffset    = 0x14
	trackSectorCountOffset = 0x15
	trackGapLengthOffset   = 0x16
	trackFillerOffset      = 0x17
	trackSectorInfoOffset  = 0x18
	SectorInfoSize         = 8
	MaxSectorInfosPerTrack = (TrackHeaderSize - trackSectorInfoOffset) / SectorInfoSize
)

// rawSectorInfo is the on-disk sector descriptor. DataLength is only meaningful
// in extended images.
type rawSectorInfo struct {
	C          uint8
	H          uint8
	R          uint8
	N          uint8
	ST1        uint8
	ST2        uint8
	DataLength uint16
}

// IsContainer returns true if `data` begins with either DSK signature.
func IsContainer(data []byte) bool {
	if bytes.HasPrefix(data, []byte(StandardSignature)) {
		return true
	}
	return bytes.HasPrefix(data, []byte(ExtendedSignature))
}

// Parse decodes a DSK container.
//
// Malformed containers (too short, zero tracks or sides, or a standard image
// whose track size is zero or can't hold a track header) fail with an error and
// no image. A container that's merely
// truncated is not an error: tracks that don't fit in `data` are left absent.
func Parse(data []byte) (*Image, error) {
	if len(data) < HeaderSize {
		return nil, diskette.ErrImageTooSmall.WithMessage(
			fmt.Sprintf("need at least %d bytes, got %d", HeaderSize, len(data)))
	}

	extended := bytes.HasPrefix(data, []byte(ExtendedSignature))
	numTracks := int(data[headerTracksOffset])
	numSides := int(data[headerSidesOffset])
	if numTracks == 0 || numSides == 0 {
		return nil, diskette.ErrInvalidGeometry.WithMessage(
			fmt.Sprintf("%d tracks, %d sides", numTracks, numSides))
	}

	image := NewImage(numTracks, numSides)
	image.Extended = extended

	if extended {
		parseExtendedTracks(data, image)
		return image, nil
	}

	err := parseStandardTracks(data, image)
	if err != nil {
		return nil, err
	}
	return image, nil
}

// parseStandardTracks reads fixed-size track blocks.
func parseStandardTracks(data []byte, image *Image) error {
	trackSize := int(binary.LittleEndian.Uint16(data[headerTrackSizeLow : headerTrackSizeHigh+1]))
	if trackSize == 0 {
		return diskette.ErrZeroTrackSize
	}
	if trackSize < TrackHeaderSize {
		return diskette.ErrInvalidGeometry.WithMessage(
			fmt.Sprintf(
				"track size %d is smaller than a %d-byte track header",
				trackSize,
				TrackHeaderSize))
	}

	offset := HeaderSize
	for i := 0; i < image.TotalTracks(); i++ {
		if offset+trackSize > len(data) {
			break
		}
		image.tracks[i] = parseTrackBlock(data, offset, false)
		offset += trackSize
	}
	return nil
}

// parseExtendedTracks reads track blocks whose sizes come from the table that
// follows the disk header. A size of zero marks an unformatted track that takes
// up no space in the file.
func parseExtendedTracks(data []byte, image *Image) {
	offset := HeaderSize
	for i := 0; i < image.TotalTracks(); i++ {
		tableIndex := headerSizeTable + i
		if tableIndex >= len(data) {
			break
		}

		trackSize := int(data[tableIndex]) * 256
		if trackSize == 0 {
			image.tracks[i] = &Track{}
			continue
		}
		if offset+trackSize > len(data) {
			break
		}
		image.tracks[i] = parseTrackBlock(data, offset, true)
		offset += trackSize
	}
}

// parseTrackBlock decodes the track information block at `offset` along with
// the sector data that follows it. A block without the track signature yields
// an unformatted track.
func parseTrackBlock(data []byte, offset int, extended bool) *Track {
	if offset+trackSectorInfoOffset > len(data) ||
		!bytes.HasPrefix(data[offset:], []byte(TrackSignature)) {
		return &Track{}
	}

	sectorCount := int(data[offset+trackSectorCountOffset])
	defaultSize := SectorSize(data[offset+trackSizeCodeOffset])
	track := &Track{
		Sectors:    make([]*Sector, 0, sectorCount),
		GapLength:  data[offset+trackGapLengthOffset],
		FillerByte: data[offset+trackFillerOffset],
	}

	dataOffset := offset + TrackHeaderSize
	for s := 0; s < sectorCount; s++ {
		infoOffset := offset + trackSectorInfoOffset + s*SectorInfoSize
		if infoOffset+SectorInfoSize > len(data) {
			break
		}

		var info rawSectorInfo
		err := binary.Read(
			bytes.NewReader(data[infoOffset:infoOffset+SectorInfoSize]),
			binary.LittleEndian,
			&info)
		if err != nil {
			break
		}

		actualSize := defaultSize
		if extended && info.DataLength != 0 {
			actualSize = int(info.DataLength)
		}

		// Payload that runs past the end of the file reads back as zeros.
		rawData := make([]byte, actualSize)
		if dataOffset+actualSize <= len(data) {
			copy(rawData, data[dataOffset:dataOffset+actualSize])
		}

		sector := &Sector{
			Cylinder: info.C,
			Head:     info.H,
			ID:       info.R,
			SizeCode: info.N,
			ST1:      info.ST1,
			ST2:      info.ST2,
		}
		sector.Data, sector.WeakMap = splitWeakCopies(rawData, SectorSize(info.N))
		track.Sectors = append(track.Sectors, sector)

		dataOffset += actualSize
	}
	return track
}

// TrackBlockSizes returns the size in bytes of every track block the container
// header in `data` declares, in file order. A standard image declares the same
// size for every track; an extended image takes them from its size table, where
// unformatted tracks take up no space.
func TrackBlockSizes(data []byte) ([]int, error) {
	if len(data) < HeaderSize {
		return nil, diskette.ErrImageTooSmall.WithMessage(
			fmt.Sprintf("need at least %d bytes, got %d", HeaderSize, len(data)))
	}
	if !IsContainer(data) {
		return nil, diskette.ErrNotContainer
	}

	totalTracks := int(data[headerTracksOffset]) * int(data[headerSidesOffset])
	sizes := make([]int, totalTracks)

	if !bytes.HasPrefix(data, []byte(ExtendedSignature)) {
		trackSize := int(binary.LittleEndian.Uint16(data[headerTrackSizeLow : headerTrackSizeHigh+1]))
		for i := range sizes {
			sizes[i] = trackSize
		}
		return sizes, nil
	}

	if totalTracks > HeaderSize-headerSizeTable {
		return nil, diskette.ErrInvalidGeometry.WithMessage(
			fmt.Sprintf(
				"%d tracks don't fit in the size table of an extended header",
				totalTracks))
	}
	for i := range sizes {
		sizes[i] = int(data[headerSizeTable+i]) * 256
	}
	return sizes, nil
}

// DeclaredSize returns the total size of the container the header in `data`
// describes, including the header itself.
func DeclaredSize(data []byte) (int, error) {
	sizes, err := TrackBlockSizes(data)
	if err != nil {
		return 0, err
	}

	total := HeaderSize
	for _, size := range sizes {
		total += size
	}
	return total, nil
}
