package testing

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/dargueta/diskette/dsk"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// SectorSpec describes one sector of a synthetic container. Data is written to
// the container verbatim, so a weak sector is described by concatenating its
// copies.
type SectorSpec struct {
	C, H, R, N byte
	ST1, ST2   byte
	Data       []byte
}

// TrackSpec describes one track of a synthetic container. A TrackSpec with no
// sectors produces a size table entry of 0 in extended images.
type TrackSpec struct {
	Sectors []SectorSpec
}

// FilledSector returns a nominal-size sector whose data is `fill` repeated.
func FilledSector(c, h, r, n, fill byte) SectorSpec {
	return SectorSpec{
		C:    c,
		H:    h,
		R:    r,
		N:    n,
		Data: bytes.Repeat([]byte{fill}, dsk.SectorSize(n)),
	}
}

// PatternData returns `size` bytes counting up from `seed`, so that different
// sectors are easy to tell apart.
func PatternData(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}

// PlainTrack builds a track of consecutive sectors with pattern data, seeded
// from each sector's ID.
func PlainTrack(cylinder, head, firstID byte, count int, sizeCode byte) TrackSpec {
	spec := TrackSpec{Sectors: make([]SectorSpec, count)}
	for i := 0; i < count; i++ {
		id := firstID + byte(i)
		spec.Sectors[i] = SectorSpec{
			C:    cylinder,
			H:    head,
			R:    id,
			N:    sizeCode,
			Data: PatternData(dsk.SectorSize(sizeCode), id),
		}
	}
	return spec
}

func writeTrackHeader(block []byte, cylinder, side int, sizeCode byte, sectors []SectorSpec, extended bool) {
	copy(block, "Track-Info\r\n")
	block[0x10] = byte(cylinder)
	block[0x11] = byte(side)
	block[0x14] = sizeCode
	block[0x15] = byte(len(sectors))
	block[0x16] = 0x4e
	block[0x17] = 0xe5

	for i, sector := range sectors {
		info := block[0x18+i*8 : 0x18+i*8+8]
		info[0] = sector.C
		info[1] = sector.H
		info[2] = sector.R
		info[3] = sector.N
		info[4] = sector.ST1
		info[5] = sector.ST2
		if extended {
			binary.LittleEndian.PutUint16(info[6:], uint16(len(sector.Data)))
		}
	}
}

// BuildExtendedImage assembles an extended DSK container. Tracks missing from
// `tracks` are stored as unformatted.
func BuildExtendedImage(t *testing.T, numTracks, numSides int, tracks []TrackSpec) []byte {
	total := numTracks * numSides
	require.LessOrEqual(t, len(tracks), total, "more track specs than tracks")

	header := make([]byte, 0x100)
	copy(header, "EXTENDED CPC DSK File\r\nDisk-Info\r\n")
	header[0x30] = byte(numTracks)
	header[0x31] = byte(numSides)

	var body bytes.Buffer
	for i, spec := range tracks {
		if len(spec.Sectors) == 0 {
			continue
		}
		require.LessOrEqual(t, len(spec.Sectors), 29, "track %d has too many sectors", i)

		size := 0x100
		for _, sector := range spec.Sectors {
			size += len(sector.Data)
		}
		size = (size + 255) &^ 255
		require.LessOrEqual(t, size/256, 255, "track %d is too large", i)
		header[0x34+i] = byte(size / 256)

		block := make([]byte, size)
		writeTrackHeader(block, i/numSides, i%numSides, spec.Sectors[0].N, spec.Sectors, true)
		offset := 0x100
		for _, sector := range spec.Sectors {
			offset += copy(block[offset:], sector.Data)
		}
		body.Write(block)
	}
	return append(header, body.Bytes()...)
}

// BuildStandardImage assembles a standard DSK container with a fixed track size.
// Every sector's data is padded or truncated to the nominal size of `sizeCode`.
func BuildStandardImage(
	t *testing.T, numTracks, numSides int, sizeCode byte, tracks []TrackSpec,
) []byte {
	total := numTracks * numSides
	require.LessOrEqual(t, len(tracks), total, "more track specs than tracks")

	sectorSize := dsk.SectorSize(sizeCode)
	maxSectors := 0
	for _, spec := range tracks {
		if len(spec.Sectors) > maxSectors {
			maxSectors = len(spec.Sectors)
		}
	}
	trackSize := 0x100 + maxSectors*sectorSize

	image := make([]byte, 0x100+total*trackSize)
	copy(image, "MV - CPCEMU Disk-File\r\nDisk-Info\r\n")
	image[0x30] = byte(numTracks)
	image[0x31] = byte(numSides)
	binary.LittleEndian.PutUint16(image[0x32:], uint16(trackSize))

	for i, spec := range tracks {
		block := image[0x100+i*trackSize : 0x100+(i+1)*trackSize]
		writeTrackHeader(block, i/numSides, i%numSides, sizeCode, spec.Sectors, false)
		for s, sector := range spec.Sectors {
			copy(block[0x100+s*sectorSize:0x100+(s+1)*sectorSize], sector.Data)
		}
	}
	return image
}

// ParseImage parses a container and fails the test if that doesn't work.
func ParseImage(t *testing.T, data []byte) *dsk.Image {
	image, err := dsk.Parse(data)
	require.NoError(t, err, "failed to parse container")
	require.NotNil(t, image)
	return image
}

// ImageStream wraps raw container bytes in a stream. Writes to the stream modify
// `data` in place and can't extend it.
func ImageStream(t *testing.T, data []byte) io.ReadWriteSeeker {
	require.Greater(t, len(data), 0, "image is empty")
	return bytesextra.NewReadWriteSeeker(data)
}
