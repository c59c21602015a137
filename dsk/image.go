// Package dsk implements the in-memory model of a floppy disk and the CPC DSK
// container format used to store it, in both its standard ("MV - CPC") and
// extended ("EXTENDED CPC DSK") encodings.
//
// Tracks are addressed by cylinder and head and stored flat, at index
// `cylinder * NumSides + head`. A track that was never stored in the container
// is absent (nil); a track that is present but holds no sectors is unformatted.
package dsk

import (
	"github.com/boljen/go-bitmap"
)

// Sector is a single sector as recorded on the disk, addressed by its C/H/R/N
// header.
type Sector struct {
	Cylinder byte
	Head     byte
	// ID is the R value of the sector header. On +3 disks these usually run
	// from 1 to 9; CPC formats use 0x41 or 0xC1 as the first ID.
	ID byte
	// SizeCode is the N value of the sector header. The nominal size of the
	// sector is 128 << N bytes.
	SizeCode byte
	// ST1 and ST2 are the controller status bits recorded when the disk was
	// imaged. They're replayed into the result of a read, never recomputed.
	ST1 byte
	ST2 byte
	// Data holds the sector payload. It's usually exactly the nominal size, but
	// may be longer for sectors declared larger than their logical size.
	Data []byte
	// WeakMap flags the bytes of Data that read back differently every time.
	// It's nil for stable sectors.
	WeakMap bitmap.Bitmap
}

// NominalSize returns the size of the sector implied by its size code.
func (s *Sector) NominalSize() int {
	return SectorSize(s.SizeCode)
}

// IsWeak returns true if at least one byte of the sector is unstable.
func (s *Sector) IsWeak() bool {
	return s.WeakMap != nil
}

// IsDeleted returns true if the sector carries a deleted-data address mark.
func (s *Sector) IsDeleted() bool {
	return s.ST2&0x40 != 0
}

// HasCRCError returns true if the sector was recorded with a data CRC error.
func (s *Sector) HasCRCError() bool {
	return s.ST1&0x20 != 0
}

// IsWeakByte returns true if the byte at `offset` is flagged as unstable.
func (s *Sector) IsWeakByte(offset int) bool {
	if s.WeakMap == nil || offset < 0 || offset >= len(s.Data) {
		return false
	}
	return s.WeakMap.Get(offset)
}

// SectorSize returns the number of bytes in a sector with size code N, which is
// 128 << N.
//
// Size codes above 8 are treated as 8 (32K). Real hardware tops out at N=6 on
// a double density disk, so larger values only come from corrupt headers or
// command bytes, and shifting by them would overflow or allocate gigabytes.
func SectorSize(sizeCode byte) int {
	if sizeCode > 8 {
		sizeCode = 8
	}
	return 128 << sizeCode
}

// Track is the ordered list of sectors found on one side of one cylinder, in
// the order they pass under the head.
type Track struct {
	Sectors []*Sector
	// GapLength and FillerByte are the GAP#3 length and filler byte the track
	// was formatted with. They're informational only.
	GapLength  byte
	FillerByte byte
}

// FindSector returns the first sector on the track with the given ID, or nil.
func (t *Track) FindSector(id byte) *Sector {
	for _, sector := range t.Sectors {
		if sector.ID == id {
			return sector
		}
	}
	return nil
}

// IsFormatted returns true if the track has at least one sector.
func (t *Track) IsFormatted() bool {
	return len(t.Sectors) > 0
}

// Image is a whole disk. It owns all of its tracks and sectors.
type Image struct {
	tracks    []*Track
	NumTracks int
	NumSides  int
	// Extended is true if the image was loaded from (or will be written as)
	// the extended DSK encoding.
	Extended bool
}

// NewImage creates an image with the given geometry and no tracks present.
func NewImage(numTracks, numSides int) *Image {
	return &Image{
		tracks:    make([]*Track, numTracks*numSides),
		NumTracks: numTracks,
		NumSides:  numSides,
	}
}

func (img *Image) trackIndex(cylinder, head int) (int, bool) {
	if cylinder < 0 || head < 0 || head >= img.NumSides {
		return 0, false
	}
	index := cylinder*img.NumSides + head
	if index >= len(img.tracks) {
		return 0, false
	}
	return index, true
}

// Track returns the track at the given cylinder and head, or nil if it's out of
// range or wasn't stored in the image.
func (img *Image) Track(cylinder, head int) *Track {
	index, ok := img.trackIndex(cylinder, head)
	if !ok {
		return nil
	}
	return img.tracks[index]
}

// SetTrack replaces the track at the given cylinder and head. It returns false
// without modifying the image if the address is outside the image's geometry.
func (img *Image) SetTrack(cylinder, head int, track *Track) bool {
	index, ok := img.trackIndex(cylinder, head)
	if !ok {
		return false
	}
	img.tracks[index] = track
	return true
}

// ReadSector returns the data of the first sector with the given ID on the
// given track. The returned slice aliases the image's storage.
func (img *Image) ReadSector(cylinder, head int, id byte) ([]byte, bool) {
	track := img.Track(cylinder, head)
	if track == nil {
		return nil, false
	}
	sector := track.FindSector(id)
	if sector == nil {
		return nil, false
	}
	return sector.Data, true
}

// WriteSector overwrites the first sector with the given ID in place. At most
// len(sector.Data) bytes are copied; the sector never grows. It returns false
// if no such sector exists.
func (img *Image) WriteSector(cylinder, head int, id byte, data []byte) bool {
	track := img.Track(cylinder, head)
	if track == nil {
		return false
	}
	sector := track.FindSector(id)
	if sector == nil {
		return false
	}
	copy(sector.Data, data)
	return true
}

// TotalTracks returns the number of track slots in the image, present or not.
func (img *Image) TotalTracks() int {
	return img.NumTracks * img.NumSides
}

// Sides returns the number of sides in the image.
func (img *Image) Sides() int {
	return img.NumSides
}
