// Package cpm reads the CP/M-style directory that +3DOS and AMSDOS keep at the
// start of a disk.
//
// Only the directory is interpreted. The disk parameter block isn't consulted;
// the directory is assumed to live in the first four sectors (by ID) of the
// first track, which holds for every standard +3 and CPC format.
package cpm

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/dargueta/diskette/dsk"
)

const (
	DirentSize          = 32
	DirectorySectors    = 4
	DirectorySectorSize = 512
	RecordSize          = 128
	// ExtentSize is the number of bytes addressed by one full logical extent.
	ExtentSize = 16384
	// DeletedMarker in the user byte marks a free directory entry.
	DeletedMarker = 0xe5
	MaxUserNumber = 15
)

// RawDirent is the on-disk representation of a directory entry.
type RawDirent struct {
	// User is the user number (0-15) owning the file, or DeletedMarker if the
	// entry is free.
	User uint8
	// Name is the name of the file, right-padded with spaces. The high bit of
	// each byte is an attribute flag, not part of the name.
	Name [8]byte
	// Extension is the extension of the file, right-padded with spaces. The high
	// bits of its three bytes are the read-only, system, and archive flags.
	Extension [3]byte
	// ExtentLow is the low five bits of the extent number.
	ExtentLow uint8
	// ByteCount is the number of bytes used in the last record of the extent.
	// Zero means the whole record is used.
	ByteCount uint8
	// ExtentHigh holds the extent number divided by 32.
	ExtentHigh uint8
	// RecordCount is the number of 128-byte records used in this extent.
	RecordCount uint8
	// Allocation lists the blocks used by this extent. Unused slots are zero.
	Allocation [16]byte
}

// Extent returns the logical extent number of the entry.
func (d *RawDirent) Extent() int {
	return int(d.ExtentLow) + int(d.ExtentHigh)*32
}

// BlockCount returns the number of allocation slots in use.
func (d *RawDirent) BlockCount() int {
	count := 0
	for _, block := range d.Allocation {
		if block != 0 {
			count++
		}
	}
	return count
}

// File is a directory listing entry, merged from all the extents of one file.
type File struct {
	Name string
	Ext  string
	User int
	// Size is the file size in bytes, computed from the record and byte counts
	// of the file's last extent.
	Size int
	// Blocks is the number of allocation blocks used across all extents.
	Blocks int
}

// FullName returns the name in the usual NAME.EXT form.
func (f File) FullName() string {
	if f.Ext == "" {
		return f.Name
	}
	return f.Name + "." + f.Ext
}

// decodeNameField converts a raw name or extension to a string: attribute bits
// are masked off, control characters dropped, and trailing spaces trimmed.
func decodeNameField(raw []byte) string {
	var builder strings.Builder
	for _, b := range raw {
		ch := b & 0x7f
		if ch >= 0x20 {
			builder.WriteByte(ch)
		}
	}
	return strings.TrimRight(builder.String(), " ")
}

// directoryBuffer gathers the directory sectors of `image` into one buffer.
// Each sector occupies DirectorySectorSize bytes; short sectors are padded with
// zeros.
func directoryBuffer(image *dsk.Image) []byte {
	track := image.Track(0, 0)
	if track == nil || !track.IsFormatted() {
		return nil
	}

	sorted := make([]*dsk.Sector, len(track.Sectors))
	copy(sorted, track.Sectors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > DirectorySectors {
		sorted = sorted[:DirectorySectors]
	}

	buffer := make([]byte, len(sorted)*DirectorySectorSize)
	for i, sector := range sorted {
		data := sector.Data
		if len(data) > DirectorySectorSize {
			data = data[:DirectorySectorSize]
		}
		copy(buffer[i*DirectorySectorSize:], data)
	}
	return buffer
}

type liveDirent struct {
	RawDirent
	name string
	ext  string
}

// readLiveDirents returns every directory entry that belongs to a file, in
// directory order.
func readLiveDirents(image *dsk.Image) []liveDirent {
	buffer := directoryBuffer(image)
	reader := bytes.NewReader(buffer)
	entries := make([]liveDirent, 0, len(buffer)/DirentSize)

	for i := 0; i < len(buffer)/DirentSize; i++ {
		var entry liveDirent
		err := binary.Read(reader, binary.LittleEndian, &entry.RawDirent)
		if err != nil {
			break
		}
		if entry.User == DeletedMarker || entry.User > MaxUserNumber {
			continue
		}

		entry.name = decodeNameField(entry.Name[:])
		if entry.name == "" {
			continue
		}
		entry.ext = decodeNameField(entry.Extension[:])
		entries = append(entries, entry)
	}
	return entries
}

type fileKey struct {
	user int
	name string
	ext  string
}

type fileAccumulator struct {
	file        File
	maxExtent   int
	recordCount int
	byteCount   int
}

// ListFiles returns the files in the directory of `image`, in the order their
// first entries appear. It returns an empty list if the first track is absent
// or unformatted.
//
// A file's size is taken from its highest-numbered extent. Its block count is
// the total over all of its extents.
func ListFiles(image *dsk.Image) []File {
	accumulators := map[fileKey]*fileAccumulator{}
	order := []*fileAccumulator{}

	for _, entry := range readLiveDirents(image) {
		key := fileKey{user: int(entry.User), name: entry.name, ext: entry.ext}
		acc, exists := accumulators[key]
		if !exists {
			acc = &fileAccumulator{
				file:      File{Name: entry.name, Ext: entry.ext, User: int(entry.User)},
				maxExtent: -1,
			}
			accumulators[key] = acc
			order = append(order, acc)
		}

		acc.file.Blocks += entry.BlockCount()
		if entry.Extent() > acc.maxExtent {
			acc.maxExtent = entry.Extent()
			acc.recordCount = int(entry.RecordCount)
			acc.byteCount = int(entry.ByteCount)
		}
	}

	files := make([]File, 0, len(order))
	for _, acc := range order {
		acc.file.Size = fileSize(acc.maxExtent, acc.recordCount, acc.byteCount)
		files = append(files, acc.file)
	}
	return files
}

func fileSize(maxExtent, recordCount, byteCount int) int {
	size := maxExtent*ExtentSize + recordCount*RecordSize
	if byteCount > 0 && size > 0 {
		size = size - RecordSize + byteCount
	}
	return size
}
