// Package disks holds the geometries of common floppy formats used with CPC DSK
// images, for creating blank images and sanity-checking loaded ones.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/dargueta/diskette"
	"github.com/gocarina/gocsv"
)

////////////////////////////////////////////////////////////////////////////////
// Geometry

// DiskGeometry describes how a disk is laid out when it's formatted: every track
// on every side gets the same sectors, numbered consecutively starting at
// FirstSectorID.
type DiskGeometry struct {
	Slug            string `csv:"slug"`
	Name            string `csv:"name"`
	Tracks          uint   `csv:"tracks"`
	Sides           uint   `csv:"sides"`
	SectorsPerTrack uint   `csv:"sectors_per_track"`
	// SizeCode is the N value of each sector. Sectors are 128 << N bytes.
	SizeCode      uint `csv:"size_code"`
	FirstSectorID uint `csv:"first_sector_id"`
	// GapLength is the GAP#3 length used when formatting.
	GapLength  uint   `csv:"gap_length"`
	FillerByte uint   `csv:"filler_byte"`
	Notes      string `csv:"notes"`
}

// BytesPerSector gives the nominal size of a single sector.
func (g *DiskGeometry) BytesPerSector() int {
	return 128 << g.SizeCode
}

// TotalSizeBytes gives the formatted capacity of the disk, excluding the DSK
// container's own headers.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	return int64(g.Tracks*g.Sides*g.SectorsPerTrack) * int64(g.BytesPerSector())
}

////////////////////////////////////////////////////////////////////////////////

//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]DiskGeometry

// GetPredefinedDiskGeometry returns the geometry registered under `slug`.
func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}

	return DiskGeometry{}, diskette.ErrUnknownGeometry.WithMessage(
		fmt.Sprintf("no predefined disk geometry exists with slug %q", slug))
}

// Slugs returns the slugs of all predefined geometries in sorted order.
func Slugs() []string {
	slugs := make([]string, 0, len(diskGeometries))
	for slug := range diskGeometries {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

func init() {
	csvReader := csv.NewReader(strings.NewReader(diskGeometriesRawCSV))
	csvReader.Comma = '|'

	var rows []DiskGeometry
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		panic(fmt.Errorf("failed to decode disk geometry table: %w", err))
	}

	diskGeometries = make(map[string]DiskGeometry, len(rows))
	for i, row := range rows {
		_, exists := diskGeometries[row.Slug]
		if exists {
			message := fmt.Errorf(
				"duplicate definition for disk %q found on row %d", row.Slug, i+1)
			panic(message)
		}
		if row.SizeCode > 6 || row.FirstSectorID+row.SectorsPerTrack > 256 {
			panic(fmt.Errorf("disk %q on row %d has an impossible layout", row.Slug, i+1))
		}
		diskGeometries[row.Slug] = row
	}
}
