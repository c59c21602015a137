package dsk_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/dsk"
	dt "github.com/dargueta/diskette/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsContainer(t *testing.T) {
	tests := []struct {
		Name     string
		Data     []byte
		Expected bool
	}{
		{"standard", []byte("MV - CPCEMU Disk-File\r\nDisk-Info\r\n"), true},
		{"extended", []byte("EXTENDED CPC DSK File\r\nDisk-Info\r\n"), true},
		{"standard prefix only", []byte("MV - CPC"), true},
		{"truncated extended", []byte("EXTENDED CPC"), false},
		{"lowercase", []byte("mv - cpcemu"), false},
		{"empty", []byte{}, false},
		{"raw sectors", bytes.Repeat([]byte{0xe5}, 512), false},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			assert.Equal(t, test.Expected, dsk.IsContainer(test.Data))
		})
	}
}

func TestParse__TooSmall(t *testing.T) {
	data := dt.BuildExtendedImage(t, 1, 1, nil)
	_, err := dsk.Parse(data[:255])
	assert.ErrorIs(t, err, diskette.ErrImageTooSmall)

	_, err = dsk.Parse(nil)
	assert.ErrorIs(t, err, diskette.ErrImageTooSmall)
}

func TestParse__ZeroGeometry(t *testing.T) {
	noTracks := dt.BuildExtendedImage(t, 1, 1, nil)
	noTracks[0x30] = 0
	image, err := dsk.Parse(noTracks)
	assert.ErrorIs(t, err, diskette.ErrInvalidGeometry)
	assert.Nil(t, image, "no partial image should be returned")

	noSides := dt.BuildExtendedImage(t, 1, 1, nil)
	noSides[0x31] = 0
	_, err = dsk.Parse(noSides)
	assert.ErrorIs(t, err, diskette.ErrInvalidGeometry)
}

func TestParse__StandardZeroTrackSize(t *testing.T) {
	data := dt.BuildStandardImage(t, 1, 1, 2, []dt.TrackSpec{dt.PlainTrack(0, 0, 1, 9, 2)})
	data[0x32] = 0
	data[0x33] = 0

	image, err := dsk.Parse(data)
	assert.ErrorIs(t, err, diskette.ErrZeroTrackSize)
	assert.Nil(t, image)
}

func TestParse__StandardTrackSizeSmallerThanHeader(t *testing.T) {
	data := make([]byte, 0x110)
	copy(data, "MV - CPCEMU Disk-File\r\nDisk-Info\r\n")
	data[0x30] = 1
	data[0x31] = 1
	data[0x32] = 0x10
	copy(data[0x100:], "Track-Info")

	var image *dsk.Image
	var err error
	require.NotPanics(t, func() { image, err = dsk.Parse(data) })
	assert.ErrorIs(t, err, diskette.ErrInvalidGeometry)
	assert.Nil(t, image)
}

func TestParse__Standard(t *testing.T) {
	specs := []dt.TrackSpec{
		dt.PlainTrack(0, 0, 0xc1, 9, 2),
		dt.PlainTrack(0, 1, 0xc1, 9, 2),
		dt.PlainTrack(1, 0, 0xc1, 9, 2),
		dt.PlainTrack(1, 1, 0xc1, 9, 2),
	}
	image := dt.ParseImage(t, dt.BuildStandardImage(t, 2, 2, 2, specs))

	assert.False(t, image.Extended)
	assert.Equal(t, 2, image.NumTracks)
	assert.Equal(t, 2, image.NumSides)
	require.Equal(t, 4, image.TotalTracks())

	for cylinder := 0; cylinder < 2; cylinder++ {
		for head := 0; head < 2; head++ {
			track := image.Track(cylinder, head)
			require.NotNil(t, track, "track %d/%d missing", cylinder, head)
			require.Len(t, track.Sectors, 9)

			for i, sector := range track.Sectors {
				assert.EqualValues(t, cylinder, sector.Cylinder)
				assert.EqualValues(t, head, sector.Head)
				assert.EqualValues(t, 0xc1+i, sector.ID)
				assert.EqualValues(t, 2, sector.SizeCode)
				assert.Equal(t, dt.PatternData(512, sector.ID), sector.Data)
				assert.Nil(t, sector.WeakMap)
			}
		}
	}
}

func TestParse__StandardTruncated(t *testing.T) {
	specs := []dt.TrackSpec{
		dt.PlainTrack(0, 0, 1, 9, 2),
		dt.PlainTrack(1, 0, 1, 9, 2),
		dt.PlainTrack(2, 0, 1, 9, 2),
	}
	data := dt.BuildStandardImage(t, 3, 1, 2, specs)
	trackSize := 0x100 + 9*512

	// Cut the file in the middle of the third track.
	image := dt.ParseImage(t, data[:0x100+2*trackSize+100])
	assert.Equal(t, 3, image.TotalTracks())
	assert.NotNil(t, image.Track(0, 0))
	assert.NotNil(t, image.Track(1, 0))
	assert.Nil(t, image.Track(2, 0), "truncated track should be absent")
}

func TestParse__ExtendedUnformattedTrack(t *testing.T) {
	specs := []dt.TrackSpec{
		dt.PlainTrack(0, 0, 1, 9, 2),
		{},
		dt.PlainTrack(2, 0, 1, 4, 3),
	}
	data := dt.BuildExtendedImage(t, 3, 1, specs)
	assert.EqualValues(t, 0, data[0x35], "size table entry for the unformatted track")

	image := dt.ParseImage(t, data)
	assert.True(t, image.Extended)

	unformatted := image.Track(1, 0)
	require.NotNil(t, unformatted, "unformatted track must be present")
	assert.False(t, unformatted.IsFormatted())
	assert.Empty(t, unformatted.Sectors)

	// The track after the unformatted one must start right after track 0's data.
	third := image.Track(2, 0)
	require.NotNil(t, third)
	require.Len(t, third.Sectors, 4)
	assert.Equal(t, dt.PatternData(1024, 1), third.Sectors[0].Data)
}

func TestParse__ExtendedTruncated(t *testing.T) {
	specs := []dt.TrackSpec{
		dt.PlainTrack(0, 0, 1, 9, 2),
		dt.PlainTrack(1, 0, 1, 9, 2),
	}
	data := dt.BuildExtendedImage(t, 2, 1, specs)

	image := dt.ParseImage(t, data[:len(data)-1])
	assert.NotNil(t, image.Track(0, 0))
	assert.Nil(t, image.Track(1, 0))
}

func TestParse__ExtendedZeroLengthUsesDefaultSize(t *testing.T) {
	specs := []dt.TrackSpec{dt.PlainTrack(0, 0, 1, 2, 1)}
	data := dt.BuildExtendedImage(t, 1, 1, specs)

	// Clear the explicit data lengths of both sectors.
	for _, offset := range []int{0x100 + 0x18 + 6, 0x100 + 0x18 + 8 + 6} {
		data[offset] = 0
		data[offset+1] = 0
	}

	image := dt.ParseImage(t, data)
	track := image.Track(0, 0)
	require.Len(t, track.Sectors, 2)
	assert.Equal(t, dt.PatternData(256, 1), track.Sectors[0].Data)
	assert.Equal(t, dt.PatternData(256, 2), track.Sectors[1].Data)
}

func TestParse__VariableSectorLengths(t *testing.T) {
	short := dt.SectorSpec{C: 0, H: 0, R: 1, N: 6, ST1: 0x20, ST2: 0x20, Data: dt.PatternData(6144, 9)}
	normal := dt.SectorSpec{C: 0, H: 0, R: 2, N: 2, Data: dt.PatternData(512, 3)}
	data := dt.BuildExtendedImage(t, 1, 1, []dt.TrackSpec{{Sectors: []dt.SectorSpec{short, normal}}})

	image := dt.ParseImage(t, data)
	track := image.Track(0, 0)
	require.Len(t, track.Sectors, 2)

	assert.Len(t, track.Sectors[0].Data, 6144, "stored length must win over nominal size")
	assert.True(t, track.Sectors[0].HasCRCError())
	assert.EqualValues(t, 0x20, track.Sectors[0].ST2)
	assert.Equal(t, dt.PatternData(512, 3), track.Sectors[1].Data)
}

func TestParse__BadTrackSignature(t *testing.T) {
	data := dt.BuildExtendedImage(t, 1, 1, []dt.TrackSpec{dt.PlainTrack(0, 0, 1, 9, 2)})
	copy(data[0x100:], "Garbage!!!")

	image := dt.ParseImage(t, data)
	track := image.Track(0, 0)
	require.NotNil(t, track)
	assert.Empty(t, track.Sectors)
}

func TestParse__RecordedStatus(t *testing.T) {
	deleted := dt.FilledSector(0, 0, 1, 2, 0xaa)
	deleted.ST2 = 0x40
	image := dt.ParseImage(
		t, dt.BuildExtendedImage(t, 1, 1, []dt.TrackSpec{{Sectors: []dt.SectorSpec{deleted}}}))

	sector := image.Track(0, 0).Sectors[0]
	assert.True(t, sector.IsDeleted())
	assert.False(t, sector.HasCRCError())
}

func TestTrackBlockSizes__Standard(t *testing.T) {
	specs := []dt.TrackSpec{dt.PlainTrack(0, 0, 1, 9, 2), dt.PlainTrack(1, 0, 1, 9, 2)}
	data := dt.BuildStandardImage(t, 2, 1, 2, specs)

	sizes, err := dsk.TrackBlockSizes(data)
	require.NoError(t, err)
	assert.Equal(t, []int{0x100 + 9*512, 0x100 + 9*512}, sizes)

	total, err := dsk.DeclaredSize(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), total)
}

func TestTrackBlockSizes__Extended(t *testing.T) {
	specs := []dt.TrackSpec{dt.PlainTrack(0, 0, 1, 9, 2), {}, dt.PlainTrack(2, 0, 1, 1, 1)}
	data := dt.BuildExtendedImage(t, 3, 1, specs)

	sizes, err := dsk.TrackBlockSizes(data)
	require.NoError(t, err)
	assert.Equal(t, []int{0x100 + 9*512, 0, 0x200}, sizes)

	total, err := dsk.DeclaredSize(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), total)
}

func TestTrackBlockSizes__Errors(t *testing.T) {
	_, err := dsk.TrackBlockSizes(make([]byte, 10))
	assert.ErrorIs(t, err, diskette.ErrImageTooSmall)

	_, err = dsk.TrackBlockSizes(make([]byte, 0x100))
	assert.ErrorIs(t, err, diskette.ErrNotContainer)

	data := dt.BuildExtendedImage(t, 1, 1, nil)
	data[0x30] = 110
	data[0x31] = 2
	_, err = dsk.TrackBlockSizes(data)
	assert.ErrorIs(t, err, diskette.ErrInvalidGeometry)
}
