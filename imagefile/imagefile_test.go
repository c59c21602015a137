package imagefile_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/disks"
	"github.com/dargueta/diskette/dsk"
	"github.com/dargueta/diskette/imagefile"
	dt "github.com/dargueta/diskette/testing"
	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContainer(t *testing.T) []byte {
	return dt.BuildExtendedImage(t, 2, 1, []dt.TrackSpec{
		dt.PlainTrack(0, 0, 0xc1, 9, 2),
		dt.PlainTrack(1, 0, 0xc1, 9, 2),
	})
}

func TestCompressImage__RoundTrip(t *testing.T) {
	original := sampleContainer(t)

	var compressed bytes.Buffer
	n, err := imagefile.CompressImage(bytes.NewReader(original), &compressed)
	require.NoError(t, err)
	assert.Greater(t, n, int64(0x100), "the header is stored uncompressed")
	assert.Less(t, compressed.Len(), len(original))
	assert.True(t, imagefile.IsCompressed(compressed.Bytes()))

	// Expanding into a fixed buffer of exactly the right size.
	fixed := make([]byte, len(original))
	written, err := imagefile.DecompressImage(
		bytes.NewReader(compressed.Bytes()), bytewriter.New(fixed))
	require.NoError(t, err)
	assert.EqualValues(t, len(original), written)
	assert.Equal(t, original, fixed)
}

func TestCompressImage__HeaderKeptVerbatim(t *testing.T) {
	original := sampleContainer(t)

	var compressed bytes.Buffer
	_, err := imagefile.CompressImage(bytes.NewReader(original), &compressed)
	require.NoError(t, err)

	reader, err := gzip.NewReader(&compressed)
	require.NoError(t, err)
	inflated, err := io.ReadAll(reader)
	require.NoError(t, err)

	require.Greater(t, len(inflated), 0x100)
	assert.Equal(t, original[:0x100], inflated[:0x100])
	assert.Less(t, len(inflated), len(original))
}

func TestCompressImage__IncompleteContainer(t *testing.T) {
	original := sampleContainer(t)

	var compressed bytes.Buffer
	_, err := imagefile.CompressImage(bytes.NewReader(original[:len(original)-256]), &compressed)
	assert.ErrorIs(t, err, diskette.ErrInvalidGeometry)

	_, err = imagefile.CompressImage(bytes.NewReader(bytes.Repeat([]byte{1}, 512)), &compressed)
	assert.ErrorIs(t, err, diskette.ErrNotContainer)
}

func TestDecompressImage__BlockSizeMismatch(t *testing.T) {
	original := sampleContainer(t)

	var compressed bytes.Buffer
	_, err := imagefile.CompressImage(bytes.NewReader(original), &compressed)
	require.NoError(t, err)

	reader, err := gzip.NewReader(&compressed)
	require.NoError(t, err)
	inflated, err := io.ReadAll(reader)
	require.NoError(t, err)

	tests := []struct {
		Name   string
		Mutate func(data []byte) []byte
	}{
		{
			"blocks shorter than declared",
			func(data []byte) []byte {
				data[0x35]++
				return data
			},
		},
		{
			"data left after the last block",
			func(data []byte) []byte {
				return append(data, 0x42)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			mutated := test.Mutate(append([]byte{}, inflated...))

			var recompressed bytes.Buffer
			writer := gzip.NewWriter(&recompressed)
			_, err := writer.Write(mutated)
			require.NoError(t, err)
			require.NoError(t, writer.Close())

			_, err = imagefile.DecompressImage(&recompressed, io.Discard)
			assert.ErrorIs(t, err, diskette.ErrIOFailed)
		})
	}
}

func TestLoad__Raw(t *testing.T) {
	image, err := imagefile.Load(dt.ImageStream(t, sampleContainer(t)))
	require.NoError(t, err)
	assert.Equal(t, 2, image.TotalTracks())
	assert.True(t, image.Extended)
}

func TestLoad__Compressed(t *testing.T) {
	var compressed bytes.Buffer
	_, err := imagefile.CompressImage(bytes.NewReader(sampleContainer(t)), &compressed)
	require.NoError(t, err)

	image, err := imagefile.Load(&compressed)
	require.NoError(t, err)
	data, ok := image.ReadSector(1, 0, 0xc5)
	require.True(t, ok)
	assert.Equal(t, dt.PatternData(512, 0xc5), data)
}

func TestLoad__PlainGzip(t *testing.T) {
	var compressed bytes.Buffer
	writer := gzip.NewWriter(&compressed)
	_, err := writer.Write(sampleContainer(t))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	image, err := imagefile.Load(&compressed)
	require.NoError(t, err)
	assert.Equal(t, 2, image.TotalTracks())
}

func TestLoad__NotContainer(t *testing.T) {
	_, err := imagefile.Load(bytes.NewReader(bytes.Repeat([]byte{0x42}, 512)))
	assert.ErrorIs(t, err, diskette.ErrNotContainer)
}

func TestLoad__ParseErrorsPassThrough(t *testing.T) {
	data := sampleContainer(t)
	data[0x30] = 0

	_, err := imagefile.Load(bytes.NewReader(data))
	assert.ErrorIs(t, err, diskette.ErrInvalidGeometry)
}

func TestSaveFile__RoundTrip(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry("cpc-data")
	require.NoError(t, err)
	original := dsk.NewBlank(geometry)
	require.True(t, original.WriteSector(3, 0, 0xc4, []byte("HELLO")))

	for _, compressed := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "disk.dsk")
		require.NoError(t, imagefile.SaveFile(path, original, compressed))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, compressed, imagefile.IsCompressed(raw))

		loaded, err := imagefile.LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, original.TotalTracks(), loaded.TotalTracks())

		data, ok := loaded.ReadSector(3, 0, 0xc4)
		require.True(t, ok)
		assert.Equal(t, []byte("HELLO"), data[:5])
		assert.EqualValues(t, 0xe5, data[5])
	}
}

func TestLoadFile__Missing(t *testing.T) {
	_, err := imagefile.LoadFile(filepath.Join(t.TempDir(), "nope.dsk"))
	assert.ErrorIs(t, err, diskette.ErrIOFailed)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveFile__PredefinedGeometries(t *testing.T) {
	for _, slug := range disks.Slugs() {
		t.Run(slug, func(t *testing.T) {
			geometry, err := disks.GetPredefinedDiskGeometry(slug)
			require.NoError(t, err)
			original := dsk.NewBlank(geometry)

			for _, compressed := range []bool{false, true} {
				path := filepath.Join(t.TempDir(), "blank.dsk")
				require.NoError(t, imagefile.SaveFile(path, original, compressed))

				if !compressed {
					info, err := os.Stat(path)
					require.NoError(t, err)
					trackHeaders := int64(geometry.Tracks*geometry.Sides) * 0x100
					assert.EqualValues(t, 0x100+trackHeaders+geometry.TotalSizeBytes(), info.Size())
				}

				loaded, err := imagefile.LoadFile(path)
				require.NoError(t, err)
				assert.Equal(t, original.NumTracks, loaded.NumTracks)
				assert.Equal(t, original.NumSides, loaded.NumSides)

				lastTrack := loaded.Track(loaded.NumTracks-1, loaded.NumSides-1)
				require.NotNil(t, lastTrack)
				assert.Len(t, lastTrack.Sectors, int(geometry.SectorsPerTrack))
			}
		})
	}
}
