package imagefile

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/dsk"
)

// gzipMagic is the two-byte signature at the start of every gzip stream.
var gzipMagic = []byte{0x1f, 0x8b}

// IsCompressed returns true if `data` starts with a gzip header.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// encodeContainer lays out a container for compression: the disk header as-is,
// then each track block RLE8 encoded on its own. `data` must be exactly as long
// as its header says.
func encodeContainer(data []byte) ([]byte, error) {
	sizes, err := dsk.TrackBlockSizes(data)
	if err != nil {
		return nil, err
	}
	if err := checkDeclaredSize(data, sizes); err != nil {
		return nil, err
	}

	encoded := append(make([]byte, 0, len(data)/4), data[:dsk.HeaderSize]...)
	offset := dsk.HeaderSize
	for _, size := range sizes {
		encoded = AppendRLE8(encoded, data[offset:offset+size])
		offset += size
	}
	return encoded, nil
}

// decodeContainer reverses [encodeContainer]. Track block sizes come from the
// raw header, and every block must decode to exactly that size with nothing
// left over at the end.
func decodeContainer(encoded []byte) ([]byte, error) {
	sizes, err := dsk.TrackBlockSizes(encoded)
	if err != nil {
		return nil, err
	}

	output := bytes.NewBuffer(make([]byte, 0, len(encoded)*2))
	output.Write(encoded[:dsk.HeaderSize])

	source := bytes.NewReader(encoded[dsk.HeaderSize:])
	for i, size := range sizes {
		block, err := DecodeRLE8(source, size)
		if err != nil {
			return nil, diskette.ErrIOFailed.Wrap(fmt.Errorf("track block %d: %w", i, err))
		}
		output.Write(block)
	}

	if trailing := source.Len(); trailing > 0 {
		return nil, diskette.ErrIOFailed.WithMessage(
			fmt.Sprintf("%d bytes of encoded data after the last track block", trailing))
	}
	return output.Bytes(), nil
}

func checkDeclaredSize(data []byte, sizes []int) error {
	expected := dsk.HeaderSize
	for _, size := range sizes {
		expected += size
	}
	if expected != len(data) {
		return diskette.ErrInvalidGeometry.WithMessage(
			fmt.Sprintf("container is %d bytes but its header declares %d", len(data), expected))
	}
	return nil
}

// CompressImage compresses a container read from `input`. The header is kept
// verbatim and every track block is RLE8 encoded separately before the whole
// thing is gzipped.
//
// The container must be complete: its length must match what its header
// declares. The returned int64 gives the number of bytes fed to gzip, not the
// size of the final output.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return 0, diskette.ErrIOFailed.Wrap(err)
	}

	encoded, err := encodeContainer(data)
	if err != nil {
		return 0, err
	}

	// The images are small, so the best compression level costs next to
	// nothing.
	gzWriter, err := gzip.NewWriterLevel(output, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	n, err := gzWriter.Write(encoded)
	if err != nil {
		gzWriter.Close()
		return int64(n), diskette.ErrIOFailed.Wrap(err)
	}
	if err := gzWriter.Close(); err != nil {
		return int64(n), diskette.ErrIOFailed.Wrap(err)
	}
	return int64(n), nil
}

// inflate gunzips `data` in full.
func inflate(data []byte) ([]byte, error) {
	gzReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, diskette.ErrIOFailed.Wrap(err)
	}
	defer gzReader.Close()

	inflated, err := io.ReadAll(gzReader)
	if err != nil {
		return nil, diskette.ErrIOFailed.Wrap(err)
	}
	return inflated, nil
}

// DecompressImage takes a container written by [CompressImage] and writes the
// original raw bytes to `output`. The returned int64 is the decompressed size.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return 0, diskette.ErrIOFailed.Wrap(err)
	}

	inflated, err := inflate(data)
	if err != nil {
		return 0, err
	}
	container, err := decodeContainer(inflated)
	if err != nil {
		return 0, err
	}

	n, err := output.Write(container)
	if err != nil {
		return int64(n), diskette.ErrIOFailed.Wrap(err)
	}
	return int64(n), nil
}
