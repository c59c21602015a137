package imagefile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/dsk"
)

// Load reads a container from `r` and parses it.
//
// Gzipped input is decompressed first. If the result is a complete container,
// that is, its length matches the size its header declares, it's used as-is.
// Otherwise its track blocks are assumed to be RLE8 encoded as written by
// [CompressImage]. This way both plain gzipped containers and compressed
// containers load.
func Load(r io.Reader) (*dsk.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, diskette.ErrIOFailed.Wrap(err)
	}

	data, err = expand(data)
	if err != nil {
		return nil, err
	}
	if !dsk.IsContainer(data) {
		return nil, diskette.ErrNotContainer
	}
	return dsk.Parse(data)
}

func expand(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}

	inflated, err := inflate(data)
	if err != nil {
		return nil, err
	}
	if !dsk.IsContainer(inflated) || isCompleteContainer(inflated) {
		return inflated, nil
	}
	return decodeContainer(inflated)
}

// isCompleteContainer returns true if `data` is exactly as long as its header
// says it should be. Compressed containers carry the same header but their
// track blocks are always shorter.
func isCompleteContainer(data []byte) bool {
	declared, err := dsk.DeclaredSize(data)
	return err == nil && declared == len(data)
}

// LoadFile reads and parses the container at `path`.
func LoadFile(path string) (*dsk.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, diskette.ErrIOFailed.Wrap(err)
	}
	defer file.Close()

	image, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return image, nil
}

// Save encodes `image` as an extended container and writes it to `w`, either
// raw or compressed with [CompressImage].
func Save(w io.Writer, image *dsk.Image, compressed bool) error {
	encoded, err := dsk.Encode(image)
	if err != nil {
		return err
	}

	if compressed {
		_, err = CompressImage(bytes.NewReader(encoded), w)
	} else {
		_, err = w.Write(encoded)
	}
	if err != nil {
		return diskette.ErrIOFailed.Wrap(err)
	}
	return nil
}

// SaveFile writes `image` to `path`, creating or truncating the file.
func SaveFile(path string, image *dsk.Image, compressed bool) error {
	file, err := os.Create(path)
	if err != nil {
		return diskette.ErrIOFailed.Wrap(err)
	}

	err = Save(file, image, compressed)
	closeErr := file.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return diskette.ErrIOFailed.Wrap(closeErr)
	}
	return nil
}
