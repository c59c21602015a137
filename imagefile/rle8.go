package imagefile

import (
	"bytes"
	"fmt"
	"io"

	"github.com/noxer/bytewriter"
)

// maxRunLength is the longest run a single RLE8 group can hold: the byte twice
// plus a repeat count of up to 255.
const maxRunLength = 257

// AppendRLE8 appends the RLE8 encoding of `block` to `out` and returns the
// extended slice. Runs longer than 257 bytes are split into several groups.
func AppendRLE8(out, block []byte) []byte {
	for i := 0; i < len(block); {
		value := block[i]
		run := 1
		for run < maxRunLength && i+run < len(block) && block[i+run] == value {
			run++
		}

		if run == 1 {
			out = append(out, value)
		} else {
			out = append(out, value, value, byte(run-2))
		}
		i += run
	}
	return out
}

// DecodeRLE8 expands RLE8 data from `source` until exactly `size` bytes have
// been produced, and returns them. Reading stops there, so several encoded
// blocks can follow each other in one stream.
//
// It fails if the stream ends early or a run would overflow the block.
func DecodeRLE8(source io.ByteReader, size int) ([]byte, error) {
	block := make([]byte, size)
	writer := bytewriter.New(block)

	previous := -1
	for produced := 0; produced < size; {
		value, err := source.ReadByte()
		if err != nil {
			return nil, fmt.Errorf(
				"%w: block ended after %d of %d bytes", io.ErrUnexpectedEOF, produced, size)
		}

		count := 1
		if int(value) == previous {
			// Two identical bytes in a row: the next byte is a repeat count. The
			// first of the pair was already written.
			repeat, err := source.ReadByte()
			if err != nil {
				return nil, fmt.Errorf(
					"%w: missing repeat count after two %#02x bytes",
					io.ErrUnexpectedEOF,
					value)
			}
			count = int(repeat) + 1

			// A third identical byte starts a new group.
			previous = -1
		} else {
			previous = int(value)
		}

		if produced+count > size {
			return nil, fmt.Errorf(
				"run of %d %#02x bytes at offset %d overflows a %d-byte block",
				count,
				value,
				produced,
				size)
		}
		if _, err := writer.Write(bytes.Repeat([]byte{value}, count)); err != nil {
			return nil, err
		}
		produced += count
	}
	return block, nil
}
