// Package imagefile reads and writes DSK containers on disk.
//
// Containers can be stored raw or compressed. A compressed container keeps its
// 256-byte disk header verbatim, followed by each track block run-length encoded
// on its own, and the result is gzipped. Formatted but empty disks are mostly
// runs of the filler byte, which RLE8 shrinks to almost nothing before gzip gets
// to work on the rest. A blank 180K +3 disk compresses to well under a
// kilobyte.
//
// Because the header stays readable, the decoder knows how long every track
// block must be and rejects streams whose blocks don't decode to exactly that
// size.
//
// The run-length encoding is the one used by the Microsoft BMP file format,
// also known as RLE8. If a byte B occurs N times where N >= 2, B is written
// twice, followed by a third (unsigned) byte indicating how many additional
// times B occurred. For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// This scheme represents runs of up to 257 bytes with three bytes. Longer runs
// are split, so a run of 300 "X" becomes `XX 255 XX 41`. Using a byte as its
// own escape sequence means that a byte occurring exactly twice takes three
// bytes: the two bytes followed by a zero repeat count.
package imagefile
