// Block allocation map

package cpm

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/dsk"
	"github.com/hashicorp/go-multierror"
)

type BlockID uint

// MaxBlocks is the number of block numbers addressable by the 8-bit allocation
// slots used on single-density CP/M directories.
const MaxBlocks = 256

// BlockSize is the size of an allocation block on the formats whose directories
// use 8-bit block numbers.
const BlockSize = 1024

type Allocation struct {
	UsedBitmap bitmap.Bitmap
	TotalUnits uint
}

// NewAllocation creates an allocation map with every block free.
func NewAllocation(totalUnits uint) Allocation {
	return Allocation{
		UsedBitmap: bitmap.New(int(totalUnits)),
		TotalUnits: totalUnits,
	}
}

// DiskBlocks returns how many allocation blocks fit in the formatted sectors of
// `image`, up to MaxBlocks. Like [ListFiles] it assumes the data area starts at
// the directory on track 0, so no tracks are reserved.
func DiskBlocks(image *dsk.Image) uint {
	totalBytes := 0
	for cylinder := 0; cylinder < image.NumTracks; cylinder++ {
		for head := 0; head < image.NumSides; head++ {
			track := image.Track(cylinder, head)
			if track == nil {
				continue
			}
			for _, sector := range track.Sectors {
				totalBytes += len(sector.Data)
			}
		}
	}

	blocks := uint(totalBytes / BlockSize)
	if blocks > MaxBlocks {
		return MaxBlocks
	}
	return blocks
}

// UsedBlocks builds the allocation map of `image` from the blocks referenced by
// its live directory entries.
//
// The map is always returned. If a block is claimed by more than one entry or
// lies past the end of the disk, the error lists every such block, each one
// rooted in ErrFileSystemCorrupted.
func UsedBlocks(image *dsk.Image) (Allocation, error) {
	alloc := NewAllocation(DiskBlocks(image))
	owners := make(map[BlockID]string)
	var result *multierror.Error

	for _, entry := range readLiveDirents(image) {
		owner := fmt.Sprintf("%d:%s", entry.User, File{Name: entry.name, Ext: entry.ext}.FullName())
		for _, slot := range entry.Allocation {
			if slot == 0 {
				continue
			}

			block := BlockID(slot)
			if alloc.Mark(block) == nil {
				owners[block] = owner
				continue
			}

			var message string
			if block >= BlockID(alloc.TotalUnits) {
				message = fmt.Sprintf(
					"block %d of %s is past the end of a %d-block disk",
					block,
					owner,
					alloc.TotalUnits)
			} else {
				message = fmt.Sprintf(
					"block %d of %s is already used by %s", block, owner, owners[block])
			}
			result = multierror.Append(
				result, diskette.ErrFileSystemCorrupted.WithMessage(message))
		}
	}
	return alloc, result.ErrorOrNil()
}

// IsUsed returns true if the block is marked as in use. Blocks outside the map
// are never in use.
func (alloc *Allocation) IsUsed(block BlockID) bool {
	if block >= BlockID(alloc.TotalUnits) {
		return false
	}
	return alloc.UsedBitmap.Get(int(block))
}

// Mark flags a free block as used. Marking a block that's already in use or
// outside the map fails with ErrInvalidArgument.
func (alloc *Allocation) Mark(block BlockID) error {
	if block >= BlockID(alloc.TotalUnits) {
		msg := fmt.Sprintf(
			"invalid block id: %d not in range [0, %d)", block, alloc.TotalUnits)
		return diskette.ErrInvalidArgument.WithMessage(msg)
	}
	if alloc.UsedBitmap.Get(int(block)) {
		msg := fmt.Sprintf("block %d is already in use", block)
		return diskette.ErrInvalidArgument.WithMessage(msg)
	}

	alloc.UsedBitmap.Set(int(block), true)
	return nil
}

// CountUsed returns the number of blocks marked as in use.
func (alloc *Allocation) CountUsed() int {
	count := 0
	for i := uint(0); i < alloc.TotalUnits; i++ {
		if alloc.UsedBitmap.Get(int(i)) {
			count++
		}
	}
	return count
}

// CountFree returns the number of blocks not in use.
func (alloc *Allocation) CountFree() int {
	return int(alloc.TotalUnits) - alloc.CountUsed()
}

// LargestFreeRun returns the first block and length of the longest run of
// consecutive free blocks. If several runs tie, the first one wins. A full map
// gives a length of 0.
func (alloc *Allocation) LargestFreeRun() (BlockID, uint) {
	bestStart, bestLength := BlockID(0), uint(0)
	runStart, runLength := BlockID(0), uint(0)

	for i := BlockID(0); i < BlockID(alloc.TotalUnits); i++ {
		if alloc.UsedBitmap.Get(int(i)) {
			runLength = 0
			continue
		}

		if runLength == 0 {
			runStart = i
		}
		runLength++
		if runLength > bestLength {
			bestStart, bestLength = runStart, runLength
		}
	}
	return bestStart, bestLength
}
