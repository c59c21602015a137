package fdc

import (
	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/dsk"
)

// chrn is a sector address as it appears in a result: cylinder, head, record
// (sector ID), and size code.
type chrn struct {
	C, H, R, N byte
}

// completion describes how to finish a command once its data phase has drained.
// Exactly one of readCompletion, writeCompletion, or formatCompletion is pending
// during an execution phase.
type completion interface {
	finish(c *Controller)
}

type readCompletion struct {
	result chrn
	// activity is the address reported to the activity callback. N is unused.
	activity chrn
}

type writeCompletion struct {
	driveNum      byte
	head          byte
	physicalTrack byte
	start         byte
	end           byte
	sectorSize    int
	deleted       bool
	result        chrn
}

type formatCompletion struct {
	driveNum      byte
	head          byte
	physicalTrack byte
	sizeCode      byte
	sectorCount   byte
	gapLength     byte
	filler        byte
	result        chrn
}

// finish presents the result prepared when the read started. Status registers
// were set then.
func (r *readCompletion) finish(c *Controller) {
	c.notifyActivity(diskette.ActivityRead, r.activity.C, r.activity.R, r.activity.H)
	c.setResult7(r.result.C, r.result.H, r.result.R, r.result.N)
}

// finish stores each sector's slice of the transfer buffer on the track under
// the head. IDs missing from the track are silently dropped.
func (w *writeCompletion) finish(c *Controller) {
	disk := c.boundDisk(w.driveNum, w.head)
	if disk == nil {
		return
	}

	offset := 0
	for id := int(w.start); id <= int(w.end); id++ {
		disk.WriteSector(
			int(w.physicalTrack),
			int(w.head),
			byte(id),
			c.data[offset:offset+w.sectorSize])
		offset += w.sectorSize
	}
	c.notifyActivity(diskette.ActivityWrite, w.physicalTrack, w.start, w.head)

	c.st0 = diskette.ST0_ABNORMAL | w.driveNum | w.head<<2
	c.st1 = diskette.ST1_EN
	c.st2 = 0
	if w.deleted {
		c.st2 = diskette.ST2_CM
	}
	c.setResult7(w.result.C, w.result.H, w.result.R, w.result.N)
}

// finish replaces the track under the head with freshly formatted sectors, one
// per C/H/R/N tuple received. Every sector holds 128 << N bytes of the filler,
// where N comes from the command rather than the tuple.
func (f *formatCompletion) finish(c *Controller) {
	disk := c.boundDisk(f.driveNum, f.head)
	if disk == nil {
		return
	}

	track := &dsk.Track{
		Sectors:    make([]*dsk.Sector, f.sectorCount),
		GapLength:  f.gapLength,
		FillerByte: f.filler,
	}
	sectorSize := dsk.SectorSize(f.sizeCode)
	for i := range track.Sectors {
		tuple := c.data[i*4 : i*4+4]
		data := make([]byte, sectorSize)
		for j := range data {
			data[j] = f.filler
		}
		track.Sectors[i] = &dsk.Sector{
			Cylinder: tuple[0],
			Head:     tuple[1],
			ID:       tuple[2],
			SizeCode: tuple[3],
			Data:     data,
		}
	}

	if !disk.SetTrack(int(f.physicalTrack), int(f.head), track) {
		// The head is past the last track of the image.
		c.setResultNoData(
			f.driveNum, f.head, diskette.ST0_ABNORMAL, diskette.ST1_ND|diskette.ST1_MA, 0)
		return
	}
	c.notifyActivity(diskette.ActivityWrite, f.physicalTrack, 0, f.head)

	c.st0 = diskette.ST0_ABNORMAL | f.driveNum | f.head<<2
	c.st1 = diskette.ST1_EN
	c.st2 = 0
	c.setResult7(f.result.C, f.result.H, f.result.R, f.result.N)
}
