package fdc

import (
	"fmt"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/dsk"
)

// Command codes, found in the low five bits of the first command byte.
const (
	CmdReadTrack            = 0x02
	CmdSpecify              = 0x03
	CmdSenseDriveStatus     = 0x04
	CmdWriteData            = 0x05
	CmdReadData             = 0x06
	CmdRecalibrate          = 0x07
	CmdSenseInterruptStatus = 0x08
	CmdWriteDeletedData     = 0x09
	CmdReadID               = 0x0a
	CmdReadDeletedData      = 0x0c
	CmdFormatTrack          = 0x0d
	CmdSeek                 = 0x0f
	CmdScanEqual            = 0x11
	CmdScanLowOrEqual       = 0x19
	CmdScanHighOrEqual      = 0x1d
)

// Flags in the high bits of the first command byte.
const (
	FlagSkipDeleted = 0x20
	FlagMFM         = 0x40
	FlagMultiTrack  = 0x80

	commandIDMask = 0x1f
)

type commandInfo struct {
	id   byte
	name string
	// length is the total number of command bytes, including the first.
	length  int
	execute func(c *Controller, buf []byte)
}

var commandTable = [...]commandInfo{
	{CmdReadTrack, "ReadTrack", 9, (*Controller).cmdReadTrack},
	{CmdSpecify, "Specify", 3, (*Controller).cmdSpecify},
	{CmdSenseDriveStatus, "SenseDriveStatus", 2, (*Controller).cmdSenseDriveStatus},
	{CmdWriteData, "WriteData", 9, (*Controller).cmdWriteData},
	{CmdReadData, "ReadData", 9, (*Controller).cmdReadData},
	{CmdRecalibrate, "Recalibrate", 2, (*Controller).cmdRecalibrate},
	{CmdSenseInterruptStatus, "SenseInterruptStatus", 1, (*Controller).cmdSenseInterruptStatus},
	{CmdWriteDeletedData, "WriteDeletedData", 9, (*Controller).cmdWriteData},
	{CmdReadID, "ReadID", 2, (*Controller).cmdReadID},
	{CmdReadDeletedData, "ReadDeletedData", 9, (*Controller).cmdReadData},
	{CmdFormatTrack, "FormatTrack", 6, (*Controller).cmdFormatTrack},
	{CmdSeek, "Seek", 3, (*Controller).cmdSeek},
	{CmdScanEqual, "ScanEqual", 9, (*Controller).cmdScan},
	{CmdScanLowOrEqual, "ScanLowOrEqual", 9, (*Controller).cmdScan},
	{CmdScanHighOrEqual, "ScanHighOrEqual", 9, (*Controller).cmdScan},
}

func lookupCommand(id byte) *commandInfo {
	for i := range commandTable {
		if commandTable[i].id == id {
			return &commandTable[i]
		}
	}
	return nil
}

// CommandLength returns the total number of bytes in a command, given its first
// byte. It returns 0 for unknown commands.
func CommandLength(first byte) int {
	info := lookupCommand(first & commandIDMask)
	if info == nil {
		return 0
	}
	return info.length
}

// startCommand decodes the first byte of a command.
func (c *Controller) startCommand(value byte) {
	id := value & commandIDMask
	c.multiTrack = value&FlagMultiTrack != 0
	c.mfm = value&FlagMFM != 0
	c.skipDeleted = value&FlagSkipDeleted != 0

	c.current = lookupCommand(id)
	if c.current == nil {
		c.trace("unknown command", "id", fmt.Sprintf("%#02x", id), "raw", fmt.Sprintf("%#02x", value))
		c.command = nil
		c.st0 = diskette.ST0_INVALID
		c.setResult(c.st0)
		return
	}

	c.command = []byte{value}
	c.commandExpected = c.current.length
	c.phase = PhaseCommand
	if len(c.command) >= c.commandExpected {
		c.executeCommand()
	}
}

func (c *Controller) executeCommand() {
	buf := c.command
	c.command = nil
	c.trace("command", "name", c.current.name, "bytes", fmt.Sprintf("% x", buf))
	c.current.execute(c, buf)
}

// unitSelect extracts the drive number and head from the second command byte.
func unitSelect(buf []byte) (byte, byte) {
	return buf[1] & 0x03, (buf[1] >> 2) & 0x01
}

// loadOperation records the C/H/R/N, EOT, and DTL bytes of a nine-byte data
// command.
func (c *Controller) loadOperation(buf []byte) {
	c.op = operation{
		cylinder:  buf[2],
		head:      buf[3],
		sector:    buf[4],
		sizeCode:  buf[5],
		sectorEnd: buf[6],
		dataLen:   buf[8],
	}
}

// transferSectorSize is the number of bytes exchanged per sector: DTL when N is
// zero, otherwise 128 << N.
func (op operation) transferSectorSize() int {
	if op.sizeCode == 0 {
		return int(op.dataLen)
	}
	return dsk.SectorSize(op.sizeCode)
}

// boundDisk returns the image in the drive, or sets the drive-not-ready result
// and returns nil.
func (c *Controller) boundDisk(driveNum, head byte) *dsk.Image {
	disk := c.drives[driveNum].disk
	if disk == nil {
		c.setResultNoData(
			driveNum, head, diskette.ST0_ABNORMAL|diskette.ST0_NR, diskette.ST1_MA, 0)
	}
	return disk
}

////////////////////////////////////////////////////////////////////////////////
// Commands without a data phase

func (c *Controller) cmdSpecify(buf []byte) {
	c.phase = PhaseIdle
}

func (c *Controller) cmdSenseDriveStatus(buf []byte) {
	driveNum, head := unitSelect(buf)
	d := &c.drives[driveNum]

	st3 := driveNum | head<<2
	if d.disk != nil {
		st3 |= diskette.ST3_RDY
		if d.disk.Sides() > 1 {
			st3 |= diskette.ST3_TS
		}
	} else {
		// Not ready and write protected. The +3 ROM uses this combination to
		// detect a missing drive.
		st3 |= diskette.ST3_WP
	}
	if d.track == 0 {
		st3 |= diskette.ST3_T0
	}
	c.setResult(st3)
}

func (c *Controller) seekTo(driveNum, track byte) {
	c.drives[driveNum].track = track
	c.interruptPending = true
	c.seekST0 = diskette.ST0_SE | driveNum
	c.seekTrack = track
	c.driveBusy |= 1 << driveNum
	c.phase = PhaseIdle
}

func (c *Controller) cmdRecalibrate(buf []byte) {
	driveNum, _ := unitSelect(buf)
	c.seekTo(driveNum, 0)
}

func (c *Controller) cmdSeek(buf []byte) {
	driveNum, _ := unitSelect(buf)
	c.seekTo(driveNum, buf[2])
}

func (c *Controller) cmdSenseInterruptStatus(buf []byte) {
	if !c.interruptPending {
		c.setResult(diskette.ST0_INVALID)
		return
	}

	c.interruptPending = false
	c.driveBusy &^= 1 << (c.seekST0 & 0x03)
	c.setResult(c.seekST0, c.seekTrack)
}

func (c *Controller) cmdReadID(buf []byte) {
	driveNum, head := unitSelect(buf)
	disk := c.boundDisk(driveNum, head)
	if disk == nil {
		return
	}

	track := disk.Track(int(c.drives[driveNum].track), int(head))
	if track == nil || !track.IsFormatted() {
		c.setResultNoData(
			driveNum, head, diskette.ST0_ABNORMAL, diskette.ST1_ND|diskette.ST1_MA, 0)
		return
	}

	sector := track.Sectors[0]
	c.st0 = driveNum | head<<2
	c.st1 = 0
	c.st2 = 0
	c.setResult7(sector.Cylinder, sector.Head, sector.ID, sector.SizeCode)
}

// cmdScan accepts the scan commands but always reports "scan not satisfied".
func (c *Controller) cmdScan(buf []byte) {
	driveNum, head := unitSelect(buf)
	c.loadOperation(buf)
	if c.boundDisk(driveNum, head) == nil {
		return
	}

	c.st0 = diskette.ST0_ABNORMAL | driveNum | head<<2
	c.st1 = 0
	c.st2 = diskette.ST2_SN
	c.setResult7(c.op.cylinder, c.op.head, c.op.sector, c.op.sizeCode)
}

////////////////////////////////////////////////////////////////////////////////
// Data commands

// cmdReadData implements Read Data and Read Deleted Data.
//
// Sectors R through max(R, EOT) are looked up on the track under the head. A
// sector whose data mark doesn't match the command is skipped when SK is set;
// otherwise it's read, CM is set, and the scan stops there.
func (c *Controller) cmdReadData(buf []byte) {
	wantDeleted := c.current.id == CmdReadDeletedData
	driveNum, head := unitSelect(buf)
	c.loadOperation(buf)

	disk := c.boundDisk(driveNum, head)
	if disk == nil {
		return
	}

	track := disk.Track(int(c.drives[driveNum].track), int(head))
	if track == nil {
		c.st0 = diskette.ST0_ABNORMAL | driveNum | head<<2
		c.st1 = diskette.ST1_ND
		c.st2 = 0
		c.setResult7(c.op.cylinder, c.op.head, c.op.sector, c.op.sizeCode)
		return
	}

	var toRead []*dsk.Sector
	markMismatch := false
	var recordedST1, recordedST2 byte
	lastID := c.op.sector

	scanEnd := int(c.op.sectorEnd)
	if scanEnd < int(c.op.sector) {
		scanEnd = int(c.op.sector)
	}

	for id := int(c.op.sector); id <= scanEnd; id++ {
		sector := track.FindSector(byte(id))
		if sector == nil {
			c.st0 = diskette.ST0_ABNORMAL | driveNum | head<<2
			c.st1 = diskette.ST1_ND
			c.st2 = 0
			c.setResult7(c.op.cylinder, c.op.head, byte(id), c.op.sizeCode)
			return
		}

		mismatch := sector.IsDeleted() != wantDeleted
		lastID = byte(id)
		if mismatch && c.skipDeleted {
			c.trace("skipping sector", "id", id)
			continue
		}

		toRead = append(toRead, sector)
		recordedST1 |= sector.ST1
		recordedST2 |= sector.ST2 & diskette.ST2_RECORDED_ERRORS
		if mismatch {
			markMismatch = true
			break
		}
	}

	if len(toRead) == 0 {
		c.st0 = diskette.ST0_ABNORMAL | driveNum | head<<2
		c.st1 = diskette.ST1_EN
		c.st2 = 0
		c.setResult7(c.op.cylinder, c.op.head, lastID+1, c.op.sizeCode)
		return
	}

	sectorSize := c.op.transferSectorSize()
	buffer := make([]byte, sectorSize*len(toRead))
	for i, sector := range toRead {
		c.fillReadBuffer(buffer[i*sectorSize:(i+1)*sectorSize], sector)
	}

	last := toRead[len(toRead)-1]
	crcError := recordedST1&diskette.ST1_DE != 0
	reachedEnd := !markMismatch && !crcError && last.ID >= c.op.sectorEnd

	c.st0 = diskette.ST0_ABNORMAL | driveNum | head<<2
	c.st1 = recordedST1 & 0x7f
	if reachedEnd {
		c.st1 |= diskette.ST1_EN
	}
	c.st2 = recordedST2 & diskette.ST2_RECORDED_ERRORS
	if markMismatch {
		c.st2 |= diskette.ST2_CM
	}

	c.trace(
		"read data",
		"drive_track", c.drives[driveNum].track,
		"head", head,
		"sectors", len(toRead),
		"sector_size", sectorSize)

	c.beginTransfer(buffer, toHost, &readCompletion{
		result: chrn{c.op.cylinder, c.op.head, last.ID + 1, c.op.sizeCode},
		activity: chrn{
			C: c.op.cylinder,
			H: head,
			R: c.op.sector,
		},
	})
}

// fillReadBuffer copies a sector into its slot of the transfer buffer and
// scrambles the bytes that wouldn't read back consistently from a real disk.
func (c *Controller) fillReadBuffer(slot []byte, sector *dsk.Sector) {
	n := copy(slot, sector.Data)

	if sector.IsWeak() {
		for i := 0; i < n; i++ {
			if sector.IsWeakByte(i) {
				slot[i] = randomByte(c.random)
			}
		}
		c.trace("weak sector", "id", sector.ID, "weak_bytes", dsk.CountWeakBytes(sector))
		return
	}

	// A CRC error on a sector whose stored data covers the whole transfer is
	// real corruption. If the stored data is shorter, the sector is only
	// declared larger than it is and its data is good.
	if sector.HasCRCError() && len(sector.Data) >= len(slot) {
		noiseStart := 256
		if n < noiseStart {
			noiseStart = n
		}
		for i := noiseStart; i < n; i++ {
			slot[i] = randomByte(c.random)
		}
		c.trace("CRC error sector", "id", sector.ID, "noisy_bytes", n-noiseStart)
	}
}

// cmdWriteData implements Write Data and Write Deleted Data.
func (c *Controller) cmdWriteData(buf []byte) {
	deleted := c.current.id == CmdWriteDeletedData
	driveNum, head := unitSelect(buf)
	c.loadOperation(buf)

	if c.boundDisk(driveNum, head) == nil {
		return
	}

	// At least sector R is always written, even if EOT is below it.
	end := c.op.sectorEnd
	if end < c.op.sector {
		end = c.op.sector
	}

	sectorSize := c.op.transferSectorSize()
	count := int(end) - int(c.op.sector) + 1
	c.trace("write data", "sector", c.op.sector, "end", end, "sectors", count)

	c.beginTransfer(make([]byte, sectorSize*count), toController, &writeCompletion{
		driveNum:      driveNum,
		head:          head,
		physicalTrack: c.drives[driveNum].track,
		start:         c.op.sector,
		end:           end,
		sectorSize:    sectorSize,
		deleted:       deleted,
		result:        chrn{c.op.cylinder, c.op.head, end + 1, c.op.sizeCode},
	})
}

// cmdFormatTrack receives the sector IDs for the track in its data phase; the
// track is replaced once all of them have arrived.
func (c *Controller) cmdFormatTrack(buf []byte) {
	driveNum, head := unitSelect(buf)
	if c.boundDisk(driveNum, head) == nil {
		return
	}

	sizeCode := buf[2]
	sectorCount := buf[3]
	physicalTrack := c.drives[driveNum].track

	c.beginTransfer(make([]byte, int(sectorCount)*4), toController, &formatCompletion{
		driveNum:      driveNum,
		head:          head,
		physicalTrack: physicalTrack,
		sizeCode:      sizeCode,
		sectorCount:   sectorCount,
		gapLength:     buf[4],
		filler:        buf[5],
		result:        chrn{physicalTrack, head, sectorCount, sizeCode},
	})
}

// cmdReadTrack reads every sector of the track under the head in physical
// order, ignoring sector IDs.
func (c *Controller) cmdReadTrack(buf []byte) {
	driveNum, head := unitSelect(buf)
	c.loadOperation(buf)

	disk := c.boundDisk(driveNum, head)
	if disk == nil {
		return
	}

	physicalTrack := c.drives[driveNum].track
	track := disk.Track(int(physicalTrack), int(head))
	if track == nil || !track.IsFormatted() {
		c.st0 = diskette.ST0_ABNORMAL | driveNum | head<<2
		c.st1 = diskette.ST1_ND
		c.st2 = 0
		c.setResult7(c.op.cylinder, c.op.head, c.op.sector, c.op.sizeCode)
		return
	}

	sectorSize := c.op.transferSectorSize()
	buffer := make([]byte, sectorSize*len(track.Sectors))
	for i, sector := range track.Sectors {
		copy(buffer[i*sectorSize:(i+1)*sectorSize], sector.Data)
	}

	last := track.Sectors[len(track.Sectors)-1]
	c.st0 = diskette.ST0_ABNORMAL | driveNum | head<<2
	c.st1 = diskette.ST1_EN
	c.st2 = 0
	c.trace("read track", "drive_track", physicalTrack, "sectors", len(track.Sectors))

	c.beginTransfer(buffer, toHost, &readCompletion{
		result:   chrn{c.op.cylinder, c.op.head, last.ID + 1, c.op.sizeCode},
		activity: chrn{C: physicalTrack, H: head, R: c.op.sector},
	})
}
