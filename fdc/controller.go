// Package fdc emulates the NEC uPD765A floppy disk controller as used in the
// ZX Spectrum +3.
//
// The controller is a byte-at-a-time state machine driven through two
// registers: the main status register and the data register. Commands complete
// the instant their last byte arrives; seek and settle times aren't simulated.
// Failures are reported the way the chip reports them, as bits in the status
// bytes of the result phase, never as Go errors.
//
// Like the hardware, a Controller is not safe for concurrent use.
package fdc

import (
	"fmt"
	"log/slog"

	"github.com/dargueta/diskette"
	"github.com/dargueta/diskette/dsk"
)

// Phase is the stage of the command protocol the controller is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCommand
	PhaseExecution
	PhaseResult
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCommand:
		return "command"
	case PhaseExecution:
		return "execution"
	case PhaseResult:
		return "result"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// NumDrives is the number of drives a controller can address.
const NumDrives = 4

type direction int

const (
	toController direction = iota
	toHost
)

type drive struct {
	// track is the cylinder the head is physically over. Data commands use it
	// to pick the track, not the C byte of the command.
	track   byte
	disk    *dsk.Image
	motorOn bool
}

// Options configures a new Controller. The zero value is usable.
type Options struct {
	// Random provides unstable byte values for weak and CRC-error sectors. If
	// nil, a time-seeded math/rand generator is used.
	Random RandomSource
	// Logger receives debug traces of every command and result. If nil, the
	// controller is silent.
	Logger *slog.Logger
	// OnActivity is called once per completed data transfer.
	OnActivity diskette.ActivityFunc
}

// Controller is a uPD765A floppy disk controller. It implements [diskette.Port].
type Controller struct {
	drives [NumDrives]drive
	phase  Phase

	command         []byte
	commandExpected int
	current         *commandInfo
	multiTrack      bool
	mfm             bool
	skipDeleted     bool

	result      []byte
	resultIndex int

	data          []byte
	dataIndex     int
	dataDirection direction
	pending       completion

	st0 byte
	st1 byte
	st2 byte

	// op holds the C/H/R/N and range parameters of the last data command. Early
	// failures echo it back in their result.
	op operation

	interruptPending bool
	seekST0          byte
	seekTrack        byte
	driveBusy        byte

	random     RandomSource
	logger     *slog.Logger
	onActivity diskette.ActivityFunc
}

type operation struct {
	cylinder  byte
	head      byte
	sector    byte
	sectorEnd byte
	sizeCode  byte
	dataLen   byte
}

// New creates a controller with no disks inserted, all heads on track 0, and
// the motor off.
func New(options Options) *Controller {
	random := options.Random
	if random == nil {
		random = newDefaultRandomSource()
	}
	return &Controller{
		random:     random,
		logger:     options.Logger,
		onActivity: options.OnActivity,
	}
}

var _ diskette.Port = (*Controller)(nil)

////////////////////////////////////////////////////////////////////////////////
// Drive management

func checkDriveNumber(driveNum int) error {
	if driveNum < 0 || driveNum >= NumDrives {
		return diskette.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("drive number must be in [0, %d), got %d", NumDrives, driveNum))
	}
	return nil
}

// Insert binds a disk image to a drive, replacing any image already there. The
// controller borrows the image; write commands modify it in place.
func (c *Controller) Insert(driveNum int, image *dsk.Image) error {
	if err := checkDriveNumber(driveNum); err != nil {
		return err
	}
	if image == nil {
		return diskette.ErrInvalidArgument.WithMessage("can't insert a nil image")
	}
	c.drives[driveNum].disk = image
	return nil
}

// Eject unbinds the image in a drive, if any.
func (c *Controller) Eject(driveNum int) error {
	if err := checkDriveNumber(driveNum); err != nil {
		return err
	}
	c.drives[driveNum].disk = nil
	return nil
}

// Disk returns the image bound to a drive, or nil.
func (c *Controller) Disk(driveNum int) *dsk.Image {
	if checkDriveNumber(driveNum) != nil {
		return nil
	}
	return c.drives[driveNum].disk
}

// HasDisk returns true if any drive has an image bound.
func (c *Controller) HasDisk() bool {
	for _, d := range c.drives {
		if d.disk != nil {
			return true
		}
	}
	return false
}

// SetMotor turns the motor of every drive on or off. On the +3 a single output
// line drives all of them.
func (c *Controller) SetMotor(on bool) {
	for i := range c.drives {
		c.drives[i].motorOn = on
	}
}

// MotorOn returns the motor state of a drive.
func (c *Controller) MotorOn(driveNum int) bool {
	if checkDriveNumber(driveNum) != nil {
		return false
	}
	return c.drives[driveNum].motorOn
}

// Reset returns the controller to its power-on state. Bound images and motor
// states are kept; every head moves back to track 0.
func (c *Controller) Reset() {
	c.phase = PhaseIdle
	c.command = nil
	c.current = nil
	c.result = nil
	c.resultIndex = 0
	c.data = nil
	c.dataIndex = 0
	c.pending = nil
	c.st0 = 0
	c.st1 = 0
	c.st2 = 0
	c.interruptPending = false
	c.driveBusy = 0
	for i := range c.drives {
		c.drives[i].track = 0
	}
}

// Phase returns the current protocol phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

////////////////////////////////////////////////////////////////////////////////
// Register interface

// ReadStatus returns the main status register. RQM is always set because the
// controller never makes the host wait.
func (c *Controller) ReadStatus() byte {
	msr := byte(diskette.MSR_RQM)

	switch c.phase {
	case PhaseResult:
		msr |= diskette.MSR_DIO | diskette.MSR_CB
	case PhaseExecution:
		msr |= diskette.MSR_EXM | diskette.MSR_CB
		if c.dataDirection == toHost {
			msr |= diskette.MSR_DIO
		}
	case PhaseCommand:
		msr |= diskette.MSR_CB
	}

	return msr | (c.driveBusy & diskette.MSR_DRIVE_BUSY_MASK)
}

// ReadData reads the data register. In the result phase it returns the next
// result byte; in a reading execution phase, the next byte of sector data.
// Otherwise it returns 0xFF.
func (c *Controller) ReadData() byte {
	switch {
	case c.phase == PhaseResult:
		if c.resultIndex >= len(c.result) {
			c.phase = PhaseIdle
			return 0xff
		}

		value := c.result[c.resultIndex]
		c.resultIndex++
		if c.resultIndex == 1 {
			c.trace("result", "bytes", fmt.Sprintf("% x", c.result))
		}
		if c.resultIndex >= len(c.result) {
			c.phase = PhaseIdle
		}
		return value

	case c.phase == PhaseExecution && c.dataDirection == toHost:
		if c.dataIndex >= len(c.data) {
			c.finishTransfer()
			return 0xff
		}

		value := c.data[c.dataIndex]
		c.dataIndex++
		if c.dataIndex >= len(c.data) {
			c.trace("transfer complete", "bytes", len(c.data))
			c.finishTransfer()
		}
		return value
	}

	if c.phase != PhaseIdle {
		c.trace("unexpected data register read", "phase", c.phase)
	}
	return 0xff
}

// WriteData writes the data register.
//
// Writing during the result phase abandons the unread result and starts a new
// command with the written byte.
func (c *Controller) WriteData(value byte) {
	switch c.phase {
	case PhaseExecution:
		if c.dataDirection != toController {
			c.trace("ignoring write during read transfer", "value", value)
			return
		}
		if c.dataIndex < len(c.data) {
			c.data[c.dataIndex] = value
			c.dataIndex++
			if c.dataIndex >= len(c.data) {
				c.finishTransfer()
			}
		}

	case PhaseResult:
		c.trace("write during result phase, aborting", "value", value)
		c.result = nil
		c.resultIndex = 0
		c.phase = PhaseIdle
		c.startCommand(value)

	default:
		if len(c.command) == 0 {
			c.startCommand(value)
			return
		}
		c.command = append(c.command, value)
		if len(c.command) >= c.commandExpected {
			c.executeCommand()
		}
	}
}

////////////////////////////////////////////////////////////////////////////////
// Phase transitions

func (c *Controller) setResult(result ...byte) {
	c.result = result
	c.resultIndex = 0
	c.phase = PhaseResult
}

// setResult7 sets the standard seven-byte result from the current status
// registers.
func (c *Controller) setResult7(cylinder, head, sector, sizeCode byte) {
	c.setResult(c.st0, c.st1, c.st2, cylinder, head, sector, sizeCode)
}

// setResultNoData terminates a command before any data is transferred. The
// C/H/R/N of the last data command is echoed back.
func (c *Controller) setResultNoData(driveNum, head, st0, st1, st2 byte) {
	c.st0 = st0 | driveNum | head<<2
	c.st1 = st1
	c.st2 = st2
	c.setResult7(c.op.cylinder, c.op.head, c.op.sector, c.op.sizeCode)
}

// beginTransfer enters the execution phase with the given transfer buffer. A
// write of zero bytes completes at once.
func (c *Controller) beginTransfer(buffer []byte, dir direction, done completion) {
	c.data = buffer
	c.dataIndex = 0
	c.dataDirection = dir
	c.pending = done
	c.phase = PhaseExecution

	if dir == toController && len(buffer) == 0 {
		c.finishTransfer()
	}
}

func (c *Controller) finishTransfer() {
	done := c.pending
	c.pending = nil
	if done == nil {
		c.phase = PhaseIdle
		return
	}
	done.finish(c)
}

func (c *Controller) notifyActivity(kind diskette.Activity, cylinder, sector, head byte) {
	if c.onActivity != nil {
		c.onActivity(kind, cylinder, sector, head)
	}
}

func (c *Controller) trace(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
