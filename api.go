package diskette

// Port is the register-level contract between a host CPU and a floppy disk
// controller. Address decoding is the embedding machine's business; a Port only
// sees the two registers.
//
// Every call is a complete step of the controller's state machine. Callers must
// not invoke Port methods concurrently.
type Port interface {
	// ReadStatus returns the main status register. Reading it has no side
	// effects.
	ReadStatus() byte
	// ReadData reads the data register. Depending on the controller's phase this
	// yields a byte of sector data or a result byte. When nothing is available
	// it returns 0xFF.
	ReadData() byte
	// WriteData writes the data register: a command byte, a parameter byte, or
	// a byte of sector data.
	WriteData(value byte)
}

// Activity identifies the direction of a completed data transfer reported to an
// ActivityFunc.
type Activity int

const (
	ActivityRead Activity = iota
	ActivityWrite
)

func (a Activity) String() string {
	switch a {
	case ActivityRead:
		return "read"
	case ActivityWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ActivityFunc is invoked once per completed data transfer, typically to drive
// a drive-activity indicator. The callback must not call back into the
// controller.
type ActivityFunc func(kind Activity, cylinder, sectorID, head byte)
