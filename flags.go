package diskette

// Main status register (MSR) bits.
const (
	MSR_D0B = 1 << iota // Drive 0 seeking
	MSR_D1B = 1 << iota // Drive 1 seeking
	MSR_D2B = 1 << iota
	MSR_D3B = 1 << iota
	MSR_CB  = 1 << iota // Controller busy
	MSR_EXM = 1 << iota // Execution mode (non-DMA)
	MSR_DIO = 1 << iota // Data direction, 1 = controller to host
	MSR_RQM = 1 << iota // Request for master
)

const MSR_DRIVE_BUSY_MASK = MSR_D0B | MSR_D1B | MSR_D2B | MSR_D3B

// Status register 0 bits. The low three bits echo the unit select and head
// address of the command.
const (
	ST0_US0 = 1 << iota
	ST0_US1 = 1 << iota
	ST0_HD  = 1 << iota
	ST0_NR  = 1 << iota // Not ready
	ST0_EC  = 1 << iota // Equipment check
	ST0_SE  = 1 << iota // Seek end
)

// Interrupt codes in the top two bits of ST0. Normal termination is zero.
const ST0_ABNORMAL = 0x40
const ST0_INVALID = 0x80
const ST0_IC_MASK = 0xc0

// Status register 1 bits.
const (
	ST1_MA = 1 << iota // Missing address mark
	ST1_NW = 1 << iota // Not writable
	ST1_ND = 1 << iota // No data
	_
	ST1_OR = 1 << iota // Overrun
	ST1_DE = 1 << iota // Data error (CRC)
	_
	ST1_EN = 1 << iota // End of cylinder
)

// Status register 2 bits.
const (
	ST2_MD = 1 << iota // Missing address mark in data field
	ST2_BC = 1 << iota // Bad cylinder
	ST2_SN = 1 << iota // Scan not satisfied
	ST2_SH = 1 << iota // Scan equal hit
	ST2_WC = 1 << iota // Wrong cylinder
	ST2_DD = 1 << iota // Data error in data field
	ST2_CM = 1 << iota // Control mark (deleted data)
)

// ST2_RECORDED_ERRORS selects the ST2 bits that are replayed from an image's
// recorded sector status. Bit 6 is the deleted-data mark and is handled
// separately.
const ST2_RECORDED_ERRORS = 0x3f

// Status register 3 bits.
const (
	ST3_US0 = 1 << iota
	ST3_US1 = 1 << iota
	ST3_HD  = 1 << iota
	ST3_TS  = 1 << iota // Two sided
	ST3_T0  = 1 << iota // Track 0
	ST3_RDY = 1 << iota // Ready
	ST3_WP  = 1 << iota // Write protected
	ST3_FT  = 1 << iota // Fault
)
