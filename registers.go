package pca9641

// Register map. Setting the auto-increment bit on the command byte makes the
// chip advance to the next register after each data byte, which lets one bus
// transaction set the control register and the reserve timer together.
// Datasheet: https://www.nxp.com/docs/en/data-sheet/PCA9641.pdf
const (
	regControl     byte = 0x01
	regStatus      byte = 0x02
	regReserveTime byte = 0x03
	regAutoInc     byte = 0x80
)

// Control register bits
const (
	ctlLockReq      byte = 1 << 0
	ctlLockGrant    byte = 1 << 1
	ctlBusConnect   byte = 1 << 2
	ctlBusInit      byte = 1 << 3
	ctlSMBusSWRst   byte = 1 << 4
	ctlIdleTimerDis byte = 1 << 5
	ctlSMBusDis     byte = 1 << 6
	ctlPriority     byte = 1 << 7
)

// Status register bits
const (
	statOtherLock   byte = 1 << 0
	statBusInitFail byte = 1 << 1
	statBusHung     byte = 1 << 2
	statMboxEmpty   byte = 1 << 3
	statMboxFull    byte = 1 << 4
	statTestInt     byte = 1 << 5
	statSCLIO       byte = 1 << 6
	statSDAIO       byte = 1 << 7
)

const ctlConnect = ctlLockReq | ctlLockGrant | ctlBusConnect

// connected reports whether this master holds a fully granted lock with the
// downstream bus switched through.
func connected(reg byte) bool {
	return reg&ctlConnect == ctlConnect
}

// requested reports whether a lock request is outstanding but not granted
// yet. The chip is still negotiating; writing another request now would only
// feed a request storm, so the engine backs off instead.
func requested(reg byte) bool {
	return reg&ctlConnect == ctlLockReq
}

// Status holds the decoded read-only diagnostic register. None of these bits
// feed back into arbitration; they are exposed for logging and bench work.
type Status struct {
	OtherLock   bool `yaml:"other_lock"`
	BusInitFail bool `yaml:"bus_init_fail"`
	BusHung     bool `yaml:"bus_hung"`
	MboxEmpty   bool `yaml:"mailbox_empty"`
	MboxFull    bool `yaml:"mailbox_full"`
	TestInt     bool `yaml:"test_interrupt"`
	SCLHigh     bool `yaml:"scl_high"`
	SDAHigh     bool `yaml:"sda_high"`
	Raw         byte `yaml:"raw"`
}

func decodeStatus(reg byte) Status {
	return Status{
		OtherLock:   reg&statOtherLock != 0,
		BusInitFail: reg&statBusInitFail != 0,
		BusHung:     reg&statBusHung != 0,
		MboxEmpty:   reg&statMboxEmpty != 0,
		MboxFull:    reg&statMboxFull != 0,
		TestInt:     reg&statTestInt != 0,
		SCLHigh:     reg&statSCLIO != 0,
		SDAHigh:     reg&statSDAIO != 0,
		Raw:         reg,
	}
}
