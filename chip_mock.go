package pca9641

import (
	"context"
	"fmt"
	"sync"
)

// MockChip simulates one PCA9641 shared by two masters, without requiring
// any hardware. Each master gets its own upstream port through Port, and the
// chip grants the lock to exactly one of them at a time, exactly like the
// silicon does: the first outstanding LOCK_REQ wins, and a request pending
// at release time is granted on handover.
//
// Example usage:
//
//	chip := NewMockChip()
//	a := New(chip.Port(0))
//	b := New(chip.Port(1))
type MockChip struct {
	mu      sync.Mutex
	control [2]byte
	reserve byte
	// owner is the port index currently holding the grant, -1 when free.
	owner int
	// grantLatency keeps every fresh lock request pending for that many
	// control-register reads before it can be granted, which makes the
	// requested-but-not-granted window observable from the polling side.
	grantLatency int
	pendingReads [2]int
}

type MockChipOption func(*MockChip)

// WithGrantLatency makes the chip keep each fresh lock request pending for n
// control-register reads before granting it. The default of 0 grants on the
// spot, matching the near-instant negotiation of the real chip.
func WithGrantLatency(n int) MockChipOption {
	return func(c *MockChip) {
		c.grantLatency = n
	}
}

func NewMockChip(opts ...MockChipOption) *MockChip {
	c := &MockChip{owner: -1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Port returns the upstream bus view of master id (0 or 1). The returned
// transport speaks the same command byte / auto-increment protocol as the
// chip.
func (c *MockChip) Port(id int) I2CBus {
	if id != 0 && id != 1 {
		panic(fmt.Sprintf("pca9641: mock chip has two ports, got id %d", id))
	}
	return &mockPort{chip: c, id: id}
}

// Owner returns the port index currently holding the grant, -1 when the
// downstream bus is free.
func (c *MockChip) Owner() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

func (c *MockChip) writeRegisters(id int, command byte, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch command &^ regAutoInc {
	case regControl:
		c.setControlLocked(id, data[0])
		if command&regAutoInc != 0 && len(data) > 1 {
			// combined write: control register plus reserve timer
			c.reserve = data[1]
		}
	case regReserveTime:
		c.reserve = data[0]
	}
	c.arbitrateLocked()
}

func (c *MockChip) setControlLocked(id int, v byte) {
	// LOCK_GRANT belongs to the chip, masters cannot set it.
	v &^= ctlLockGrant
	if v&ctlLockReq != 0 && c.control[id]&ctlLockReq == 0 {
		c.pendingReads[id] = c.grantLatency
	}
	c.control[id] = v
}

func (c *MockChip) readRegister(id int, command byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch command &^ regAutoInc {
	case regControl:
		if c.pendingReads[id] > 0 {
			c.pendingReads[id]--
		}
		c.arbitrateLocked()
		reg := c.control[id]
		if c.owner == id {
			reg |= ctlLockGrant
		} else {
			// the downstream connection is only made once the lock is
			// granted; until then BUS_CONNECT reads back as 0
			reg &^= ctlBusConnect
		}
		return reg
	case regStatus:
		var reg byte
		// bus lines idle high
		reg |= statSCLIO | statSDAIO
		if c.owner >= 0 && c.owner != id {
			reg |= statOtherLock
		}
		return reg
	case regReserveTime:
		return c.reserve
	}
	return 0x00
}

// arbitrateLocked re-evaluates the grant after any register access. Callers
// hold c.mu.
func (c *MockChip) arbitrateLocked() {
	if c.owner >= 0 && c.control[c.owner]&ctlLockReq == 0 {
		c.owner = -1
	}
	if c.owner >= 0 {
		return
	}
	for cand := 0; cand < 2; cand++ {
		if c.control[cand]&ctlLockReq == 0 {
			c.pendingReads[cand] = 0
			continue
		}
		if c.pendingReads[cand] > 0 {
			// still negotiating
			continue
		}
		c.owner = cand
		return
	}
}

type mockPort struct {
	chip *MockChip
	id   int

	mu      sync.Mutex
	lastCmd byte
}

var _ I2CBus = &mockPort{}

func (p *mockPort) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) == 0 {
		return fmt.Errorf("empty write to %#x", address)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCmd = buffer[0]
	if len(buffer) > 1 {
		p.chip.writeRegisters(p.id, buffer[0], buffer[1:])
	}
	return nil
}

func (p *mockPort) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) != 1 {
		return fmt.Errorf("chip registers are one byte, got a %d byte read", len(buffer))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	buffer[0] = p.chip.readRegister(p.id, p.lastCmd)
	return nil
}

func (p *mockPort) Release(ctx context.Context) error {
	return nil
}
