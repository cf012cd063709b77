package pca9641

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultAddress is the PCA9641 base address (ADR pin tied to ground).
const DefaultAddress = 0x70

// ErrArbitrationTimeout is returned by Acquire when bus ownership could not
// be obtained before the arbitration deadline, typically because the other
// master holds or keeps re-requesting the lock.
var ErrArbitrationTimeout = errors.New("pca9641: bus arbitration timed out")

// Arbitration policy. The values are calibrated to the chip's internal
// timing and are deliberately not configurable.
const (
	// arbitrationTimeout bounds a single Acquire call.
	arbitrationTimeout = 250 * time.Millisecond
	// retryDelayLong is the backoff while a lock request is still being
	// negotiated. The chip resolves a request within tens of microseconds,
	// so this stays at the smallest delay a sleep can express.
	retryDelayLong = time.Millisecond
	// retryDelayShort follows our own request write; the grant is expected
	// almost immediately, so the next poll happens without sleeping.
	retryDelayShort = 0
	// reserveTime is written to the RESERVE_TIME register together with
	// each lock request and arms the chip-internal hold timer.
	reserveTime = 20
)

// PCA9641 drives one NXP PCA9641 bus master selector. The chip sits between
// two independent masters and a single downstream bus; each master runs its
// own instance against its own upstream segment and the chip itself grants
// the lock to exactly one of them.
//
// Typical usage:
//
//	arb := pca9641.New(bus)
//	if err := arb.Init(ctx); err != nil { ... }
//	err := arb.Do(ctx, func(ctx context.Context) error {
//		// talk to devices on the downstream bus
//		return nil
//	})
//
// If a single host controls both masters, platform code has to ensure only
// one instance per chip is ever created.
type PCA9641 struct {
	// mx serializes individual register transactions against the chip. It
	// is scoped to one read or one write and is never held across a poll
	// delay, so concurrent local callers interleave at I/O granularity.
	mx        sync.Mutex
	transport I2CBus
	address   byte
}

type Config struct {
	Address byte
}

type ConfigOption func(*Config)

// WithAddress overrides the chip address (set by the ADR pin strapping).
func WithAddress(address byte) ConfigOption {
	return func(c *Config) {
		c.Address = address
	}
}

// New creates an arbiter bound to the given raw transport. No bus traffic
// happens until Init or the first Acquire.
func New(transport I2CBus, opts ...ConfigOption) *PCA9641 {
	config := &Config{
		Address: DefaultAddress,
	}
	for _, opt := range opts {
		opt(config)
	}
	return &PCA9641{transport: transport, address: config.Address}
}

// Init forces the control register to the released state. The chip may come
// up with stale request bits from a previous run of this host; clearing them
// before first use keeps a crash from wedging the downstream bus. Call once
// after construction, before any other local bus activity.
func (a *PCA9641) Init(ctx context.Context) error {
	if err := a.writeRegister(ctx, regControl, 0x00); err != nil {
		return fmt.Errorf("pca9641: could not reset control register: %w", err)
	}
	return nil
}

// Acquire polls the chip for exclusive ownership of the downstream bus.
// It returns nil once the lock is granted and the bus is connected,
// ErrArbitrationTimeout when the deadline passes first, or the transport
// error unmodified-in-chain if any register I/O fails. Bus errors are not
// retried; they usually mean the chip is absent or the segment is broken,
// and retrying would only mask that from the caller.
func (a *PCA9641) Acquire(ctx context.Context) error {
	deadline := time.Now().Add(arbitrationTimeout)
	for {
		delay, done, err := a.arbitrate(ctx)
		if done || err != nil {
			return err
		}
		if !time.Now().Before(deadline) {
			return ErrArbitrationTimeout
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// arbitrate performs one polling cycle: it inspects the control register and
// either confirms ownership, backs off while a request is in flight, or
// places a fresh lock request. It reports the delay to apply before the next
// cycle. The chip performs the actual arbitration between the two masters;
// software only requests and polls.
func (a *PCA9641) arbitrate(ctx context.Context) (time.Duration, bool, error) {
	reg, err := a.readRegister(ctx, regControl)
	if err != nil {
		return 0, false, fmt.Errorf("pca9641: could not read control register: %w", err)
	}
	switch {
	case connected(reg):
		return 0, true, nil
	case requested(reg):
		// A request is still being negotiated. Writing now would restart
		// the negotiation and can starve both masters, so only re-read
		// after the long delay.
		return retryDelayLong, false, nil
	default:
		// Bus is idle: request the lock and arm the reserve timer in one
		// auto-increment write so no intermediate state is observable.
		err = a.writeRegisterPair(ctx, regControl|regAutoInc,
			ctlLockReq|ctlBusConnect|ctlIdleTimerDis, reserveTime)
		if err != nil {
			return 0, false, fmt.Errorf("pca9641: could not request bus lock: %w", err)
		}
		return retryDelayShort, false, nil
	}
}

// Release hands the downstream bus back by clearing the control register.
// This also drops any BUS_INIT or test bits this master had set. Releasing
// when the lock is not held is harmless; the chip accepts the write. A
// failed release is reported but leaves no software-side state behind: the
// chip register is the sole source of truth for the next Acquire.
func (a *PCA9641) Release(ctx context.Context) error {
	if err := a.writeRegister(ctx, regControl, 0x00); err != nil {
		return fmt.Errorf("pca9641: could not release bus: %w", err)
	}
	return nil
}

// Do acquires the bus, runs fn, and always releases afterwards, even when fn
// fails, so the downstream bus is never left reserved. The error from fn
// wins over a release error.
func (a *PCA9641) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := a.Acquire(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	if rerr := a.Release(ctx); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// Status reads and decodes the read-only status register. Purely diagnostic;
// arbitration never consults it.
func (a *PCA9641) Status(ctx context.Context) (Status, error) {
	reg, err := a.readRegister(ctx, regStatus)
	if err != nil {
		return Status{}, fmt.Errorf("pca9641: could not read status register: %w", err)
	}
	return decodeStatus(reg), nil
}

// Control returns the raw control register. Diagnostic helper for bench use.
func (a *PCA9641) Control(ctx context.Context) (byte, error) {
	reg, err := a.readRegister(ctx, regControl)
	if err != nil {
		return 0, fmt.Errorf("pca9641: could not read control register: %w", err)
	}
	return reg, nil
}

func (a *PCA9641) readRegister(ctx context.Context, command byte) (byte, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	err := a.transport.WriteToAddr(ctx, a.address, []byte{command})
	if err != nil {
		return 0x00, fmt.Errorf("could not set register address %#x: %w", command, err)
	}
	buf := make([]byte, 1)
	err = a.transport.ReadFromAddr(ctx, a.address, buf)
	if err != nil {
		return 0x00, fmt.Errorf("could not read register %#x: %w", command, err)
	}
	return buf[0], nil
}

func (a *PCA9641) writeRegister(ctx context.Context, command, value byte) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.transport.WriteToAddr(ctx, a.address, []byte{command, value})
}

// writeRegisterPair writes two consecutive registers in a single bus
// transaction; command must carry the auto-increment bit.
func (a *PCA9641) writeRegisterPair(ctx context.Context, command, v1, v2 byte) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.transport.WriteToAddr(ctx, a.address, []byte{command, v1, v2})
}
