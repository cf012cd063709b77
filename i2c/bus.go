// Package i2c provides a raw transport over a native Linux I2C bus using
// periph.io. Each call maps to exactly one bus transaction and no
// transaction-level locking is performed, which is what the arbiter requires
// from its transport.
package i2c

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	pca9641 "github.com/rivo-systems/i2c-mux-pca9641"
)

var _ pca9641.I2CBus = &GenericBus{}

// GenericBus wraps a periph.io bus handle. The handle is exclusively owned
// by the arbiter instance created on top of it; opening a second bus for the
// same chip defeats the per-I/O serialization.
type GenericBus struct {
	bus i2c.BusCloser
}

// NewGenericBus initializes the periph.io host drivers and opens the named
// bus (e.g. "/dev/i2c-1" or "1").
func NewGenericBus(dev string) (*GenericBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus: bus,
	}, nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c device %#x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c device %#x: %w", address, err)
	}
	return nil
}

// Release is a no-op: the kernel bus has no engine-level busy state to clear.
func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
