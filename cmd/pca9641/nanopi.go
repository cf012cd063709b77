package main

import (
	"context"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	pca9641 "github.com/rivo-systems/i2c-mux-pca9641"
)

var _ pca9641.I2CBus = &nanopiBus{}

// nanopiBus reaches the chip through a NanoPi's native bus using the gobot
// adaptor. Connections are cached per device address.
type nanopiBus struct {
	adaptor *nanopi.Adaptor
	busNr   int
	mu      sync.Mutex
	conns   map[byte]i2c.Connection
}

func newNanopiBus(busNr int) (*nanopiBus, error) {
	npi := nanopi.NewNeoAdaptor()
	if err := npi.I2cBusAdaptor.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	return &nanopiBus{adaptor: npi, busNr: busNr, conns: map[byte]i2c.Connection{}}, nil
}

func (b *nanopiBus) connection(address byte) (i2c.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.adaptor.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not get connection to %#x: %w", address, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *nanopiBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to i2c device %#x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short write to i2c device %#x: %d", address, n)
	}
	return nil
}

func (b *nanopiBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c device %#x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from i2c device %#x: %d", address, n)
	}
	return nil
}

// Release is a no-op: the kernel bus has no engine-level busy state to clear.
func (b *nanopiBus) Release(ctx context.Context) error {
	return nil
}

func (b *nanopiBus) Close() error {
	return b.adaptor.I2cBusAdaptor.Finalize()
}
