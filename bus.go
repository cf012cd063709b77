package pca9641

import (
	"context"
	"fmt"
)

// ErrBusBusy is reported by transports whose bus engine could not complete
// the requested transfer yet (e.g. a USB-HID bridge with a pending I2C
// transaction).
var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// AddressableReader reads raw bytes from a device on the upstream bus.
type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

// AddressableWriter writes raw bytes to a device on the upstream bus.
type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is the raw transport the arbiter talks to the PCA9641 through.
//
// Implementations must not take any transaction-level bus lock of their own:
// the arbiter issues register I/O while it already holds its per-chip I/O
// scope, and a transport that locked again would deadlock on the very bus it
// is arbitrating access to. One call is one bus transaction.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
