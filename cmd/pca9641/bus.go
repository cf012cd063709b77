package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	pca9641 "github.com/rivo-systems/i2c-mux-pca9641"
	"github.com/rivo-systems/i2c-mux-pca9641/adapter"
	"github.com/rivo-systems/i2c-mux-pca9641/i2c"
)

// openBus builds the raw upstream transport selected on the command line.
// The returned closer is nil-safe to defer.
func openBus(c *cli.Context) (pca9641.I2CBus, func(), error) {
	switch c.String("adapter") {
	case "mcp2221":
		bridge := adapter.NewMCP2221()
		if err := bridge.Init(); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return bridge, func() {}, nil
	case "periph":
		bus, err := i2c.NewGenericBus(c.String("dev"))
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { _ = bus.Close() }, nil
	case "nanopi":
		bus, err := newNanopiBus(c.Int("bus"))
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { _ = bus.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", c.String("adapter"))
	}
}

// newArbiter opens the selected transport and binds an arbiter to it.
func newArbiter(c *cli.Context) (*pca9641.PCA9641, pca9641.I2CBus, func(), error) {
	bus, closer, err := openBus(c)
	if err != nil {
		return nil, nil, nil, err
	}
	arb := pca9641.New(bus, pca9641.WithAddress(byte(c.Uint("addr"))))
	return arb, bus, closer, nil
}
