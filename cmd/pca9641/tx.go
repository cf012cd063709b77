package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/rivo-systems/i2c-mux-pca9641/cmd/pca9641/console"
)

var txCmd = cli.Command{
	Name:      "tx",
	Usage:     "run one raw transaction on the downstream bus under arbitration",
	ArgsUsage: "<device addr (hex)> <bytes to write (hex)>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "read",
			Usage: "number of bytes to read back after the write",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return console.Exit(1, "expected at least 1 argument, got %d", c.NArg())
		}
		target, err := hex.DecodeString(c.Args().Get(0))
		if err != nil || len(target) != 1 {
			return console.Exit(1, "could not decode device address: %v", err)
		}
		var payload []byte
		if c.NArg() > 1 {
			payload, err = hex.DecodeString(c.Args().Get(1))
			if err != nil {
				return console.Exit(1, "could not decode payload: %v", err)
			}
		}

		arb, bus, closer, err := newArbiter(c)
		if err != nil {
			return console.Exit(1, "adapter error: %s", console.Red(err))
		}
		defer closer()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))

		readback := make([]byte, c.Int("read"))
		err = arb.Do(ctx, func(ctx context.Context) error {
			if len(payload) > 0 {
				if err := bus.WriteToAddr(ctx, target[0], payload); err != nil {
					return fmt.Errorf("downstream write failed: %w", err)
				}
			}
			if len(readback) > 0 {
				if err := bus.ReadFromAddr(ctx, target[0], readback); err != nil {
					return fmt.Errorf("downstream read failed: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return console.Exit(1, "transaction error: %s", console.Red(err))
		}
		if len(readback) > 0 {
			console.Printf("read %s bytes: %s\n", console.White(strconv.Itoa(len(readback))), console.White(hex.EncodeToString(readback)))
		}
		console.PInfof(console.PictoFinish, "transaction complete")
		return nil
	},
}
