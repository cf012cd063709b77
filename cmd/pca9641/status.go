package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	pca9641 "github.com/rivo-systems/i2c-mux-pca9641"
	"github.com/rivo-systems/i2c-mux-pca9641/cmd/pca9641/console"
)

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "read and decode the chip's status and control registers",
	Action: func(c *cli.Context) error {
		arb, _, closer, err := newArbiter(c)
		if err != nil {
			return console.Exit(1, "adapter error: %s", console.Red(err))
		}
		defer closer()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))

		status, err := arb.Status(ctx)
		if err != nil {
			return console.Exit(1, "status read error: %s", console.Red(err))
		}
		control, err := arb.Control(ctx)
		if err != nil {
			return console.Exit(1, "control read error: %s", console.Red(err))
		}
		out := struct {
			Status  pca9641.Status `yaml:"status"`
			Control string         `yaml:"control"`
		}{
			Status:  status,
			Control: fmt.Sprintf("%#02x", control),
		}
		enc := yaml.NewEncoder(os.Stdout)
		if err = enc.Encode(out); err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}
