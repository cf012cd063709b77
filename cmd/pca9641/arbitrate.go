package main

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	pca9641 "github.com/rivo-systems/i2c-mux-pca9641"
	"github.com/rivo-systems/i2c-mux-pca9641/cmd/pca9641/console"
)

var grabCmd = cli.Command{
	Name:  "grab",
	Usage: "acquire the downstream bus, optionally hold it, then release",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "hold",
			Usage: "keep the bus locked for this long before releasing",
		},
		&cli.BoolFlag{
			Name:  "init",
			Usage: "force-release the control register before arbitrating",
		},
	},
	Action: func(c *cli.Context) error {
		arb, _, closer, err := newArbiter(c)
		if err != nil {
			return console.Exit(1, "adapter error: %s", console.Red(err))
		}
		defer closer()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))

		if c.Bool("init") {
			if err = arb.Init(ctx); err != nil {
				return console.Exit(1, "init error: %s", console.Red(err))
			}
		}
		start := time.Now()
		err = arb.Acquire(ctx)
		if errors.Is(err, pca9641.ErrArbitrationTimeout) {
			return console.Exit(2, "%s arbitration timed out after %s, the other master is holding the bus", console.PictoStop, console.Yellow(time.Since(start).Round(time.Millisecond)))
		}
		if err != nil {
			return console.Exit(1, "acquire error: %s", console.Red(err))
		}
		console.PInfof(console.PictoKey, "bus acquired in %s", console.Green(time.Since(start).Round(time.Microsecond)))
		if hold := c.Duration("hold"); hold > 0 {
			console.Infof("holding the bus for %s", hold)
			time.Sleep(hold)
		}
		if err = arb.Release(ctx); err != nil {
			return console.Exit(1, "release error: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "bus released")
		return nil
	},
}

var releaseCmd = cli.Command{
	Name:  "release",
	Usage: "force the control register to the released state",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		arb, _, closer, err := newArbiter(c)
		if err != nil {
			return console.Exit(1, "adapter error: %s", console.Red(err))
		}
		defer closer()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))

		if !c.Bool("yes") {
			status, err := arb.Status(ctx)
			if err != nil {
				return console.Exit(1, "status read error: %s", console.Red(err))
			}
			if status.OtherLock {
				answer, err := console.YesOrNo("the other master holds the bus lock, release anyway?")
				if err != nil {
					return console.Exit(1, "prompt error: %s", console.Red(err))
				}
				if answer != console.Yes {
					console.PInfof(console.PictoStop, "aborted")
					return nil
				}
			}
		}
		if err = arb.Release(ctx); err != nil {
			return console.Exit(1, "release error: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "control register cleared")
		return nil
	},
}
