package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "blockpoller",
		Usage: "Poll an EVM chain for new blocks and deliver them in order",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the block poller",
				Flags:  runFlags(),
				Action: run,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
