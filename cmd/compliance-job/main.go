// Command compliance-job computes sales-plan compliance for a period,
// builds sales snapshots from delivered orders, and ingests the snapshot
// feeds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "compliance-job: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "compliance-job",
		Usage: "sales-plan compliance batch runs and snapshot ingestion",
		Commands: []*cli.Command{
			runCommand(),
			snapshotSalesCommand(),
			consumeFeedsCommand(),
		},
	}
}
