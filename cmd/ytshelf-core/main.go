package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

const appVersion = "1.0.0"

func main() {
	runner := NewRunner(os.Stdout)

	app := &cli.Command{
		Name:     "ytshelf-core",
		Usage:    "Reconcile a local music library against YouTube albums and playlists",
		Version:  appVersion,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
