package main

import (
	"os"

	"github.com/trogers1052/bwibbu-backfill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
