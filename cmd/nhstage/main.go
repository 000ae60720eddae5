package main

import (
	"os"

	"github.com/careworks-labs/nhstage/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
