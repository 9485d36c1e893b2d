package main

import (
	"os"

	"github.com/dshills/triad/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
