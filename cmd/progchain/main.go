// Command progchain runs a progchain node and its client tools.
package main

import (
	"os"

	"github.com/blockberries/progchain/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
