package main

import (
	"os"

	"github.com/noma-protocol/pricefeed/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
