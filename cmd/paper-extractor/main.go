package main

import (
	"os"

	"github.com/spherical/paper-extractor/cmd/paper-extractor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
