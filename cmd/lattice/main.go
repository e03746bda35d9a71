// Package main provides the entry point for the lattice CLI.
package main

import (
	"fmt"
	"os"

	"github.com/lattice-dev/lattice/cmd/lattice/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
