// Package main is the entry point for the deploynet CLI.
package main

import (
	"context"
	"os"

	"github.com/pathfinder-net/deploynet/cmd/deploynet/commands"
)

func main() {
	if err := commands.Root().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
