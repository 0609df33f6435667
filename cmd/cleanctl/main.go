// Package main is the entry point for the cleanctl operator CLI.
package main

import (
	"os"

	"github.com/JonMunkholm/filecleaner/cmd/cleanctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
