// Package main is the entry point for the pyrothor scan orchestrator.
package main

import (
	"fmt"
	"os"

	"pyrothor/cmd"
)

// version is set at build time via -ldflags.
var version = "dev"

// main is the entry point.
func main() {
	rootCmd := cmd.NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
