package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/Khalid-000-ME/Trio/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}
