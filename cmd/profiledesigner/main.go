// Package main is the entry point for the profiledesigner CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cesmii/profiledesigner/internal/cli"
)

// Version is injected at build time.
var Version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(Version)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
