// Package main is the entry point for the aidesk CLI.
package main

import (
	"os"

	"github.com/aidesk/aidesk/cmd/aidesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
