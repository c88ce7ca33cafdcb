// Package main is the entry point for the wikimigrate CLI tool.
package main

import (
	"os"

	"github.com/aidanlsb/wikimigrate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
