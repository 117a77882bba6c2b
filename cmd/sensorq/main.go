// Package main is the entry point for the sensorq CLI tool.
package main

import (
	"os"

	"github.com/roach88/sensorq/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
