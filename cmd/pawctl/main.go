// Package main is the entry point for the pawctl CLI tool.
package main

import (
	"os"
	_ "time/tzdata" // sweep --timezone on hosts without a zoneinfo database

	"github.com/good-yellow-bee/pawwatch/cmd/pawctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
