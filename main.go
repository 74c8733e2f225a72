// Package main provides the entry point for bpsim.
// bpsim replays branch traces through a speculative gshare branch predictor
// with exact history rollback on squash.
//
// For the full CLI, use: go run ./cmd/bpsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("bpsim - Speculative gshare branch predictor")
	fmt.Println("")
	fmt.Println("Usage: bpsim [options] <trace>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config       Path to predictor configuration JSON file")
	fmt.Println("  -scheme       Index scheme override (gshare or global)")
	fmt.Println("  -depth        In-flight branches per thread")
	fmt.Println("  -json         Write the report as JSON")
	fmt.Println("  -dump-config  Write the effective configuration and exit")
	fmt.Println("  -v            Log every predictor event")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/bpsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/bpsim' instead.")
	}
}
