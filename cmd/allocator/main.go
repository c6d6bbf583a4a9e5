package main

import (
	"os"

	"github.com/wonny/aegis-allocator/cmd/allocator/commands"
)

// main is the entry point for the allocator CLI
// ⭐ go run ./cmd/allocator [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
