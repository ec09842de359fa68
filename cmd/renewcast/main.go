package main

import (
	"os"

	"github.com/wonny/renewcast/cmd/renewcast/commands"
)

// main is the entry point for the renewcast CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/renewcast [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
