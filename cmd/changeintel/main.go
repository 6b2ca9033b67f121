package main

import (
	"os"

	"github.com/Runbook-Agent/change-intelligence/cmd/changeintel/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
