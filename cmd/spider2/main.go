package main

import (
	"os"

	"github.com/LY-Tri/Spider2/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
