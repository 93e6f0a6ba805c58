package main

import (
	"os"

	"github.com/bgbye/bgbye/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
