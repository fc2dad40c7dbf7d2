package main

import (
	"os"

	"github.com/polyarb/polyarb/cmd"
	"github.com/polyarb/polyarb/utils"
)

func main() {
	defer utils.CleanupLogger()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
