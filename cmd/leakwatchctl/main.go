package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/leakwatch/gateway/cmd/leakwatchctl/cmd"
)

// Version is set by build flags.
var Version = "dev"

func main() {
	cmd.SetVersion(Version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
