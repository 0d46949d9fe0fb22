package main

import (
	"fmt"
	"os"

	"github.com/immdipu/follower-detector/cmd/fdetect/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
