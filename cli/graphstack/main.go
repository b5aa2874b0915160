package main

import (
	"os"

	graphstackcmder "github.com/papercomputeco/graphstack/cmd/graphstack"
)

func main() {
	cmd := graphstackcmder.NewGraphstackCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
