package main

import (
	"os"

	"gluetune/cmd/gluetune/commands"
)

func main() {
	root := commands.NewRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
