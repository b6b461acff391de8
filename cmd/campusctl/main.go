package main

import (
	"os"

	"campuschat/cmd/campusctl/commands"
)

// Set during build.
var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
