package main

import (
	"os"

	"tusk/cmd/tusk/cmd"
	"tusk/internal/tuskerr"
)

func main() {
	err := cmd.Execute()
	os.Exit(tuskerr.ExitCode(err))
}
