package main

import (
	"os"

	"redfish-harness/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
