// Command parceltrack keeps carrier tracking status current across
// shipment tables.
package main

import (
	"os"

	"github.com/roach88/parceltrack/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
