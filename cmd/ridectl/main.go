// Command ridectl issues rider, driver and trip commands against the ride
// backend and manages the dashboard's stored preferences.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
