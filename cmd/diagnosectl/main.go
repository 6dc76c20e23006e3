// Command diagnosectl runs the incident analysis stages locally against a
// JSON investigation bundle, without starting the gRPC or REST servers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
