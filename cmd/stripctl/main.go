// Stripctl switches Kasa power strip outlets directly from the command line.
//
// It talks to the strip itself rather than to a running gateway, using the
// same session cache, retry policy and controller.
//
// Usage:
//
//	stripctl status 10.0.0.5
//	stripctl on 10.0.0.5 2
//	stripctl off 10.0.0.5 2 --retries 5
package main

import (
	"fmt"
	"os"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
