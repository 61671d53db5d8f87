// Package main provides the vibesurf command: it runs browser-agent tasks
// over a pool of isolated browser sessions and watches them in a terminal UI.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
