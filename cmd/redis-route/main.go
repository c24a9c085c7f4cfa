// Command redis-route inspects and exercises a Redis deployment through the
// replica-aware router: slot ownership, replica assignment, single commands
// and resyncs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(64)
	}
}
