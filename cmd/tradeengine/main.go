// Command tradeengine runs the signal generator and order executor
// for the HK/US equity trading pipeline, and provides operational
// subcommands for inspecting and managing the durable signal queue.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
