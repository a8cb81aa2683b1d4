// Command widgetlab serves the demo widgets and runs widget scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/widgetlab/cmd/widgetlab/commands"
)

var version = "0.1.0-dev"

func main() {
	if err := commands.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
