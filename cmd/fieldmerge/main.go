// Command fieldmerge applies proposed field updates to report section
// documents stored in a JSON file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
