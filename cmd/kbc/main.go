// Command kbc initialises, evaluates and queries CP and ComplEx knowledge base
// completion models stored as embedding snapshots.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
