// Command gms tags console and Steam captures with their capture metadata
// and uploads them to an Immich server, one platform at a time.
package main

import (
	"os"

	"gamesync/internal/tools"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr, tools.ExecRunner{}))
}
