// Command hhwatch is the entry point for the job-listing acquisition
// service: a single binary exposing the CLI surface in internal/cmd.
package main

import (
	"os"

	"github.com/kiratut/v4/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
