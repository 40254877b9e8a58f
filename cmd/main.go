package main

import (
	"fmt"
	"os"

	"github.com/cwbudde/chainopt/internal/exitcode"
	"github.com/cwbudde/chainopt/internal/observability"
)

func main() {
	err := newRootCmd().Execute()
	observability.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(int(exitcode.Of(err)))
}
