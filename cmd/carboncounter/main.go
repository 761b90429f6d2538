package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rshade/carboncounter/internal/cli"
	"github.com/rshade/carboncounter/internal/config"
	"github.com/rshade/carboncounter/pkg/version"
)

// exitStateCorrupted tells scripts the state file must be repaired by hand.
const exitStateCorrupted = 3

func run() error {
	root := cli.NewRootCmd(version.GetVersion())
	return root.ExecuteContext(context.Background())
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrStateCorrupted):
		return exitStateCorrupted
	default:
		return 1
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
