// Command callrec runs the call recording API, its analysis workers and the
// operator tooling around them.
//
//	@title			Call Recording API
//	@version		1.0
//	@description	Registers calls, accepts their recordings and serves analysis results.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cctx := newCommandContext()
	err := newRootCommand(cctx).Execute()
	cctx.close()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
