package main

import (
	"github.com/lowc1012/authguard/internal/cli"
)

// Version information set via ldflags during build
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, buildDate)

	if err := cli.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}
