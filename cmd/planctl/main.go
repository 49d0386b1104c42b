package main

import (
	"os"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
