package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/gsd-format/gsd/internal/gsdenv"
)

const envHelp = `gsd env

Print the directories gsd subcommands use by default: where "serve"
looks for .gsd files absent an explicit -dir, and where "fetch" caches
downloads.

Example:
  % gsd env
`

func env(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("env", flag.ExitOnError)
	fset.Usage = usage(fset, envHelp)
	fset.Parse(args)

	fmt.Printf("GSDROOT=%s\n", gsdenv.Root)
	fmt.Printf("CACHEDIR=%s\n", gsdenv.CacheDir())
	return nil
}
