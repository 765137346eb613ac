package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/gsd-format/gsd/internal/fetchclient"
)

const fetchHelp = `gsd fetch [-flags]

Download a .gsd file from a gsd serve instance (or any HTTP file server),
reusing a local cache and conditional GET when possible.

Example:
  % gsd fetch -base http://ws:7080 -name traj.gsd -output traj.gsd
`

func fetch(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("fetch", flag.ExitOnError)
	var (
		base   = fset.String("base", "", "base URL or directory to fetch from")
		name   = fset.String("name", "", "file name relative to -base")
		output = fset.String("output", "", "path to write the downloaded file to")
		cache  = fset.Bool("cache", true, "cache downloads locally and use conditional GET")
	)
	fset.Usage = usage(fset, fetchHelp)
	fset.Parse(args)

	if *base == "" || *name == "" || *output == "" {
		fset.Usage()
		return errArgs
	}

	rd, err := fetchclient.Open(ctx, *base, *name, *cache)
	if err != nil {
		return err
	}
	defer rd.Close()

	out, err := os.Create(*output)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rd); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
