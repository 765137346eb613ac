package main

import (
	"context"
	"flag"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gsd-format/gsd"
)

const checkHelp = `gsd check [-flags] <path>...

Deep-validate one or more .gsd files concurrently: scan every committed
index entry instead of only the open-time binary-search pivots.

Example:
  % gsd check traj1.gsd traj2.gsd traj3.gsd
`

func check(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("check", flag.ExitOnError)
	fset.Usage = usage(fset, checkHelp)
	fset.Parse(args)

	if fset.NArg() == 0 {
		fset.Usage()
		return errArgs
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range fset.Args() {
		path := path
		g.Go(func() error {
			h, err := gsd.Open(path, gsd.ModeReadOnly)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			defer h.Close()
			if err := h.DeepValidate(ctx); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("%d file(s) OK\n", fset.NArg())
	return nil
}
