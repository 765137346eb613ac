package main

import (
	"context"
	"flag"

	"github.com/gsd-format/gsd"
)

const createHelp = `gsd create [-flags] <path>

Create an empty .gsd file with the given application and schema metadata.

Example:
  % gsd create -application trajlib -schema particles -schemaversion 65536 traj.gsd
`

func create(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("create", flag.ExitOnError)
	var (
		application   = fset.String("application", "", "name of the application that writes this file")
		schema        = fset.String("schema", "", "name of the schema this file follows")
		schemaVersion = fset.Uint("schemaversion", uint(gsd.MakeVersion(1, 0)), "packed major/minor schema version")
		exclusive     = fset.Bool("exclusive", false, "fail if the path already exists")
	)
	fset.Usage = usage(fset, createHelp)
	fset.Parse(args)

	if fset.NArg() != 1 {
		fset.Usage()
		return errArgs
	}
	path := fset.Arg(0)

	h, err := gsd.CreateAndOpen(path, *application, *schema, uint32(*schemaVersion), gsd.ModeReadWrite, *exclusive)
	if err != nil {
		return err
	}
	return h.Close()
}
