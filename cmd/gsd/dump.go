package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/gsd-format/gsd"
)

// boldHeader wraps s in bold-on/bold-off escapes when stdout is an
// interactive terminal, and passes it through unchanged otherwise (e.g.
// when piped into a file or another process).
func boldHeader(s string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}
	return "\x1b[1m" + s + "\x1b[0m"
}

const dumpHelp = `gsd dump [-flags] <path>

Print a .gsd file's header fields and its committed chunk names.

Example:
  % gsd dump -header traj.gsd
`

func dump(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("dump", flag.ExitOnError)
	var (
		header = fset.Bool("header", false, "only print header fields")
		prefix = fset.String("prefix", "", "only list chunk names with this prefix")
	)
	fset.Usage = usage(fset, dumpHelp)
	fset.Parse(args)

	if fset.NArg() != 1 {
		fset.Usage()
		return errArgs
	}

	h, err := gsd.Open(fset.Arg(0), gsd.ModeReadOnly)
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Printf("application: %s\n", h.Application())
	fmt.Printf("schema: %s (version %#x)\n", h.Schema(), h.SchemaVersion())
	fmt.Printf("gsd version: %#x\n", h.Version())
	fmt.Printf("nframes: %d\n", h.GetNFrames())
	if *header {
		return nil
	}

	names := h.ChunkNames(*prefix)
	fmt.Printf("%s\n", boldHeader(fmt.Sprintf("chunks (%d):", len(names))))
	for _, name := range names {
		fmt.Printf("\t%s\n", name)
	}
	return nil
}
