package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cavaliercoder/go-cpio"
	"github.com/google/renameio"
	"github.com/klauspost/pgzip"

	"github.com/gsd-format/gsd/internal/oninterrupt"
)

const archiveHelp = `gsd archive [-flags] <path>...

Bundle one or more .gsd files into a single gzip-compressed cpio archive,
written atomically to -output.

Example:
  % gsd archive -output run.cpio.gz run/traj1.gsd run/traj2.gsd
`

func archive(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("archive", flag.ExitOnError)
	var output = fset.String("output", "archive.cpio.gz", "path to atomically write the archive to")
	fset.Usage = usage(fset, archiveHelp)
	fset.Parse(args)

	if fset.NArg() == 0 {
		fset.Usage()
		return errArgs
	}

	start := time.Now()
	var buf bytes.Buffer
	wr := cpio.NewWriter(&buf)
	for _, path := range fset.Args() {
		if err := copyFileCPIO(wr, path); err != nil {
			return err
		}
	}
	if err := wr.Close(); err != nil {
		return err
	}

	out, err := renameio.TempFile("", *output)
	if err != nil {
		return err
	}
	defer out.Cleanup()
	token := oninterrupt.Register(func() { out.Cleanup() })
	defer oninterrupt.Deregister(token)
	zw := pgzip.NewWriter(out)
	if _, err := io.Copy(zw, &buf); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return err
	}

	log.Printf("%d file(s) archived in %v", fset.NArg(), time.Since(start))
	return nil
}

func copyFileCPIO(wr *cpio.Writer, path string) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := wr.WriteHeader(&cpio.Header{
		Name: filepath.Base(path),
		Mode: cpio.FileMode(fi.Mode().Perm()),
		Size: int64(len(b)),
	}); err != nil {
		return err
	}
	_, err = wr.Write(b)
	return err
}
