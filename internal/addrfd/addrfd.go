// Package addrfd reports a chosen listening address back to a parent
// process that launched gsd serve with -addrfd=N, the way an
// integration test spawns a server subprocess and waits for it to
// announce readiness.
package addrfd

import (
	"flag"
	"fmt"
	"log"
	"os"
)

var fd = flag.Int("addrfd", -1, "file descriptor on which to print readiness information")

// MustWrite reports addr and nfiles, the number of .gsd files gsd serve
// found in its served directory at startup, to the configured file
// descriptor, if any, and closes it. It must be called exactly once,
// after the listener is bound but before serving begins.
//
// A bare address is enough for a parent process to know the server is
// reachable, but a test driving gsd serve as a subprocess (see
// internal/gsdtest.StartServe) also wants to assert the server actually
// saw the expected set of files before issuing its first request,
// without a second, racy directory listing of its own. Reporting nfiles
// here makes that assertion possible from the single readiness message.
func MustWrite(addr string, nfiles int) {
	if *fd == -1 {
		return
	}
	f := os.NewFile(uintptr(*fd), "")
	if _, err := fmt.Fprintf(f, "%s\t%d\n", addr, nfiles); err != nil {
		log.Fatal(err)
	}
	if err := f.Close(); err != nil {
		log.Fatal(err)
	}
}
