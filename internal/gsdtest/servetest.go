// Package gsdtest provides test helpers for exercising `gsd serve` and
// `gsd fetch` as subprocesses, the way a real client/server deployment
// runs them.
package gsdtest

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// StartServe launches `gsd serve` against dir and blocks until it
// reports readiness, returning its listen address and a cleanup
// function that kills the subprocess.
//
// The readiness message also carries the number of .gsd files gsd serve
// saw in dir at startup (see internal/addrfd); StartServe cross-checks
// that count against dir's own contents and fails fast if they
// disagree, rather than handing back an address the caller might probe
// against a server that silently didn't see the files it expected.
func StartServe(ctx context.Context, gsdBinary, dir string) (addr string, cleanup func(), _ error) {
	cmd := exec.CommandContext(ctx, gsdBinary,
		"-addrfd=3", // Go dup2()s ExtraFiles to 3 and onwards
		"serve",
		"-listen=localhost:0",
		"-gzip=false",
		"-dir="+dir,
	)
	r, w, err := os.Pipe()
	if err != nil {
		return "", nil, err
	}
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout
	cmd.ExtraFiles = []*os.File{w}
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("%v: %v", cmd.Args, err)
	}
	cleanup = func() {
		cmd.Process.Kill()
		cmd.Wait()
	}

	if err := w.Close(); err != nil {
		cleanup()
		return "", nil, err
	}

	// A successful read also serves as a readiness notification: the
	// server writes its readiness line only after the listener is bound.
	b, err := ioutil.ReadAll(r)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	addr, nfiles, err := parseReadiness(string(b))
	if err != nil {
		cleanup()
		return "", nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.gsd"))
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if len(matches) != nfiles {
		cleanup()
		return "", nil, fmt.Errorf("gsd serve reported %d .gsd file(s), dir %s has %d", nfiles, dir, len(matches))
	}
	return addr, cleanup, nil
}

func parseReadiness(line string) (addr string, nfiles int, err error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.SplitN(line, "\t", 2)
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("malformed readiness message %q", line)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed readiness message %q: %w", line, err)
	}
	return fields[0], n, nil
}

// RemoveAll wraps os.RemoveAll and fails the test on error.
func RemoveAll(t testing.TB, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
