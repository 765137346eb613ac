package main_test

import (
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gsd-format/gsd"
	"github.com/gsd-format/gsd/internal/gsdtest"
)

// buildGSD compiles the gsd command into a temporary directory once per
// test binary run and returns the path to the resulting executable.
func buildGSD(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "gsd-build")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	bin := filepath.Join(dir, "gsd")
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot build gsd binary: %v", err)
	}
	return bin
}

// TestServeFetchRoundTrip exercises `gsd serve` and `gsd fetch` as real
// subprocesses against a directory containing one .gsd file, the way a
// workstation serves trajectories to a laptop (see serve.go's example).
func TestServeFetchRoundTrip(t *testing.T) {
	bin := buildGSD(t)

	ctx, canc := context.WithCancel(context.Background())
	defer canc()

	srvDir, err := ioutil.TempDir("", "gsd-serve")
	if err != nil {
		t.Fatal(err)
	}
	defer gsdtest.RemoveAll(t, srvDir)

	src := filepath.Join(srvDir, "traj.gsd")
	if err := gsd.Create(src, "integration-test", "particles", gsd.MakeVersion(1, 0)); err != nil {
		t.Fatalf("gsd.Create: %v", err)
	}
	h, err := gsd.Open(src, gsd.ModeReadWrite)
	if err != nil {
		t.Fatalf("gsd.Open: %v", err)
	}
	if err := h.WriteChunk("particles/N", gsd.TypeUint32, 1, 1, 0, []byte{3, 0, 0, 0}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := h.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	addr, cleanup, err := gsdtest.StartServe(ctx, bin, srvDir)
	if err != nil {
		t.Fatalf("StartServe: %v", err)
	}
	defer cleanup()

	outDir, err := ioutil.TempDir("", "gsd-fetch")
	if err != nil {
		t.Fatal(err)
	}
	defer gsdtest.RemoveAll(t, outDir)
	dst := filepath.Join(outDir, "traj.gsd")

	fetch := exec.CommandContext(ctx, bin, "fetch",
		"-base", "http://"+addr,
		"-name", "traj.gsd",
		"-output", dst,
		"-cache=false",
	)
	fetch.Stdout = os.Stderr
	fetch.Stderr = os.Stderr
	if err := fetch.Run(); err != nil {
		t.Fatalf("gsd fetch: %v", err)
	}

	got, err := gsd.Open(dst, gsd.ModeReadOnly)
	if err != nil {
		t.Fatalf("reopen fetched file: %v", err)
	}
	defer got.Close()

	if got.Application() != "integration-test" {
		t.Errorf("Application() = %q, want %q", got.Application(), "integration-test")
	}
	entry, ok := got.FindChunk(0, "particles/N")
	if !ok {
		t.Fatal("FindChunk(0, particles/N): not found in fetched file")
	}
	buf := make([]byte, entry.Size())
	if err := got.ReadChunk(entry, buf); err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if want := []byte{3, 0, 0, 0}; string(buf) != string(want) {
		t.Errorf("ReadChunk = %v, want %v", buf, want)
	}
}
