package gsd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gsd-format/gsd/internal/gsdio"
)

func mustCreate(t *testing.T, mode Mode) *Handle {
	t.Helper()
	prov := gsdio.NewMemory()
	if err := initializeFile(prov, "app", "s", MakeVersion(1, 0)); err != nil {
		t.Fatalf("initializeFile: %v", err)
	}
	h, err := OpenProvider(prov, mode)
	if err != nil {
		t.Fatalf("OpenProvider: %v", err)
	}
	return h
}

func reopen(t *testing.T, h *Handle, mode Mode) *Handle {
	t.Helper()
	prov := h.prov
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h2, err := OpenProvider(prov, mode)
	if err != nil {
		t.Fatalf("OpenProvider (reopen): %v", err)
	}
	return h2
}

func TestCreateSingleChunkRoundTrip(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	data := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	if err := h.WriteChunk("a", TypeInt32, 3, 1, 0, data); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := h.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}

	h = reopen(t, h, ModeReadOnly)
	defer h.Close()

	if got, want := h.GetNFrames(), uint64(1); got != want {
		t.Fatalf("GetNFrames() = %d, want %d", got, want)
	}
	entry, ok := h.FindChunk(0, "a")
	if !ok {
		t.Fatal("FindChunk(0, \"a\") not found")
	}
	if entry.Type != TypeInt32 || entry.N != 3 || entry.M != 1 {
		t.Fatalf("entry = %+v, want type=i32 N=3 M=1", entry)
	}
	got := make([]byte, entry.Size())
	if err := h.ReadChunk(entry, got); err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("ReadChunk data mismatch (-want +got):\n%s", diff)
	}
}

func TestTwoFramesTwoNames(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	mustWrite := func(name string, typ Type, n uint64, m uint32, data []byte) {
		t.Helper()
		if err := h.WriteChunk(name, typ, n, m, 0, data); err != nil {
			t.Fatalf("WriteChunk(%q): %v", name, err)
		}
	}
	a1 := []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}
	mustWrite("a", TypeInt32, 3, 1, a1)
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}

	b1 := make([]byte, 16)
	b1[0] = 7
	b1[8] = 8
	mustWrite("b", TypeInt64, 1, 2, b1)
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}

	a2 := []byte{9, 0, 0, 0, 10, 0, 0, 0}
	mustWrite("a", TypeInt32, 2, 1, a2)
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}

	h = reopen(t, h, ModeReadOnly)
	defer h.Close()

	if got, want := h.GetNFrames(), uint64(3); got != want {
		t.Fatalf("GetNFrames() = %d, want %d", got, want)
	}

	entry, ok := h.FindChunk(2, "a")
	if !ok {
		t.Fatal("FindChunk(2, \"a\") not found")
	}
	got := make([]byte, entry.Size())
	if err := h.ReadChunk(entry, got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a2, got); diff != "" {
		t.Errorf("FindChunk(2,\"a\") data mismatch (-want +got):\n%s", diff)
	}

	if _, ok := h.FindChunk(1, "a"); ok {
		t.Error("FindChunk(1, \"a\") found, want not found")
	}

	entry, ok = h.FindChunk(1, "b")
	if !ok {
		t.Fatal("FindChunk(1, \"b\") not found")
	}
	got = make([]byte, entry.Size())
	if err := h.ReadChunk(entry, got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(b1, got); diff != "" {
		t.Errorf("FindChunk(1,\"b\") data mismatch (-want +got):\n%s", diff)
	}

	if _, ok := h.FindChunk(0, "b"); ok {
		t.Error("FindChunk(0, \"b\") found, want not found")
	}
}

func TestIndexGrowth(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	const count = 129
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("chunk%d", i)
		if err := h.WriteChunk(name, TypeUint8, 1, 1, 0, []byte{byte(i)}); err != nil {
			t.Fatalf("WriteChunk #%d (%q): %v", i, name, err)
		}
	}
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if got, want := h.index.allocated, uint64(256); got != want {
		t.Fatalf("index.allocated = %d, want %d (should have doubled once)", got, want)
	}

	h = reopen(t, h, ModeReadOnly)
	defer h.Close()

	if got, want := h.GetNFrames(), uint64(1); got != want {
		t.Fatalf("GetNFrames() = %d, want %d", got, want)
	}
	names := h.ChunkNames("")
	if got, want := len(names), count; got != want {
		t.Fatalf("len(ChunkNames) = %d, want %d", got, want)
	}
}

func TestAppendMode(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	if err := h.WriteChunk("a", TypeInt32, 1, 1, 0, []byte{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}
	prov := h.prov
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	h, err := OpenProvider(prov, ModeAppend)
	if err != nil {
		t.Fatalf("OpenProvider(append): %v", err)
	}
	if _, ok := h.FindChunk(0, "a"); ok {
		t.Error("FindChunk succeeded in append mode, want rejected")
	}
	if err := h.WriteChunk("c", TypeInt32, 1, 1, 0, []byte{3, 0, 0, 0}); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	h, err = OpenProvider(prov, ModeReadOnly)
	if err != nil {
		t.Fatalf("OpenProvider(readonly): %v", err)
	}
	defer h.Close()
	if got, want := h.GetNFrames(), uint64(2); got != want {
		t.Fatalf("GetNFrames() = %d, want %d", got, want)
	}
	if _, ok := h.FindChunk(1, "c"); !ok {
		t.Error("FindChunk(1, \"c\") not found after append")
	}
	if _, ok := h.FindChunk(0, "a"); !ok {
		t.Error("FindChunk(0, \"a\") not found after append (previous data lost)")
	}
}

func TestTruncate(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	if err := h.WriteChunk("a", TypeInt32, 1, 1, 0, []byte{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}

	if err := h.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if got, want := h.GetNFrames(), uint64(0); got != want {
		t.Fatalf("GetNFrames() after truncate = %d, want %d", got, want)
	}
	if got, want := h.Application(), "app"; got != want {
		t.Errorf("Application() = %q, want %q", got, want)
	}
	if got, want := h.Schema(), "s"; got != want {
		t.Errorf("Schema() = %q, want %q", got, want)
	}

	if err := h.WriteChunk("z", TypeFloat64, 1, 1, 0, make([]byte, 8)); err != nil {
		t.Fatalf("WriteChunk after truncate: %v", err)
	}
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.FindChunk(0, "z"); !ok {
		t.Error("FindChunk(0, \"z\") not found after truncate + write")
	}
}

func TestZeroLengthChunkRejected(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	defer h.Close()
	err := h.WriteChunk("a", TypeInt32, 0, 1, 0, nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("WriteChunk with N=0: err = %v, want ErrInvalidArgument", err)
	}
	err = h.WriteChunk("a", TypeInt32, 1, 0, 0, nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("WriteChunk with M=0: err = %v, want ErrInvalidArgument", err)
	}
}

func TestOpenMagicMismatch(t *testing.T) {
	prov := gsdio.NewMemory()
	if err := initializeFile(prov, "app", "s", MakeVersion(1, 0)); err != nil {
		t.Fatal(err)
	}
	var b [1]byte
	prov.ReadAt(b[:], 0)
	b[0] ^= 0xFF
	prov.WriteAt(b[:], 0)

	_, err := OpenProvider(prov, ModeReadOnly)
	if !errors.Is(err, ErrNotAGSDFile) {
		t.Fatalf("Open with corrupted magic: err = %v, want ErrNotAGSDFile", err)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	prov := gsdio.NewMemory()
	_, err := OpenProvider(prov, ModeReadOnly)
	if !errors.Is(err, ErrNotAGSDFile) {
		t.Fatalf("Open empty file: err = %v, want ErrNotAGSDFile", err)
	}
}

func TestCorruptionDetectedAtPivot(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	const count = 193
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("chunk%d", i)
		if err := h.WriteChunk(name, TypeUint8, 1, 1, 0, []byte{byte(i)}); err != nil {
			t.Fatalf("WriteChunk #%d: %v", i, err)
		}
		if err := h.EndFrame(); err != nil {
			t.Fatal(err)
		}
	}
	prov := h.prov
	location := h.header.IndexLocation
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	// Entry i holds frame i. Searching [0, allocated) first visits entry
	// allocated/2 (used, frame 128), then entry allocated*3/4. Corrupt the
	// latter by zeroing its frame but leaving it marked used, violating
	// monotonicity against the frame of the pivot visited before it.
	pivot := uint64(256)/2 + uint64(256)/4
	entryBuf := make([]byte, indexEntrySize)
	off := int64(location + pivot*indexEntrySize)
	if _, err := prov.ReadAt(entryBuf, off); err != nil {
		t.Fatal(err)
	}
	e := unmarshalIndexEntry(entryBuf)
	if !e.used() {
		t.Skip("chosen pivot slot is unused in this run; adjust pivot")
	}
	e.Frame = 0
	if _, err := prov.WriteAt(e.marshal(), off); err != nil {
		t.Fatal(err)
	}

	_, err := OpenProvider(prov, ModeReadOnly)
	if !errors.Is(err, ErrFileCorrupt) {
		t.Fatalf("Open with corrupted pivot entry: err = %v, want ErrFileCorrupt", err)
	}
}

func TestEndFrameIdempotentWhenNoNewChunks(t *testing.T) {
	h := mustCreate(t, ModeReadWrite)
	if err := h.WriteChunk("a", TypeInt32, 1, 1, 0, []byte{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}
	before, _ := h.prov.Size()
	if err := h.EndFrame(); err != nil {
		t.Fatal(err)
	}
	after, _ := h.prov.Size()
	if before != after {
		t.Errorf("file size changed on no-op EndFrame: %d -> %d", before, after)
	}
	if got, want := h.GetNFrames(), uint64(2); got != want {
		t.Fatalf("GetNFrames() = %d, want %d", got, want)
	}
}
