package gsd

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/gsd-format/gsd/internal/gsdio"
)

// ChunkEntry is a read-only reference to one committed index entry,
// returned by FindChunk and consumed by ReadChunk. Its zero value
// is never returned to callers; the not-found case is reported with ok
// == false instead of a null/sentinel entry.
type ChunkEntry struct {
	Frame uint64
	Type  Type
	N     uint64
	M     uint32

	location uint64
}

// Size returns the payload size in bytes this entry describes.
func (e ChunkEntry) Size() int64 {
	sz := SizeofType(e.Type)
	return int64(e.N) * int64(e.M) * int64(sz)
}

// Handle is an open GSD file. It is not safe for concurrent use by
// multiple goroutines: every public operation on a given handle is
// expected to be called from one thread at a time.
type Handle struct {
	prov Provider
	mode Mode
	path string // empty when opened over a bare Provider

	application string
	schema      string

	header    rawHeader
	fileSize  int64
	names     *nameTable
	index     *indexEngine
	curFrame  uint64
	closed    bool
}

// Create initializes a new GSD file at path and closes it. Use
// CreateAndOpen to create and keep a handle open.
func Create(path, application, schema string, schemaVersion uint32) error {
	f, err := gsdio.Open(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapf(ErrIO, "create", err)
	}
	if err := initializeFile(f, application, schema, schemaVersion); err != nil {
		f.Close()
		return err
	}
	return wrapf(ErrIO, "create", f.Close())
}

// CreateAndOpen creates path (failing if it already exists when
// exclusive is true) and returns it open in mode.
func CreateAndOpen(path, application, schema string, schemaVersion uint32, mode Mode, exclusive bool) (*Handle, error) {
	flag := os.O_RDWR | os.O_CREATE | os.O_TRUNC
	if exclusive {
		flag |= os.O_EXCL
	}
	f, err := gsdio.Open(path, flag, 0o644)
	if err != nil {
		return nil, wrapf(ErrIO, "create_and_open", err)
	}
	if err := initializeFile(f, application, schema, schemaVersion); err != nil {
		f.Close()
		return nil, err
	}
	h, err := openProvider(f, path, mode)
	if err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

// Open opens an existing GSD file at path in mode.
func Open(path string, mode Mode) (*Handle, error) {
	flag := os.O_RDONLY
	if mode != ModeReadOnly {
		flag = os.O_RDWR
	}
	f, err := gsdio.Open(path, flag, 0)
	if err != nil {
		return nil, wrapf(ErrIO, "open", err)
	}
	h, err := openProvider(f, path, mode)
	if err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

// OpenProvider opens mode over an already-initialized Provider (a file
// created with Create, or an in-memory gsdio.Memory populated by
// initializeFile). This dependency-injection seam sits alongside the
// path-only Open/Create API so tests and embedders can use gsd against
// non-file backing stores.
func OpenProvider(prov Provider, mode Mode) (*Handle, error) {
	return openProvider(prov, "", mode)
}

// initializeFile writes a zeroed header plus empty index and name-list
// blocks to an already-open Provider and syncs them.
func initializeFile(prov Provider, application, schema string, schemaVersion uint32) error {
	h := rawHeader{
		Magic:                    magicValue,
		Version:                  CurrentVersion,
		SchemaVersion:            schemaVersion,
		IndexLocation:            headerSize,
		IndexAllocatedEntries:    initialIndexEntries,
		NamelistLocation:         headerSize + initialIndexEntries*indexEntrySize,
		NamelistAllocatedEntries: initialNameListEntries,
	}
	putFixedString(h.Application[:], application)
	putFixedString(h.Schema[:], schema)

	if err := writeZeros(prov, int64(h.IndexLocation), int64(initialIndexEntries*indexEntrySize)); err != nil {
		return wrapf(ErrIO, "create: zero index", err)
	}
	if err := writeZeros(prov, int64(h.NamelistLocation), int64(initialNameListEntries*nameSize)); err != nil {
		return wrapf(ErrIO, "create: zero name list", err)
	}
	if _, err := prov.WriteAt(h.marshal(), 0); err != nil {
		return wrapf(ErrIO, "create: write header", err)
	}
	if err := prov.Sync(); err != nil {
		return wrapf(ErrIO, "create: sync", err)
	}
	return nil
}

func writeZeros(prov Provider, offset, length int64) error {
	buf := make([]byte, appendCopyBufferSize)
	for length > 0 {
		n := int64(len(buf))
		if n > length {
			n = length
		}
		if _, err := prov.WriteAt(buf[:n], offset); err != nil {
			return err
		}
		offset += n
		length -= n
	}
	return nil
}

// openProvider validates the header, builds the mode-specific in-memory
// index and name table, and runs open-time validation.
func openProvider(prov Provider, path string, mode Mode) (*Handle, error) {
	hdrBuf := make([]byte, headerSize)
	if _, err := prov.ReadAt(hdrBuf, 0); err != nil {
		return nil, mark(ErrNotAGSDFile, "open: read header")
	}
	hdr, err := unmarshalHeader(hdrBuf)
	if err != nil {
		return nil, err
	}

	fileSize, err := prov.Size()
	if err != nil {
		return nil, wrapf(ErrIO, "open: stat", err)
	}

	h := &Handle{
		prov:        prov,
		mode:        mode,
		path:        path,
		application: fixedString(hdr.Application[:]),
		schema:      fixedString(hdr.Schema[:]),
		header:      *hdr,
		fileSize:    fileSize,
	}

	// Name list is always read fully into memory: it is small.
	nlBytes := hdr.NamelistAllocatedEntries * nameSize
	if hdr.NamelistLocation+nlBytes > uint64(fileSize) {
		return nil, mark(ErrFileCorrupt, "open: name list exceeds file size")
	}
	nlBuf := make([]byte, nlBytes)
	if _, err := prov.ReadAt(nlBuf, int64(hdr.NamelistLocation)); err != nil {
		return nil, wrapf(ErrIO, "open: read name list", err)
	}
	h.names = newNameTable(nlBuf, hdr.NamelistAllocatedEntries, mode.writable())

	ix, err := buildIndex(prov, hdr, mode, fileSize, h.names.numEntries)
	if err != nil {
		return nil, err
	}
	h.index = ix

	n := ix.numEntries()
	switch {
	case n == 0:
		h.curFrame = 0
	case mode == ModeAppend:
		// The append-mode index keeps no view of committed entries, so the
		// last one is read back from the provider.
		b := make([]byte, indexEntrySize)
		if _, err := prov.ReadAt(b, int64(hdr.IndexLocation+(n-1)*indexEntrySize)); err != nil {
			return nil, wrapf(ErrIO, "open: read last index entry", err)
		}
		h.curFrame = unmarshalIndexEntry(b).Frame + 1
	default:
		h.curFrame = ix.entryAt(n-1).Frame + 1
	}

	return h, nil
}

// buildIndex constructs the mode-specific in-memory index and runs
// open-time validation.
func buildIndex(prov Provider, hdr *rawHeader, mode Mode, fileSize int64, namesCommitted uint64) (*indexEngine, error) {
	if hdr.IndexLocation+hdr.IndexAllocatedEntries*indexEntrySize > uint64(fileSize) {
		return nil, mark(ErrFileCorrupt, "open: index exceeds file size")
	}

	ix := &indexEngine{mode: mode, location: hdr.IndexLocation, allocated: hdr.IndexAllocatedEntries}

	var view interface {
		ReadAt(p []byte, off int64) (int, error)
	}
	var closer interface{ Close() error }

	if mapper, ok := prov.(Mapper); ok {
		r, c, err := mapper.Mmap(int64(hdr.IndexLocation))
		if err != nil {
			return nil, wrapf(ErrIO, "open: mmap index", err)
		}
		view, closer = r, c
	} else {
		buf := make([]byte, hdr.IndexAllocatedEntries*indexEntrySize)
		if _, err := prov.ReadAt(buf, int64(hdr.IndexLocation)); err != nil {
			return nil, wrapf(ErrIO, "open: read index", err)
		}
		view = bytesReaderAt(buf)
	}

	numEntries, err := validateIndex(hdr.IndexAllocatedEntries, func(i uint64) rawIndexEntry {
		b := make([]byte, indexEntrySize)
		_, _ = view.ReadAt(b, int64(i*indexEntrySize))
		return unmarshalIndexEntry(b)
	}, namesCommitted, fileSize)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	switch mode {
	case ModeReadOnly:
		ix.view = view
		ix.viewCloser = closer
		ix.written = numEntries
	case ModeAppend:
		// Transient view only used for validation above; not retained.
		if closer != nil {
			closer.Close()
		}
		ix.written = numEntries
		ix.buffered = nil
	case ModeReadWrite:
		if closer != nil {
			closer.Close()
		}
		owned := make([]rawIndexEntry, hdr.IndexAllocatedEntries)
		for i := uint64(0); i < numEntries; i++ {
			b := make([]byte, indexEntrySize)
			_, _ = view.ReadAt(b, int64(i*indexEntrySize))
			owned[i] = unmarshalIndexEntry(b)
		}
		ix.owned = owned
		ix.used = numEntries
		ix.written = numEntries
	}

	return ix, nil
}

// bytesReaderAt adapts a byte slice read once at open time into the
// ReadAt shape buildIndex and indexEngine.entryAt expect.
type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, b[off:])
	return n, nil
}

// isEntryValid reports whether a single index entry is internally
// consistent: known type, payload within the file, frame within the
// allocated range, id within the committed name count, and zero flags.
func isEntryValid(e rawIndexEntry, allocated, namesCommitted uint64, fileSize int64) bool {
	if e.Flags != 0 {
		return false
	}
	size, ok := e.payloadSize()
	if !ok {
		return false
	}
	if e.Location == 0 {
		return false
	}
	if e.Location+uint64(size) > uint64(fileSize) {
		return false
	}
	if e.Frame >= allocated {
		return false
	}
	if uint64(e.ID) >= namesCommitted {
		return false
	}
	return true
}

// validateIndex implements the open-time binary-search corruption check
// only pivot entries visited during the binary search for the first
// unused slot are examined, giving O(log N) cost.
func validateIndex(allocated uint64, entryAt func(uint64) rawIndexEntry, namesCommitted uint64, fileSize int64) (numEntries uint64, err error) {
	e0 := entryAt(0)
	if !e0.used() {
		return 0, nil
	}
	if !isEntryValid(e0, allocated, namesCommitted, fileSize) {
		return 0, mark(ErrFileCorrupt, "open: index entry 0 invalid")
	}

	lo, hi := uint64(0), allocated // lo: last known-used+valid index; hi: virtual unused boundary
	lowFrame := e0.Frame
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		e := entryAt(mid)
		if !e.used() {
			hi = mid
			continue
		}
		if !isEntryValid(e, allocated, namesCommitted, fileSize) {
			return 0, mark(ErrFileCorrupt, "open: index entry invalid at pivot")
		}
		if e.Frame < lowFrame {
			return 0, mark(ErrFileCorrupt, "open: index frame not monotonic at pivot")
		}
		lowFrame = e.Frame
		lo = mid
	}
	return hi, nil
}

// Close releases the handle's resources. Idempotent.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.index != nil && h.index.viewCloser != nil {
		h.index.viewCloser.Close()
	}
	return wrapf(ErrIO, "close", h.prov.Close())
}

// GetNFrames reports how many frames have completed end_frame.
func (h *Handle) GetNFrames() uint64 {
	return h.curFrame
}

// Application returns the application string recorded at creation.
func (h *Handle) Application() string { return h.application }

// Schema returns the schema string recorded at creation.
func (h *Handle) Schema() string { return h.schema }

// SchemaVersion returns the packed schema version recorded at creation.
func (h *Handle) SchemaVersion() uint32 { return h.header.SchemaVersion }

// Version returns the packed file-format version the file was written
// with.
func (h *Handle) Version() uint32 { return h.header.Version }

// WriteChunk appends a payload and buffers its index entry in memory
// The payload itself is written synchronously but not fsynced; only
// EndFrame commits the index entry that makes it reachable.
func (h *Handle) WriteChunk(name string, typ Type, n uint64, m uint32, flags uint8, data []byte) error {
	if !h.mode.writable() {
		return mark(ErrFileMustBeWritable, "write_chunk")
	}
	if n == 0 || m == 0 {
		return mark(ErrInvalidArgument, "write_chunk: N and M must be nonzero")
	}
	if flags != 0 {
		return mark(ErrInvalidArgument, "write_chunk: flags must be zero")
	}
	sz := SizeofType(typ)
	if sz == 0 {
		return mark(ErrInvalidArgument, "write_chunk: unknown type")
	}
	want := n * uint64(m) * uint64(sz)
	if uint64(len(data)) != want {
		return mark(ErrInvalidArgument, "write_chunk: data length does not match N*M*sizeof(type)")
	}

	id := h.names.lookup(name)
	if id == noSuchID {
		newID, err := h.names.append(name)
		if err != nil {
			return err
		}
		id = newID
	}

	location := h.fileSize
	if _, err := h.prov.WriteAt(data, location); err != nil {
		return wrapf(ErrIO, "write_chunk: write payload", err)
	}
	h.fileSize += int64(want)

	if h.index.full() {
		if err := h.growIndex(); err != nil {
			return err
		}
	}

	h.index.append(rawIndexEntry{
		Frame:    h.curFrame,
		Location: uint64(location),
		N:        n,
		M:        m,
		ID:       id,
		TypeCode: uint8(typ),
		Flags:    flags,
	})
	return nil
}

// growIndex relocates the index to double its allocation. The new
// block is written and fsynced, then the header is rewritten and
// fsynced; only after both syncs does the handle consider the larger
// index durable.
func (h *Handle) growIndex() error {
	oldAllocated := h.index.allocated
	newAllocated := oldAllocated * 2
	newLocation := uint64(h.fileSize)
	newBytes := newAllocated * indexEntrySize

	if err := writeZeros(h.prov, int64(newLocation), int64(newBytes)); err != nil {
		return wrapf(ErrIO, "grow index: zero new block", err)
	}

	switch h.mode {
	case ModeReadWrite:
		tail := h.index.owned[:h.index.written]
		buf := make([]byte, 0, len(tail)*indexEntrySize)
		for _, e := range tail {
			buf = append(buf, e.marshal()...)
		}
		if len(buf) > 0 {
			if _, err := h.prov.WriteAt(buf, int64(newLocation)); err != nil {
				return wrapf(ErrIO, "grow index: copy committed entries", err)
			}
		}
	case ModeAppend:
		if err := copyThroughBuffer(h.prov, int64(h.index.location), int64(newLocation), int64(h.index.written*indexEntrySize)); err != nil {
			return wrapf(ErrIO, "grow index: relocate committed entries", err)
		}
	}

	if err := h.prov.Sync(); err != nil {
		return wrapf(ErrIO, "grow index: sync new block", err)
	}

	h.fileSize += int64(newBytes)

	h.header.IndexLocation = newLocation
	h.header.IndexAllocatedEntries = newAllocated
	if _, err := h.prov.WriteAt(h.header.marshal(), 0); err != nil {
		return wrapf(ErrIO, "grow index: write header", err)
	}
	if err := h.prov.Sync(); err != nil {
		return wrapf(ErrIO, "grow index: sync header", err)
	}

	h.index.grow(newAllocated, newLocation)
	return nil
}

// copyThroughBuffer relocates length bytes from src to dst through a
// bounded intermediate buffer.
func copyThroughBuffer(prov Provider, src, dst, length int64) error {
	buf := make([]byte, appendCopyBufferSize)
	var off int64
	for off < length {
		n := int64(len(buf))
		if n > length-off {
			n = length - off
		}
		if _, err := prov.ReadAt(buf[:n], src+off); err != nil {
			return err
		}
		if _, err := prov.WriteAt(buf[:n], dst+off); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// EndFrame commits the current frame's buffered index entries and any
// newly appended names, then advances to the next frame.
func (h *Handle) EndFrame() error {
	if !h.mode.writable() {
		return mark(ErrFileMustBeWritable, "end_frame")
	}

	offset, payload := h.index.commitEntries()
	if len(payload) > 0 {
		if _, err := h.prov.WriteAt(payload, int64(offset)); err != nil {
			return wrapf(ErrIO, "end_frame: write index", err)
		}
		if err := h.prov.Sync(); err != nil {
			return wrapf(ErrIO, "end_frame: sync index", err)
		}
	}
	h.index.markCommitted()

	if h.names.hasPending() {
		off, length := h.names.pendingRange()
		if _, err := h.prov.WriteAt(h.names.raw[off:off+length], int64(off)); err != nil {
			return wrapf(ErrIO, "end_frame: write names", err)
		}
		if err := h.prov.Sync(); err != nil {
			return wrapf(ErrIO, "end_frame: sync names", err)
		}
		h.names.commitDone()
	}

	h.curFrame++
	return nil
}

// FindChunk resolves (frame, name) to a read-only entry.
func (h *Handle) FindChunk(frame uint64, name string) (ChunkEntry, bool) {
	if h.mode == ModeAppend {
		return ChunkEntry{}, false
	}
	id := h.names.lookup(name)
	if id == noSuchID {
		return ChunkEntry{}, false
	}
	e, ok := h.index.lookup(frame, id)
	if !ok {
		return ChunkEntry{}, false
	}
	return ChunkEntry{
		Frame:    e.Frame,
		Type:     Type(e.TypeCode),
		N:        e.N,
		M:        e.M,
		location: e.Location,
	}, true
}

// ReadChunk reads entry's payload into dest, which must be exactly
// entry.Size() bytes long.
func (h *Handle) ReadChunk(entry ChunkEntry, dest []byte) error {
	if h.mode == ModeAppend {
		return mark(ErrFileMustBeReadable, "read_chunk")
	}
	size := entry.Size()
	if size == 0 && SizeofType(entry.Type) == 0 {
		return mark(ErrInvalidArgument, "read_chunk: unknown type")
	}
	if entry.location == 0 {
		return mark(ErrFileCorrupt, "read_chunk: zero location")
	}
	if int64(len(dest)) != size {
		return mark(ErrInvalidArgument, "read_chunk: destination size mismatch")
	}
	if entry.location+uint64(size) > uint64(h.fileSize) {
		return mark(ErrFileCorrupt, "read_chunk: payload exceeds file size")
	}
	n, err := h.prov.ReadAt(dest, int64(entry.location))
	if err != nil && int64(n) < size && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		return wrapf(ErrFileCorrupt, "read_chunk: end of file mid-read", err)
	}
	if err != nil {
		return wrapf(ErrIO, "read_chunk", err)
	}
	if int64(n) != size {
		return mark(ErrIO, "read_chunk: short read")
	}
	return nil
}

// FindMatchingChunkName drives the prefix-enumeration cursor: pass ""
// as prev to start, and the previously returned name thereafter.
func (h *Handle) FindMatchingChunkName(prefix, prev string) (string, bool) {
	return h.names.matchingName(prefix, prev)
}

// ChunkNames drives FindMatchingChunkName to completion and returns all
// committed names with the given prefix in sorted order.
func (h *Handle) ChunkNames(prefix string) []string {
	var names []string
	prev := ""
	for {
		name, ok := h.names.matchingName(prefix, prev)
		if !ok {
			return names
		}
		names = append(names, name)
		prev = name
	}
}

// Truncate frees in-memory structures and re-initializes the file,
// preserving application/schema metadata, then re-opens it.
func (h *Handle) Truncate() error {
	if !h.mode.writable() {
		return mark(ErrFileMustBeWritable, "truncate")
	}
	if h.index.viewCloser != nil {
		h.index.viewCloser.Close()
	}
	if err := h.prov.Truncate(0); err != nil {
		return wrapf(ErrIO, "truncate", err)
	}
	if err := initializeFile(h.prov, h.application, h.schema, h.header.SchemaVersion); err != nil {
		return err
	}
	reopened, err := openProvider(h.prov, h.path, h.mode)
	if err != nil {
		return err
	}
	*h = *reopened
	return nil
}

// DeepValidate scans every committed index entry rather than only the
// binary-search pivots examined at open.
func (h *Handle) DeepValidate(ctx context.Context) error {
	n := h.index.written
	if n == 0 {
		return nil
	}

	const workers = 8
	var g errgroup.Group
	chunk := (n + workers - 1) / workers
	namesCommitted := h.names.numEntries

	for w := uint64(0); w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		start, end := start, end
		g.Go(func() error {
			var prevFrame uint64
			if start > 0 {
				// Seed with the preceding shard's last frame so monotonicity
				// is also checked across the boundary between shards.
				prevFrame = h.index.entryAt(start - 1).Frame
			}
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				e := h.index.entryAt(i)
				if !isEntryValid(e, h.index.allocated, namesCommitted, h.fileSize) {
					return mark(ErrFileCorrupt, "deep_validate: entry invalid")
				}
				if (i > start || start > 0) && e.Frame < prevFrame {
					return mark(ErrFileCorrupt, "deep_validate: frame not monotonic")
				}
				prevFrame = e.Frame
			}
			return nil
		})
	}
	return g.Wait()
}
