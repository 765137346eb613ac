package gsd

import "io"

// indexEngine is the in-memory representation of the index block. Its
// shape depends on the open mode:
//
//   - READONLY: entries are read through a read-only view (a memory map
//     when the Provider supports one, else a heap buffer read once at
//     open) covering the whole committed+allocated range.
//   - READWRITE: the whole index lives in a fixed-capacity
//     []rawIndexEntry sized to the allocation, with `used` tracking how
//     many of those slots are logically occupied.
//   - APPEND: only entries written since the last commit are held in
//     memory; committed entries are neither retained nor searchable.
type indexEngine struct {
	mode      Mode
	location  uint64
	allocated uint64
	written   uint64 // durable entry count

	view       io.ReaderAt // READONLY only; APPEND's open-time validation view is not kept
	viewCloser io.Closer

	owned []rawIndexEntry // READWRITE: len == allocated (capacity)
	used  uint64          // READWRITE: logically occupied prefix of owned

	buffered []rawIndexEntry // APPEND: uncommitted tail only
}

func (ix *indexEngine) entryAt(i uint64) rawIndexEntry {
	if ix.mode == ModeReadWrite {
		return ix.owned[i]
	}
	buf := make([]byte, indexEntrySize)
	_, _ = ix.view.ReadAt(buf, int64(i*indexEntrySize))
	return unmarshalIndexEntry(buf)
}

// numEntries is the count of entries known in memory: written plus
// whatever this mode buffers locally.
func (ix *indexEngine) numEntries() uint64 {
	switch ix.mode {
	case ModeReadWrite:
		return ix.used
	case ModeAppend:
		return ix.written + uint64(len(ix.buffered))
	default:
		return ix.written
	}
}

// append records a new entry in memory; for READWRITE it assumes the
// caller has already grown the backing array if it was full.
func (ix *indexEngine) append(e rawIndexEntry) {
	switch ix.mode {
	case ModeReadWrite:
		ix.owned[ix.used] = e
		ix.used++
	case ModeAppend:
		ix.buffered = append(ix.buffered, e)
	}
}

// full reports whether the next append would require growth: for
// READWRITE the owned buffer has no more free slots; for APPEND the
// durable-plus-buffered count would reach the on-disk allocation once
// committed.
func (ix *indexEngine) full() bool {
	switch ix.mode {
	case ModeReadWrite:
		return ix.used >= ix.allocated
	case ModeAppend:
		return ix.written+uint64(len(ix.buffered)) >= ix.allocated
	default:
		return false
	}
}

// commitEntries returns the byte-encoded tail that endFrame must write,
// and the offset to write it at.
func (ix *indexEngine) commitEntries() (offset uint64, payload []byte) {
	offset = ix.location + ix.written*indexEntrySize
	switch ix.mode {
	case ModeReadWrite:
		tail := ix.owned[ix.written:ix.used]
		payload = make([]byte, 0, len(tail)*indexEntrySize)
		for _, e := range tail {
			payload = append(payload, e.marshal()...)
		}
	case ModeAppend:
		payload = make([]byte, 0, len(ix.buffered)*indexEntrySize)
		for _, e := range ix.buffered {
			payload = append(payload, e.marshal()...)
		}
	}
	return offset, payload
}

// markCommitted folds the written-but-unflushed tail into the durable
// count once it has actually been synced to disk.
func (ix *indexEngine) markCommitted() {
	ix.written = ix.numEntries()
	if ix.mode == ModeAppend {
		ix.buffered = ix.buffered[:0]
	}
}

// lookup finds the rightmost entry with frame <= targetFrame and then
// scans leftward for a matching id. Only meaningful for READONLY
// and READWRITE handles; APPEND handles must reject lookups before
// calling this (its view is discarded after open-time validation).
func (ix *indexEngine) lookup(targetFrame uint64, id uint16) (rawIndexEntry, bool) {
	n := ix.numEntries()
	if n == 0 {
		return rawIndexEntry{}, false
	}
	lo, hi := uint64(0), n // search [lo, hi)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if ix.entryAt(mid).Frame <= targetFrame {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return rawIndexEntry{}, false
	}
	i := lo - 1
	frame := ix.entryAt(i).Frame
	for {
		e := ix.entryAt(i)
		if e.Frame != frame {
			break
		}
		if e.ID == id {
			return e, true
		}
		if i == 0 {
			break
		}
		i--
	}
	return rawIndexEntry{}, false
}

// grow relocates the index to a new, larger allocation in memory. The
// caller (Handle) is responsible for the on-disk relocation and header
// update before calling this, since durability ordering spans
// more than the index alone.
func (ix *indexEngine) grow(newAllocated, newLocation uint64) {
	if ix.mode == ModeReadWrite {
		grown := make([]rawIndexEntry, newAllocated)
		copy(grown, ix.owned[:ix.used])
		ix.owned = grown
	}
	ix.allocated = newAllocated
	ix.location = newLocation
}
