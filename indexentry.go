package gsd

import (
	"bytes"
	"encoding/binary"
)

// rawIndexEntry is the exact on-disk layout of one index entry.
// A Location of 0 marks an unused slot / the terminator of the written
// prefix.
type rawIndexEntry struct {
	Frame    uint64
	Location uint64
	N        uint64
	M        uint32
	ID       uint16
	TypeCode uint8
	Flags    uint8
	// indexEntrySize is 64 bytes; the fields above total 32 bytes, so the
	// remaining 32 bytes are reserved padding the format leaves room to
	// grow into without relocating existing entries.
	Reserved [indexEntrySize - (8 + 8 + 8 + 4 + 2 + 1 + 1)]byte
}

func init() {
	if sz := binary.Size(rawIndexEntry{}); sz != indexEntrySize {
		panic("gsd: rawIndexEntry size mismatch")
	}
}

func (e rawIndexEntry) used() bool {
	return e.Location != 0
}

func (e rawIndexEntry) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(indexEntrySize)
	_ = binary.Write(buf, binary.LittleEndian, e)
	return buf.Bytes()
}

func unmarshalIndexEntry(b []byte) rawIndexEntry {
	var e rawIndexEntry
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &e)
	return e
}

// payloadSize returns the number of payload bytes this entry describes,
// and false if the entry's type code is unknown (a separate condition from a
// valid type with zero rows/columns, which write_chunk never produces
// but a corrupt file might).
func (e rawIndexEntry) payloadSize() (int64, bool) {
	sz := SizeofType(Type(e.TypeCode))
	if sz == 0 {
		return 0, false
	}
	return int64(e.N) * int64(e.M) * int64(sz), true
}
