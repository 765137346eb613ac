package gsd

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/xerrors"
)

// On-disk constants from the format's external interface.
const (
	magicValue uint64 = 0x65DF65DF65DF65DF

	// headerSize is the fixed size in bytes of the header block.
	headerSize = 256

	// nameSize is the fixed size of one name-list entry and of the
	// application/schema strings embedded in the header: 63 bytes of text
	// plus a mandatory NUL terminator.
	nameSize   = 64
	maxNameLen = nameSize - 1

	// indexEntrySize is the fixed size in bytes of one index entry.
	indexEntrySize = 64

	initialIndexEntries    = 128
	initialNameListEntries = 65535

	// appendCopyBufferSize bounds the buffer used to relocate the index
	// through a stream of reads and writes in APPEND mode.
	appendCopyBufferSize = 16 * 1024

	// noSuchID is returned by name lookups that find nothing.
	noSuchID = 0xFFFF
)

// Version constants. MakeVersion packs a major.minor pair the way the
// header stores it.
const (
	legacyVersion  uint32 = 0x00003 // 0.3
	minVersionV1   uint32 = 0x10000
	maxVersionExcl uint32 = 0x20000

	// CurrentVersion is the version written by Create.
	CurrentVersion uint32 = minVersionV1
)

// MakeVersion packs a major/minor pair into the on-disk version
// representation: (major << 16) | minor.
func MakeVersion(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

func versionAccepted(v uint32) bool {
	return v == legacyVersion || (v >= minVersionV1 && v < maxVersionExcl)
}

// rawHeader is the exact on-disk layout of the first headerSize bytes of
// a GSD file. All integers are little-endian; encoding/binary enforces
// that directly since the host is assumed little-endian-compatible for
// this format (as the real container format is).
type rawHeader struct {
	Magic                    uint64
	Version                  uint32
	Application              [nameSize]byte
	Schema                   [nameSize]byte
	SchemaVersion            uint32
	IndexLocation            uint64
	IndexAllocatedEntries    uint64
	NamelistLocation         uint64
	NamelistAllocatedEntries uint64
	Reserved                 [headerSize - (8 + 4 + nameSize + nameSize + 4 + 8 + 8 + 8 + 8)]byte
}

func init() {
	if sz := binary.Size(rawHeader{}); sz != headerSize {
		panic(xerrors.Errorf("gsd: rawHeader size is %d, want %d", sz, headerSize))
	}
}

func putFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	copy(dst, s)
}

func fixedString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

func (h *rawHeader) marshal() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(headerSize)
	// binary.Write never fails for a fixed-layout struct of this shape.
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

func unmarshalHeader(b []byte) (*rawHeader, error) {
	if len(b) < headerSize {
		return nil, mark(ErrNotAGSDFile, "read header: short read")
	}
	var h rawHeader
	if err := binary.Read(bytes.NewReader(b[:headerSize]), binary.LittleEndian, &h); err != nil {
		return nil, wrapf(ErrIO, "read header", err)
	}
	if h.Magic != magicValue {
		return nil, mark(ErrNotAGSDFile, "read header: magic mismatch")
	}
	if !versionAccepted(h.Version) {
		return nil, mark(ErrInvalidVersion, "read header")
	}
	return &h, nil
}

// HasMagic reports whether b begins with the GSD magic number. It lets
// a caller holding fewer than headerSize bytes of a candidate file (e.g.
// a streaming HTTP download) sanity-check it without building a full
// rawHeader.
func HasMagic(b []byte) bool {
	return len(b) >= 8 && binary.LittleEndian.Uint64(b) == magicValue
}
