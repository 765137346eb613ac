package gsd

// Mode selects a handle's in-memory representation and the operations
// it permits.
type Mode int

const (
	// ModeReadOnly maps (or, failing that, buffers) the index read-only
	// and never writes.
	ModeReadOnly Mode = iota
	// ModeReadWrite keeps the whole index and name list in RAM and
	// supports WriteChunk, EndFrame, Truncate and lookups.
	ModeReadWrite
	// ModeAppend keeps only the uncommitted tail of the index in RAM; it
	// supports WriteChunk and EndFrame but rejects FindChunk/ReadChunk.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "read-only"
	case ModeReadWrite:
		return "read-write"
	case ModeAppend:
		return "append"
	default:
		return "invalid"
	}
}

func (m Mode) writable() bool {
	return m == ModeReadWrite || m == ModeAppend
}

func (m Mode) readable() bool {
	return m == ModeReadOnly || m == ModeReadWrite
}
