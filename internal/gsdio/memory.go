package gsdio

import (
	"io"
	"sync"

	"github.com/orcaman/writerseeker"
)

// Memory is a gsd.Provider backed by an in-memory buffer instead of a
// file. It does not implement gsd.Mapper, so the core engine falls back
// to reading index/name-list regions into a heap buffer, matching the
// documented behavior for Providers without a real mapping.
//
// github.com/orcaman/writerseeker only exposes sequential Write/Seek, no
// positional ReadAt/WriteAt, so WriteAt here performs the save-cursor,
// seek, transfer, restore-cursor emulation the format's design notes
// call out as what positional I/O requires on platforms (or, here,
// backing stores) lacking it natively.
type Memory struct {
	mu   sync.Mutex
	ws   *writerseeker.WriterSeeker
	size int64
}

// NewMemory returns an empty in-memory Provider.
func NewMemory() *Memory {
	return &Memory{ws: &writerseeker.WriterSeeker{}}
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ws.BytesReader().ReadAt(p, off)
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err := m.ws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := m.ws.Write(p)
	if _, serr := m.ws.Seek(cur, io.SeekStart); err == nil && serr != nil {
		err = serr
	}
	if end := off + int64(n); end > m.size {
		m.size = end
	}
	return n, err
}

// Truncate sets the buffer's length, zero-extending on growth. Shrinking
// below the current size copies out the retained prefix. The core engine
// only ever invokes it with size 0 (gsd's Truncate); index relocation
// grows the buffer through WriteAt instead.
func (m *Memory) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case size == 0:
		m.ws = &writerseeker.WriterSeeker{}
	case size > m.size:
		pad := make([]byte, size-m.size)
		if _, err := m.ws.Seek(m.size, io.SeekStart); err != nil {
			return err
		}
		if _, err := m.ws.Write(pad); err != nil {
			return err
		}
	default:
		buf := make([]byte, size)
		if _, err := m.ws.BytesReader().ReadAt(buf, 0); err != nil && err != io.EOF {
			return err
		}
		nws := &writerseeker.WriterSeeker{}
		if _, err := nws.Write(buf); err != nil {
			return err
		}
		m.ws = nws
	}
	m.size = size
	return nil
}

func (m *Memory) Sync() error {
	return nil
}

func (m *Memory) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size, nil
}

func (m *Memory) Close() error {
	return nil
}
