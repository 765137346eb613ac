// Package gsdio implements the platform I/O primitives the GSD core
// engine consumes through the gsd.Provider/gsd.Mapper seam: positional
// read/write with the retry loop large transfers need, fsync, truncate,
// and an optional read-only memory map.
package gsdio

import (
	"io"
	"os"

	"golang.org/x/exp/mmap"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// File is a gsd.Provider backed by a real file on disk.
type File struct {
	f    *os.File
	path string
}

// Open opens path with the given os.OpenFile flags and permissions.
func Open(path string, flag int, perm os.FileMode) (*File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &File{f: f, path: path}, nil
}

// maxIOBytes bounds a single pread/pwrite transfer. Some platforms
// reject or truncate transfers larger than ~2GiB in a single syscall;
// splitting here keeps ReadAt/WriteAt correct regardless of the host's
// actual limit.
const maxIOBytes = 1 << 30

// ReadAt implements io.ReaderAt by looping pread(2) until the buffer is
// full, a terminal error occurs, or EOF is reached mid-read (which is a
// caller-visible io.ErrUnexpectedEOF — the core engine reports a chunk
// read that hits end of file as corruption).
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	fd := int(f.f.Fd())
	var total int
	for total < len(p) {
		want := len(p) - total
		if want > maxIOBytes {
			want = maxIOBytes
		}
		n, err := unix.Pread(fd, p[total:total+want], off+int64(total))
		if n > 0 {
			total += n
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, xerrors.Errorf("pread: %w", err)
		}
		if n == 0 {
			if total == len(p) {
				return total, nil
			}
			return total, io.ErrUnexpectedEOF
		}
	}
	return total, nil
}

// WriteAt implements io.WriterAt by looping pwrite(2) until the whole
// buffer is accepted. Regular files never legitimately short-write, but
// the loop guards against EINTR and the platform transfer cap anyway.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	fd := int(f.f.Fd())
	var total int
	for total < len(p) {
		want := len(p) - total
		if want > maxIOBytes {
			want = maxIOBytes
		}
		n, err := unix.Pwrite(fd, p[total:total+want], off+int64(total))
		if n > 0 {
			total += n
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, xerrors.Errorf("pwrite: %w", err)
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// Truncate sets the file's length, zero-extending if size is larger
// than the current length.
func (f *File) Truncate(size int64) error {
	return f.f.Truncate(size)
}

// Sync fsyncs the file, blocking until the data is durable on the
// backing device.
func (f *File) Sync() error {
	return f.f.Sync()
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Close closes the underlying file descriptor.
func (f *File) Close() error {
	return f.f.Close()
}

// mappedRegion adapts a whole-file read-only mmap.ReaderAt to the
// offset the caller asked for, and owns unmapping on Close.
type mappedRegion struct {
	ra     *mmap.ReaderAt
	offset int64
}

func (m *mappedRegion) ReadAt(p []byte, off int64) (int, error) {
	return m.ra.ReadAt(p, m.offset+off)
}

func (m *mappedRegion) Close() error {
	return m.ra.Close()
}

// Mmap implements gsd.Mapper. golang.org/x/exp/mmap only knows how to
// map a whole file by path, so the returned view is shifted by offset
// rather than mapping a sub-range directly.
func (f *File) Mmap(offset int64) (io.ReaderAt, io.Closer, error) {
	ra, err := mmap.Open(f.path)
	if err != nil {
		return nil, nil, err
	}
	region := &mappedRegion{ra: ra, offset: offset}
	return region, region, nil
}
