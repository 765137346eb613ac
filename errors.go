package gsd

import (
	"errors"

	"golang.org/x/xerrors"
)

// Sentinel errors, one per entry of the taxonomy in the format's error
// handling design. Callers compare with errors.Is; wrapped occurrences
// still satisfy it because every wrap below goes through %w.
var (
	ErrIO                     = errors.New("gsd: i/o error")
	ErrNotAGSDFile            = errors.New("gsd: not a GSD file")
	ErrInvalidVersion         = errors.New("gsd: invalid gsd file version")
	ErrFileCorrupt            = errors.New("gsd: file is corrupt")
	ErrMemoryAllocationFailed = errors.New("gsd: memory allocation failed")
	ErrNameListFull           = errors.New("gsd: name list is full")
	ErrFileMustBeWritable     = errors.New("gsd: file must be writable")
	ErrFileMustBeReadable     = errors.New("gsd: file must be readable")
	ErrInvalidArgument        = errors.New("gsd: invalid argument")
)

// wrapf wraps err with op and sentinel so that errors.Is(result, sentinel)
// holds. The underlying err is folded into the message rather than
// chained with a second %w: xerrors.Errorf only threads one %w verb.
func wrapf(sentinel error, op string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %v: %w", op, err, sentinel)
}

// mark returns sentinel annotated with op, with no further wrapped cause.
func mark(sentinel error, op string) error {
	return xerrors.Errorf("%s: %w", op, sentinel)
}
