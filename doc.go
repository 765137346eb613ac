// Package gsd implements the General Simulation Data (GSD) container
// format: an append-oriented, frame-structured binary file for
// time-series of named, typed, rectangular numeric arrays ("chunks").
//
// A GSD file is written by a single writer and may be read by many
// concurrent readers. Frames are committed atomically by EndFrame;
// chunks written after the last EndFrame call are not yet durable and
// are not visible to readers, including the writer itself reopening the
// file.
//
// The package owns the on-disk layout, the in-memory name and index
// tables, and the validation performed when a file is opened. It does
// not know about any particular array encoding beyond the fixed set of
// numeric type codes in this package; marshalling richer values (e.g.
// quaternions, compound records) is left to callers.
package gsd
