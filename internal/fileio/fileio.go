// Package fileio provides a small positioned-I/O abstraction over the
// database's regular files. It is the only layer that talks to the
// operating system directly; everything above it (WAL, pager) treats
// files as an unbuffered byte-addressable surface.
package fileio

import (
	"errors"
	"io"
	"os"
)

// ErrUnsupportedPlatform is returned by backends that cannot honor a
// requested operation (e.g. byte-range locking or direct I/O) on the
// current platform, rather than silently degrading to a no-op.
var ErrUnsupportedPlatform = errors.New("fileio: unsupported on this platform")

// ErrEOF is returned by ReadAt when the read starts at or beyond the
// current end of file.
var ErrEOF = io.EOF

// File is the positioned-I/O contract every layer above fileio relies on.
// Reads and writes are unbuffered; callers are responsible for any
// caching (the pager is the only cache in the system).
type File interface {
	// ReadAt reads len(buf) bytes starting at offset. A short read past
	// EOF returns ErrEOF.
	ReadAt(buf []byte, offset int64) (int, error)
	// WriteAt writes buf at offset, extending the file if necessary.
	WriteAt(buf []byte, offset int64) (int, error)
	// Len returns the current file size in bytes.
	Len() (int64, error)
	// Truncate resizes the file to exactly n bytes.
	Truncate(n int64) error
	// Sync flushes data to stable storage. On platforms that distinguish
	// a light sync from a full sync, Sync performs the light variant
	// (fdatasync-equivalent).
	Sync() error
	// SyncFull performs the strongest durability barrier the platform
	// offers (F_FULLFSYNC on Darwin, fsync elsewhere).
	SyncFull() error
	// Close releases the underlying OS handle.
	Close() error
}

// Options controls how Open constructs a File backend.
type Options struct {
	// Direct requests an O_DIRECT-backed backend where supported. When
	// the platform or build does not support direct I/O, Open returns
	// ErrUnsupportedPlatform rather than silently falling back, so
	// callers that asked for it can decide how to react.
	Direct bool
	// Create creates the file if it does not already exist.
	Create bool
}

// Open opens path according to opts, returning the appropriate backend.
func Open(path string, opts Options) (File, error) {
	if opts.Direct {
		return openDirectFile(path, opts)
	}
	flags := os.O_RDWR
	if opts.Create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

// osFile is the default File backend, a thin wrapper over *os.File that
// adds the full-sync/light-sync distinction via build-tagged helpers.
type osFile struct {
	f *os.File
}

func (o *osFile) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := o.f.ReadAt(buf, offset)
	if err != nil && errors.Is(err, io.EOF) && n == len(buf) {
		// A full read that also reports io.EOF (read ended exactly at
		// EOF) is not an error condition for our callers.
		return n, nil
	}
	return n, err
}

func (o *osFile) WriteAt(buf []byte, offset int64) (int, error) {
	return o.f.WriteAt(buf, offset)
}

func (o *osFile) Len() (int64, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (o *osFile) Truncate(n int64) error {
	return o.f.Truncate(n)
}

func (o *osFile) Sync() error {
	return fdatasync(o.f)
}

func (o *osFile) SyncFull() error {
	return fullsync(o.f)
}

func (o *osFile) Close() error {
	return o.f.Close()
}
