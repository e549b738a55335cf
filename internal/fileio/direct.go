package fileio

import (
	"errors"
	"io"
	"os"

	"github.com/ncw/directio"
)

// directFile backs Options.Direct: it opens the data file with O_DIRECT,
// bypassing the OS page cache entirely. The pager is the only cache this
// engine needs, so bypassing the kernel's second cache avoids double
// buffering on write-heavy workloads. Reads/writes are rounded out to
// directio.AlignSize using an aligned scratch buffer, since O_DIRECT
// requires aligned offsets and lengths.
type directFile struct {
	f *os.File
}

func openDirectFile(path string, opts Options) (File, error) {
	flags := os.O_RDWR
	if opts.Create {
		flags |= os.O_CREATE
	}
	f, err := directio.OpenFile(path, flags, 0644)
	if err != nil {
		// directio returns a plain error on platforms without O_DIRECT
		// support; surface our own sentinel so callers can distinguish
		// "direct I/O unavailable here" from "path does not exist".
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, ErrUnsupportedPlatform
	}
	return &directFile{f: f}, nil
}

func alignUp(n int) int {
	a := directio.AlignSize
	return (n + a - 1) / a * a
}

func alignDown(n int64) int64 {
	a := int64(directio.AlignSize)
	return n / a * a
}

func (d *directFile) ReadAt(buf []byte, offset int64) (int, error) {
	start := alignDown(offset)
	pad := int(offset - start)
	want := alignUp(pad + len(buf))
	scratch := directio.AlignedBlock(want)
	n, err := d.f.ReadAt(scratch, start)
	if n < pad {
		return 0, err
	}
	avail := n - pad
	if avail > len(buf) {
		avail = len(buf)
	}
	copy(buf[:avail], scratch[pad:pad+avail])
	if err != nil {
		return avail, err
	}
	if avail < len(buf) {
		return avail, ErrEOF
	}
	return avail, nil
}

func (d *directFile) WriteAt(buf []byte, offset int64) (int, error) {
	start := alignDown(offset)
	pad := int(offset - start)
	want := alignUp(pad + len(buf))
	scratch := directio.AlignedBlock(want)
	// read-modify-write: direct I/O can only transfer whole aligned
	// blocks, so the unaligned edges of an existing block must be
	// preserved.
	if pad != 0 || want != len(buf) {
		if _, err := d.f.ReadAt(scratch, start); err != nil && !isEOFErr(err) {
			return 0, err
		}
	}
	copy(scratch[pad:pad+len(buf)], buf)
	if _, err := d.f.WriteAt(scratch, start); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func isEOFErr(err error) bool {
	return errors.Is(err, io.EOF)
}

func (d *directFile) Len() (int64, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (d *directFile) Truncate(n int64) error { return d.f.Truncate(n) }
func (d *directFile) Sync() error            { return d.f.Sync() }
func (d *directFile) SyncFull() error        { return fullsync(d.f) }
func (d *directFile) Close() error           { return d.f.Close() }
