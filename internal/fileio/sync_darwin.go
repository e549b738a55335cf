//go:build darwin

package fileio

import (
	"os"
	"syscall"
)

// fdatasync uses the stdlib's ordinary fsync; Darwin's fsync(2) does not
// guarantee the drive has actually persisted data, which is why
// F_FULLFSYNC exists for the strong variant (see fullsync below).
func fdatasync(f *os.File) error {
	return f.Sync()
}

// fullsync issues F_FULLFSYNC, the only Darwin primitive that asks the
// drive itself to flush its write cache.
func fullsync(f *os.File) error {
	_, err := syscall.FcntlInt(f.Fd(), syscall.F_FULLFSYNC, 0)
	if err != nil {
		return f.Sync()
	}
	return nil
}
