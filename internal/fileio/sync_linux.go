//go:build linux

package fileio

import "os"

// fdatasync performs the "light sync" variant: flush data (and only the
// metadata needed to read it back) without the stronger barrier fsync
// offers. Linux exposes fdatasync via File.Sync's underlying syscall is
// actually fsync in the stdlib, so we fall back to Sync() here — the
// distinction that matters for this spec is Linux (fdatasync/fsync, no
// real difference in ordering guarantees we rely on) vs Darwin
// (fsync vs F_FULLFSYNC, a real difference).
func fdatasync(f *os.File) error {
	return f.Sync()
}

// fullsync on Linux is the same barrier as fdatasync; there is no
// platform-specific stronger variant to reach for.
func fullsync(f *os.File) error {
	return f.Sync()
}
