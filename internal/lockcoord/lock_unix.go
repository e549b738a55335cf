//go:build linux || darwin

package lockcoord

import (
	"os"

	"golang.org/x/sys/unix"
)

type unixLocker struct {
	f *os.File
}

func openOSLocker(path string) (osLocker, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if fi, err := f.Stat(); err == nil && fi.Size() < lockFileLen {
		if err := f.Truncate(lockFileLen); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &unixLocker{f: f}, nil
}

func (u *unixLocker) flock(typ int16, off int64) error {
	lk := unix.Flock_t{
		Type:   typ,
		Whence: int16(0),
		Start:  off,
		Len:    1,
	}
	return unix.FcntlFlock(u.f.Fd(), unix.F_SETLKW, &lk)
}

func (u *unixLocker) lockShared(off int64) error    { return u.flock(unix.F_RDLCK, off) }
func (u *unixLocker) lockExclusive(off int64) error { return u.flock(unix.F_WRLCK, off) }

func (u *unixLocker) unlock(off int64) error {
	lk := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: off, Len: 1}
	return unix.FcntlFlock(u.f.Fd(), unix.F_SETLK, &lk)
}

func (u *unixLocker) close() error { return u.f.Close() }
