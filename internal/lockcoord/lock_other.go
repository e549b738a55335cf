//go:build !linux && !darwin

package lockcoord

import "github.com/maskdotdev/sombra-sub004/internal/fileio"

// noopLocker refuses to run on platforms without a byte-range lock
// primitive, per spec §4.1: "a no-op / unsupported-platform variant for
// locking is acceptable but must refuse to run."
type noopLocker struct{}

func openOSLocker(path string) (osLocker, error) {
	return nil, fileio.ErrUnsupportedPlatform
}

func (noopLocker) lockShared(int64) error    { return fileio.ErrUnsupportedPlatform }
func (noopLocker) lockExclusive(int64) error { return fileio.ErrUnsupportedPlatform }
func (noopLocker) unlock(int64) error        { return fileio.ErrUnsupportedPlatform }
func (noopLocker) close() error              { return nil }
