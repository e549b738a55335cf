//go:build !linux && !darwin

package fileio

import "os"

func fdatasync(f *os.File) error {
	return f.Sync()
}

func fullsync(f *os.File) error {
	return f.Sync()
}
