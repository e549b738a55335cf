package fileio

import (
	"io"

	"github.com/dsnet/golib/memfile"
)

// OpenMem creates an in-memory File backend for tests, avoiding real disk
// I/O for WAL/pager unit tests, the same way bltree-go-for-embedding
// exercises its buffer manager against an in-memory backing file.
func OpenMem() File {
	return &memFile{f: memfile.New(nil)}
}

type memFile struct {
	f *memfile.File
}

func (m *memFile) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := m.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, err
	}
	if n < len(buf) {
		return n, ErrEOF
	}
	return n, nil
}

func (m *memFile) WriteAt(buf []byte, offset int64) (int, error) {
	return m.f.WriteAt(buf, offset)
}

func (m *memFile) Len() (int64, error) {
	cur, err := m.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := m.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_, err = m.f.Seek(cur, io.SeekStart)
	return end, err
}

func (m *memFile) Truncate(n int64) error { return m.f.Truncate(n) }
func (m *memFile) Sync() error            { return nil }
func (m *memFile) SyncFull() error        { return nil }
func (m *memFile) Close() error           { return m.f.Close() }
