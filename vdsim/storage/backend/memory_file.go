package backend

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	_ BackendStorageFile = &MemoryFile{}
)

// MemoryFile keeps a drive's contents in a fixed-size byte slice. Used by
// tests and by arrays created without a backing directory.
type MemoryFile struct {
	mu      sync.RWMutex
	name    string
	data    []byte
	modTime time.Time
}

func NewMemoryFile(name string, capacity int64) *MemoryFile {
	return &MemoryFile{
		name: name,
		data: make([]byte, capacity),
	}
}

func (mf *MemoryFile) ReadAt(p []byte, off int64) (n int, err error) {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	if off < 0 || off >= int64(len(mf.data)) {
		return 0, io.EOF
	}
	n = copy(p, mf.data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

func (mf *MemoryFile) WriteAt(p []byte, off int64) (n int, err error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(mf.data)) {
		return 0, fmt.Errorf("write [%d,%d) out of container %s size %d", off, off+int64(len(p)), mf.name, len(mf.data))
	}
	n = copy(mf.data[off:], p)
	mf.modTime = time.Now()
	return
}

func (mf *MemoryFile) Truncate(off int64) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if off > int64(len(mf.data)) {
		grown := make([]byte, off)
		copy(grown, mf.data)
		mf.data = grown
	} else {
		for i := off; i < int64(len(mf.data)); i++ {
			mf.data[i] = 0
		}
	}
	mf.modTime = time.Now()
	return nil
}

func (mf *MemoryFile) Close() error {
	return nil
}

func (mf *MemoryFile) GetStat() (datSize int64, modTime time.Time, err error) {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	return int64(len(mf.data)), mf.modTime, nil
}

func (mf *MemoryFile) Name() string {
	return mf.name
}

func (mf *MemoryFile) Sync() error {
	return nil
}
