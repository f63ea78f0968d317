package backend

import (
	"io"
	"time"
)

// BackendStorageFile is the fixed-size byte container behind one simulated
// drive. Implementations must support concurrent ReadAt/WriteAt on disjoint
// ranges; callers serialize access to overlapping ranges.
type BackendStorageFile interface {
	io.ReaderAt
	io.WriterAt
	Truncate(off int64) error
	io.Closer
	GetStat() (datSize int64, modTime time.Time, err error)
	Name() string
	Sync() error
}
