package array

import (
	"errors"
	"fmt"

	"github.com/vdatasim/vdatasim/vdsim/storage"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

var (
	// ErrInvalidDrive reports a drive index outside the topology.
	ErrInvalidDrive = topology.ErrInvalidDrive
	// ErrDriveOffline reports a direct access to an offline drive without
	// reconstruction.
	ErrDriveOffline = storage.ErrDriveOffline

	ErrAlreadyInitialized   = errors.New("array is already initialized")
	ErrInsufficientCapacity = errors.New("stream exceeds eligible data capacity")
	ErrUnrecoverableData    = errors.New("data is unrecoverable")
	ErrFileNotFound         = errors.New("no such file record")
)

// UnrecoverableError carries which file and stream offsets a DATA_LOSS
// classification touched, so a caller can tell lost bytes from an aborted
// operation.
type UnrecoverableError struct {
	File    string
	Offsets []int64
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("%v: file %q, %d affected offsets", ErrUnrecoverableData, e.File, len(e.Offsets))
}

func (e *UnrecoverableError) Unwrap() error {
	return ErrUnrecoverableData
}
