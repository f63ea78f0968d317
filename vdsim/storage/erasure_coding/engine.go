package erasure_coding

import (
	"errors"
	"fmt"

	"github.com/vdatasim/vdatasim/vdsim/stats"
	"github.com/vdatasim/vdatasim/vdsim/storage"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

var (
	ErrUnrecoverableChunk = errors.New("chunk is not recoverable from surviving drives")
)

// Engine computes and maintains the two parity levels over the drive store:
// per-group XOR parity and per-domain coefficient-weighted parity. Both are
// re-established synchronously on every data chunk write.
type Engine struct {
	topo  *topology.Topology
	store *storage.Store
}

func NewEngine(topo *topology.Topology, store *storage.Store) *Engine {
	return &Engine{topo: topo, store: store}
}

func (e *Engine) ChunkSize() int {
	return e.topo.Conf().ChunkSize
}

func (e *Engine) StripesPerDrive() int {
	return int(e.topo.Conf().DriveSize) / e.topo.Conf().ChunkSize
}

// Recombine folds chunks together with the parity combination. The same
// primitive produces parity and inverts it: with one chunk unknown, folding
// the parity chunk with every known chunk yields the unknown one.
func Recombine(chunks [][]byte) []byte {
	if len(chunks) == 0 {
		return nil
	}
	out := make([]byte, len(chunks[0]))
	for _, c := range chunks {
		xorSlice(c, out)
	}
	return out
}

// ReadChunk reads one chunk from a logical drive, following promotions.
func (e *Engine) ReadChunk(id topology.DriveId, stripe int) ([]byte, error) {
	buf := make([]byte, e.ChunkSize())
	err := e.store.ReadAt(e.topo.Resolve(id), buf, int64(stripe)*int64(e.ChunkSize()))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteChunk overwrites the data chunk at loc and updates the chunk's local
// and global parity in the same call. The data drive, its group parity drive
// and its domain parity drive must all be online.
func (e *Engine) WriteChunk(layout *topology.Layout, loc ChunkLocation, data []byte) error {
	if len(data) != e.ChunkSize() {
		return fmt.Errorf("chunk size %d, want %d", len(data), e.ChunkSize())
	}
	group := layout.GroupFor(loc.Drive)
	domain := layout.DomainFor(loc.Drive)
	if group == nil || domain == nil {
		return fmt.Errorf("drive %d carries no data under %v layout", loc.Drive, layout.Mode)
	}

	// capture the old content and write the new, under the drive's lock
	old := make([]byte, e.ChunkSize())
	err := e.store.RMW(e.topo.Resolve(loc.Drive), loc.Offset, e.ChunkSize(), func(buf []byte) error {
		copy(old, buf)
		copy(buf, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write chunk %d to drive %d: %w", loc.Index, loc.Drive, err)
	}

	// delta = old ^ new; P ^= delta, Q ^= coefficient * delta
	delta := old
	xorSlice(data, delta)

	err = e.store.RMW(e.topo.Resolve(group.ParityDrive), loc.Offset, e.ChunkSize(), func(buf []byte) error {
		xorSlice(delta, buf)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update local parity on drive %d: %w", group.ParityDrive, err)
	}
	stats.ParityUpdates.WithLabelValues("local").Inc()

	c := Coefficient(domain.CoefficientIndex(loc.Drive))
	err = e.store.RMW(e.topo.Resolve(domain.GlobalParityDrive), loc.Offset, e.ChunkSize(), func(buf []byte) error {
		mulSliceXor(c, delta, buf)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update global parity on drive %d: %w", domain.GlobalParityDrive, err)
	}
	stats.ParityUpdates.WithLabelValues("global").Inc()
	stats.ChunksWritten.Inc()

	return nil
}

// Availability returns the per-logical-drive availability derived from a
// flag snapshot, following promotions.
func (e *Engine) Availability(snapshot []bool) func(topology.DriveId) bool {
	return func(id topology.DriveId) bool {
		phys := e.topo.Resolve(id)
		if int(phys) >= len(snapshot) {
			return false
		}
		return snapshot[phys]
	}
}
