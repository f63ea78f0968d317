package array

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/vdatasim/vdatasim/vdsim/storage"
	"github.com/vdatasim/vdatasim/vdsim/storage/erasure_coding"
	"github.com/vdatasim/vdatasim/vdsim/topology"
	"github.com/vdatasim/vdatasim/vdsim/util"
)

// Options configures one array. Dir empty means memory-backed drives.
type Options struct {
	Dir  string
	Conf topology.Config
	Mode topology.Mode
	// Reset discards an existing array at Dir instead of failing.
	Reset bool
}

// Array is the erasure-coded drive array engine: chunk striping, two-level
// parity, integrity classification and rebuild over a closed set of
// simulated drives.
type Array struct {
	topo   *topology.Topology
	store  *storage.Store
	engine *erasure_coding.Engine
	mode   topology.Mode
	dir    string

	mu        sync.Mutex
	files     []*FileRecord
	streamLen int64 // chunk-aligned length of the laid-out stream
}

// FileStream is one named byte stream to ingest.
type FileStream struct {
	Name string
	Data []byte
}

func arrayExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, storage.ContainerName(0)))
	return err == nil
}

// Initialize creates a fresh array. A second initialization over the same
// directory fails with ErrAlreadyInitialized unless Reset is set.
func Initialize(opts Options) (*Array, error) {
	if opts.Dir != "" && arrayExists(opts.Dir) {
		if !opts.Reset {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, opts.Dir)
		}
		if err := os.RemoveAll(opts.Dir); err != nil {
			return nil, fmt.Errorf("reset %s: %v", opts.Dir, err)
		}
	}
	return newArray(opts)
}

// Open reopens an existing array and recovers its file records by rescanning
// the stream headers. The containers plus the topology configuration are the
// entire persisted state.
func Open(opts Options) (*Array, error) {
	if opts.Dir == "" || !arrayExists(opts.Dir) {
		return nil, fmt.Errorf("no array at %q", opts.Dir)
	}
	a, err := newArray(opts)
	if err != nil {
		return nil, err
	}
	if err := a.recoverRecords(); err != nil {
		a.Close()
		return nil, fmt.Errorf("recover file records: %v", err)
	}
	glog.V(1).Infof("recovered %d file records from %s", len(a.files), opts.Dir)
	return a, nil
}

func newArray(opts Options) (*Array, error) {
	topo, err := topology.NewTopology(opts.Conf)
	if err != nil {
		return nil, err
	}
	if topo.Layout(opts.Mode) == nil {
		return nil, fmt.Errorf("placement mode %v unavailable: HA needs at least three domains", opts.Mode)
	}

	var store *storage.Store
	if opts.Dir == "" {
		store = storage.NewMemoryStore(opts.Conf)
	} else {
		store, err = storage.NewDiskStore(opts.Dir, opts.Conf)
		if err != nil {
			return nil, err
		}
	}

	return &Array{
		topo:   topo,
		store:  store,
		engine: erasure_coding.NewEngine(topo, store),
		mode:   opts.Mode,
		dir:    opts.Dir,
	}, nil
}

func (a *Array) Close() error {
	return a.store.Close()
}

func (a *Array) Topology() *topology.Topology { return a.topo }
func (a *Array) Mode() topology.Mode          { return a.mode }

func (a *Array) layout() *topology.Layout {
	return a.topo.Layout(a.mode)
}

func (a *Array) chunkSize() int {
	return a.topo.Conf().ChunkSize
}

// Records lists the file records in ingestion order.
func (a *Array) Records() []*FileRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*FileRecord(nil), a.files...)
}

func (a *Array) Record(name string) (*FileRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.files {
		if rec.Name == name {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
}

// WriteFiles ingests the streams as one length-prefixed frame, stripes it
// round robin over the eligible data drives and re-establishes both parity
// levels synchronously.
func (a *Array) WriteFiles(streams []FileStream) ([]*FileRecord, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	layout := a.layout()
	cs := a.chunkSize()

	var frame []byte
	var records []*FileRecord
	for _, fs := range streams {
		rec := &FileRecord{
			Name:         fs.Name,
			Size:         uint64(len(fs.Data)),
			Checksum:     checksum(fs.Data),
			HeaderOffset: a.streamLen + int64(len(frame)),
			Mode:         a.mode,
		}
		frame = appendHeader(frame, fs.Name, rec.Size)
		rec.DataOffset = rec.HeaderOffset + int64(headerLen(fs.Name))
		frame = append(frame, fs.Data...)
		records = append(records, rec)
	}
	// zero-pad the final chunk; true lengths live in the headers
	if pad := len(frame) % cs; pad != 0 {
		frame = append(frame, make([]byte, cs-pad)...)
	}

	if a.streamLen+int64(len(frame)) > a.topo.DataCapacityBytes(a.mode) {
		return nil, fmt.Errorf("%w: %d bytes over %d used of %d",
			ErrInsufficientCapacity, len(frame), a.streamLen, a.topo.DataCapacityBytes(a.mode))
	}

	firstChunk := int(a.streamLen / int64(cs))
	chunkCount := len(frame) / cs

	g := new(errgroup.Group)
	g.SetLimit(8)
	for i := 0; i < chunkCount; i++ {
		loc := erasure_coding.LocateChunk(layout, cs, firstChunk+i)
		chunk := frame[i*cs : (i+1)*cs]
		g.Go(func() error {
			return a.engine.WriteChunk(layout, loc, chunk)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stripe write: %w", err)
	}

	a.files = append(a.files, records...)
	a.streamLen += int64(len(frame))
	glog.V(1).Infof("wrote %d files, %d chunks, stream now %d bytes", len(streams), chunkCount, a.streamLen)
	return records, nil
}

// readRange returns length stream bytes starting at off, reconstructing
// chunks on offline-but-recoverable drives in memory. Lost stream offsets
// are reported rather than failing the whole read.
func (a *Array) readRange(layout *topology.Layout, report *erasure_coding.Report, online func(topology.DriveId) bool, off, length int64) ([]byte, []int64, error) {
	if length == 0 {
		return nil, nil, nil
	}
	cs := int64(a.chunkSize())
	first := off / cs
	last := (off + length - 1) / cs

	var lost []int64
	buf := make([]byte, 0, (last-first+1)*cs)
	for ci := first; ci <= last; ci++ {
		loc := erasure_coding.LocateChunk(layout, int(cs), int(ci))
		var chunk []byte
		if online(loc.Drive) {
			c, err := a.engine.ReadChunk(loc.Drive, loc.Stripe)
			if err != nil && !errors.Is(err, storage.ErrDriveOffline) {
				return nil, nil, err
			}
			chunk = c
		}
		if chunk == nil {
			g := layout.GroupFor(loc.Drive)
			if g != nil && report.StatusOfGroup(g.Id) != erasure_coding.StatusDataLoss {
				c, _, err := a.engine.ReconstructChunk(layout, loc.Drive, loc.Stripe, online)
				if err == nil {
					chunk = c
				}
			}
		}
		if chunk == nil {
			lost = append(lost, ci*cs)
			chunk = make([]byte, cs)
		}
		buf = append(buf, chunk...)
	}
	start := off - first*cs
	return buf[start : start+length], lost, nil
}

// ReadFile reconstructs a file's bytes in assignment order, trimming the
// padding via the recorded true length. Chunks in DATA_LOSS groups fail the
// read with an UnrecoverableError naming the affected offsets.
func (a *Array) ReadFile(rec *FileRecord) ([]byte, error) {
	layout := a.topo.Layout(rec.Mode)
	online := a.engine.Availability(a.store.OnlineSnapshot())
	report := a.engine.Classify(layout, online)

	data, lost, err := a.readRange(layout, report, online, rec.DataOffset, int64(rec.Size))
	if err != nil {
		return nil, err
	}
	if len(lost) > 0 {
		return nil, &UnrecoverableError{File: rec.Name, Offsets: lost}
	}
	if got := checksum(data); got != rec.Checksum {
		return nil, fmt.Errorf("file %q checksum mismatch: %08x, recorded %08x", rec.Name, got, rec.Checksum)
	}
	return data, nil
}

func (a *Array) ReadFileByName(name string) ([]byte, error) {
	rec, err := a.Record(name)
	if err != nil {
		return nil, err
	}
	return a.ReadFile(rec)
}

// Peek reads raw bytes straight off a drive's container for visualization.
// No reconstruction: an offline drive fails with ErrDriveOffline.
func (a *Array) Peek(id topology.DriveId, off int64, length int) ([]byte, error) {
	if _, err := a.topo.RoleOf(id); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+int64(length) > a.topo.Conf().DriveSize {
		return nil, fmt.Errorf("peek [%d,%d) outside drive of %d bytes", off, off+int64(length), a.topo.Conf().DriveSize)
	}
	buf := make([]byte, length)
	if err := a.store.ReadAt(id, buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// SetDriveOnline flips one drive's flag; no rebuild is triggered.
func (a *Array) SetDriveOnline(id topology.DriveId, online bool) error {
	return a.store.SetDriveOnline(id, online)
}

// SetDomainOnline flips every drive of a domain.
func (a *Array) SetDomainOnline(id topology.DomainId, online bool) error {
	return a.store.SetDomainOnline(id, online)
}

func (a *Array) IsOnline(id topology.DriveId) bool {
	return a.store.IsOnline(id)
}

// recoverRecords rescans the stream for length-prefixed headers. Frames are
// chunk aligned, so after a frame's padding the scan jumps to the next chunk
// boundary and tries once more.
func (a *Array) recoverRecords() error {
	layout := a.layout()
	online := a.engine.Availability(a.store.OnlineSnapshot())
	report := a.engine.Classify(layout, online)
	capacity := a.topo.DataCapacityBytes(a.mode)
	cs := int64(a.chunkSize())

	p := int64(0)
	for p+headerFixedLen <= capacity {
		rec, next, ok := a.tryParseRecordAt(layout, report, online, p, capacity)
		if !ok {
			aligned := (p + cs - 1) / cs * cs
			if aligned == p {
				break
			}
			p = aligned
			continue
		}
		a.files = append(a.files, rec)
		p = next
	}
	a.streamLen = (p + cs - 1) / cs * cs
	return nil
}

func (a *Array) tryParseRecordAt(layout *topology.Layout, report *erasure_coding.Report, online func(topology.DriveId) bool, p, capacity int64) (*FileRecord, int64, bool) {
	head, lost, err := a.readRange(layout, report, online, p, 4)
	if err != nil || len(lost) > 0 {
		return nil, 0, false
	}
	nameLen := int(util.BytesToUint32(head))
	if nameLen == 0 || nameLen > maxFileNameLen {
		return nil, 0, false
	}
	need := int64(headerFixedLen + nameLen)
	if p+need > capacity {
		return nil, 0, false
	}
	hdr, lost, err := a.readRange(layout, report, online, p, need)
	if err != nil || len(lost) > 0 {
		return nil, 0, false
	}
	name, size, consumed, err := parseHeader(hdr)
	if err != nil {
		return nil, 0, false
	}
	dataOff := p + int64(consumed)
	if dataOff+int64(size) > capacity {
		return nil, 0, false
	}
	data, lost, err := a.readRange(layout, report, online, dataOff, int64(size))
	if err != nil || len(lost) > 0 {
		return nil, 0, false
	}
	return &FileRecord{
		Name:         name,
		Size:         size,
		Checksum:     checksum(data),
		HeaderOffset: p,
		DataOffset:   dataOff,
		Mode:         a.mode,
	}, dataOff + int64(size), true
}
