package array

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vdatasim/vdatasim/vdsim/storage/erasure_coding"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

// FileStatus is one file's integrity under the current failure set.
type FileStatus struct {
	Name        string
	Status      erasure_coding.Status
	LostOffsets []int64 // stream offsets of chunks in DATA_LOSS groups
}

// IntegrityReport combines the group and domain classification with a
// per-file view. Built from one flag snapshot, so re-running it with no
// state change yields the same report.
type IntegrityReport struct {
	Mode          topology.Mode
	Groups        []erasure_coding.GroupStatus
	Domains       []erasure_coding.DomainStatus
	OfflineUnused []topology.DriveId
	Files         []FileStatus
	Rollup        erasure_coding.Status
}

// CheckIntegrity classifies every parity group and domain, then maps the
// result onto the recorded files chunk by chunk.
func (a *Array) CheckIntegrity() *IntegrityReport {
	a.mu.Lock()
	records := append([]*FileRecord(nil), a.files...)
	a.mu.Unlock()

	layout := a.layout()
	online := a.engine.Availability(a.store.OnlineSnapshot())
	report := a.engine.Classify(layout, online)

	out := &IntegrityReport{
		Mode:          report.Mode,
		Groups:        report.Groups,
		Domains:       report.Domains,
		OfflineUnused: report.OfflineUnused,
		Rollup:        report.Rollup,
	}

	cs := int64(a.chunkSize())
	for _, rec := range records {
		fs := FileStatus{Name: rec.Name}
		first := rec.HeaderOffset / cs
		last := (rec.DataOffset + int64(rec.Size) - 1) / cs
		for ci := first; ci <= last; ci++ {
			loc := erasure_coding.LocateChunk(layout, int(cs), int(ci))
			g := layout.GroupFor(loc.Drive)
			if g == nil {
				continue
			}
			st := report.StatusOfGroup(g.Id)
			if st > fs.Status {
				fs.Status = st
			}
			if st == erasure_coding.StatusDataLoss {
				fs.LostOffsets = append(fs.LostOffsets, ci*cs)
			}
		}
		out.Files = append(out.Files, fs)
	}
	return out
}

// RebuildReport is the outcome of one rebuild invocation. Partial rebuilds
// are reported here, not returned as errors.
type RebuildReport struct {
	Id       string
	Strategy erasure_coding.Strategy
	Drives   []*erasure_coding.DriveRebuild
	Partial  bool
}

// Rebuild reconstructs the named drives under the given strategy. With no
// targets, every offline drive covered by the active layout is rebuilt.
func (a *Array) Rebuild(targets []topology.DriveId, strategy erasure_coding.Strategy) (*RebuildReport, error) {
	layout := a.layout()
	if len(targets) == 0 {
		snapshot := a.store.OnlineSnapshot()
		for id, up := range snapshot {
			if !up {
				targets = append(targets, topology.DriveId(id))
			}
		}
	}

	records, err := a.engine.RebuildDrives(layout, targets, strategy)
	report := &RebuildReport{
		Id:       uuid.New().String(),
		Strategy: strategy,
		Drives:   records,
	}
	for _, r := range records {
		if r.Outcome != erasure_coding.RebuildDone {
			report.Partial = true
		}
	}
	if err != nil {
		return report, fmt.Errorf("rebuild %s: %w", report.Id, err)
	}
	return report, nil
}

// DomainStats is one Dbox's drive availability.
type DomainStats struct {
	Domain         topology.DomainId
	Name           string
	DrivesOnline   int
	DrivesOffline  int
	SparesUnused   int
	SparesPromoted int
}

// Stats is the array-level accounting: capacities in bytes, the parity
// overhead ratio and per-domain availability.
type Stats struct {
	Mode          topology.Mode
	TotalCapacity int64 // raw bytes across all drives
	DataCapacity  int64 // bytes on the mode's eligible data drives
	UsedCapacity  int64 // chunk-aligned stream bytes laid out so far
	FileCount     int
	OverheadRatio float64
	Domains       []DomainStats
}

func (a *Array) Stats() *Stats {
	a.mu.Lock()
	used := a.streamLen
	fileCount := len(a.files)
	a.mu.Unlock()

	conf := a.topo.Conf()
	snapshot := a.store.OnlineSnapshot()

	promoted := make(map[topology.DriveId]bool)
	for _, p := range a.topo.Promotions() {
		promoted[p.Spare] = true
	}

	st := &Stats{
		Mode:          a.mode,
		TotalCapacity: int64(conf.TotalDrives()) * conf.DriveSize,
		DataCapacity:  a.topo.DataCapacityBytes(a.mode),
		UsedCapacity:  used,
		FileCount:     fileCount,
		OverheadRatio: a.topo.OverheadRatio(a.mode),
	}
	for _, d := range a.topo.Domains() {
		ds := DomainStats{Domain: d.Id, Name: d.Name()}
		base := int(d.Id) * conf.DrivesPerDomain
		for i := 0; i < conf.DrivesPerDomain; i++ {
			if snapshot[base+i] {
				ds.DrivesOnline++
			} else {
				ds.DrivesOffline++
			}
		}
		for _, s := range d.SpareDrives {
			if promoted[s] {
				ds.SparesPromoted++
			} else {
				ds.SparesUnused++
			}
		}
		st.Domains = append(st.Domains, ds)
	}
	return st
}
