package erasure_coding

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/stats"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

// Strategy picks where a rebuilt drive's content lands.
type Strategy int

const (
	// RestoreInPlace writes the reconstructed content back to the failed
	// drive's own container and flips it online.
	RestoreInPlace Strategy = iota
	// PromoteSpare writes to an idle hot spare of the same domain, which
	// then assumes the failed drive's identity.
	PromoteSpare
)

func (s Strategy) String() string {
	if s == PromoteSpare {
		return "promote_spare"
	}
	return "restore_in_place"
}

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "restore", "restore_in_place":
		return RestoreInPlace, nil
	case "spare", "promote", "promote_spare":
		return PromoteSpare, nil
	}
	return RestoreInPlace, fmt.Errorf("unknown rebuild strategy %q", s)
}

type RebuildOutcome int

const (
	RebuildDone RebuildOutcome = iota
	RebuildSkipped
	RebuildPartial
)

func (o RebuildOutcome) String() string {
	switch o {
	case RebuildDone:
		return "REBUILT"
	case RebuildSkipped:
		return "SKIPPED"
	case RebuildPartial:
		return "PARTIAL"
	}
	return "UNKNOWN"
}

// DriveRebuild is the per-drive record of one rebuild pass.
type DriveRebuild struct {
	Drive               topology.DriveId
	PromotedSpare       topology.DriveId // -1 unless a spare took over
	Outcome             RebuildOutcome
	Sources             []topology.DriveId
	ChunksReconstructed int
	UnrecoverableChunks []int
	Detail              string
}

// RebuildDrives reconstructs each target drive in group order. Targets whose
// group classifies as DATA_LOSS are skipped, not retried. A drive comes back
// online only after every chunk is written; an error partway leaves it
// offline and marks the record PARTIAL.
func (e *Engine) RebuildDrives(layout *topology.Layout, targets []topology.DriveId, strategy Strategy) ([]*DriveRebuild, error) {
	ordered := append([]topology.DriveId(nil), targets...)
	// data drives first: parity reconstruction may lean on data rebuilt
	// earlier in the same pass
	sort.Slice(ordered, func(i, j int) bool {
		ri, _ := e.topo.RoleOf(ordered[i])
		rj, _ := e.topo.RoleOf(ordered[j])
		if ri != rj {
			return ri < rj
		}
		return ordered[i] < ordered[j]
	})

	var out []*DriveRebuild
	for _, target := range ordered {
		if err := e.checkTarget(target); err != nil {
			return out, err
		}
		// reclassify before each drive: earlier targets in this pass may
		// already have been restored
		report := e.Classify(layout, e.availabilitySnapshot())
		out = append(out, e.rebuildOne(layout, report, target, strategy))
	}
	return out, nil
}

func (e *Engine) checkTarget(target topology.DriveId) error {
	_, err := e.topo.RoleOf(target)
	return err
}

func (e *Engine) availabilitySnapshot() func(topology.DriveId) bool {
	return e.Availability(e.store.OnlineSnapshot())
}

func (e *Engine) rebuildOne(layout *topology.Layout, report *Report, target topology.DriveId, strategy Strategy) *DriveRebuild {
	record := &DriveRebuild{Drive: target, PromotedSpare: -1}
	started := time.Now()

	// a failed spare that had assumed another drive's identity is rebuilt
	// as that drive
	if servesAs, promoted := e.topo.AssumedIdentity(target); promoted {
		target = servesAs
	}

	online := e.availabilitySnapshot()
	if online(target) {
		record.Outcome = RebuildSkipped
		record.Detail = "drive is online"
		return record
	}

	group := layout.GroupFor(target)
	domain := layout.DomainFor(target)
	if group == nil && (domain == nil || domain.GlobalParityDrive != target) {
		// spares and slots unused by the active layout carry nothing;
		// restoring them is a wipe
		if err := e.store.Zero(target); err != nil {
			record.Outcome = RebuildPartial
			record.Detail = fmt.Sprintf("wipe failed: %v", err)
			return record
		}
		e.store.SetDriveOnline(target, true)
		record.Outcome = RebuildDone
		record.Detail = "unused drive, zero-filled"
		return record
	}

	dataLoss := group != nil && report.StatusOfGroup(group.Id) == StatusDataLoss
	if group == nil && domain != nil && report.StatusOfDomain(domain.Id) == StatusDataLoss {
		dataLoss = true
	}
	if dataLoss {
		record.Outcome = RebuildSkipped
		record.Detail = "classified DATA_LOSS, not retried"
		for i := 0; i < e.StripesPerDrive(); i++ {
			record.UnrecoverableChunks = append(record.UnrecoverableChunks, i)
		}
		return record
	}

	destination := e.topo.Resolve(target)
	if strategy == PromoteSpare {
		spare, found := e.topo.FindUnusedSpare(target)
		if !found {
			record.Outcome = RebuildSkipped
			record.Detail = "no unused hot spare in domain"
			return record
		}
		if !online(spare) {
			record.Outcome = RebuildSkipped
			record.Detail = fmt.Sprintf("spare %d is offline", spare)
			return record
		}
		destination = spare
	}

	sources := make(sourceSet)
	chunkSize := e.ChunkSize()
	for stripe := 0; stripe < e.StripesPerDrive(); stripe++ {
		chunk, err := e.reconstruct(layout, target, stripe, online, sources)
		if err != nil {
			if errors.Is(err, ErrUnrecoverableChunk) {
				record.UnrecoverableChunks = append(record.UnrecoverableChunks, stripe)
			}
			record.Outcome = RebuildPartial
			record.Detail = fmt.Sprintf("stripe %d: %v", stripe, err)
			record.Sources = sources.Drives()
			glog.Warningf("rebuild of drive %d stopped at stripe %d: %v", target, stripe, err)
			return record
		}
		if err := e.store.WriteOffline(destination, chunk, int64(stripe)*int64(chunkSize)); err != nil {
			record.Outcome = RebuildPartial
			record.Detail = fmt.Sprintf("write stripe %d: %v", stripe, err)
			record.Sources = sources.Drives()
			return record
		}
		record.ChunksReconstructed++
	}
	record.Sources = sources.Drives()

	if strategy == PromoteSpare {
		if err := e.topo.PromoteSpare(destination, target); err != nil {
			record.Outcome = RebuildPartial
			record.Detail = fmt.Sprintf("promotion: %v", err)
			return record
		}
		record.PromotedSpare = destination
	} else {
		if err := e.store.SetDriveOnline(destination, true); err != nil {
			record.Outcome = RebuildPartial
			record.Detail = fmt.Sprintf("bring online: %v", err)
			return record
		}
	}

	record.Outcome = RebuildDone
	stats.RebuildDuration.Observe(time.Since(started).Seconds())
	glog.V(0).Infof("rebuilt drive %d (%d chunks, %d sources, %v)",
		target, record.ChunksReconstructed, len(record.Sources), strategy)
	return record
}
