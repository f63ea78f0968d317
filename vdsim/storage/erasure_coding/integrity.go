package erasure_coding

import (
	"fmt"

	"github.com/vdatasim/vdatasim/vdsim/topology"
)

type Status int

const (
	StatusOK Status = iota
	StatusRecoverable
	StatusDataLoss
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusRecoverable:
		return "RECOVERABLE"
	case StatusDataLoss:
		return "DATA_LOSS"
	}
	return "UNKNOWN"
}

func worse(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// GroupStatus classifies one parity group against the current failure set.
type GroupStatus struct {
	Group        int
	Domain       int
	FailedDrives []topology.DriveId
	Status       Status
	Detail       string
}

// DomainStatus classifies one weighted-parity equation host.
type DomainStatus struct {
	Domain            int
	GlobalParityDrive topology.DriveId
	Online            bool
	Status            Status
}

// Report is the outcome of one integrity classification. It is a pure
// function of the layout and a single flag snapshot, so repeated calls with
// no state change yield identical reports.
type Report struct {
	Mode          topology.Mode
	Groups        []GroupStatus
	Domains       []DomainStatus
	OfflineUnused []topology.DriveId
	Rollup        Status

	statusOfGroup  map[int]Status
	statusOfDomain map[int]Status
}

func (r *Report) StatusOfGroup(id int) Status {
	return r.statusOfGroup[id]
}

func (r *Report) StatusOfDomain(id int) Status {
	return r.statusOfDomain[id]
}

// Classify evaluates every parity group independently, then rolls up.
//
// Per group: zero failures is OK; one failure (data or XOR parity) is
// recoverable through the group's XOR equation; two failures are recoverable
// only while the group's weighted parity and every other drive feeding that
// equation are online, because separating two unknowns takes both the XOR
// equation and the independently weighted one; three or more failures, or
// two failures with the weighted parity also gone, lose data.
func (e *Engine) Classify(layout *topology.Layout, online func(topology.DriveId) bool) *Report {
	report := &Report{
		Mode:           layout.Mode,
		statusOfGroup:  make(map[int]Status),
		statusOfDomain: make(map[int]Status),
	}

	covered := make(map[topology.DriveId]bool)

	for _, pd := range layout.ParityDomains {
		globalOnline := online(pd.GlobalParityDrive)
		covered[pd.GlobalParityDrive] = true

		domainDataFailures := 0
		groupFailures := make(map[int]int)
		for _, g := range pd.Groups {
			for _, id := range g.DataDrives {
				if !online(id) {
					domainDataFailures++
					groupFailures[g.Id]++
				}
			}
		}

		domainStatus := StatusOK
		for _, g := range pd.Groups {
			gs := GroupStatus{Group: g.Id, Domain: pd.Id}

			parityFailed := !online(g.ParityDrive)
			covered[g.ParityDrive] = true
			if parityFailed {
				gs.FailedDrives = append(gs.FailedDrives, g.ParityDrive)
			}
			for _, id := range g.DataDrives {
				covered[id] = true
				if !online(id) {
					gs.FailedDrives = append(gs.FailedDrives, id)
				}
			}

			switch n := len(gs.FailedDrives); {
			case n == 0:
				gs.Status = StatusOK
			case n == 1:
				gs.Status = StatusRecoverable
				gs.Detail = "single failure, XOR parity suffices"
			case n == 2:
				// the weighted equation must be intact after removing
				// every other drive's known contribution
				othersOnline := globalOnline &&
					domainDataFailures-groupFailures[g.Id] == 0
				if othersOnline {
					gs.Status = StatusRecoverable
					gs.Detail = "double failure, solvable via XOR plus weighted parity"
				} else {
					gs.Status = StatusDataLoss
					if !globalOnline {
						gs.Detail = "double failure with weighted parity offline"
					} else {
						gs.Detail = "double failure with other domain drives offline"
					}
				}
			default:
				gs.Status = StatusDataLoss
				gs.Detail = fmt.Sprintf("%d failures exceed two-erasure tolerance", n)
			}

			report.Groups = append(report.Groups, gs)
			report.statusOfGroup[g.Id] = gs.Status
			domainStatus = worse(domainStatus, gs.Status)
			report.Rollup = worse(report.Rollup, gs.Status)
		}

		ds := DomainStatus{
			Domain:            pd.Id,
			GlobalParityDrive: pd.GlobalParityDrive,
			Online:            globalOnline,
			Status:            StatusOK,
		}
		if !globalOnline {
			// recomputable as long as every contributing chunk is
			// readable or reconstructible through its XOR equation
			ds.Status = StatusRecoverable
			for _, g := range pd.Groups {
				if groupFailures[g.Id] >= 2 {
					ds.Status = StatusDataLoss
				}
			}
		}
		report.Domains = append(report.Domains, ds)
		report.statusOfDomain[pd.Id] = ds.Status
		report.Rollup = worse(report.Rollup, ds.Status)
	}

	// drives outside the active layout (spares, idle parity slots, data
	// slots not eligible under HA) hold no protected data
	for id := 0; id < e.store.DriveCount(); id++ {
		did := topology.DriveId(id)
		if !covered[did] && !online(did) {
			report.OfflineUnused = append(report.OfflineUnused, did)
		}
	}

	return report
}
