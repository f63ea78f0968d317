package erasure_coding

import (
	"fmt"

	"github.com/vdatasim/vdatasim/vdsim/stats"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

// sourceSet tracks which drives a reconstruction actually read.
type sourceSet map[topology.DriveId]bool

func (s sourceSet) add(id topology.DriveId) {
	s[id] = true
}

func (s sourceSet) Drives() []topology.DriveId {
	var out []topology.DriveId
	for id := range s {
		out = append(out, id)
	}
	return out
}

// ReconstructChunk recovers the content of one chunk of target at the given
// stripe from surviving drives, without writing anything. online must be a
// snapshot-backed availability function; target is treated as lost even if
// its flag is up.
func (e *Engine) ReconstructChunk(layout *topology.Layout, target topology.DriveId, stripe int, online func(topology.DriveId) bool) ([]byte, []topology.DriveId, error) {
	sources := make(sourceSet)
	chunk, err := e.reconstruct(layout, target, stripe, online, sources)
	if err != nil {
		return nil, nil, err
	}
	return chunk, sources.Drives(), nil
}

func (e *Engine) reconstruct(layout *topology.Layout, target topology.DriveId, stripe int, online func(topology.DriveId) bool, sources sourceSet) ([]byte, error) {
	if g := layout.GroupFor(target); g != nil {
		if target == g.ParityDrive {
			return e.reconstructLocalParity(layout, g, stripe, online, sources)
		}
		return e.reconstructData(layout, g, target, stripe, online, sources)
	}
	if pd := layout.DomainFor(target); pd != nil && pd.GlobalParityDrive == target {
		return e.reconstructGlobalParity(layout, pd, stripe, online, sources)
	}
	return nil, fmt.Errorf("drive %d serves no equation under %v layout: %w", target, layout.Mode, ErrUnrecoverableChunk)
}

// readInto reads one chunk of a source drive, recording it.
func (e *Engine) readSource(id topology.DriveId, stripe int, sources sourceSet) ([]byte, error) {
	chunk, err := e.ReadChunk(id, stripe)
	if err != nil {
		return nil, err
	}
	sources.add(id)
	return chunk, nil
}

// reconstructData recovers a data drive's chunk. Single failure solves the
// group's XOR equation; a second failure in the group brings in the weighted
// equation.
func (e *Engine) reconstructData(layout *topology.Layout, g *topology.ParityGroup, target topology.DriveId, stripe int, online func(topology.DriveId) bool, sources sourceSet) ([]byte, error) {
	pd := layout.DomainFor(target)

	var lostPeer topology.DriveId = -1
	for _, id := range g.DataDrives {
		if id != target && !online(id) {
			if lostPeer >= 0 {
				return nil, fmt.Errorf("three or more failures in group %d: %w", g.Id, ErrUnrecoverableChunk)
			}
			lostPeer = id
		}
	}
	parityOnline := online(g.ParityDrive)

	switch {
	case lostPeer < 0 && parityOnline:
		// lone failure: fold parity with the survivors
		acc, err := e.readSource(g.ParityDrive, stripe, sources)
		if err != nil {
			return nil, err
		}
		for _, id := range g.DataDrives {
			if id == target {
				continue
			}
			chunk, err := e.readSource(id, stripe, sources)
			if err != nil {
				return nil, err
			}
			xorSlice(chunk, acc)
		}
		stats.ChunksReconstructed.WithLabelValues("xor").Inc()
		return acc, nil

	case lostPeer < 0 && !parityOnline:
		// data plus its own parity lost: the weighted equation still has a
		// single unknown
		partial, err := e.weightedRemainder(pd, stripe, online, sources, target, -1)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(partial))
		divSliceConst(Coefficient(pd.CoefficientIndex(target)), partial, out)
		stats.ChunksReconstructed.WithLabelValues("weighted").Inc()
		return out, nil

	case parityOnline:
		// two data drives lost: solve the two-equation system
		d1, _, err := e.solveTwoErasures(pd, g, target, lostPeer, stripe, online, sources)
		if err != nil {
			return nil, err
		}
		stats.ChunksReconstructed.WithLabelValues("two_equation").Inc()
		return d1, nil

	default:
		return nil, fmt.Errorf("group %d lost two data drives and its parity: %w", g.Id, ErrUnrecoverableChunk)
	}
}

// weightedRemainder reads the weighted parity chunk and removes the known
// contribution of every domain data drive except the excluded unknowns,
// leaving sum(c_x * unknown_x).
func (e *Engine) weightedRemainder(pd *topology.ParityDomain, stripe int, online func(topology.DriveId) bool, sources sourceSet, except1, except2 topology.DriveId) ([]byte, error) {
	if !online(pd.GlobalParityDrive) {
		return nil, fmt.Errorf("weighted parity drive %d offline: %w", pd.GlobalParityDrive, ErrUnrecoverableChunk)
	}
	acc, err := e.readSource(pd.GlobalParityDrive, stripe, sources)
	if err != nil {
		return nil, err
	}
	for i, id := range pd.DataDrives {
		if id == except1 || id == except2 {
			continue
		}
		if !online(id) {
			return nil, fmt.Errorf("domain drive %d needed to isolate the unknowns is offline: %w", id, ErrUnrecoverableChunk)
		}
		chunk, err := e.readSource(id, stripe, sources)
		if err != nil {
			return nil, err
		}
		mulSliceXor(Coefficient(i), chunk, acc)
	}
	return acc, nil
}

// solveTwoErasures recovers two lost data chunks d1 (on target) and d2 (on
// peer) of the same group:
//
//	X = P ^ sum(survivors)            = d1 ^ d2
//	Y = Q ^ sum(c_i * known_i)        = c1*d1 ^ c2*d2
//	d1 = (Y ^ c2*X) / (c1 ^ c2), d2 = X ^ d1
//
// c1 != c2 by construction, so c1 ^ c2 is invertible.
func (e *Engine) solveTwoErasures(pd *topology.ParityDomain, g *topology.ParityGroup, target, peer topology.DriveId, stripe int, online func(topology.DriveId) bool, sources sourceSet) (d1, d2 []byte, err error) {
	x, err := e.readSource(g.ParityDrive, stripe, sources)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range g.DataDrives {
		if id == target || id == peer {
			continue
		}
		if !online(id) {
			return nil, nil, fmt.Errorf("third failure in group %d: %w", g.Id, ErrUnrecoverableChunk)
		}
		chunk, err := e.readSource(id, stripe, sources)
		if err != nil {
			return nil, nil, err
		}
		xorSlice(chunk, x)
	}

	y, err := e.weightedRemainder(pd, stripe, online, sources, target, peer)
	if err != nil {
		return nil, nil, err
	}

	c1 := Coefficient(pd.CoefficientIndex(target))
	c2 := Coefficient(pd.CoefficientIndex(peer))

	d1 = make([]byte, len(x))
	mulSliceConst(c2, x, d1) // c2*X
	xorSlice(y, d1)          // Y ^ c2*X
	divSliceConst(c1^c2, d1, d1)

	d2 = make([]byte, len(x))
	copy(d2, x)
	xorSlice(d1, d2)
	return d1, d2, nil
}

// reconstructLocalParity recomputes a group's XOR parity chunk, recovering
// any single missing data chunk through the weighted equation first.
func (e *Engine) reconstructLocalParity(layout *topology.Layout, g *topology.ParityGroup, stripe int, online func(topology.DriveId) bool, sources sourceSet) ([]byte, error) {
	pd := layout.DomainFor(g.ParityDrive)
	acc := make([]byte, e.ChunkSize())
	for _, id := range g.DataDrives {
		var chunk []byte
		var err error
		if online(id) {
			chunk, err = e.readSource(id, stripe, sources)
		} else {
			// the group's parity is the target, so only the weighted
			// equation can supply this chunk
			var partial []byte
			partial, err = e.weightedRemainder(pd, stripe, online, sources, id, -1)
			if err == nil {
				chunk = make([]byte, len(partial))
				divSliceConst(Coefficient(pd.CoefficientIndex(id)), partial, chunk)
			}
		}
		if err != nil {
			return nil, err
		}
		xorSlice(chunk, acc)
	}
	stats.ChunksReconstructed.WithLabelValues("xor").Inc()
	return acc, nil
}

// reconstructGlobalParity recomputes a domain's weighted parity chunk,
// recovering missing data chunks through their group's XOR equation.
func (e *Engine) reconstructGlobalParity(layout *topology.Layout, pd *topology.ParityDomain, stripe int, online func(topology.DriveId) bool, sources sourceSet) ([]byte, error) {
	acc := make([]byte, e.ChunkSize())
	for _, g := range pd.Groups {
		for _, id := range g.DataDrives {
			var chunk []byte
			var err error
			if online(id) {
				chunk, err = e.readSource(id, stripe, sources)
			} else {
				chunk, err = e.reconstructData(layout, g, id, stripe, online, sources)
			}
			if err != nil {
				return nil, err
			}
			mulSliceXor(Coefficient(pd.CoefficientIndex(id)), chunk, acc)
		}
	}
	stats.ChunksReconstructed.WithLabelValues("weighted").Inc()
	return acc, nil
}
