package erasure_coding

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/vdatasim/vdatasim/vdsim/storage"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

func testConf() topology.Config {
	return topology.Config{
		DomainCount:         3,
		DrivesPerDomain:     10,
		GroupSizes:          []int{3, 2},
		SpareCount:          2,
		DriveSize:           8 * 512,
		ChunkSize:           512,
		HAEligiblePerDomain: 2,
	}
}

func newTestEngine(t *testing.T) (*Engine, *topology.Topology, *storage.Store, *topology.Layout) {
	t.Helper()
	topo, err := topology.NewTopology(testConf())
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}
	store := storage.NewMemoryStore(testConf())
	t.Cleanup(func() { store.Close() })
	e := NewEngine(topo, store)
	return e, topo, store, topo.Layout(topology.ModeNormal)
}

// fill writes random chunks across all eligible drives for the given number
// of stripes and returns the chunk contents by drive and stripe.
func fill(t *testing.T, e *Engine, layout *topology.Layout, stripes int, seed int64) map[topology.DriveId][][]byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	written := make(map[topology.DriveId][][]byte)
	n := len(layout.EligibleDataDrives)
	for i := 0; i < n*stripes; i++ {
		chunk := make([]byte, e.ChunkSize())
		rng.Read(chunk)
		loc := LocateChunk(layout, e.ChunkSize(), i)
		if err := e.WriteChunk(layout, loc, chunk); err != nil {
			t.Fatalf("WriteChunk %d: %v", i, err)
		}
		written[loc.Drive] = append(written[loc.Drive], chunk)
	}
	return written
}

func allOnline(topology.DriveId) bool { return true }

func TestLocalParityInvariant(t *testing.T) {
	e, _, _, layout := newTestEngine(t)
	fill(t, e, layout, 4, 1)

	for _, pd := range layout.ParityDomains {
		for _, g := range pd.Groups {
			for stripe := 0; stripe < 4; stripe++ {
				var chunks [][]byte
				for _, id := range g.DataDrives {
					c, err := e.ReadChunk(id, stripe)
					if err != nil {
						t.Fatal(err)
					}
					chunks = append(chunks, c)
				}
				parity, err := e.ReadChunk(g.ParityDrive, stripe)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(Recombine(chunks), parity) {
					t.Errorf("group %d stripe %d: XOR parity does not match data", g.Id, stripe)
				}
			}
		}
	}
}

func TestGlobalParityInvariant(t *testing.T) {
	e, _, _, layout := newTestEngine(t)
	fill(t, e, layout, 4, 2)

	for _, pd := range layout.ParityDomains {
		for stripe := 0; stripe < 4; stripe++ {
			want := make([]byte, e.ChunkSize())
			for i, id := range pd.DataDrives {
				c, err := e.ReadChunk(id, stripe)
				if err != nil {
					t.Fatal(err)
				}
				mulSliceXor(Coefficient(i), c, want)
			}
			got, err := e.ReadChunk(pd.GlobalParityDrive, stripe)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("domain %d stripe %d: weighted parity mismatch", pd.Id, stripe)
			}
		}
	}
}

func TestParityUpdatedOnOverwrite(t *testing.T) {
	e, _, _, layout := newTestEngine(t)
	fill(t, e, layout, 2, 3)

	// overwrite one chunk and expect both parities to track it
	loc := LocateChunk(layout, e.ChunkSize(), 0)
	update := bytes.Repeat([]byte{0x5A}, e.ChunkSize())
	if err := e.WriteChunk(layout, loc, update); err != nil {
		t.Fatal(err)
	}

	g := layout.GroupFor(loc.Drive)
	var chunks [][]byte
	for _, id := range g.DataDrives {
		c, _ := e.ReadChunk(id, loc.Stripe)
		chunks = append(chunks, c)
	}
	parity, _ := e.ReadChunk(g.ParityDrive, loc.Stripe)
	if !bytes.Equal(Recombine(chunks), parity) {
		t.Error("local parity stale after overwrite")
	}

	pd := layout.DomainFor(loc.Drive)
	want := make([]byte, e.ChunkSize())
	for i, id := range pd.DataDrives {
		c, _ := e.ReadChunk(id, loc.Stripe)
		mulSliceXor(Coefficient(i), c, want)
	}
	global, _ := e.ReadChunk(pd.GlobalParityDrive, loc.Stripe)
	if !bytes.Equal(global, want) {
		t.Error("weighted parity stale after overwrite")
	}
}

func TestReconstructSingleDataFailure(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	written := fill(t, e, layout, 4, 4)

	for _, target := range layout.EligibleDataDrives {
		store.SetDriveOnline(target, false)
		online := e.Availability(store.OnlineSnapshot())
		for stripe := 0; stripe < 4; stripe++ {
			got, sources, err := e.ReconstructChunk(layout, target, stripe, online)
			if err != nil {
				t.Fatalf("drive %d stripe %d: %v", target, stripe, err)
			}
			if !bytes.Equal(got, written[target][stripe]) {
				t.Fatalf("drive %d stripe %d: wrong content", target, stripe)
			}
			if len(sources) == 0 {
				t.Fatalf("drive %d: no sources recorded", target)
			}
		}
		store.SetDriveOnline(target, true)
	}
}

func TestReconstructDoubleDataFailure(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	written := fill(t, e, layout, 4, 5)

	for _, pd := range layout.ParityDomains {
		for _, g := range pd.Groups {
			if len(g.DataDrives) < 2 {
				continue
			}
			a, b := g.DataDrives[0], g.DataDrives[len(g.DataDrives)-1]
			store.SetDriveOnline(a, false)
			store.SetDriveOnline(b, false)
			online := e.Availability(store.OnlineSnapshot())

			for stripe := 0; stripe < 4; stripe++ {
				for _, target := range []topology.DriveId{a, b} {
					got, _, err := e.ReconstructChunk(layout, target, stripe, online)
					if err != nil {
						t.Fatalf("group %d target %d: %v", g.Id, target, err)
					}
					if !bytes.Equal(got, written[target][stripe]) {
						t.Fatalf("group %d target %d stripe %d: wrong content", g.Id, target, stripe)
					}
				}
			}
			store.SetDriveOnline(a, true)
			store.SetDriveOnline(b, true)
		}
	}
}

func TestReconstructDataWithParityLost(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	written := fill(t, e, layout, 2, 6)

	g := layout.ParityDomains[0].Groups[0]
	target := g.DataDrives[1]
	store.SetDriveOnline(target, false)
	store.SetDriveOnline(g.ParityDrive, false)
	online := e.Availability(store.OnlineSnapshot())

	for stripe := 0; stripe < 2; stripe++ {
		got, _, err := e.ReconstructChunk(layout, target, stripe, online)
		if err != nil {
			t.Fatalf("stripe %d: %v", stripe, err)
		}
		if !bytes.Equal(got, written[target][stripe]) {
			t.Errorf("stripe %d: wrong content via weighted equation", stripe)
		}
	}

	// and the parity drive itself is recomputable
	for stripe := 0; stripe < 2; stripe++ {
		got, _, err := e.ReconstructChunk(layout, g.ParityDrive, stripe, online)
		if err != nil {
			t.Fatalf("parity stripe %d: %v", stripe, err)
		}
		want := make([]byte, e.ChunkSize())
		for _, id := range g.DataDrives {
			xorSlice(written[id][stripe], want)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("parity stripe %d: wrong content", stripe)
		}
	}
}

func TestReconstructRejectsTripleFailure(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	fill(t, e, layout, 2, 7)

	g := layout.ParityDomains[0].Groups[0] // 3 data drives
	for _, id := range g.DataDrives {
		store.SetDriveOnline(id, false)
	}
	online := e.Availability(store.OnlineSnapshot())

	_, _, err := e.ReconstructChunk(layout, g.DataDrives[0], 0, online)
	if !errors.Is(err, ErrUnrecoverableChunk) {
		t.Errorf("triple failure err = %v, want ErrUnrecoverableChunk", err)
	}
}

func TestClassify(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	fill(t, e, layout, 2, 8)

	classify := func() *Report {
		return e.Classify(layout, e.Availability(store.OnlineSnapshot()))
	}

	if r := classify(); r.Rollup != StatusOK {
		t.Fatalf("all online rollup = %v", r.Rollup)
	}

	pd := layout.ParityDomains[0]
	g := pd.Groups[0]

	// single failure
	store.SetDriveOnline(g.DataDrives[0], false)
	if r := classify(); r.StatusOfGroup(g.Id) != StatusRecoverable || r.Rollup != StatusRecoverable {
		t.Error("single failure should be RECOVERABLE")
	}

	// double failure, weighted parity intact
	store.SetDriveOnline(g.DataDrives[1], false)
	if r := classify(); r.StatusOfGroup(g.Id) != StatusRecoverable {
		t.Error("double failure with weighted parity should be RECOVERABLE")
	}

	// triple failure
	store.SetDriveOnline(g.DataDrives[2], false)
	if r := classify(); r.StatusOfGroup(g.Id) != StatusDataLoss || r.Rollup != StatusDataLoss {
		t.Error("triple failure should be DATA_LOSS")
	}
	store.SetDriveOnline(g.DataDrives[2], true)

	// double failure with the weighted parity gone
	store.SetDriveOnline(pd.GlobalParityDrive, false)
	if r := classify(); r.StatusOfGroup(g.Id) != StatusDataLoss {
		t.Error("double failure without weighted parity should be DATA_LOSS")
	}
	store.SetDriveOnline(pd.GlobalParityDrive, true)

	// double failure with another group's drive in the domain also down:
	// the weighted equation cannot be isolated
	other := pd.Groups[1]
	store.SetDriveOnline(other.DataDrives[0], false)
	if r := classify(); r.StatusOfGroup(g.Id) != StatusDataLoss {
		t.Error("double failure with sibling-group failure should be DATA_LOSS")
	}
	store.SetDriveOnline(other.DataDrives[0], true)
	store.SetDriveOnline(g.DataDrives[0], true)
	store.SetDriveOnline(g.DataDrives[1], true)
}

func TestClassifyCrossGroupIndependence(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	fill(t, e, layout, 2, 9)

	// one failure in every group, spread across all domains
	for _, pd := range layout.ParityDomains {
		for _, g := range pd.Groups {
			store.SetDriveOnline(g.DataDrives[0], false)
		}
	}
	r := e.Classify(layout, e.Availability(store.OnlineSnapshot()))
	if r.Rollup != StatusRecoverable {
		t.Fatalf("rollup = %v, want RECOVERABLE", r.Rollup)
	}
	for _, gs := range r.Groups {
		if gs.Status != StatusRecoverable {
			t.Errorf("group %d = %v, want RECOVERABLE", gs.Group, gs.Status)
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	fill(t, e, layout, 2, 10)

	g := layout.ParityDomains[1].Groups[0]
	store.SetDriveOnline(g.DataDrives[0], false)
	store.SetDriveOnline(g.DataDrives[1], false)

	online := e.Availability(store.OnlineSnapshot())
	r1 := e.Classify(layout, online)
	r2 := e.Classify(layout, online)
	if r1.Rollup != r2.Rollup || len(r1.Groups) != len(r2.Groups) {
		t.Fatal("classification is not idempotent")
	}
	for i := range r1.Groups {
		if r1.Groups[i].Status != r2.Groups[i].Status {
			t.Errorf("group %d status differs between calls", r1.Groups[i].Group)
		}
	}
}

func TestRebuildRestoreInPlace(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	written := fill(t, e, layout, 4, 11)

	target := layout.EligibleDataDrives[3]
	store.SetDriveOnline(target, false)

	records, err := e.RebuildDrives(layout, []topology.DriveId{target}, RestoreInPlace)
	if err != nil {
		t.Fatalf("RebuildDrives: %v", err)
	}
	if len(records) != 1 || records[0].Outcome != RebuildDone {
		t.Fatalf("record = %+v", records[0])
	}
	if !store.IsOnline(target) {
		t.Fatal("drive not back online after rebuild")
	}
	for stripe := 0; stripe < 4; stripe++ {
		got, err := e.ReadChunk(target, stripe)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, written[target][stripe]) {
			t.Errorf("stripe %d differs from pre-failure content", stripe)
		}
	}
}

func TestRebuildPromoteSpare(t *testing.T) {
	e, topo, store, layout := newTestEngine(t)
	written := fill(t, e, layout, 4, 12)

	target := layout.EligibleDataDrives[0]
	store.SetDriveOnline(target, false)

	records, err := e.RebuildDrives(layout, []topology.DriveId{target}, PromoteSpare)
	if err != nil {
		t.Fatalf("RebuildDrives: %v", err)
	}
	rec := records[0]
	if rec.Outcome != RebuildDone || rec.PromotedSpare < 0 {
		t.Fatalf("record = %+v", rec)
	}
	if got := topo.Resolve(target); got != rec.PromotedSpare {
		t.Errorf("Resolve(%d) = %d, want %d", target, got, rec.PromotedSpare)
	}
	// the logical drive reads the rebuilt bytes off the spare's container
	for stripe := 0; stripe < 4; stripe++ {
		got, err := e.ReadChunk(target, stripe)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, written[target][stripe]) {
			t.Errorf("stripe %d differs after promotion", stripe)
		}
	}
	// the dead container itself stays offline
	if store.IsOnline(target) {
		t.Error("failed container flag flipped despite promotion")
	}
}

func TestRebuildSkipsDataLossGroup(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	fill(t, e, layout, 2, 13)

	g := layout.ParityDomains[0].Groups[0]
	for _, id := range g.DataDrives {
		store.SetDriveOnline(id, false)
	}

	records, err := e.RebuildDrives(layout, g.DataDrives, RestoreInPlace)
	if err != nil {
		t.Fatalf("RebuildDrives: %v", err)
	}
	for _, rec := range records {
		if rec.Outcome != RebuildSkipped {
			t.Errorf("drive %d outcome %v, want SKIPPED", rec.Drive, rec.Outcome)
		}
		if len(rec.UnrecoverableChunks) == 0 {
			t.Errorf("drive %d reported no unrecoverable chunks", rec.Drive)
		}
		if store.IsOnline(rec.Drive) {
			t.Errorf("drive %d flipped online despite DATA_LOSS", rec.Drive)
		}
	}
}

func TestRebuildParityDrives(t *testing.T) {
	e, _, store, layout := newTestEngine(t)
	fill(t, e, layout, 2, 14)

	pd := layout.ParityDomains[2]
	g := pd.Groups[1]
	before, _ := e.ReadChunk(g.ParityDrive, 0)
	beforeGlobal, _ := e.ReadChunk(pd.GlobalParityDrive, 0)

	store.SetDriveOnline(g.ParityDrive, false)
	store.SetDriveOnline(pd.GlobalParityDrive, false)

	records, err := e.RebuildDrives(layout, []topology.DriveId{g.ParityDrive, pd.GlobalParityDrive}, RestoreInPlace)
	if err != nil {
		t.Fatalf("RebuildDrives: %v", err)
	}
	for _, rec := range records {
		if rec.Outcome != RebuildDone {
			t.Fatalf("drive %d outcome %v: %s", rec.Drive, rec.Outcome, rec.Detail)
		}
	}
	after, _ := e.ReadChunk(g.ParityDrive, 0)
	afterGlobal, _ := e.ReadChunk(pd.GlobalParityDrive, 0)
	if !bytes.Equal(before, after) {
		t.Error("XOR parity content differs after rebuild")
	}
	if !bytes.Equal(beforeGlobal, afterGlobal) {
		t.Error("weighted parity content differs after rebuild")
	}
}

func TestHAModeDomainFailureReconstructs(t *testing.T) {
	e, _, store, _ := newTestEngine(t)
	layout := e.topo.Layout(topology.ModeHA)
	if layout == nil {
		t.Fatal("no HA layout")
	}
	written := fill(t, e, layout, 4, 15)

	// kill a whole domain
	store.SetDomainOnline(0, false)
	online := e.Availability(store.OnlineSnapshot())

	r := e.Classify(layout, online)
	if r.Rollup != StatusRecoverable {
		t.Fatalf("HA domain failure rollup = %v, want RECOVERABLE", r.Rollup)
	}

	// both data drives of the dead domain solve via the cross-domain
	// equations
	for _, target := range layout.ParityDomains[0].DataDrives {
		for stripe := 0; stripe < 4; stripe++ {
			got, _, err := e.ReconstructChunk(layout, target, stripe, online)
			if err != nil {
				t.Fatalf("target %d stripe %d: %v", target, stripe, err)
			}
			if !bytes.Equal(got, written[target][stripe]) {
				t.Errorf("target %d stripe %d: wrong content", target, stripe)
			}
		}
	}
}
