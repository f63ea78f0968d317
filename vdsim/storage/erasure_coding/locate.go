package erasure_coding

import (
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

// ChunkLocation places one logical chunk on a data drive.
type ChunkLocation struct {
	Index  int // logical chunk index in the stream
	Drive  topology.DriveId
	Stripe int   // stripe number on the drive
	Offset int64 // byte offset on the drive
}

// LocateChunk maps chunk i to eligible drive (i mod N) at stripe (i div N).
// The round robin keeps the layout deterministic and spreads every file
// evenly across domains.
func LocateChunk(layout *topology.Layout, chunkSize int, chunkIndex int) ChunkLocation {
	n := len(layout.EligibleDataDrives)
	stripe := chunkIndex / n
	return ChunkLocation{
		Index:  chunkIndex,
		Drive:  layout.EligibleDataDrives[chunkIndex%n],
		Stripe: stripe,
		Offset: int64(stripe) * int64(chunkSize),
	}
}

// LocateStream lays out a whole stream of chunkCount chunks starting at
// chunk index first.
func LocateStream(layout *topology.Layout, chunkSize int, first, chunkCount int) []ChunkLocation {
	locs := make([]ChunkLocation, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		locs = append(locs, LocateChunk(layout, chunkSize, first+i))
	}
	return locs
}
