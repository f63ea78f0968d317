package command

import (
	"fmt"

	"github.com/vdatasim/vdatasim/vdsim/array"
	"github.com/vdatasim/vdatasim/vdsim/topology"
	"github.com/vdatasim/vdatasim/vdsim/util"
)

// arrayOptions are the flags every array-touching subcommand shares.
type arrayOptions struct {
	dir  *string
	mode *string
}

func bindArrayFlags(cmd *Command) *arrayOptions {
	return &arrayOptions{
		dir:  cmd.Flag.String("dir", "./vdata", "directory holding the drive containers"),
		mode: cmd.Flag.String("mode", "normal", "placement mode: normal or ha"),
	}
}

// loadTopologyConfig merges vdsim.toml (if present) over the canonical
// 11x44 defaults.
func loadTopologyConfig() topology.Config {
	util.LoadConfiguration("vdsim", false)
	v := util.GetViper()

	def := topology.DefaultConfig()
	v.SetDefault("topology.domain_count", def.DomainCount)
	v.SetDefault("topology.drives_per_domain", def.DrivesPerDomain)
	v.SetDefault("topology.group_sizes", def.GroupSizes)
	v.SetDefault("topology.spare_count", def.SpareCount)
	v.SetDefault("topology.drive_size", int(def.DriveSize))
	v.SetDefault("topology.chunk_size", def.ChunkSize)
	v.SetDefault("topology.ha_eligible_per_domain", def.HAEligiblePerDomain)

	return topology.Config{
		DomainCount:         v.GetInt("topology.domain_count"),
		DrivesPerDomain:     v.GetInt("topology.drives_per_domain"),
		GroupSizes:          v.GetIntSlice("topology.group_sizes"),
		SpareCount:          v.GetInt("topology.spare_count"),
		DriveSize:           int64(v.GetInt("topology.drive_size")),
		ChunkSize:           v.GetInt("topology.chunk_size"),
		HAEligiblePerDomain: v.GetInt("topology.ha_eligible_per_domain"),
	}
}

func (o *arrayOptions) placementMode() (topology.Mode, error) {
	return topology.ParseMode(*o.mode)
}

// open reopens the array at -dir, recovering its file records.
func (o *arrayOptions) open() (*array.Array, error) {
	mode, err := o.placementMode()
	if err != nil {
		return nil, err
	}
	a, err := array.Open(array.Options{
		Dir:  *o.dir,
		Conf: loadTopologyConfig(),
		Mode: mode,
	})
	if err != nil {
		return nil, fmt.Errorf("open array at %s: %v", *o.dir, err)
	}
	return a, nil
}
