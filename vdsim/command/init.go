package command

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/array"
	"github.com/vdatasim/vdatasim/vdsim/util"
)

func init() {
	cmdInit.Run = runInit // break init cycle
}

var cmdInit = &Command{
	UsageLine: "init -dir=/data/vdsim [-mode=normal|ha] [-reset]",
	Short:     "create the drive containers for a new array",
	Long: `Create one container file per drive under -dir and derive the
  topology from vdsim.toml (or the built-in 11x44 default). Initializing
  over an existing array fails unless -reset is given.

  `,
}

var initOptions = bindArrayFlags(cmdInit)
var initReset = cmdInit.Flag.Bool("reset", false, "wipe an existing array at -dir")

func runInit(cmd *Command, args []string) bool {
	mode, err := initOptions.placementMode()
	if err != nil {
		glog.Errorf("init: %v", err)
		return false
	}
	a, err := array.Initialize(array.Options{
		Dir:   *initOptions.dir,
		Conf:  loadTopologyConfig(),
		Mode:  mode,
		Reset: *initReset,
	})
	if err != nil {
		glog.Errorf("init: %v", err)
		return false
	}
	defer a.Close()

	st := a.Stats()
	conf := a.Topology().Conf()
	fmt.Printf("initialized %d x %d drives under %s\n", conf.DomainCount, conf.DrivesPerDomain, *initOptions.dir)
	fmt.Printf("drive size %s, chunk size %d bytes\n", util.BytesToHumanReadable(uint64(conf.DriveSize)), conf.ChunkSize)
	fmt.Printf("mode %v, data capacity %s, parity overhead %.2f%%\n",
		st.Mode, humanize.Bytes(uint64(st.DataCapacity)), st.OverheadRatio*100)
	return true
}
