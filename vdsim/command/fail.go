package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/topology"
)

func init() {
	cmdFail.Run = runFail // break init cycle
}

var cmdFail = &Command{
	UsageLine: "fail -dir=/data/vdsim -drives=15,27,31 [-online=false]",
	Short:     "flip drive or domain online flags",
	Long: `Simulate drive failures or repairs by flipping the online flag on
  drives (-drives) or a whole Dbox (-domain). Flag flips have no side
  effect; rebuild is always a separate, explicit step.

  `,
}

var failOptions = bindArrayFlags(cmdFail)
var (
	failDrives = cmdFail.Flag.String("drives", "", "comma-separated global drive indices")
	failDomain = cmdFail.Flag.Int("domain", -1, "toggle every drive of this domain")
	failOnline = cmdFail.Flag.Bool("online", false, "the flag value to set")
)

func parseDriveList(list string) ([]topology.DriveId, error) {
	var out []topology.DriveId
	for _, part := range strings.Split(list, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad drive index %q", part)
		}
		out = append(out, topology.DriveId(id))
	}
	return out, nil
}

func runFail(cmd *Command, args []string) bool {
	if *failDrives == "" && *failDomain < 0 {
		cmd.Usage()
	}
	a, err := failOptions.open()
	if err != nil {
		glog.Errorf("fail: %v", err)
		return false
	}
	defer a.Close()

	if *failDomain >= 0 {
		if err := a.SetDomainOnline(topology.DomainId(*failDomain), *failOnline); err != nil {
			glog.Errorf("fail: %v", err)
			return false
		}
		fmt.Printf("domain %d set online=%v\n", *failDomain, *failOnline)
	}
	if *failDrives != "" {
		drives, err := parseDriveList(*failDrives)
		if err != nil {
			glog.Errorf("fail: %v", err)
			return false
		}
		for _, id := range drives {
			if err := a.SetDriveOnline(id, *failOnline); err != nil {
				glog.Errorf("fail: drive %d: %v", id, err)
				return false
			}
		}
		fmt.Printf("%d drives set online=%v\n", len(drives), *failOnline)
	}

	fmt.Printf("integrity: %v\n", a.CheckIntegrity().Rollup)
	return true
}
