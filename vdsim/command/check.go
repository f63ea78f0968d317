package command

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/storage/erasure_coding"
)

func init() {
	cmdCheck.Run = runCheck // break init cycle
}

var cmdCheck = &Command{
	UsageLine: "check -dir=/data/vdsim",
	Short:     "classify the array's integrity",
	Long: `Classify every parity group and domain against the current failure
  set and report OK, RECOVERABLE or DATA_LOSS per group, per file, and as
  a rollup.

  `,
}

var checkOptions = bindArrayFlags(cmdCheck)
var checkVerbose = cmdCheck.Flag.Bool("v", false, "also list groups with no failures")

func runCheck(cmd *Command, args []string) bool {
	a, err := checkOptions.open()
	if err != nil {
		glog.Errorf("check: %v", err)
		return false
	}
	defer a.Close()

	report := a.CheckIntegrity()
	for _, g := range report.Groups {
		if g.Status == erasure_coding.StatusOK && !*checkVerbose {
			continue
		}
		fmt.Printf("group %3d (domain %2d)  %-12v %s  failed=%v\n",
			g.Group, g.Domain, g.Status, g.Detail, g.FailedDrives)
	}
	for _, d := range report.Domains {
		if d.Status == erasure_coding.StatusOK && !*checkVerbose {
			continue
		}
		fmt.Printf("domain %2d weighted parity (drive %d)  online=%v  %v\n",
			d.Domain, d.GlobalParityDrive, d.Online, d.Status)
	}
	for _, f := range report.Files {
		if f.Status == erasure_coding.StatusOK && !*checkVerbose {
			continue
		}
		fmt.Printf("file %-30s %v", f.Name, f.Status)
		if len(f.LostOffsets) > 0 {
			fmt.Printf("  lost offsets %v", f.LostOffsets)
		}
		fmt.Println()
	}
	if len(report.OfflineUnused) > 0 {
		fmt.Printf("offline unused drives: %v\n", report.OfflineUnused)
	}
	fmt.Printf("rollup: %v\n", report.Rollup)
	return true
}
