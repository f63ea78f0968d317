package command

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/storage/erasure_coding"
	"github.com/vdatasim/vdatasim/vdsim/topology"
)

func init() {
	cmdRebuild.Run = runRebuild // break init cycle
}

var cmdRebuild = &Command{
	UsageLine: "rebuild -dir=/data/vdsim [-drives=15,27] [-strategy=restore_in_place|promote_spare]",
	Short:     "reconstruct failed drives from surviving parity",
	Long: `Rebuild the listed drives, or every offline drive when -drives is
  empty. restore_in_place writes the reconstructed content back to the
  failed drive's own container; promote_spare writes it to an unused hot
  spare of the same domain, which then assumes the failed drive's
  identity. DATA_LOSS groups are skipped and reported, not retried.

  `,
}

var rebuildOptions = bindArrayFlags(cmdRebuild)
var (
	rebuildDrives   = cmdRebuild.Flag.String("drives", "", "comma-separated global drive indices, empty for all offline drives")
	rebuildStrategy = cmdRebuild.Flag.String("strategy", "restore_in_place", "restore_in_place or promote_spare")
)

func runRebuild(cmd *Command, args []string) bool {
	strategy, err := erasure_coding.ParseStrategy(*rebuildStrategy)
	if err != nil {
		glog.Errorf("rebuild: %v", err)
		return false
	}
	a, err := rebuildOptions.open()
	if err != nil {
		glog.Errorf("rebuild: %v", err)
		return false
	}
	defer a.Close()

	var targets []topology.DriveId
	if *rebuildDrives != "" {
		if targets, err = parseDriveList(*rebuildDrives); err != nil {
			glog.Errorf("rebuild: %v", err)
			return false
		}
	}

	report, err := a.Rebuild(targets, strategy)
	if err != nil {
		glog.Errorf("rebuild: %v", err)
		return false
	}

	fmt.Printf("rebuild %s (%v)\n", report.Id, report.Strategy)
	for _, d := range report.Drives {
		fmt.Printf("drive %3d  %-8v chunks=%d sources=%d", d.Drive, d.Outcome, d.ChunksReconstructed, len(d.Sources))
		if d.PromotedSpare >= 0 {
			fmt.Printf("  promoted spare %d", d.PromotedSpare)
		}
		if d.Detail != "" {
			fmt.Printf("  (%s)", d.Detail)
		}
		if len(d.UnrecoverableChunks) > 0 {
			fmt.Printf("  unrecoverable chunks %d", len(d.UnrecoverableChunks))
		}
		fmt.Println()
	}
	if report.Partial {
		fmt.Println("rebuild incomplete: some drives were skipped or left offline")
	}
	return true
}
