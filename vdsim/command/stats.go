package command

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
)

func init() {
	cmdStats.Run = runStats // break init cycle
}

var cmdStats = &Command{
	UsageLine: "stats -dir=/data/vdsim",
	Short:     "print capacity and availability accounting",
	Long: `Print total and used capacity, the parity overhead ratio of the
  active placement mode, and per-Dbox drive availability.

  `,
}

var statsOptions = bindArrayFlags(cmdStats)

func runStats(cmd *Command, args []string) bool {
	a, err := statsOptions.open()
	if err != nil {
		glog.Errorf("stats: %v", err)
		return false
	}
	defer a.Close()

	st := a.Stats()
	fmt.Printf("mode            %v\n", st.Mode)
	fmt.Printf("total capacity  %s\n", humanize.Bytes(uint64(st.TotalCapacity)))
	fmt.Printf("data capacity   %s\n", humanize.Bytes(uint64(st.DataCapacity)))
	fmt.Printf("used            %s (%d files)\n", humanize.Bytes(uint64(st.UsedCapacity)), st.FileCount)
	fmt.Printf("parity overhead %.2f%%\n", st.OverheadRatio*100)
	for _, d := range st.Domains {
		fmt.Printf("%-8s online %2d  offline %2d  spares unused %d promoted %d\n",
			d.Name, d.DrivesOnline, d.DrivesOffline, d.SparesUnused, d.SparesPromoted)
	}
	return true
}
