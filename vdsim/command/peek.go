package command

import (
	"encoding/hex"
	"fmt"

	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/topology"
)

func init() {
	cmdPeek.Run = runPeek // break init cycle
}

var cmdPeek = &Command{
	UsageLine: "peek -dir=/data/vdsim -drive=15 [-offset=0] [-size=256]",
	Short:     "hex-dump raw bytes of one drive container",
	Long: `Show the raw bytes of one drive at the given offset, parity and
  padding included, for inspecting the physical layout. Offline drives
  cannot be peeked.

  `,
}

var peekOptions = bindArrayFlags(cmdPeek)
var (
	peekDrive  = cmdPeek.Flag.Int("drive", 0, "global drive index")
	peekOffset = cmdPeek.Flag.Int64("offset", 0, "byte offset on the drive")
	peekSize   = cmdPeek.Flag.Int("size", 256, "bytes to show")
)

func runPeek(cmd *Command, args []string) bool {
	a, err := peekOptions.open()
	if err != nil {
		glog.Errorf("peek: %v", err)
		return false
	}
	defer a.Close()

	data, err := a.Peek(topology.DriveId(*peekDrive), *peekOffset, *peekSize)
	if err != nil {
		glog.Errorf("peek: %v", err)
		return false
	}
	role, _ := a.Topology().RoleOf(topology.DriveId(*peekDrive))
	fmt.Printf("drive %d (%v) offset %d:\n%s", *peekDrive, role, *peekOffset, hex.Dump(data))
	return true
}
