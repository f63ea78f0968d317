package command

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/array"
)

func init() {
	cmdWrite.Run = runWrite // break init cycle
}

var cmdWrite = &Command{
	UsageLine: "write -dir=/data/vdsim file1 [file2 ...]",
	Short:     "ingest local files into the array",
	Long: `Append the given local files to the array's chunk stream, striping
  them round robin over the eligible data drives and updating both parity
  levels synchronously.

  `,
}

var writeOptions = bindArrayFlags(cmdWrite)

func runWrite(cmd *Command, args []string) bool {
	if len(args) == 0 {
		cmd.Usage()
	}
	a, err := writeOptions.open()
	if err != nil {
		glog.Errorf("write: %v", err)
		return false
	}
	defer a.Close()

	var streams []array.FileStream
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			glog.Errorf("read %s: %v", path, err)
			return false
		}
		streams = append(streams, array.FileStream{Name: filepath.Base(path), Data: data})
	}

	records, err := a.WriteFiles(streams)
	if err != nil {
		glog.Errorf("write: %v", err)
		return false
	}
	for _, rec := range records {
		fmt.Printf("%s  %s  crc %08x  offset %d\n",
			rec.Name, humanize.Bytes(rec.Size), rec.Checksum, rec.DataOffset)
	}
	return true
}
