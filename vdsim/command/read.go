package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/vdatasim/vdatasim/vdsim/array"
)

func init() {
	cmdRead.Run = runRead // break init cycle
}

var cmdRead = &Command{
	UsageLine: "read -dir=/data/vdsim [-o=outputFile] fileName",
	Short:     "read one file back out of the array",
	Long: `Reassemble a file from its chunks in assignment order. Chunks on
  offline drives are reconstructed in memory when the failure set is
  recoverable; unrecoverable files report the lost stream offsets.

  `,
}

var readOptions = bindArrayFlags(cmdRead)
var readOutput = cmdRead.Flag.String("o", "", "write to this file instead of stdout")

func runRead(cmd *Command, args []string) bool {
	if len(args) != 1 {
		cmd.Usage()
	}
	a, err := readOptions.open()
	if err != nil {
		glog.Errorf("read: %v", err)
		return false
	}
	defer a.Close()

	data, err := a.ReadFileByName(args[0])
	if err != nil {
		var lost *array.UnrecoverableError
		if errors.As(err, &lost) {
			glog.Errorf("read %s: data loss at stream offsets %v", args[0], lost.Offsets)
		} else {
			glog.Errorf("read %s: %v", args[0], err)
		}
		return false
	}

	if *readOutput == "" {
		os.Stdout.Write(data)
		return true
	}
	if err := os.WriteFile(*readOutput, data, 0644); err != nil {
		glog.Errorf("write %s: %v", *readOutput, err)
		return false
	}
	fmt.Printf("%s: %d bytes\n", *readOutput, len(data))
	return true
}
