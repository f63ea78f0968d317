package command

import (
	"os"
	"path/filepath"
)

func init() {
	cmdScaffold.Run = runScaffold // break init cycle
}

var cmdScaffold = &Command{
	UsageLine: "scaffold -config=vdsim",
	Short:     "generate basic configuration files",
	Long: `Generate vdsim.toml with the topology parameters for you to customize.

  `,
}

var (
	outputPath = cmdScaffold.Flag.String("output", "", "if not empty, save the configuration file to this directory")
	config     = cmdScaffold.Flag.String("config", "vdsim", "the configuration file to generate")
)

func runScaffold(cmd *Command, args []string) bool {
	if *config != "vdsim" {
		println("need a valid -config option")
		return false
	}

	if *outputPath != "" {
		os.WriteFile(filepath.Join(*outputPath, *config+".toml"), []byte(VDSIM_TOML_EXAMPLE), 0644)
	} else {
		println(VDSIM_TOML_EXAMPLE)
	}
	return true
}

const VDSIM_TOML_EXAMPLE = `
# A sample TOML config file for the vdsim drive array
# Put this file to one of the locations, with descending priority
#    ./vdsim.toml
#    $HOME/.vdatasim/vdsim.toml
#    /etc/vdatasim/vdsim.toml

[topology]
# number of Dboxes in the array
domain_count = 11
# drives per Dbox: data + one local parity per group + global parity + spares
drives_per_domain = 44
# how the data drives of one Dbox tile into XOR parity groups
group_sizes = [13, 13, 12]
# hot spares per Dbox
spare_count = 2
# bytes per simulated drive, must be a multiple of chunk_size
drive_size = 1048576
# bytes per chunk, the striping and parity unit
chunk_size = 4096
# data slots per Dbox that stay eligible under ha placement
ha_eligible_per_domain = 2
`
