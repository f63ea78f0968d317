package version

import "fmt"

const (
	MajorVersion = 1
	MinorVersion = 2
	VERSION      = "1.2"
)

var COMMIT = ""

func Version() string {
	if COMMIT == "" {
		return fmt.Sprintf("%d.%02d", MajorVersion, MinorVersion)
	}
	return fmt.Sprintf("%d.%02d %s", MajorVersion, MinorVersion, COMMIT)
}
