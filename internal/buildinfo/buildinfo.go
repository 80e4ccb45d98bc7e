// Package buildinfo holds version metadata injected at link time:
//
//	go build -ldflags "-X github.com/yardwatch/yardwatch/internal/buildinfo.Version=v1.2.0"
package buildinfo

import "fmt"

var (
	Version   = "dev"
	BuildDate = "unknown"
)

// String renders the version line printed by the version command.
func String() string {
	return fmt.Sprintf("yardwatch %s (built %s)", Version, BuildDate)
}
