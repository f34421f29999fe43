package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	-X github.com/objex-dev/objex/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func GoVersion() string {
	return runtime.Version()
}

// String is the one-line banner printed by `objex version`.
func String() string {
	return fmt.Sprintf("objex %s (%s) built %s, %s", Version, Commit, BuildDate, GoVersion())
}
