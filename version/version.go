// Package version exposes build information set via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Populated at build time:
//
//	go build -ldflags "-X github.com/jackzampolin/threadtag/version.GitRelease=v0.1.0 ..."
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)
