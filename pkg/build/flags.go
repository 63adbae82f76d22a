// SPDX-License-Identifier: MIT
//
// Package build carries version metadata injected at compile time via
// linker flags, e.g.:
//
//	go build -ldflags "-X unravel/pkg/build.version=0.3.0 \
//	    -X unravel/pkg/build.commit=$(git rev-parse --short HEAD) \
//	    -X unravel/pkg/build.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Development builds fall back to "dev"/"unknown" values so the binary is
// usable without the flags.
package build

import "fmt"

var (
	name    = "unravel"
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info describes the running binary.
type Info struct {
	Name    string
	Version string
	Commit  string
	Date    string
}

// Get returns the build information for the running binary.
func Get() Info {
	return Info{
		Name:    name,
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// String renders the build information in a single line suitable for
// --version output and startup logs.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Date)
}
