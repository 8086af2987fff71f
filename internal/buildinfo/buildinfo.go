// Package buildinfo exposes version metadata injected at link time:
//
//	go build -ldflags "-X github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/buildinfo.Version=v0.3.0"
package buildinfo

import "runtime/debug"

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

// Info is the version triple reported by health checks and the CLI.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
}

// Get returns the link-time values, filling the revision from the module's
// VCS stamp when none was injected.
func Get() Info {
	info := Info{Version: Version, Revision: Revision, BuildDate: BuildDate}
	if info.Revision != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Revision = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	s := i.Version
	if i.Revision != "" {
		r := i.Revision
		if len(r) > 12 {
			r = r[:12]
		}
		s += " (" + r + ")"
	}
	if i.BuildDate != "" {
		s += " built " + i.BuildDate
	}
	return s
}
