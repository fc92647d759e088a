package context

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// VersionInfo is the application version, read from the build information
// embedded by the Go toolchain.
type VersionInfo struct {
	Semantic string
	Commit   string
	Dirty    bool
}

func (vi *VersionInfo) String() string {
	if vi.Commit == "" {
		return vi.Semantic
	}

	commit := vi.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if vi.Dirty {
		commit += "-dirty"
	}

	return fmt.Sprintf("%s (%s)", vi.Semantic, commit)
}

// GetVersion returns the version of the running binary.
func GetVersion() (*VersionInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("failed reading build information")
	}

	vi := &VersionInfo{Semantic: bi.Main.Version}
	if vi.Semantic == "" {
		vi.Semantic = "(devel)"
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			vi.Commit = s.Value
		case "vcs.modified":
			vi.Dirty = s.Value == "true"
		}
	}

	return vi, nil
}
