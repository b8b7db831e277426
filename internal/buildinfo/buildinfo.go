// Package buildinfo carries version data stamped at link time, e.g.
// -ldflags "-X vspcbal/internal/buildinfo.Version=v1.2.0".
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the stamped values, filling the commit from the module's VCS
// data when it was not set.
func Info() map[string]string {
	commit, builtAt := Commit, BuiltAt
	goVersion := ""
	if bi, ok := debug.ReadBuildInfo(); ok {
		goVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if builtAt == "" {
					builtAt = s.Value
				}
			}
		}
	}
	return map[string]string{
		"version":   Version,
		"commit":    commit,
		"builtAt":   builtAt,
		"goVersion": goVersion,
	}
}
