package buildinfo

import (
	"runtime/debug"
	"sync"

	"golang.org/x/mod/semver"
)

var (
	buildInfo      *debug.BuildInfo
	buildInfoValid bool
	readBuildInfo  sync.Once

	version     string
	readVersion sync.Once

	// Injected with ldflags at build!
	tag string
)

// Version returns the semantic version of the build, reported as the
// package version trait of every identify event.
func Version() string {
	readVersion.Do(func() {
		revision, valid := revision()
		if valid && len(revision) >= 7 {
			revision = "+" + revision[:7]
		} else {
			revision = ""
		}
		if tag == "" {
			version = "v0.0.0-devel" + revision
			return
		}
		if semver.Build("v"+tag) == "" {
			tag += revision
		}
		version = "v" + tag
	})
	return version
}

// IsDev returns true when this is a development build.
func IsDev() bool {
	return tag == ""
}

func revision() (string, bool) {
	return find("vcs.revision")
}

// find returns false when the build info is unavailable, for example in
// binaries built without module support.
func find(key string) (string, bool) {
	readBuildInfo.Do(func() {
		buildInfo, buildInfoValid = debug.ReadBuildInfo()
	})
	if !buildInfoValid {
		return "", false
	}
	for _, setting := range buildInfo.Settings {
		if setting.Key != key {
			continue
		}
		return setting.Value, true
	}
	return "", false
}
