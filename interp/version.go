package interp

import (
	"fmt"
	"runtime/debug"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

const runtimeModulePath = "go.starlark.net"

// RuntimeVersion returns the version of the Starlark module this binary was built with.
func RuntimeVersion() (*semver.Version, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("build info unavailable")
	}
	for _, dep := range info.Deps {
		if dep.Path != runtimeModulePath {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		version, err := semver.NewVersion(dep.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't parse %s version %s", runtimeModulePath, dep.Version)
		}
		return version, nil
	}
	return nil, errors.Errorf("%s not found in build info", runtimeModulePath)
}

// FormatVersion renders a version as "major.minor".
func FormatVersion(version *semver.Version) string {
	return fmt.Sprintf("%d.%d", version.Major(), version.Minor())
}
