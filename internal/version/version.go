// Package version reports the version of bitzero compiled into a binary.
package version

import "runtime/debug"

// Default is the version reported when the build has no module version,
// e.g. binaries built from a checkout or test binaries.
const Default = "dev"

const modulePath = "github.com/tetratelabs/bitzero"

// GetBitzeroVersion returns the version of bitzero in the build info of the
// running binary: the main module version when bitzero is the main module,
// or the version of the dependency otherwise.
func GetBitzeroVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return versionOf(info)
}

func versionOf(info *debug.BuildInfo) (ret string) {
	if info.Main.Path == modulePath {
		ret = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			ret = dep.Version
			if dep.Replace != nil && dep.Replace.Version != "" {
				ret = dep.Replace.Version
			}
		}
	}
	if ret == "" || ret == "(devel)" {
		return Default
	}
	return ret
}
