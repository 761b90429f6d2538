// Package version reports the build version of carboncounter.
package version

// version is set at build time with
// -ldflags "-X github.com/rshade/carboncounter/pkg/version.version=v1.0.0".
var version = "dev" //nolint:gochecknoglobals // overridden by the linker

// GetVersion returns the build version.
func GetVersion() string {
	return version
}
