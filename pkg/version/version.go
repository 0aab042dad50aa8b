// Package version contains build version information for Quarry.
package version

// Version is the current Quarry version.
// Overridden at build time via -ldflags "-X github.com/quarrylabs/quarry/pkg/version.Version=x.y.z".
var Version = "0.3.0"
