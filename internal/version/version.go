// Package version holds the build version stamped into binaries and the
// process title.
package version

// Version is overridden at build time with -ldflags.
var Version = "0.1.0"
