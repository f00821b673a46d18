// Package buildinfo reports the version of the running binary.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/restorepoint-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Anything not set that way is filled from the module build information
// the Go toolchain embeds.
package buildinfo
