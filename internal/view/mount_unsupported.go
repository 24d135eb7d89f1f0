//go:build !linux
// +build !linux

package view

import "fmt"

// Mount is unavailable on non-Linux builds; the live view projector
// depends on go-fuse, which this build excludes.
func Mount(mountPoint string, entries []Entry, allowOther bool) error {
	return fmt.Errorf("view: FUSE mount is only supported on linux builds")
}

// MountBackground is unavailable on non-Linux builds, for the same reason.
func MountBackground(mountPoint string, entries []Entry, allowOther bool) (func() error, error) {
	return nil, fmt.Errorf("view: FUSE mount is only supported on linux builds")
}
