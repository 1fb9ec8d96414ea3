// ABOUTME: Disk usage fallback for platforms without statfs.
// ABOUTME: Reports usage as unavailable.

//go:build !linux && !darwin

package sysinfo

import "errors"

func diskUsage(string) (*DiskUsage, error) {
	return nil, errors.New("disk usage not supported on this platform")
}

func kernelRelease() string { return "" }
