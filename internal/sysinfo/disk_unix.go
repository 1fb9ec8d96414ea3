// ABOUTME: Disk usage for the workspace filesystem via statfs.
// ABOUTME: Used by get_system_info on Linux and macOS.

//go:build linux || darwin

package sysinfo

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

func diskUsage(path string) (*DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, err
	}
	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	used := total - st.Bfree*bsize
	return &DiskUsage{
		Total:      total,
		Used:       used,
		Free:       free,
		TotalHuman: humanize.Bytes(total),
		UsedHuman:  humanize.Bytes(used),
		FreeHuman:  humanize.Bytes(free),
	}, nil
}

func kernelRelease() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return ""
	}
	return unix.ByteSliceToString(u.Release[:])
}
