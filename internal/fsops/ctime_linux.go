// ABOUTME: Inode change time from the Linux stat structure.
// ABOUTME: Reported as created by get_file_info.

//go:build linux

package fsops

import (
	"io/fs"
	"syscall"
	"time"
)

func changeTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return info.ModTime()
}
