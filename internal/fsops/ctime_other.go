// ABOUTME: Change time fallback for non-Linux platforms.
// ABOUTME: Falls back to the modification time.

//go:build !linux

package fsops

import (
	"io/fs"
	"time"
)

// changeTime falls back to the modification time where the inode change
// time is not exposed uniformly.
func changeTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
