//go:build linux

package scanner

import (
	"io/fs"
	"syscall"
	"time"
)

// accessTime возвращает время последнего доступа к файлу.
func accessTime(info fs.FileInfo) time.Time {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(stat.Atim.Sec, stat.Atim.Nsec).UTC()
	}
	return info.ModTime().UTC()
}
