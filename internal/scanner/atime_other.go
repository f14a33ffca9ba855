//go:build !linux

package scanner

import (
	"io/fs"
	"time"
)

// accessTime возвращает время последнего доступа к файлу.
// На платформах без atime в Stat_t используется время модификации.
func accessTime(info fs.FileInfo) time.Time {
	return info.ModTime().UTC()
}
