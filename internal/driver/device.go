package driver

import (
	"os"
	"syscall"
)

// deviceID extracts the st_dev field backing a root's FileInfo, used to
// detect mount-point crossings during the incremental pass (spec.md §4.4).
func deviceID(info os.FileInfo) uint64 {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return uint64(stat.Dev)
}
