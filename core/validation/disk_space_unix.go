//go:build !windows

package validation

import "syscall"

// getDiskSpace uses statfs. Free counts blocks available to unprivileged
// users.
func getDiskSpace(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return uint64(stat.Blocks) * bsize, uint64(stat.Bavail) * bsize, nil
}
