//go:build linux

package directories

import "golang.org/x/sys/unix"

// OSFreeBytes is the production FreeBytesFunc, backed by statfs(2).
func OSFreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
