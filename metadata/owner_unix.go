//go:build !windows

package metadata

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func fileOwner(path string) string {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%d", st.Uid, st.Gid)
}
