//go:build linux || darwin || freebsd || openbsd

package search

import (
	"time"

	"golang.org/x/sys/unix"
)

func accessTime(path string) (time.Time, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return time.Time{}, err
	}
	sec, nsec := stat.Atim.Unix()
	return time.Unix(sec, nsec), nil
}
