//go:build !(linux || darwin || freebsd || openbsd)

package search

import (
	"errors"
	"time"
)

var errAccessTimeUnsupported = errors.New("access time is not available on this platform")

func accessTime(string) (time.Time, error) {
	return time.Time{}, errAccessTimeUnsupported
}
